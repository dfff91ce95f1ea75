package settings

import (
	"encoding/json"
	"math"
	"strings"
)

// Bounds for the tracker settings.
const (
	DefaultScrollThreshold   = 10
	MinScrollThreshold       = 1
	MaxScrollThreshold       = 100
	DefaultTimeWindowSeconds = 30
	MinTimeWindowSeconds     = 5
	MaxTimeWindowSeconds     = 300
)

// ValidateScrollThreshold converts v to an integer the way a settings form
// value is read (leading integer prefix of strings, truncation of numbers),
// clamps it to [1,100] and falls back to 10 when nothing parses.
func ValidateScrollThreshold(v any) int {
	return validateInt(v, DefaultScrollThreshold, MinScrollThreshold, MaxScrollThreshold)
}

// ValidateTimeWindow is ValidateScrollThreshold for the window length in
// seconds: clamped to [5,300], default 30.
func ValidateTimeWindow(v any) int {
	return validateInt(v, DefaultTimeWindowSeconds, MinTimeWindowSeconds, MaxTimeWindowSeconds)
}

func validateInt(v any, def, lo, hi int) int {
	f, ok := parseLeadingInt(v)
	if !ok {
		return def
	}
	if f < float64(lo) {
		return lo
	}
	if f > float64(hi) {
		return hi
	}
	return int(f)
}

// parseLeadingInt returns the integer part of v. Strings are read up to the
// first non-digit after optional whitespace and sign; "12px" is 12, "px" is
// not a number.
func parseLeadingInt(v any) (float64, bool) {
	switch n := v.(type) {
	case nil:
		return 0, false
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return truncFloat(float64(n))
	case float64:
		return truncFloat(n)
	case json.Number:
		return parseLeadingIntString(string(n))
	case string:
		return parseLeadingIntString(n)
	default:
		return 0, false
	}
}

func truncFloat(f float64) (float64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return math.Trunc(f), true
}

func parseLeadingIntString(s string) (float64, bool) {
	s = strings.TrimLeft(s, " \t\n\r\v\f")
	neg := false
	if s != "" && (s[0] == '+' || s[0] == '-') {
		neg = s[0] == '-'
		s = s[1:]
	}
	var acc float64
	digits := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			break
		}
		acc = acc*10 + float64(r-'0')
		digits++
	}
	if digits == 0 {
		return 0, false
	}
	if neg {
		acc = -acc
	}
	return acc, true
}
