// Package idgen generates the identifiers scrollguard hands out: observed
// pages, popups and journal events.
package idgen

import (
	"crypto/rand"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Generator produces unique string identifiers.
type Generator func() string

// UUIDv7 returns a Generator of RFC 9562 version 7 UUIDs (time-sortable).
func UUIDv7() Generator {
	return func() string {
		return uuid.Must(uuid.NewV7()).String()
	}
}

// NanoID returns a Generator of base-36 IDs of the given length.
func NanoID(length int) Generator {
	const alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	return func() string {
		buf := make([]byte, length)
		if _, err := rand.Read(buf); err != nil {
			panic("idgen: crypto/rand failed: " + err.Error())
		}
		for i := range buf {
			buf[i] = alphabet[int(buf[i])%len(alphabet)]
		}
		return string(buf)
	}
}

// Prefixed prepends prefix to every ID of gen.
func Prefixed(prefix string, gen Generator) Generator {
	return func() string {
		return prefix + gen()
	}
}

// Prefixes of the typed identifiers.
const (
	PagePrefix  = "page_"
	PopupPrefix = "popup_"
	EventPrefix = "evt_"
)

var (
	// Page identifies an observed tab for the lifetime of the daemon. Short,
	// since it travels in every envelope.
	Page = Prefixed(PagePrefix, NanoID(12))
	// Popup identifies one intervention window.
	Popup = Prefixed(PopupPrefix, UUIDv7())
	// Event identifies one journal row.
	Event = Prefixed(EventPrefix, UUIDv7())
)

// ParseTyped checks that id carries prefix and that a UUID-backed suffix is
// well formed. It returns the suffix.
func ParseTyped(id, prefix string) (string, error) {
	rest, ok := strings.CutPrefix(id, prefix)
	if !ok || rest == "" {
		return "", fmt.Errorf("idgen: %q lacks prefix %q", id, prefix)
	}
	if prefix == PagePrefix {
		return rest, nil
	}
	if _, err := uuid.Parse(rest); err != nil {
		return "", fmt.Errorf("idgen: invalid UUID in %q: %w", id, err)
	}
	return rest, nil
}
