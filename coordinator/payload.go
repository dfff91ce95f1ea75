package coordinator

import (
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/samber/lo"

	"github.com/hazyhaar/scrollguard/settings"
)

// MaxPopupTodos caps the todos shown in one intervention.
const MaxPopupTodos = 5

// AdPlaceholder is shown to non-premium users.
type AdPlaceholder struct {
	Text string `json:"text"`
	CTA  string `json:"cta"`
}

// DefaultAd is the static placeholder.
var DefaultAd = AdPlaceholder{
	Text: "Sponsored - Try Premium for Ad-Free Experience",
	CTA:  "Upgrade Now",
}

// Payload is the snapshot handed to the popup in its launch URL.
type Payload struct {
	Todos         []settings.Todo `json:"todos"`
	Tip           string          `json:"tip"`
	IsPremium     bool            `json:"isPremium"`
	CurrentDomain string          `json:"currentDomain"`
	AdPlaceholder *AdPlaceholder  `json:"adPlaceholder"`
}

// BuildPayload selects up to MaxPopupTodos incomplete todos in store order.
func BuildPayload(s settings.Settings, tip, host string) Payload {
	todos := lo.Filter(s.Todos, func(t settings.Todo, _ int) bool { return !t.Completed })
	if len(todos) > MaxPopupTodos {
		todos = todos[:MaxPopupTodos]
	}
	p := Payload{
		Todos:         todos,
		Tip:           tip,
		IsPremium:     s.IsPremium,
		CurrentDomain: host,
	}
	if !s.IsPremium {
		ad := DefaultAd
		p.AdPlaceholder = &ad
	}
	return p
}

// LaunchURL encodes p as JSON into the data query parameter of base.
func LaunchURL(base string, p Payload) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("coordinator: popup url: %w", err)
	}
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("coordinator: marshal payload: %w", err)
	}
	q := u.Query()
	q.Set("data", string(data))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ParsePayload decodes the data parameter of a launch URL query.
func ParsePayload(q url.Values) (Payload, error) {
	var p Payload
	raw := q.Get("data")
	if raw == "" {
		return p, fmt.Errorf("coordinator: launch url has no data")
	}
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return p, fmt.Errorf("coordinator: decode payload: %w", err)
	}
	return p, nil
}
