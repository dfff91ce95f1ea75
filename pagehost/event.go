package pagehost

import (
	_ "embed"
	"encoding/json"
	"fmt"
)

// BindingName is the CDP binding the injected script reports through.
const BindingName = "__scrollguard_binding"

//go:embed scroll.js
var scrollJS string

// Kind of a page event.
type Kind string

const (
	// KindInit: a new document started.
	KindInit Kind = "init"
	// KindScroll: the window scrolled.
	KindScroll Kind = "scroll"
	// KindNavigate: the URL changed without a new document.
	KindNavigate Kind = "navigate"
)

// Event is one report from the injected script.
type Event struct {
	Kind           Kind    `json:"kind"`
	URL            string  `json:"url"`
	ScrollY        float64 `json:"y"`
	ViewportHeight float64 `json:"vh"`
}

// ParseEvent decodes a binding payload.
func ParseEvent(payload string) (Event, error) {
	var ev Event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return ev, fmt.Errorf("pagehost: parse event: %w", err)
	}
	switch ev.Kind {
	case KindInit, KindScroll, KindNavigate:
	default:
		return ev, fmt.Errorf("pagehost: unknown event kind %q", ev.Kind)
	}
	return ev, nil
}
