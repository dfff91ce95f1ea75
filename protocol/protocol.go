// Package protocol defines the messages exchanged between observed pages,
// the intervention coordinator and the settings/popup surfaces.
//
// Sender identity is explicit: every Envelope carries the page ID and the
// page URL, so the coordinator can route a reset back to the exact page that
// raised a detection without inspecting the transport.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Type names a logical message.
type Type string

const (
	// ScrollDetected: page → coordinator, fire-and-forget.
	ScrollDetected Type = "SCROLL_DETECTED"
	// GetSettings: page → coordinator, answers with Settings.
	GetSettings Type = "GET_SETTINGS"
	// SettingsUpdated: coordinator → all pages.
	SettingsUpdated Type = "SETTINGS_UPDATED"
	// ResetScrollCount: coordinator → one page.
	ResetScrollCount Type = "RESET_SCROLL_COUNT"
	// GetTips: popup/page → coordinator, answers with TipsResponse.
	GetTips Type = "GET_TIPS"
	// UpdateTodos: any UI → coordinator, answers with SuccessResponse.
	UpdateTodos Type = "UPDATE_TODOS"
	// CheckPremium: any UI → coordinator, answers with PremiumResponse.
	CheckPremium Type = "CHECK_PREMIUM"
)

// Types lists every message type in protocol order.
var Types = []Type{
	ScrollDetected, GetSettings, SettingsUpdated, ResetScrollCount,
	GetTips, UpdateTodos, CheckPremium,
}

// Valid reports whether t is a known message type.
func (t Type) Valid() bool {
	for _, k := range Types {
		if k == t {
			return true
		}
	}
	return false
}

// Envelope is the unit carried by the bus and the HTTP surface.
type Envelope struct {
	Type    Type            `json:"type"`
	PageID  string          `json:"page_id,omitempty"`
	URL     string          `json:"url,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// New builds an Envelope with payload marshalled to JSON. A nil payload
// produces an empty object.
func New(t Type, pageID, pageURL string, payload any) (Envelope, error) {
	env := Envelope{Type: t, PageID: pageID, URL: pageURL}
	if payload == nil {
		env.Payload = json.RawMessage(`{}`)
		return env, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return env, fmt.Errorf("protocol: marshal %s payload: %w", t, err)
	}
	env.Payload = data
	return env, nil
}

// Decode unmarshals the envelope payload into v. An empty payload leaves v
// untouched.
func (e Envelope) Decode(v any) error {
	if len(e.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("protocol: decode %s payload: %w", e.Type, err)
	}
	return nil
}

// Marshal encodes the envelope.
func (e Envelope) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Unmarshal decodes an envelope and rejects unknown message types.
func Unmarshal(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return env, fmt.Errorf("protocol: unmarshal envelope: %w", err)
	}
	if !env.Type.Valid() {
		return env, fmt.Errorf("protocol: unknown message type %q", env.Type)
	}
	return env, nil
}
