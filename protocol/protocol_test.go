package protocol

import (
	"encoding/json"
	"testing"
)

func TestNew_NilPayloadIsEmptyObject(t *testing.T) {
	env, err := New(ResetScrollCount, "page-1", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if string(env.Payload) != "{}" {
		t.Errorf("Payload: got %s, want {}", env.Payload)
	}
}

func TestEnvelope_CarriesSenderIdentity(t *testing.T) {
	env, err := New(ScrollDetected, "page-7", "https://www.reddit.com/r/golang", nil)
	if err != nil {
		t.Fatal(err)
	}
	data, err := env.Marshal()
	if err != nil {
		t.Fatal(err)
	}
	got, err := Unmarshal(data)
	if err != nil {
		t.Fatal(err)
	}
	if got.PageID != "page-7" || got.URL != "https://www.reddit.com/r/golang" {
		t.Errorf("identity lost: %+v", got)
	}
}

func TestUnmarshal_RejectsUnknownType(t *testing.T) {
	if _, err := Unmarshal([]byte(`{"type":"SELF_DESTRUCT"}`)); err == nil {
		t.Fatal("expected error for unknown type")
	}
}

func TestScrollSettings_KeepsRawValues(t *testing.T) {
	var s ScrollSettings
	if err := json.Unmarshal([]byte(`{"scrollThreshold":"invalid","timeWindowSeconds":3}`), &s); err != nil {
		t.Fatal(err)
	}
	if s.ScrollThreshold != "invalid" {
		t.Errorf("ScrollThreshold: got %#v", s.ScrollThreshold)
	}
	if s.TimeWindowSeconds != float64(3) {
		t.Errorf("TimeWindowSeconds: got %#v", s.TimeWindowSeconds)
	}
}

func TestDecode_EmptyPayload(t *testing.T) {
	env := Envelope{Type: GetTips}
	var v TipsResponse
	if err := env.Decode(&v); err != nil {
		t.Fatalf("Decode: %v", err)
	}
}
