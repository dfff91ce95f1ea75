package bus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hazyhaar/scrollguard/protocol"
)

// Func adapts a typed function into a Handler: the payload is decoded into
// Req and a non-nil Resp is encoded as JSON.
func Func[Req, Resp any](fn func(ctx context.Context, env protocol.Envelope, req Req) (Resp, error)) Handler {
	return func(ctx context.Context, env protocol.Envelope) (json.RawMessage, error) {
		var req Req
		if err := env.Decode(&req); err != nil {
			return nil, &ErrBadPayload{Type: env.Type, Cause: err}
		}
		resp, err := fn(ctx, env, req)
		if err != nil {
			return nil, err
		}
		return encode(env.Type, resp)
	}
}

// Notify adapts a fire-and-forget function into a Handler that never
// returns a body.
func Notify(fn func(ctx context.Context, env protocol.Envelope)) Handler {
	return func(ctx context.Context, env protocol.Envelope) (json.RawMessage, error) {
		fn(ctx, env)
		return nil, nil
	}
}

// Decode unmarshals a Call response into v.
func Decode(resp json.RawMessage, v any) error {
	if len(resp) == 0 {
		return fmt.Errorf("bus: empty response")
	}
	if err := json.Unmarshal(resp, v); err != nil {
		return fmt.Errorf("bus: decode response: %w", err)
	}
	return nil
}

func encode(t protocol.Type, v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("bus: encode %s response: %w", t, err)
	}
	return data, nil
}
