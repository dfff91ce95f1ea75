package bus

import (
	"context"
	"encoding/json"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/hazyhaar/scrollguard/kit"
	"github.com/hazyhaar/scrollguard/protocol"
)

// HandlerMiddleware wraps a Handler without changing its signature.
type HandlerMiddleware func(next Handler) Handler

// Chain composes middlewares left-to-right: the first one is the outermost
// wrapper.
func Chain(mws ...HandlerMiddleware) HandlerMiddleware {
	return func(next Handler) Handler {
		for i := len(mws) - 1; i >= 0; i-- {
			next = mws[i](next)
		}
		return next
	}
}

// Logging logs every dispatched message with its duration.
func Logging(logger *slog.Logger) HandlerMiddleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, env protocol.Envelope) (json.RawMessage, error) {
			start := time.Now()
			resp, err := next(ctx, env)
			dur := time.Since(start)

			if err != nil {
				logger.WarnContext(ctx, "bus: call failed",
					"type", env.Type,
					"transport", kit.GetTransport(ctx),
					"trace_id", kit.GetTraceID(ctx),
					"page_id", env.PageID,
					"duration_ms", dur.Milliseconds(),
					"error", err)
			} else {
				logger.DebugContext(ctx, "bus: call ok",
					"type", env.Type,
					"transport", kit.GetTransport(ctx),
					"page_id", env.PageID,
					"duration_ms", dur.Milliseconds(),
					"response_bytes", len(resp))
			}
			return resp, err
		}
	}
}

// Timeout bounds each call to d.
func Timeout(d time.Duration) HandlerMiddleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, env protocol.Envelope) (json.RawMessage, error) {
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next(ctx, env)
		}
	}
}

// Recovery turns a handler panic into an *ErrPanic.
func Recovery(logger *slog.Logger) HandlerMiddleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, env protocol.Envelope) (resp json.RawMessage, err error) {
			defer func() {
				if r := recover(); r != nil {
					logger.ErrorContext(ctx, "bus: handler panic recovered",
						"type", env.Type,
						"panic", r,
						"stack", string(debug.Stack()))
					resp, err = nil, &ErrPanic{Type: env.Type, Value: r}
				}
			}()
			return next(ctx, env)
		}
	}
}
