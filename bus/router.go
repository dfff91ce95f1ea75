// Package bus routes protocol messages to their handlers, either in-process
// or to a remote scrollguard daemon over HTTP.
//
// Observed pages, the popup and the settings UI all talk to the coordinator
// through a Router; the coordinator never needs to know which side of a
// process boundary the sender is on.
//
//	r := bus.New(bus.WithMiddleware(bus.Recovery(logger), bus.Logging(logger)))
//	r.Register(protocol.GetTips, coord.HandleGetTips)
//	resp, err := r.Call(ctx, env)
package bus

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"

	"github.com/hazyhaar/scrollguard/protocol"
)

// Handler processes one envelope and returns a JSON response body (nil for
// fire-and-forget messages).
type Handler func(ctx context.Context, env protocol.Envelope) (json.RawMessage, error)

type remoteEntry struct {
	handler  Handler
	endpoint string
	close    func()
}

// Router dispatches envelopes by message type. Remote routes take priority
// over local handlers for the same type. Safe for concurrent use.
type Router struct {
	mu     sync.RWMutex
	local  map[protocol.Type]Handler
	remote map[protocol.Type]remoteEntry
	mw     HandlerMiddleware
	logger *slog.Logger
}

// Option configures a Router.
type Option func(*Router)

// WithLogger sets the router logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Router) { r.logger = l }
}

// WithMiddleware wraps every handler, local or remote, in mws. The first
// middleware is the outermost.
func WithMiddleware(mws ...HandlerMiddleware) Option {
	return func(r *Router) { r.mw = Chain(mws...) }
}

// New creates an empty Router.
func New(opts ...Option) *Router {
	r := &Router{
		local:  make(map[protocol.Type]Handler),
		remote: make(map[protocol.Type]remoteEntry),
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Register installs the in-process handler for t, replacing any previous one.
func (r *Router) Register(t protocol.Type, h Handler) {
	r.mu.Lock()
	r.local[t] = r.wrap(h)
	r.mu.Unlock()
}

// RegisterRemote sends every envelope of type t to the daemon at baseURL.
// A previous remote route for t is closed.
func (r *Router) RegisterRemote(t protocol.Type, baseURL string, opts HTTPOptions) error {
	h, closeFn, err := HTTPTransport(baseURL, opts)
	if err != nil {
		return err
	}
	r.mu.Lock()
	old, had := r.remote[t]
	r.remote[t] = remoteEntry{handler: r.wrap(h), endpoint: baseURL, close: closeFn}
	r.mu.Unlock()

	if had && old.close != nil {
		old.close()
	}
	r.logger.Info("bus: remote route registered", "type", t, "endpoint", baseURL)
	return nil
}

// Unregister drops both the local and remote handlers for t.
func (r *Router) Unregister(t protocol.Type) {
	r.mu.Lock()
	old, had := r.remote[t]
	delete(r.remote, t)
	delete(r.local, t)
	r.mu.Unlock()
	if had && old.close != nil {
		old.close()
	}
}

// Call dispatches env and returns the handler response.
func (r *Router) Call(ctx context.Context, env protocol.Envelope) (json.RawMessage, error) {
	if !env.Type.Valid() {
		return nil, &ErrUnknownType{Type: env.Type}
	}

	r.mu.RLock()
	entry, hasRemote := r.remote[env.Type]
	localH := r.local[env.Type]
	r.mu.RUnlock()

	if hasRemote {
		r.logger.DebugContext(ctx, "bus: routing remote", "type", env.Type, "endpoint", entry.endpoint)
		return entry.handler(ctx, env)
	}
	if localH != nil {
		r.logger.DebugContext(ctx, "bus: routing local", "type", env.Type)
		return localH(ctx, env)
	}
	return nil, &ErrNoHandler{Type: env.Type}
}

// Send is Call for fire-and-forget messages: the response is discarded and
// delivery failures are logged at debug and dropped.
func (r *Router) Send(ctx context.Context, env protocol.Envelope) {
	if _, err := r.Call(ctx, env); err != nil {
		r.logger.DebugContext(ctx, "bus: message dropped", "type", env.Type, "page_id", env.PageID, "error", err)
	}
}

// Routes lists the routable message types with their strategy ("local" or
// the remote endpoint).
func (r *Router) Routes() []Route {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Route, 0, len(r.local)+len(r.remote))
	for t, e := range r.remote {
		out = append(out, Route{Type: t, Strategy: "http", Endpoint: e.endpoint})
	}
	for t := range r.local {
		if _, shadowed := r.remote[t]; shadowed {
			continue
		}
		out = append(out, Route{Type: t, Strategy: "local"})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}

// Route describes one entry of Routes.
type Route struct {
	Type     protocol.Type `json:"type"`
	Strategy string        `json:"strategy"`
	Endpoint string        `json:"endpoint,omitempty"`
}

// Close shuts down every remote transport.
func (r *Router) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.remote {
		if e.close != nil {
			e.close()
		}
	}
	r.remote = make(map[protocol.Type]remoteEntry)
	return nil
}

func (r *Router) wrap(h Handler) Handler {
	if r.mw == nil {
		return h
	}
	return r.mw(h)
}
