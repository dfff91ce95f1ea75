package coordinator

import (
	"context"
	"sync"
)

// PopupWidth and PopupHeight size the intervention window.
const (
	PopupWidth  = 400
	PopupHeight = 500
)

// WindowSpec describes a popup to open.
type WindowSpec struct {
	URL    string
	Width  int
	Height int
}

// Window is a handle on an open popup.
type Window interface {
	ID() string
	// Exists reports whether the window is still open. An error means the
	// answer is unknown, not that the window is gone.
	Exists(ctx context.Context) (bool, error)
	// Focus brings the window to the front.
	Focus(ctx context.Context) error
	// OnClose registers fn to run exactly once when the window closes. If
	// the window is already closed fn runs immediately.
	OnClose(fn func())
}

// WindowFactory opens popups.
type WindowFactory interface {
	Open(ctx context.Context, spec WindowSpec) (Window, error)
}

// WindowFactoryFunc adapts a function to WindowFactory.
type WindowFactoryFunc func(ctx context.Context, spec WindowSpec) (Window, error)

// Open calls f.
func (f WindowFactoryFunc) Open(ctx context.Context, spec WindowSpec) (Window, error) {
	return f(ctx, spec)
}

// CloseSignal implements the OnClose half of Window: subscribers run once,
// on the first Fire. Subscribing after Fire runs the subscriber at once.
type CloseSignal struct {
	mu     sync.Mutex
	closed bool
	subs   []func()
}

// OnClose registers fn.
func (c *CloseSignal) OnClose(fn func()) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		fn()
		return
	}
	c.subs = append(c.subs, fn)
	c.mu.Unlock()
}

// Fire marks the window closed and runs the subscribers. Later calls do
// nothing.
func (c *CloseSignal) Fire() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()

	for _, fn := range subs {
		fn()
	}
}

// Closed reports whether Fire was called.
func (c *CloseSignal) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
