package pagehost

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/hazyhaar/scrollguard/protocol"
)

// Registry indexes live pages by ID and routes coordinator messages to them.
// It implements coordinator.Notifier.
type Registry struct {
	mu     sync.RWMutex
	pages  map[string]*Page
	logger *slog.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{pages: make(map[string]*Page), logger: logger}
}

// Add registers p. A page with the same ID is replaced and closed.
func (r *Registry) Add(p *Page) {
	r.mu.Lock()
	old := r.pages[p.ID()]
	r.pages[p.ID()] = p
	r.mu.Unlock()
	if old != nil && old != p {
		old.Close()
	}
}

// Remove unregisters and closes the page. Unknown IDs are a no-op.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	p := r.pages[id]
	delete(r.pages, id)
	r.mu.Unlock()
	if p != nil {
		p.Close()
	}
}

// Get returns the page with the given ID.
func (r *Registry) Get(id string) (*Page, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.pages[id]
	return p, ok
}

// Len returns the number of live pages.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.pages)
}

// List returns the status of every live page, sorted by ID.
func (r *Registry) List() []PageStatus {
	r.mu.RLock()
	pages := make([]*Page, 0, len(r.pages))
	for _, p := range r.pages {
		pages = append(pages, p)
	}
	r.mu.RUnlock()

	out := make([]PageStatus, 0, len(pages))
	for _, p := range pages {
		out = append(out, p.Status())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// CloseAll closes and forgets every page.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	pages := r.pages
	r.pages = make(map[string]*Page)
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, p := range pages {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Close()
		}()
	}
	wg.Wait()
}

// Notify delivers env to one page.
func (r *Registry) Notify(_ context.Context, pageID string, env protocol.Envelope) error {
	p, ok := r.Get(pageID)
	if !ok {
		return fmt.Errorf("pagehost: notify %s: page %q not found", env.Type, pageID)
	}
	if err := p.Deliver(env); err != nil {
		return fmt.Errorf("pagehost: notify %s: %w", env.Type, err)
	}
	return nil
}

// Broadcast delivers env to every page. Pages that cannot take it are
// logged and skipped.
func (r *Registry) Broadcast(_ context.Context, env protocol.Envelope) error {
	r.mu.RLock()
	pages := make([]*Page, 0, len(r.pages))
	for _, p := range r.pages {
		pages = append(pages, p)
	}
	r.mu.RUnlock()

	for _, p := range pages {
		if err := p.Deliver(env); err != nil {
			r.logger.Debug("pagehost: broadcast skipped page", "page_id", p.ID(), "type", env.Type, "error", err)
		}
	}
	return nil
}
