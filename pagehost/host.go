package pagehost

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/scrollguard/coordinator"
	"github.com/hazyhaar/scrollguard/idgen"
	"github.com/hazyhaar/scrollguard/scrolltrack"
)

// HostConfig configures a Host.
type HostConfig struct {
	Browser  BrowserConfig
	Bus      Dispatcher
	Registry *Registry
	Tracker  scrolltrack.Config
	// NewID generates page IDs. Default: idgen.Page.
	NewID  idgen.Generator
	Logger *slog.Logger
}

func (c *HostConfig) defaults() {
	if c.NewID == nil {
		c.NewID = idgen.Page
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Registry == nil {
		c.Registry = NewRegistry(c.Logger)
	}
	c.Browser.Logger = c.Logger
}

// Host runs the browser side: it opens observed tabs, keeps their Pages in
// the registry and opens popups for the coordinator. It implements
// coordinator.WindowFactory.
type Host struct {
	cfg     HostConfig
	log     *slog.Logger
	browser *Browser

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	tabs   map[proto.TargetTargetID]string // target → page ID
	pages  map[string]*tab
	popups map[proto.TargetTargetID]*popup
}

var _ coordinator.WindowFactory = (*Host)(nil)

// NewHost creates a Host. Call Start to launch the browser.
func NewHost(cfg HostConfig) *Host {
	cfg.defaults()
	return &Host{
		cfg:    cfg,
		log:    cfg.Logger,
		tabs:   make(map[proto.TargetTargetID]string),
		pages:  make(map[string]*tab),
		popups: make(map[proto.TargetTargetID]*popup),
	}
}

// Registry returns the page registry.
func (h *Host) Registry() *Registry { return h.cfg.Registry }

// Start launches the browser and watches for closed targets.
func (h *Host) Start(ctx context.Context) error {
	b, err := Launch(h.cfg.Browser)
	if err != nil {
		return err
	}
	h.browser = b
	h.ctx, h.cancel = context.WithCancel(ctx)

	rb := b.Rod()
	if err := (proto.TargetSetDiscoverTargets{Discover: true}).Call(rb); err != nil {
		h.log.Warn("pagehost: target discovery failed", "error", err)
	}
	wait := rb.Context(h.ctx).EachEvent(func(e *proto.TargetTargetDestroyed) {
		h.targetGone(e.TargetID)
	})
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		wait()
	}()
	return nil
}

func (h *Host) rod() (*rod.Browser, error) {
	if h.browser == nil {
		return nil, errors.New("pagehost: host not started")
	}
	return h.browser.Rod(), nil
}

// OpenPage opens pageURL in a new observed tab and returns its page ID.
func (h *Host) OpenPage(ctx context.Context, pageURL string) (string, error) {
	if err := ValidatePageURL(pageURL); err != nil {
		return "", err
	}
	rb, err := h.rod()
	if err != nil {
		return "", err
	}
	id := h.cfg.NewID()
	p := NewPage(PageConfig{ID: id, Bus: h.cfg.Bus, Tracker: h.cfg.Tracker, Logger: h.log})
	p.Start(h.ctx)
	h.cfg.Registry.Add(p)

	t, err := openTab(ctx, rb, p, pageURL, h.log)
	if err != nil {
		h.cfg.Registry.Remove(id)
		return "", err
	}

	h.mu.Lock()
	h.tabs[t.targetID()] = id
	h.pages[id] = t
	h.mu.Unlock()

	h.log.Info("pagehost: page opened", "page_id", id, "url", pageURL)
	return id, nil
}

// ClosePage closes the tab and discards its tracker. Unknown IDs are a
// no-op.
func (h *Host) ClosePage(id string) {
	h.mu.Lock()
	t := h.pages[id]
	delete(h.pages, id)
	if t != nil {
		delete(h.tabs, t.targetID())
	}
	h.mu.Unlock()

	h.cfg.Registry.Remove(id)
	if t != nil {
		t.close()
		h.log.Info("pagehost: page closed", "page_id", id)
	}
}

// Open implements coordinator.WindowFactory.
func (h *Host) Open(ctx context.Context, spec coordinator.WindowSpec) (coordinator.Window, error) {
	rb, err := h.rod()
	if err != nil {
		return nil, err
	}
	p, err := openPopup(ctx, rb, spec, h.log)
	if err != nil {
		return nil, err
	}
	h.mu.Lock()
	h.popups[p.rp.TargetID] = p
	h.mu.Unlock()
	return p, nil
}

// targetGone runs on the browser event goroutine; teardown happens off it
// because closing a tab waits on rod events.
func (h *Host) targetGone(id proto.TargetTargetID) {
	h.mu.Lock()
	p := h.popups[id]
	delete(h.popups, id)
	pageID, isTab := h.tabs[id]
	h.mu.Unlock()

	if p != nil {
		h.log.Debug("pagehost: popup closed", "popup_id", p.ID())
		go p.Fire()
	}
	if isTab {
		h.log.Info("pagehost: tab closed by user", "page_id", pageID)
		go h.ClosePage(pageID)
	}
}

// Stop closes every page and popup handle, then the browser.
func (h *Host) Stop() error {
	if h.browser == nil {
		return nil
	}
	h.mu.Lock()
	ids := make([]string, 0, len(h.pages))
	for id := range h.pages {
		ids = append(ids, id)
	}
	popups := h.popups
	h.popups = make(map[proto.TargetTargetID]*popup)
	h.mu.Unlock()

	for _, id := range ids {
		h.ClosePage(id)
	}
	h.cfg.Registry.CloseAll()
	for _, p := range popups {
		p.Fire()
	}

	h.cancel()
	h.wg.Wait()
	if err := h.browser.Close(); err != nil {
		return fmt.Errorf("pagehost: stop: %w", err)
	}
	return nil
}
