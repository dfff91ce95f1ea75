package pagehost

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/scrollguard/bus"
	"github.com/hazyhaar/scrollguard/kit"
	"github.com/hazyhaar/scrollguard/protocol"
	"github.com/hazyhaar/scrollguard/scrolltrack"
)

// Dispatcher carries page → coordinator messages. *bus.Router implements it.
type Dispatcher interface {
	Call(ctx context.Context, env protocol.Envelope) (json.RawMessage, error)
	Send(ctx context.Context, env protocol.Envelope)
}

var (
	// ErrPageClosed is returned when delivering to a closed page.
	ErrPageClosed = errors.New("pagehost: page closed")
	// ErrInboxFull is returned when a page is not draining its inbox.
	ErrInboxFull = errors.New("pagehost: page inbox full")
)

// PageConfig for creating a Page.
type PageConfig struct {
	ID  string
	Bus Dispatcher
	// Tracker is the template for the page tracker; OnDetect is overridden.
	Tracker scrolltrack.Config
	// SettingsTimeout bounds the GET_SETTINGS round trip. Default: 5s.
	SettingsTimeout time.Duration
	Logger          *slog.Logger
}

// PageStatus describes one observed page.
type PageStatus struct {
	ID      string            `json:"id"`
	URL     string            `json:"url"`
	Tracker scrolltrack.State `json:"tracker"`
}

type settingsResult struct {
	gen uint64
	s   protocol.ScrollSettings
	err error
}

// Page is one observed page context. A single goroutine (the loop) owns
// every tracker call made on behalf of page events and coordinator
// messages; tracker timers run on their own and are serialised by the
// tracker lock.
type Page struct {
	id      string
	bus     Dispatcher
	tracker *scrolltrack.Tracker
	log     *slog.Logger
	timeout time.Duration

	events     chan Event
	inbox      chan protocol.Envelope
	settingsCh chan settingsResult

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	out    sync.WaitGroup
	start  sync.Once
	stop   sync.Once

	mu  sync.Mutex
	url string

	// gen counts documents; owned by the loop.
	gen uint64
}

// NewPage creates a Page. Call Start to run its loop.
func NewPage(cfg PageConfig) *Page {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.SettingsTimeout <= 0 {
		cfg.SettingsTimeout = 5 * time.Second
	}
	p := &Page{
		id:         cfg.ID,
		bus:        cfg.Bus,
		log:        cfg.Logger.With("page_id", cfg.ID),
		timeout:    cfg.SettingsTimeout,
		events:     make(chan Event, 256),
		inbox:      make(chan protocol.Envelope, 16),
		settingsCh: make(chan settingsResult, 1),
		done:       make(chan struct{}),
	}
	tc := cfg.Tracker
	tc.Logger = p.log
	tc.OnDetect = p.onDetect
	p.tracker = scrolltrack.New(tc)
	return p
}

// ID returns the page identifier.
func (p *Page) ID() string { return p.id }

// Start runs the loop until ctx ends or Close is called.
func (p *Page) Start(ctx context.Context) {
	p.start.Do(func() {
		ctx = kit.WithPageID(kit.WithTransport(ctx, kit.TransportPage), p.id)
		p.ctx, p.cancel = context.WithCancel(ctx)
		go p.loop()
	})
}

// Observe queues an event from the injected script. Scroll events are
// dropped when the loop is backlogged.
func (p *Page) Observe(ev Event) {
	select {
	case <-p.done:
	case p.events <- ev:
	default:
		p.log.Warn("pagehost: event backlog, dropping", "kind", ev.Kind)
	}
}

// Deliver queues a coordinator message for this page.
func (p *Page) Deliver(env protocol.Envelope) error {
	select {
	case <-p.done:
		return ErrPageClosed
	default:
	}
	select {
	case p.inbox <- env:
		return nil
	default:
		return ErrInboxFull
	}
}

// Status returns the page URL and tracker state.
func (p *Page) Status() PageStatus {
	p.mu.Lock()
	u := p.url
	p.mu.Unlock()
	return PageStatus{ID: p.id, URL: u, Tracker: p.tracker.Snapshot()}
}

// Close stops the loop, waits for in-flight messages and cancels the
// tracker timers.
func (p *Page) Close() {
	p.stop.Do(func() {
		p.start.Do(func() {
			// Never started: mark done so Deliver fails.
			p.ctx, p.cancel = context.WithCancel(context.Background())
			close(p.done)
		})
		p.cancel()
		<-p.done
		p.out.Wait()
		p.tracker.Close()
		p.log.Debug("pagehost: page closed")
	})
}

func (p *Page) loop() {
	defer close(p.done)
	for {
		select {
		case <-p.ctx.Done():
			return
		case ev := <-p.events:
			p.handleEvent(ev)
		case env := <-p.inbox:
			p.handleMessage(env)
		case r := <-p.settingsCh:
			p.handleSettings(r)
		}
	}
}

func (p *Page) handleEvent(ev Event) {
	if ev.URL != "" {
		p.mu.Lock()
		p.url = ev.URL
		p.mu.Unlock()
	}
	switch ev.Kind {
	case KindInit:
		p.gen++
		p.tracker.Init(ev.URL, ev.ScrollY)
		p.fetchSettings(p.gen, ev.URL)
	case KindScroll:
		p.tracker.OnScroll(ev.ScrollY, ev.ViewportHeight)
	case KindNavigate:
		p.tracker.Navigate(ev.URL, ev.ScrollY)
	}
}

func (p *Page) handleMessage(env protocol.Envelope) {
	switch env.Type {
	case protocol.ResetScrollCount:
		p.tracker.Reset()
	case protocol.SettingsUpdated:
		var s protocol.ScrollSettings
		if err := env.Decode(&s); err != nil {
			p.log.Debug("pagehost: bad settings push", "error", err)
			return
		}
		p.tracker.SettingsUpdated(s.ScrollThreshold, s.TimeWindowSeconds)
	default:
		p.log.Debug("pagehost: unexpected message", "type", env.Type)
	}
}

func (p *Page) handleSettings(r settingsResult) {
	if r.gen != p.gen {
		// Answer for a document that has since been replaced.
		return
	}
	if r.err != nil {
		p.log.Warn("pagehost: settings unavailable, using defaults", "error", r.err)
		p.tracker.UseDefaults()
		return
	}
	p.tracker.SettingsLoaded(r.s.ScrollThreshold, r.s.TimeWindowSeconds)
}

// fetchSettings asks the coordinator for settings off the loop; the answer
// comes back through settingsCh.
func (p *Page) fetchSettings(gen uint64, pageURL string) {
	p.out.Add(1)
	go func() {
		defer p.out.Done()
		ctx, cancel := context.WithTimeout(p.ctx, p.timeout)
		defer cancel()

		r := settingsResult{gen: gen}
		env, err := protocol.New(protocol.GetSettings, p.id, pageURL, nil)
		if err == nil {
			var resp json.RawMessage
			resp, err = p.bus.Call(ctx, env)
			if err == nil {
				err = bus.Decode(resp, &r.s)
			}
		}
		r.err = err

		select {
		case p.settingsCh <- r:
		case <-p.ctx.Done():
		}
	}()
}

// onDetect runs on the loop (inside OnScroll). The coordinator may answer
// with a reset for this very page, so the message leaves on its own
// goroutine.
func (p *Page) onDetect(d scrolltrack.Detection) {
	env, err := protocol.New(protocol.ScrollDetected, p.id, d.PageURL, nil)
	if err != nil {
		p.log.Error("pagehost: build detection", "error", err)
		return
	}
	p.out.Add(1)
	go func() {
		defer p.out.Done()
		p.bus.Send(p.ctx, env)
	}()
}
