// Package coordinator arbitrates the single intervention popup shared by
// every observed page: it applies the cooldown and the domain ignore list,
// opens the popup with a snapshot of todos and a tip, and tells the
// originating page to reset its tracker.
package coordinator

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/hazyhaar/scrollguard/clock"
	"github.com/hazyhaar/scrollguard/hostname"
	"github.com/hazyhaar/scrollguard/protocol"
	"github.com/hazyhaar/scrollguard/settings"
)

// DefaultCooldown is the minimum gap between two intervention attempts.
const DefaultCooldown = 5 * time.Second

// DefaultPopupURL is served by the daemon HTTP API.
const DefaultPopupURL = "http://127.0.0.1:7879/intervention"

// Outcome of an intervention attempt.
type Outcome string

const (
	OutcomeShown      Outcome = "shown"
	OutcomeSuppressed Outcome = "suppressed"
	OutcomeIgnored    Outcome = "ignored"
	OutcomeFailed     Outcome = "failed"
)

// Reasons attached to journal events.
const (
	ReasonNone          = ""
	ReasonCooldown      = "cooldown"
	ReasonRefocused     = "refocused"
	ReasonIgnoredDomain = "ignored_domain"
	ReasonNoHost        = "no_host"
	ReasonWindowError   = "window_error"
)

// Event is one intervention attempt, as written to the journal.
type Event struct {
	At      time.Time `json:"at"`
	Outcome Outcome   `json:"outcome"`
	Reason  string    `json:"reason,omitempty"`
	Host    string    `json:"host,omitempty"`
	PageID  string    `json:"page_id,omitempty"`
	PopupID string    `json:"popup_id,omitempty"`
}

// SettingsSource is the part of the settings store the coordinator uses.
// *settings.Store implements it.
type SettingsSource interface {
	Load(ctx context.Context) (settings.Settings, error)
	Seed(ctx context.Context) (bool, error)
	UpdateTodos(ctx context.Context, todos []settings.Todo) error
}

// Notifier delivers coordinator → page messages.
type Notifier interface {
	Notify(ctx context.Context, pageID string, env protocol.Envelope) error
	Broadcast(ctx context.Context, env protocol.Envelope) error
}

// Journal records intervention outcomes. Implementations must not block
// for long and handle their own failures.
type Journal interface {
	Record(ctx context.Context, ev Event)
}

// Config for creating a Coordinator. Windows and Settings are required.
type Config struct {
	Clock    clock.Clock
	Windows  WindowFactory
	Settings SettingsSource
	// Pages receives reset and settings broadcasts. Optional.
	Pages Notifier
	// Journal receives one Event per detection. Optional.
	Journal Journal
	// Cooldown between attempts. Default: DefaultCooldown.
	Cooldown time.Duration
	// PopupURL is the page the popup loads; the payload is appended as
	// the data query parameter. Default: DefaultPopupURL.
	PopupURL string
	// Intn picks a tip index in [0,n). Default: math/rand/v2.IntN.
	Intn   func(n int) int
	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.Cooldown <= 0 {
		c.Cooldown = DefaultCooldown
	}
	if c.PopupURL == "" {
		c.PopupURL = DefaultPopupURL
	}
	if c.Intn == nil {
		c.Intn = rand.IntN
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	c.Clock = clock.OrReal(c.Clock)
}

// Status is a snapshot of the coordinator state.
type Status struct {
	LastShownAt time.Time     `json:"last_shown_at,omitzero"`
	Cooldown    time.Duration `json:"cooldown_ns"`
	PopupOpen   bool          `json:"popup_open"`
	PopupID     string        `json:"popup_id,omitempty"`
}

// Coordinator is the process-wide intervention arbiter.
type Coordinator struct {
	cfg Config
	log *slog.Logger

	// attempt serialises TryShowPopup end to end.
	attempt sync.Mutex

	mu          sync.Mutex
	lastShownAt time.Time
	popup       Window
	cached      settings.Settings
	haveCached  bool
}

// New creates a Coordinator.
func New(cfg Config) *Coordinator {
	cfg.defaults()
	return &Coordinator{cfg: cfg, log: cfg.Logger}
}

// Activate seeds default settings on first install and primes the settings
// cache. Storage failures are logged, never returned.
func (c *Coordinator) Activate(ctx context.Context) {
	seeded, err := c.cfg.Settings.Seed(ctx)
	switch {
	case err != nil:
		c.log.Warn("coordinator: seeding failed", "error", err)
	case seeded:
		c.log.Info("coordinator: default settings installed")
	default:
		c.log.Debug("coordinator: settings already present, seeding skipped")
	}
	c.loadSettings(ctx)
}

// HandlePatternDetected reacts to a SCROLL_DETECTED from pageID, whose
// current URL is pageURL.
func (c *Coordinator) HandlePatternDetected(ctx context.Context, pageID, pageURL string) Outcome {
	ev := Event{PageID: pageID}
	defer func() {
		ev.At = c.cfg.Clock.Now()
		if c.cfg.Journal != nil {
			c.cfg.Journal.Record(ctx, ev)
		}
	}()

	host, ok := hostname.FromURL(pageURL)
	if !ok {
		c.log.Debug("coordinator: detection without a usable url", "page_id", pageID, "url", pageURL)
		ev.Outcome, ev.Reason = OutcomeIgnored, ReasonNoHost
		return ev.Outcome
	}
	ev.Host = host

	if c.loadSettings(ctx).Ignores(host) {
		c.log.Debug("coordinator: domain ignored", "host", host)
		ev.Outcome, ev.Reason = OutcomeIgnored, ReasonIgnoredDomain
		return ev.Outcome
	}

	var popupID string
	ev.Outcome, ev.Reason, popupID = c.tryShowPopup(ctx, host)
	ev.PopupID = popupID

	if ev.Outcome == OutcomeShown && pageID != "" && c.cfg.Pages != nil {
		env, _ := protocol.New(protocol.ResetScrollCount, pageID, "", nil)
		if err := c.cfg.Pages.Notify(ctx, pageID, env); err != nil {
			c.log.Debug("coordinator: reset not delivered", "page_id", pageID, "error", err)
		}
	}
	return ev.Outcome
}

// TryShowPopup opens the intervention popup for originHost unless the
// cooldown is active or a popup is already open.
func (c *Coordinator) TryShowPopup(ctx context.Context, originHost string) Outcome {
	out, _, _ := c.tryShowPopup(ctx, hostname.Normalize(originHost))
	return out
}

func (c *Coordinator) tryShowPopup(ctx context.Context, host string) (Outcome, string, string) {
	c.attempt.Lock()
	defer c.attempt.Unlock()

	now := c.cfg.Clock.Now()
	c.mu.Lock()
	if !c.lastShownAt.IsZero() && now.Sub(c.lastShownAt) < c.cfg.Cooldown {
		c.mu.Unlock()
		c.log.Debug("coordinator: cooldown active", "host", host)
		return OutcomeSuppressed, ReasonCooldown, ""
	}
	c.mu.Unlock()

	s := c.loadSettings(ctx)

	// Checked after the settings read so a popup closed meanwhile is seen.
	if id, open := c.refocus(ctx); open {
		return OutcomeSuppressed, ReasonRefocused, id
	}

	tips := tipCatalog[:]
	tip := tips[c.cfg.Intn(len(tips))]
	launch, err := LaunchURL(c.cfg.PopupURL, BuildPayload(s, tip, host))
	if err != nil {
		c.log.Error("coordinator: build launch url", "error", err)
		return OutcomeFailed, ReasonWindowError, ""
	}

	win, err := c.cfg.Windows.Open(ctx, WindowSpec{URL: launch, Width: PopupWidth, Height: PopupHeight})

	c.mu.Lock()
	c.lastShownAt = c.cfg.Clock.Now()
	if err == nil {
		c.popup = win
	}
	c.mu.Unlock()

	if err != nil {
		c.log.Warn("coordinator: popup creation failed", "host", host, "error", err)
		return OutcomeFailed, ReasonWindowError, ""
	}

	win.OnClose(func() { c.forget(win) })
	c.log.Info("coordinator: intervention shown", "host", host, "popup_id", win.ID())
	return OutcomeShown, ReasonNone, win.ID()
}

// refocus checks the recorded popup. If it still exists it is focused,
// lastShownAt is bumped and open is true. A vanished popup is forgotten;
// one whose existence cannot be checked is kept and treated as open.
func (c *Coordinator) refocus(ctx context.Context) (id string, open bool) {
	c.mu.Lock()
	win := c.popup
	c.mu.Unlock()
	if win == nil {
		return "", false
	}

	exists, err := win.Exists(ctx)
	switch {
	case err != nil:
		c.log.Warn("coordinator: popup existence unknown, keeping handle", "popup_id", win.ID(), "error", err)
	case !exists:
		c.log.Debug("coordinator: stale popup handle cleared", "popup_id", win.ID())
		c.forget(win)
		return "", false
	}

	if err := win.Focus(ctx); err != nil {
		c.log.Debug("coordinator: popup focus failed", "popup_id", win.ID(), "error", err)
	}
	c.mu.Lock()
	c.lastShownAt = c.cfg.Clock.Now()
	c.mu.Unlock()
	return win.ID(), true
}

// forget clears the popup handle if it still points at win.
func (c *Coordinator) forget(win Window) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.popup == win {
		c.popup = nil
	}
}

// Settings returns the current settings, falling back to the last value
// read successfully and then to the defaults when storage fails.
func (c *Coordinator) Settings(ctx context.Context) settings.Settings {
	return c.loadSettings(ctx)
}

func (c *Coordinator) loadSettings(ctx context.Context) settings.Settings {
	s, err := c.cfg.Settings.Load(ctx)
	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.log.Warn("coordinator: settings unavailable, using last known", "error", err)
		if c.haveCached {
			return c.cached.Clone()
		}
		return settings.Defaults()
	}
	c.cached = s.Clone()
	c.haveCached = true
	return s
}

// BroadcastSettings pushes the current thresholds to every page.
func (c *Coordinator) BroadcastSettings(ctx context.Context) error {
	if c.cfg.Pages == nil {
		return nil
	}
	s := c.loadSettings(ctx)
	env, err := protocol.New(protocol.SettingsUpdated, "", "", protocol.ScrollSettings{
		ScrollThreshold:   s.ScrollThreshold,
		TimeWindowSeconds: s.TimeWindowSeconds,
	})
	if err != nil {
		return err
	}
	c.log.Debug("coordinator: broadcasting settings",
		"threshold", s.ScrollThreshold, "window_seconds", s.TimeWindowSeconds)
	return c.cfg.Pages.Broadcast(ctx, env)
}

// Status returns a snapshot of the coordinator state.
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := Status{LastShownAt: c.lastShownAt, Cooldown: c.cfg.Cooldown}
	if c.popup != nil {
		st.PopupOpen = true
		st.PopupID = c.popup.ID()
	}
	return st
}
