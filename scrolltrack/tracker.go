// Package scrolltrack turns the raw scroll positions of one page into a
// rate-limited "user is scrolling mindlessly" signal.
//
// A Tracker lives exactly as long as one page context. Downward motion is
// accumulated into scroll units of half a viewport; when enough units land
// inside the configured time window the tracker emits a single Detection
// and stays quiet (InterventionPending) until the coordinator tells it to
// Reset, the domain changes, or the page is reloaded.
package scrolltrack

import (
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/hazyhaar/scrollguard/clock"
	"github.com/hazyhaar/scrollguard/hostname"
	"github.com/hazyhaar/scrollguard/settings"
)

const (
	// DefaultIdleTimeout clears the counters after five quiet minutes.
	DefaultIdleTimeout = 5 * time.Minute
	// DefaultNoScrollTimeout clears the counters after 30s without a
	// downward scroll.
	DefaultNoScrollTimeout = 30 * time.Second
	// UnitFactor is the share of the viewport height that makes one unit.
	UnitFactor = 0.5
	// RateWindow is the trailing window of the scroll-rate meter.
	RateWindow = time.Minute
)

// Detection is raised once per threshold crossing.
type Detection struct {
	PageURL string
	Domain  string
	Units   int
	At      time.Time
}

// Settings is the tracker's cached copy of the store thresholds.
type Settings struct {
	ScrollThreshold   int `json:"scrollThreshold"`
	TimeWindowSeconds int `json:"timeWindowSeconds"`
}

// DefaultSettings are used until the first successful settings fetch.
func DefaultSettings() Settings {
	return Settings{
		ScrollThreshold:   settings.DefaultScrollThreshold,
		TimeWindowSeconds: settings.DefaultTimeWindowSeconds,
	}
}

// Config for creating a Tracker.
type Config struct {
	Clock  clock.Clock
	Logger *slog.Logger

	// OnDetect receives each detection. It is called after the tracker
	// has released its lock, so it may call back into the tracker.
	OnDetect func(Detection)

	IdleTimeout     time.Duration
	NoScrollTimeout time.Duration
	// PendingTimeout, when positive, clears InterventionPending on its own
	// if no reset arrives in time (a suppressed detection never gets one).
	// Zero keeps the page pending until a reset, navigation or reload.
	PendingTimeout time.Duration
}

// State is a point-in-time copy of the tracker fields.
type State struct {
	PageURL             string      `json:"page_url"`
	Domain              string      `json:"domain"`
	Accumulator         float64     `json:"accumulator"`
	UnitCount           int         `json:"unit_count"`
	UnitTimestamps      []time.Time `json:"unit_timestamps"`
	LastScrollPosition  float64     `json:"last_scroll_position"`
	InterventionPending bool        `json:"intervention_pending"`
	Settings            Settings    `json:"settings"`
	SettingsReady       bool        `json:"settings_ready"`
	IdleTimerPending    bool        `json:"idle_timer_pending"`
	NoScrollPending     bool        `json:"no_scroll_timer_pending"`
	ScrollRate          int         `json:"scroll_rate"`
}

// Tracker is the per-page scroll state machine. It is safe for concurrent
// use: the page event loop and the timer callbacks are serialised by mu.
type Tracker struct {
	clk      clock.Clock
	logger   *slog.Logger
	onDetect func(Detection)

	mu       sync.Mutex
	pageURL  string
	domain   string
	acc      float64
	units    []time.Time
	lastY    float64
	pending  bool
	settings Settings
	ready    bool
	closed   bool
	rate     []time.Time

	idle     *clock.Debounced
	noScroll *clock.Debounced
	release  *clock.Debounced
}

// New creates a Tracker. Call Init once the page URL is known.
func New(cfg Config) *Tracker {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.NoScrollTimeout <= 0 {
		cfg.NoScrollTimeout = DefaultNoScrollTimeout
	}
	clk := clock.OrReal(cfg.Clock)

	t := &Tracker{
		clk:      clk,
		logger:   cfg.Logger,
		onDetect: cfg.OnDetect,
		settings: DefaultSettings(),
	}
	t.idle = clock.NewGuardedDebounced(clk, cfg.IdleTimeout, &t.mu, t.onIdleLocked)
	t.noScroll = clock.NewGuardedDebounced(clk, cfg.NoScrollTimeout, &t.mu, t.onNoScrollLocked)
	if cfg.PendingTimeout > 0 {
		t.release = clock.NewGuardedDebounced(clk, cfg.PendingTimeout, &t.mu, t.onPendingTimeoutLocked)
	}
	return t
}

// Init starts (or restarts) the tracker for a freshly loaded document:
// domain taken from pageURL, counters and pending zeroed, scroll position
// captured, settings marked as not yet fetched, idle timer started.
func (t *Tracker) Init(pageURL string, scrollY float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}

	t.pageURL = pageURL
	t.domain = domainOf(pageURL)
	t.resetLocked()
	t.clearPendingLocked()
	t.lastY = scrollY
	t.ready = false
	t.rate = nil
	t.noScroll.Cancel()
	t.idle.Restart()
}

// Navigate handles an in-document navigation (history API, hash change).
// A new hostname resets everything and restarts the idle timer; the same
// hostname only updates the page URL.
func (t *Tracker) Navigate(pageURL string, scrollY float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}

	next := domainOf(pageURL)
	t.pageURL = pageURL
	if next == t.domain {
		return
	}

	t.logger.Debug("scrolltrack: domain changed", "from", t.domain, "to", next)
	t.domain = next
	t.resetLocked()
	t.clearPendingLocked()
	t.lastY = scrollY
	t.rate = nil
	t.noScroll.Cancel()
	t.idle.Restart()
}

// SettingsLoaded applies the answer to the initial settings fetch and
// enables counting.
func (t *Tracker) SettingsLoaded(threshold, windowSeconds any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.settings = validated(threshold, windowSeconds)
	t.ready = true
}

// UseDefaults enables counting with the cached settings when the settings
// fetch failed.
func (t *Tracker) UseDefaults() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ready = true
}

// SettingsUpdated applies a pushed settings change. It does not enable
// counting on its own.
func (t *Tracker) SettingsUpdated(threshold, windowSeconds any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.settings = validated(threshold, windowSeconds)
}

// OnScroll processes one scroll event: the new vertical offset and the
// current viewport height.
func (t *Tracker) OnScroll(scrollY, viewportHeight float64) {
	det, fire := t.onScroll(scrollY, viewportHeight)
	if fire && t.onDetect != nil {
		t.onDetect(det)
	}
}

func (t *Tracker) onScroll(scrollY, viewportHeight float64) (Detection, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return Detection{}, false
	}

	now := t.clk.Now()
	t.rate = append(pruneBefore(t.rate, now.Add(-RateWindow)), now)

	if t.pending || !t.ready {
		return Detection{}, false
	}

	delta := scrollY - t.lastY
	t.lastY = scrollY
	if delta <= 0 {
		return Detection{}, false
	}

	t.idle.Restart()
	t.noScroll.Restart()

	unit := viewportHeight * UnitFactor
	if unit > 0 {
		t.acc += delta
		if n := math.Floor(t.acc / unit); n >= 1 {
			// Units beyond the threshold cannot change the outcome.
			add := int(math.Min(n, float64(t.settings.ScrollThreshold)))
			for i := 0; i < add; i++ {
				t.units = append(t.units, now)
			}
			t.acc = math.Mod(t.acc, unit)
		}
	}

	window := time.Duration(t.settings.TimeWindowSeconds) * time.Second
	t.units = pruneBefore(t.units, now.Add(-window))

	if len(t.units) < t.settings.ScrollThreshold {
		return Detection{}, false
	}

	det := Detection{PageURL: t.pageURL, Domain: t.domain, Units: len(t.units), At: now}
	t.resetLocked()
	t.pending = true
	if t.release != nil {
		t.release.Restart()
	}
	t.logger.Info("scrolltrack: pattern detected",
		"domain", det.Domain, "units", det.Units, "threshold", t.settings.ScrollThreshold)
	return det, true
}

// Reset is the coordinator's RESET_SCROLL_COUNT: counters zeroed, pending
// cleared, idle and no-scroll timers restarted. Calling it twice is the
// same as calling it once.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.resetLocked()
	t.clearPendingLocked()
	t.idle.Restart()
	t.noScroll.Restart()
}

// Close cancels every timer. Later calls on the tracker are no-ops.
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.idle.Cancel()
	t.noScroll.Cancel()
	if t.release != nil {
		t.release.Cancel()
	}
}

// ScrollRate returns scroll events seen in the trailing RateWindow,
// regardless of intervention state.
func (t *Tracker) ScrollRate() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rate = pruneBefore(t.rate, t.clk.Now().Add(-RateWindow))
	return len(t.rate)
}

// Snapshot returns a copy of the current state.
func (t *Tracker) Snapshot() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rate = pruneBefore(t.rate, t.clk.Now().Add(-RateWindow))
	return State{
		PageURL:             t.pageURL,
		Domain:              t.domain,
		Accumulator:         t.acc,
		UnitCount:           len(t.units),
		UnitTimestamps:      append([]time.Time(nil), t.units...),
		LastScrollPosition:  t.lastY,
		InterventionPending: t.pending,
		Settings:            t.settings,
		SettingsReady:       t.ready,
		IdleTimerPending:    t.idle.Pending(),
		NoScrollPending:     t.noScroll.Pending(),
		ScrollRate:          len(t.rate),
	}
}

// The timer callbacks below run with t.mu held.

// onIdleLocked: five quiet minutes. Pending is left alone.
func (t *Tracker) onIdleLocked() {
	if t.closed {
		return
	}
	t.resetLocked()
	t.noScroll.Cancel()
	t.idle.Restart()
}

// onNoScrollLocked is the lighter reset: counters only.
func (t *Tracker) onNoScrollLocked() {
	if t.closed {
		return
	}
	t.resetLocked()
}

func (t *Tracker) onPendingTimeoutLocked() {
	if t.closed || !t.pending {
		return
	}
	t.logger.Info("scrolltrack: no reset received, releasing pending intervention", "domain", t.domain)
	t.pending = false
}

func (t *Tracker) resetLocked() {
	t.acc = 0
	t.units = nil
}

func (t *Tracker) clearPendingLocked() {
	t.pending = false
	if t.release != nil {
		t.release.Cancel()
	}
}

func validated(threshold, windowSeconds any) Settings {
	return Settings{
		ScrollThreshold:   settings.ValidateScrollThreshold(threshold),
		TimeWindowSeconds: settings.ValidateTimeWindow(windowSeconds),
	}
}

func domainOf(pageURL string) string {
	h, _ := hostname.FromURL(pageURL)
	return h
}

// pruneBefore drops the leading entries at or before cutoff. ts is in
// chronological order.
func pruneBefore(ts []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(ts) && !ts[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return ts
	}
	return append(ts[:0:0], ts[i:]...)
}
