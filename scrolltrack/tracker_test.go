package scrolltrack

import (
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/hazyhaar/scrollguard/clock"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type harness struct {
	clk  *clock.Fake
	tr   *Tracker
	dets []Detection
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	h := &harness{clk: clock.NewFake(epoch)}
	cfg.Clock = h.clk
	cfg.OnDetect = func(d Detection) { h.dets = append(h.dets, d) }
	h.tr = New(cfg)
	t.Cleanup(h.tr.Close)
	return h
}

// ready initialises the tracker on pageURL with the given settings loaded.
func (h *harness) ready(pageURL string, threshold, window int) {
	h.tr.Init(pageURL, 0)
	h.tr.SettingsLoaded(threshold, window)
}

func TestTracker_ExampleScenario(t *testing.T) {
	h := newHarness(t, Config{})
	h.ready("https://example.com/feed", 2, 30)

	h.tr.OnScroll(300, 1000)
	if s := h.tr.Snapshot(); s.UnitCount != 0 || s.Accumulator != 300 {
		t.Fatalf("after 300px: units=%d acc=%v, want 0/300", s.UnitCount, s.Accumulator)
	}

	h.clk.Advance(time.Second)
	h.tr.OnScroll(600, 1000)
	if s := h.tr.Snapshot(); s.UnitCount != 1 || s.Accumulator != 100 {
		t.Fatalf("after 600px: units=%d acc=%v, want 1/100", s.UnitCount, s.Accumulator)
	}

	h.clk.Advance(time.Second)
	h.tr.OnScroll(1100, 1000)
	if len(h.dets) != 1 {
		t.Fatalf("detections: got %d, want 1", len(h.dets))
	}
	if h.dets[0].PageURL != "https://example.com/feed" || h.dets[0].Domain != "example.com" {
		t.Errorf("detection: %+v", h.dets[0])
	}

	s := h.tr.Snapshot()
	if s.UnitCount != 0 || len(s.UnitTimestamps) != 0 || s.Accumulator != 0 {
		t.Errorf("counters after trigger: %+v", s)
	}
	if !s.InterventionPending {
		t.Error("InterventionPending: got false after trigger")
	}
}

func TestTracker_ThresholdProperty(t *testing.T) {
	for _, threshold := range []int{1, 2, 7, 10, 33, 100} {
		for _, window := range []int{5, 30, 300} {
			h := newHarness(t, Config{IdleTimeout: time.Hour, NoScrollTimeout: time.Hour})
			h.ready("https://news.example.org", threshold, window)

			// threshold units, spaced so the whole run stays inside the window.
			step := time.Duration(window) * time.Second / time.Duration(threshold+1)
			y := 0.0
			for i := 0; i < threshold; i++ {
				y += 400 // viewport 800 → unit 400
				h.tr.OnScroll(y, 800)
				h.clk.Advance(step)
			}

			if len(h.dets) != 1 {
				t.Errorf("t=%d w=%d: detections %d, want 1", threshold, window, len(h.dets))
				continue
			}
			if s := h.tr.Snapshot(); s.UnitCount != 0 {
				t.Errorf("t=%d w=%d: units after trigger %d", threshold, window, s.UnitCount)
			}
		}
	}
}

func TestTracker_UpwardScrollNeverCounts(t *testing.T) {
	h := newHarness(t, Config{})
	h.tr.Init("https://example.com", 100000)
	h.tr.SettingsLoaded(1, 30)

	for y := 99000.0; y >= 0; y -= 1000 {
		h.tr.OnScroll(y, 800)
	}
	s := h.tr.Snapshot()
	if s.UnitCount != 0 || s.Accumulator != 0 || len(h.dets) != 0 {
		t.Fatalf("upward scrolling counted: %+v dets=%d", s, len(h.dets))
	}
	if s.LastScrollPosition != 0 {
		t.Errorf("LastScrollPosition: got %v, want 0", s.LastScrollPosition)
	}
}

func TestTracker_JustUnderOneUnit(t *testing.T) {
	h := newHarness(t, Config{})
	h.ready("https://example.com", 1, 30)

	h.tr.OnScroll(499, 1000)
	h.clk.Advance(10 * time.Second)

	if s := h.tr.Snapshot(); s.UnitCount != 0 || len(h.dets) != 0 {
		t.Fatalf("0.5*vh-1 counted a unit: %+v", s)
	}
}

func TestTracker_UnitSizeFollowsViewport(t *testing.T) {
	h := newHarness(t, Config{})
	h.ready("https://example.com", 10, 30)

	h.tr.OnScroll(300, 1000) // unit 500: no unit
	h.tr.OnScroll(400, 400)  // unit 200: acc 400 → 2 units, acc 0
	s := h.tr.Snapshot()
	if s.UnitCount != 2 || s.Accumulator != 0 {
		t.Fatalf("units=%d acc=%v, want 2/0", s.UnitCount, s.Accumulator)
	}
}

func TestTracker_AccumulatorStaysBelowUnit(t *testing.T) {
	h := newHarness(t, Config{})
	h.ready("https://example.com", 100, 300)

	y := 0.0
	for _, d := range []float64{130, 970, 2210, 55, 499, 501, 3333} {
		y += d
		h.tr.OnScroll(y, 1000)
		if s := h.tr.Snapshot(); s.Accumulator < 0 || s.Accumulator >= 500 {
			t.Fatalf("accumulator %v outside [0,500) after delta %v", s.Accumulator, d)
		}
	}
}

func TestTracker_IgnoredBeforeSettings(t *testing.T) {
	h := newHarness(t, Config{})
	h.tr.Init("https://example.com", 0)

	h.tr.OnScroll(5000, 1000)
	if s := h.tr.Snapshot(); s.UnitCount != 0 || s.Accumulator != 0 {
		t.Fatalf("counted before settings: %+v", s)
	}
	if s := h.tr.Snapshot(); s.LastScrollPosition != 0 {
		t.Errorf("position moved while ignored: %v", s.LastScrollPosition)
	}

	h.tr.UseDefaults()
	h.tr.OnScroll(5500, 1000)
	if len(h.dets) != 1 {
		t.Errorf("after UseDefaults: detections %d, want 1", len(h.dets))
	}
}

func TestTracker_WindowExpiry(t *testing.T) {
	h := newHarness(t, Config{NoScrollTimeout: time.Hour, IdleTimeout: 2 * time.Hour})
	h.ready("https://example.com", 3, 10)

	h.tr.OnScroll(500, 1000)
	h.clk.Advance(6 * time.Second)
	h.tr.OnScroll(1000, 1000)
	h.clk.Advance(6 * time.Second) // first unit is now 12s old
	h.tr.OnScroll(1500, 1000)

	if len(h.dets) != 0 {
		t.Fatal("expired unit counted toward threshold")
	}
	if s := h.tr.Snapshot(); s.UnitCount != 2 {
		t.Errorf("UnitCount: got %d, want 2", s.UnitCount)
	}
}

func TestTracker_PendingSuppressesCounting(t *testing.T) {
	h := newHarness(t, Config{})
	h.ready("https://example.com", 1, 30)

	h.tr.OnScroll(500, 1000)
	if len(h.dets) != 1 {
		t.Fatalf("detections: %d", len(h.dets))
	}
	for y := 1000.0; y < 10000; y += 500 {
		h.tr.OnScroll(y, 1000)
	}
	if len(h.dets) != 1 {
		t.Fatalf("detections while pending: %d, want 1", len(h.dets))
	}
	if s := h.tr.Snapshot(); s.UnitCount != 0 {
		t.Errorf("counted while pending: %d", s.UnitCount)
	}
	if h.tr.ScrollRate() == 0 {
		t.Error("scroll rate should keep counting while pending")
	}
}

func TestTracker_ResetIsIdempotent(t *testing.T) {
	h := newHarness(t, Config{})
	h.ready("https://example.com", 1, 30)
	h.tr.OnScroll(500, 1000)

	h.tr.Reset()
	first := h.tr.Snapshot()
	h.tr.Reset()
	second := h.tr.Snapshot()

	for _, s := range []State{first, second} {
		if s.UnitCount != 0 || s.Accumulator != 0 || s.InterventionPending {
			t.Fatalf("after reset: %+v", s)
		}
		if !s.IdleTimerPending || !s.NoScrollPending {
			t.Errorf("timers not restarted: %+v", s)
		}
	}

	h.tr.OnScroll(1000, 1000)
	if len(h.dets) != 2 {
		t.Errorf("tracker did not resume after reset: dets=%d", len(h.dets))
	}
}

func TestTracker_DomainIsolation(t *testing.T) {
	h := newHarness(t, Config{})
	h.ready("https://a.com/page", 10, 30)

	h.tr.OnScroll(1200, 1000)
	if s := h.tr.Snapshot(); s.UnitCount != 2 || s.Accumulator != 200 {
		t.Fatalf("setup: %+v", s)
	}

	h.tr.Navigate("https://b.com/other", 40)
	s := h.tr.Snapshot()
	if s.Domain != "b.com" || s.UnitCount != 0 || len(s.UnitTimestamps) != 0 || s.Accumulator != 0 {
		t.Fatalf("after domain switch: %+v", s)
	}
	if s.LastScrollPosition != 40 {
		t.Errorf("LastScrollPosition: got %v, want 40", s.LastScrollPosition)
	}
	if !s.SettingsReady {
		t.Error("domain switch should keep cached settings")
	}
}

func TestTracker_SameHostNavigationIsNoop(t *testing.T) {
	h := newHarness(t, Config{})
	h.ready("https://www.example.com/a", 10, 30)
	h.tr.OnScroll(1200, 1000)

	h.tr.Navigate("https://example.com/b", 0)
	s := h.tr.Snapshot()
	if s.UnitCount != 2 || s.LastScrollPosition != 1200 {
		t.Fatalf("same-host navigation reset state: %+v", s)
	}
	if s.PageURL != "https://example.com/b" {
		t.Errorf("PageURL: got %q", s.PageURL)
	}
}

func TestTracker_DomainChangeClearsPending(t *testing.T) {
	h := newHarness(t, Config{})
	h.ready("https://a.com", 1, 30)
	h.tr.OnScroll(500, 1000)

	h.tr.Navigate("https://b.com", 0)
	if s := h.tr.Snapshot(); s.InterventionPending {
		t.Fatal("pending survived a domain change")
	}
}

func TestTracker_NewDocumentClearsPending(t *testing.T) {
	h := newHarness(t, Config{})
	h.ready("https://a.com/feed", 1, 30)
	h.tr.OnScroll(500, 1000)

	h.ready("https://a.com/feed", 1, 30)
	if s := h.tr.Snapshot(); s.InterventionPending {
		t.Fatal("pending survived a reload")
	}
	h.tr.OnScroll(500, 1000)
	if len(h.dets) != 2 {
		t.Errorf("detections after reload: %d, want 2", len(h.dets))
	}
}

func TestTracker_NoScrollTimeout(t *testing.T) {
	h := newHarness(t, Config{})
	h.ready("https://example.com", 10, 300)
	h.tr.OnScroll(1200, 1000)

	h.clk.Advance(29 * time.Second)
	if s := h.tr.Snapshot(); s.UnitCount != 2 {
		t.Fatalf("reset too early: %+v", s)
	}
	h.clk.Advance(time.Second)
	s := h.tr.Snapshot()
	if s.UnitCount != 0 || s.Accumulator != 0 {
		t.Fatalf("no-scroll timeout did not reset: %+v", s)
	}
	if s.Domain != "example.com" {
		t.Error("no-scroll timeout touched the domain")
	}
}

func TestTracker_ScrollBeatsExpiringNoScrollTimer(t *testing.T) {
	h := newHarness(t, Config{})
	h.ready("https://a.com/", 10, 30)
	h.tr.OnScroll(850, 1000)
	h.clk.Advance(10 * time.Second)

	// A scroll holds the lock while the no-scroll timer comes due.
	h.tr.mu.Lock()
	done := make(chan struct{})
	go func() {
		h.clk.Advance(DefaultNoScrollTimeout - 10*time.Second)
		close(done)
	}()
	h.tr.units = append(h.tr.units, h.clk.Now(), h.clk.Now())
	h.tr.noScroll.Restart()
	h.tr.mu.Unlock()
	<-done

	if got := h.tr.Snapshot().UnitCount; got != 3 {
		t.Errorf("units after racing timer: got %d, want 3", got)
	}
}

func TestTracker_NoScrollTimeoutKeepsPending(t *testing.T) {
	h := newHarness(t, Config{})
	h.ready("https://example.com", 1, 30)
	h.tr.OnScroll(500, 1000)

	h.clk.Advance(DefaultNoScrollTimeout)
	if s := h.tr.Snapshot(); !s.InterventionPending {
		t.Fatal("no-scroll timeout cleared pending")
	}
}

func TestTracker_IdleTimeout(t *testing.T) {
	h := newHarness(t, Config{NoScrollTimeout: time.Hour})
	h.ready("https://example.com", 1, 30)
	h.tr.OnScroll(500, 1000) // pending

	h.clk.Advance(DefaultIdleTimeout)
	s := h.tr.Snapshot()
	if !s.InterventionPending {
		t.Error("idle timeout cleared pending")
	}
	if !s.IdleTimerPending {
		t.Error("idle timer not restarted")
	}
}

func TestTracker_TimersDebounceOnScroll(t *testing.T) {
	h := newHarness(t, Config{})
	h.ready("https://example.com", 10, 300)

	y := 0.0
	for i := 0; i < 10; i++ {
		y += 100
		h.tr.OnScroll(y, 1000)
		h.clk.Advance(20 * time.Second)
	}
	// 100px every 20s: never 30s quiet, so the accumulated 1000px made 2 units.
	if s := h.tr.Snapshot(); s.UnitCount != 2 {
		t.Fatalf("UnitCount: got %d, want 2", s.UnitCount)
	}
	if n := h.clk.Pending(); n != 2 {
		t.Errorf("pending timers: got %d, want 2 (idle + no-scroll)", n)
	}
}

func TestTracker_SettingsUpdatedValidates(t *testing.T) {
	h := newHarness(t, Config{})
	h.tr.Init("https://example.com", 0)
	h.tr.SettingsUpdated("invalid", 3)

	s := h.tr.Snapshot()
	if s.Settings.ScrollThreshold != 10 || s.Settings.TimeWindowSeconds != 5 {
		t.Errorf("settings: %+v", s.Settings)
	}
	if s.SettingsReady {
		t.Error("a pushed update must not stand in for the initial fetch")
	}

	h.tr.SettingsUpdated(150, "60")
	if s := h.tr.Snapshot(); s.Settings.ScrollThreshold != 100 || s.Settings.TimeWindowSeconds != 60 {
		t.Errorf("settings: %+v", s.Settings)
	}
}

func TestTracker_PendingTimeout(t *testing.T) {
	h := newHarness(t, Config{PendingTimeout: 2 * time.Minute})
	h.ready("https://example.com", 1, 30)
	h.tr.OnScroll(500, 1000)

	h.clk.Advance(time.Minute)
	if !h.tr.Snapshot().InterventionPending {
		t.Fatal("released too early")
	}
	h.clk.Advance(time.Minute)
	if h.tr.Snapshot().InterventionPending {
		t.Fatal("pending not released after PendingTimeout")
	}
}

func TestTracker_CloseCancelsTimers(t *testing.T) {
	h := newHarness(t, Config{})
	h.ready("https://example.com", 10, 30)
	h.tr.OnScroll(100, 1000)

	h.tr.Close()
	if n := h.clk.Pending(); n != 0 {
		t.Fatalf("pending timers after Close: %d", n)
	}
	h.tr.OnScroll(5000, 1000)
	if s := h.tr.Snapshot(); s.Accumulator != 100 {
		t.Errorf("closed tracker processed an event: %+v", s)
	}
}

func TestTracker_DetectCallbackMayReenter(t *testing.T) {
	clk := clock.NewFake(epoch)
	var tr *Tracker
	tr = New(Config{Clock: clk, OnDetect: func(Detection) { tr.Reset() }})
	defer tr.Close()

	tr.Init("https://example.com", 0)
	tr.SettingsLoaded(1, 30)
	tr.OnScroll(500, 1000)

	if tr.Snapshot().InterventionPending {
		t.Fatal("reset from the detection callback was lost")
	}
}

func TestScrollRate_TrailingMinute(t *testing.T) {
	h := newHarness(t, Config{})
	h.ready("https://example.com", 100, 300)

	for i := 0; i < 5; i++ {
		h.tr.OnScroll(float64(i*10), 1000)
		h.clk.Advance(10 * time.Second)
	}
	if got := h.tr.ScrollRate(); got != 5 {
		t.Fatalf("ScrollRate: got %d, want 5", got)
	}
	h.clk.Advance(35 * time.Second) // first event now 85s old, last 45s
	if got := h.tr.ScrollRate(); got != 2 {
		t.Fatalf("ScrollRate: got %d, want 2", got)
	}
}
