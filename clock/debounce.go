package clock

import (
	"sync"
	"time"
)

// Debounced is a named one-shot timer that is pushed back on every Restart.
// Restart always cancels the pending callback before scheduling a new one,
// so at most one callback is ever pending.
type Debounced struct {
	clk   Clock
	delay time.Duration
	fn    func()
	owner sync.Locker

	mu    sync.Mutex
	timer Timer
	gen   uint64
}

// NewDebounced creates a stopped debounced timer that calls fn after delay.
func NewDebounced(clk Clock, delay time.Duration, fn func()) *Debounced {
	return &Debounced{clk: OrReal(clk), delay: delay, fn: fn}
}

// NewGuardedDebounced is NewDebounced for state protected by owner. The
// callback runs with owner held, and the restart check happens under it
// too, so a Restart made while holding owner always suppresses a callback
// that has not yet acquired it. fn must not lock owner itself.
func NewGuardedDebounced(clk Clock, delay time.Duration, owner sync.Locker, fn func()) *Debounced {
	return &Debounced{clk: OrReal(clk), delay: delay, fn: fn, owner: owner}
}

// Restart cancels any pending callback and schedules a new one.
func (d *Debounced) Restart() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopLocked()
	d.gen++
	gen := d.gen
	d.timer = d.clk.AfterFunc(d.delay, func() { d.fire(gen) })
}

// Cancel drops the pending callback, if any.
func (d *Debounced) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopLocked()
	d.gen++
}

// Pending reports whether a callback is scheduled.
func (d *Debounced) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}

// Delay returns the configured delay.
func (d *Debounced) Delay() time.Duration { return d.delay }

func (d *Debounced) stopLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// fire runs fn unless the timer was restarted or cancelled after this
// callback was scheduled (a real timer may already be running when Stop
// is called).
func (d *Debounced) fire(gen uint64) {
	if d.owner != nil {
		d.owner.Lock()
		defer d.owner.Unlock()
	}
	d.mu.Lock()
	if gen != d.gen {
		d.mu.Unlock()
		return
	}
	d.timer = nil
	d.mu.Unlock()

	d.fn()
}
