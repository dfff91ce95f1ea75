package settings

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// FeedOptions tunes the change feed.
type FeedOptions struct {
	// Interval is the polling frequency. Default: 500ms.
	Interval time.Duration
	// Debounce is the quiet period after a change before onChange fires.
	// Further changes inside the window restart it. 0 fires immediately.
	Debounce time.Duration
	Logger   *slog.Logger
}

func (o *FeedOptions) defaults() {
	if o.Interval <= 0 {
		o.Interval = 500 * time.Millisecond
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Feed polls the settings revision and reports changes, whether they were
// written by this process or by another one (CLI, settings UI) sharing the
// database file.
type Feed struct {
	store    *Store
	opts     FeedOptions
	revision atomic.Int64
	fired    atomic.Int64
}

// Changes returns a Feed over s. Call Run to start polling.
func (s *Store) Changes(opts FeedOptions) *Feed {
	opts.defaults()
	return &Feed{store: s, opts: opts}
}

// Revision returns the last revision successfully handed to onChange (or
// the revision seen at start).
func (f *Feed) Revision() int64 { return f.revision.Load() }

// Fired returns how many times onChange succeeded.
func (f *Feed) Fired() int64 { return f.fired.Load() }

// Run blocks until ctx is cancelled. When onChange fails the revision is
// not advanced and the change is retried on the next poll.
func (f *Feed) Run(ctx context.Context, onChange func(ctx context.Context) error) {
	log := f.opts.Logger

	if rev, err := f.store.Revision(ctx); err != nil {
		log.Warn("settings: initial revision check failed", "error", err)
	} else {
		f.revision.Store(rev)
	}

	ticker := time.NewTicker(f.opts.Interval)
	defer ticker.Stop()

	var debounce *time.Timer
	var debounceC <-chan time.Time
	pending := int64(-1)

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return

		case <-ticker.C:
			cur, err := f.store.Revision(ctx)
			if err != nil {
				log.Warn("settings: revision check failed", "error", err)
				continue
			}
			if cur == f.revision.Load() || cur == pending {
				continue
			}
			pending = cur
			if f.opts.Debounce <= 0 {
				f.fire(ctx, onChange, pending)
				pending = -1
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.NewTimer(f.opts.Debounce)
			debounceC = debounce.C

		case <-debounceC:
			debounceC = nil
			if pending >= 0 {
				f.fire(ctx, onChange, pending)
				pending = -1
			}
		}
	}
}

func (f *Feed) fire(ctx context.Context, onChange func(ctx context.Context) error, rev int64) {
	if err := onChange(ctx); err != nil {
		f.opts.Logger.Error("settings: change handler failed", "revision", rev, "error", err)
		return
	}
	f.revision.Store(rev)
	f.fired.Add(1)
	f.opts.Logger.Debug("settings: change delivered", "revision", rev)
}
