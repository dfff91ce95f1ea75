package observability

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/scrollguard/coordinator"
	"github.com/hazyhaar/scrollguard/idgen"
)

// Entry is one journal row.
type Entry struct {
	ID string `json:"id"`
	coordinator.Event
}

// Journal persists intervention outcomes asynchronously. A failing journal
// never blocks or fails the coordinator.
type Journal struct {
	db     *sql.DB
	newID  idgen.Generator
	logger *slog.Logger
	buffer int

	mu     sync.RWMutex
	closed bool
	ch     chan Entry
	done   chan struct{}
}

// JournalOption configures a Journal.
type JournalOption func(*Journal)

// WithJournalIDGenerator overrides the event ID generator.
func WithJournalIDGenerator(gen idgen.Generator) JournalOption {
	return func(j *Journal) { j.newID = gen }
}

// WithJournalLogger sets the logger used for write failures.
func WithJournalLogger(l *slog.Logger) JournalOption {
	return func(j *Journal) { j.logger = l }
}

// WithJournalBuffer sets the async queue size. Default: 256.
func WithJournalBuffer(n int) JournalOption {
	return func(j *Journal) { j.buffer = n }
}

// NewJournal creates a Journal on db (Schema must be applied) and starts
// its writer goroutine. Call Close to flush and stop it.
func NewJournal(db *sql.DB, opts ...JournalOption) *Journal {
	j := &Journal{
		db:     db,
		newID:  idgen.Event,
		logger: slog.Default(),
		buffer: 256,
	}
	for _, o := range opts {
		o(j)
	}
	j.ch = make(chan Entry, j.buffer)
	j.done = make(chan struct{})
	go j.flushLoop()
	return j
}

// Record queues ev. When the queue is full it falls back to a synchronous
// insert.
func (j *Journal) Record(ctx context.Context, ev coordinator.Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	e := Entry{ID: j.newID(), Event: ev}

	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		j.logger.Debug("observability: journal closed, event dropped", "outcome", ev.Outcome)
		return
	}
	select {
	case j.ch <- e:
	default:
		j.logger.Warn("observability: journal buffer full, sync fallback", "outcome", ev.Outcome)
		if err := j.insert(context.WithoutCancel(ctx), e); err != nil {
			j.logger.Error("observability: journal sync fallback failed", "error", err)
		}
	}
}

// Close drains the queue and stops the writer. Safe to call twice.
func (j *Journal) Close() error {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return nil
	}
	j.closed = true
	close(j.ch)
	j.mu.Unlock()
	<-j.done
	return nil
}

func (j *Journal) flushLoop() {
	defer close(j.done)
	for e := range j.ch {
		if err := j.insert(context.Background(), e); err != nil {
			j.logger.Error("observability: journal insert failed", "error", err, "outcome", e.Outcome)
		}
	}
}

func (j *Journal) insert(ctx context.Context, e Entry) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO intervention_events (event_id, occurred_at, outcome, reason, host, page_id, popup_id)
		VALUES (?,?,?,?,?,?,?)`,
		e.ID, e.At.UnixMilli(), string(e.Outcome), e.Reason, e.Host, e.PageID, e.PopupID)
	return err
}

// Recent returns the newest limit entries, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT event_id, occurred_at, outcome, reason, host, page_id, popup_id
		FROM intervention_events ORDER BY occurred_at DESC, event_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("observability: recent: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var ms int64
		var outcome string
		if err := rows.Scan(&e.ID, &ms, &outcome, &e.Reason, &e.Host, &e.PageID, &e.PopupID); err != nil {
			return nil, fmt.Errorf("observability: recent scan: %w", err)
		}
		e.At = time.UnixMilli(ms)
		e.Outcome = coordinator.Outcome(outcome)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Counts returns the number of entries per outcome since the given time.
func (j *Journal) Counts(ctx context.Context, since time.Time) (map[coordinator.Outcome]int, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT outcome, COUNT(*) FROM intervention_events
		WHERE occurred_at >= ? GROUP BY outcome`, since.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("observability: counts: %w", err)
	}
	defer rows.Close()

	out := make(map[coordinator.Outcome]int)
	for rows.Next() {
		var outcome string
		var n int
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, fmt.Errorf("observability: counts scan: %w", err)
		}
		out[coordinator.Outcome(outcome)] = n
	}
	return out, rows.Err()
}

// Purge deletes entries older than cutoff and returns how many went.
func (j *Journal) Purge(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := j.db.ExecContext(ctx, `DELETE FROM intervention_events WHERE occurred_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("observability: purge: %w", err)
	}
	return res.RowsAffected()
}

// RunRetention purges entries older than retention every interval until ctx
// ends. A non-positive retention disables it.
func (j *Journal) RunRetention(ctx context.Context, retention, interval time.Duration) {
	if retention <= 0 {
		return
	}
	if interval <= 0 {
		interval = time.Hour
	}
	purge := func() {
		n, err := j.Purge(ctx, time.Now().Add(-retention))
		if err != nil {
			j.logger.Warn("observability: journal retention failed", "error", err)
			return
		}
		if n > 0 {
			j.logger.Info("observability: journal purged", "deleted", n)
		}
	}
	purge()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			purge()
		}
	}
}
