package settings

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/samber/lo"

	"github.com/hazyhaar/scrollguard/hostname"
)

// Load returns the stored settings merged over Defaults: keys that are
// missing or undecodable keep their default value, and the tracker
// thresholds are validated here as they are consumed.
func (s *Store) Load(ctx context.Context) (Settings, error) {
	raw, err := s.readAll(ctx)
	if err != nil {
		return Settings{}, fmt.Errorf("settings: load: %w", err)
	}

	out := Defaults()
	if v, ok := raw[keyScrollThreshold]; ok {
		out.ScrollThreshold = ValidateScrollThreshold(decodeAny(v))
	}
	if v, ok := raw[keyTimeWindowSeconds]; ok {
		out.TimeWindowSeconds = ValidateTimeWindow(decodeAny(v))
	}
	if v, ok := raw[keyIsPremium]; ok {
		var b bool
		if json.Unmarshal([]byte(v), &b) == nil {
			out.IsPremium = b
		}
	}
	if v, ok := raw[keyIgnoredDomains]; ok {
		var domains []string
		if json.Unmarshal([]byte(v), &domains) == nil {
			out.IgnoredDomains = normalizeDomains(domains)
		}
	}
	if v, ok := raw[keyTodos]; ok {
		var todos []Todo
		if json.Unmarshal([]byte(v), &todos) == nil && todos != nil {
			out.Todos = todos
		}
	}
	return out, nil
}

// SetupCompleted reports whether first-install seeding already ran.
func (s *Store) SetupCompleted(ctx context.Context) (bool, error) {
	var v string
	err := s.DB.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, keySetupCompleted).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("settings: setup flag: %w", err)
	}
	return v == "true", nil
}

// Seed writes Defaults on first install. Existing settings are left alone:
// the setupCompleted flag, not any single settings field, decides whether
// seeding already happened. It reports whether defaults were written.
func (s *Store) Seed(ctx context.Context) (bool, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("settings: seed: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM settings WHERE key = ? AND value = 'true'`, keySetupCompleted).Scan(&exists); err != nil {
		return false, fmt.Errorf("settings: seed: %w", err)
	}
	if exists > 0 {
		return false, nil
	}

	d := Defaults()
	values := map[string]any{
		keyScrollThreshold:   d.ScrollThreshold,
		keyTimeWindowSeconds: d.TimeWindowSeconds,
		keyIsPremium:         d.IsPremium,
		keyIgnoredDomains:    d.IgnoredDomains,
		keyTodos:             d.Todos,
		keySetupCompleted:    true,
	}
	for k, v := range values {
		if err := putTx(ctx, tx, k, v); err != nil {
			return false, fmt.Errorf("settings: seed %s: %w", k, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("settings: seed commit: %w", err)
	}
	return true, nil
}

// UpdateTodos replaces the todo list. Unknown priorities become medium.
func (s *Store) UpdateTodos(ctx context.Context, todos []Todo) error {
	clean := lo.Map(todos, func(t Todo, _ int) Todo {
		if !t.Priority.Valid() {
			t.Priority = PriorityMedium
		}
		return t
	})
	if clean == nil {
		clean = []Todo{}
	}
	return s.put(ctx, keyTodos, clean)
}

// SetPremium stores the premium flag.
func (s *Store) SetPremium(ctx context.Context, premium bool) error {
	return s.put(ctx, keyIsPremium, premium)
}

// SetScrollSettings stores validated tracker thresholds.
func (s *Store) SetScrollSettings(ctx context.Context, threshold, windowSeconds any) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("settings: scroll settings: %w", err)
	}
	defer tx.Rollback()

	if err := putTx(ctx, tx, keyScrollThreshold, ValidateScrollThreshold(threshold)); err != nil {
		return fmt.Errorf("settings: scroll threshold: %w", err)
	}
	if err := putTx(ctx, tx, keyTimeWindowSeconds, ValidateTimeWindow(windowSeconds)); err != nil {
		return fmt.Errorf("settings: time window: %w", err)
	}
	return tx.Commit()
}

// SetIgnoredDomains replaces the ignore list with normalised, de-duplicated hosts.
func (s *Store) SetIgnoredDomains(ctx context.Context, domains []string) error {
	return s.put(ctx, keyIgnoredDomains, normalizeDomains(domains))
}

// AddIgnoredDomain adds one host to the ignore list.
func (s *Store) AddIgnoredDomain(ctx context.Context, domain string) error {
	cur, err := s.Load(ctx)
	if err != nil {
		return err
	}
	return s.SetIgnoredDomains(ctx, append(cur.IgnoredDomains, domain))
}

// RemoveIgnoredDomain removes one host from the ignore list.
func (s *Store) RemoveIgnoredDomain(ctx context.Context, domain string) error {
	cur, err := s.Load(ctx)
	if err != nil {
		return err
	}
	h := hostname.Normalize(domain)
	return s.SetIgnoredDomains(ctx, lo.Without(cur.IgnoredDomains, h))
}

// Revision returns the current settings revision (0 on an empty store).
func (s *Store) Revision(ctx context.Context) (int64, error) {
	var rev int64
	err := s.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(revision), 0) FROM settings`).Scan(&rev)
	return rev, err
}

// PutRaw stores an arbitrary JSON value under key. Used by tests and the
// CLI to write values that bypass validation.
func (s *Store) PutRaw(ctx context.Context, key string, rawJSON string) error {
	if !json.Valid([]byte(rawJSON)) {
		return fmt.Errorf("settings: put %s: invalid JSON", key)
	}
	_, err := s.DB.ExecContext(ctx, upsertSQL, key, rawJSON)
	if err != nil {
		return fmt.Errorf("settings: put %s: %w", key, err)
	}
	return nil
}

const upsertSQL = `
	INSERT INTO settings (key, value, revision)
	VALUES (?, ?, (SELECT COALESCE(MAX(revision), 0) + 1 FROM settings))
	ON CONFLICT(key) DO UPDATE SET value = excluded.value, revision = excluded.revision`

func (s *Store) put(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("settings: marshal %s: %w", key, err)
	}
	if _, err := s.DB.ExecContext(ctx, upsertSQL, key, string(data)); err != nil {
		return fmt.Errorf("settings: put %s: %w", key, err)
	}
	return nil
}

func putTx(ctx context.Context, tx *sql.Tx, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, upsertSQL, key, string(data))
	return err
}

func (s *Store) readAll(ctx context.Context) (map[string]string, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT key, value FROM settings`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}

// decodeAny decodes a stored JSON value into an untyped Go value, keeping
// numbers as json.Number so validation sees exactly what was stored.
func decodeAny(raw string) any {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil
	}
	return v
}

func normalizeDomains(domains []string) []string {
	out := make([]string, 0, len(domains))
	for _, d := range domains {
		if h := hostname.Normalize(d); h != "" {
			out = append(out, h)
		}
	}
	return lo.Uniq(out)
}
