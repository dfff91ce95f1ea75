package trace

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/hazyhaar/scrollguard/kit"
)

// capture routes trace output to a buffer for the duration of the test.
func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetLogger(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() {
		SetLogger(nil)
		SetSlow(DefaultSlow)
	})
	return &buf
}

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open(DriverName, ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func records(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("bad log line %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func TestDriver_LogsStatements(t *testing.T) {
	buf := capture(t)
	db := openDB(t)

	ctx := kit.WithPageID(kit.WithTraceID(context.Background(), "ab12cd34"), "page-1")
	if _, err := db.ExecContext(ctx, "CREATE TABLE t (\n\tv INTEGER\n)"); err != nil {
		t.Fatal(err)
	}
	if _, err := db.ExecContext(ctx, "INSERT INTO t VALUES (?)", 7); err != nil {
		t.Fatal(err)
	}
	var v int
	if err := db.QueryRowContext(ctx, "SELECT v FROM t").Scan(&v); err != nil || v != 7 {
		t.Fatalf("select: v=%d err=%v", v, err)
	}

	recs := records(t, buf)
	if len(recs) != 3 {
		t.Fatalf("records = %d, want 3:\n%s", len(recs), buf)
	}
	if recs[0]["query"] != "CREATE TABLE t ( v INTEGER )" {
		t.Errorf("query not compacted: %q", recs[0]["query"])
	}
	if recs[2]["op"] != "Query" || recs[2]["level"] != "DEBUG" {
		t.Errorf("select record: %v", recs[2])
	}
	for _, r := range recs {
		if r["trace_id"] != "ab12cd34" || r["page_id"] != "page-1" || r["msg"] != "trace: sql" {
			t.Errorf("record missing context: %v", r)
		}
	}
}

func TestDriver_ErrorLevel(t *testing.T) {
	buf := capture(t)
	db := openDB(t)

	if _, err := db.Exec("INSERT INTO missing VALUES (1)"); err == nil {
		t.Fatal("expected error")
	}
	recs := records(t, buf)
	if len(recs) == 0 {
		t.Fatal("no record for failing statement")
	}
	last := recs[len(recs)-1]
	if last["level"] != "ERROR" || last["error"] == nil {
		t.Errorf("failing statement: %v", last)
	}
}

func TestDriver_SkipsPragma(t *testing.T) {
	buf := capture(t)
	db := openDB(t)

	if _, err := db.Exec("PRAGMA busy_timeout = 1000"); err != nil {
		t.Fatal(err)
	}
	if buf.Len() != 0 {
		t.Errorf("pragma should not be logged: %s", buf)
	}
}

func TestDriver_SlowIsWarn(t *testing.T) {
	buf := capture(t)
	SetSlow(-time.Nanosecond)
	db := openDB(t)

	if _, err := db.Exec("CREATE TABLE s (v INTEGER)"); err != nil {
		t.Fatal(err)
	}
	recs := records(t, buf)
	if len(recs) != 1 || recs[0]["level"] != "WARN" {
		t.Errorf("slow statement: %v", recs)
	}
}

func TestDriver_Transaction(t *testing.T) {
	capture(t)
	db := openDB(t)

	if _, err := db.Exec("CREATE TABLE x (v INTEGER)"); err != nil {
		t.Fatal(err)
	}
	tx, err := db.BeginTx(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tx.Exec("INSERT INTO x VALUES (1)"); err != nil {
		t.Fatal(err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}
	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM x").Scan(&n); err != nil || n != 1 {
		t.Errorf("count=%d err=%v", n, err)
	}
}
