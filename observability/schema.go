package observability

import "database/sql"

// Schema is the DDL of the intervention journal. It can share the settings
// database file.
const Schema = `
CREATE TABLE IF NOT EXISTS intervention_events (
    event_id TEXT PRIMARY KEY,
    occurred_at INTEGER NOT NULL,
    outcome TEXT NOT NULL,
    reason TEXT NOT NULL DEFAULT '',
    host TEXT NOT NULL DEFAULT '',
    page_id TEXT NOT NULL DEFAULT '',
    popup_id TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_intervention_events_time
    ON intervention_events(occurred_at DESC);
CREATE INDEX IF NOT EXISTS idx_intervention_events_host
    ON intervention_events(host, occurred_at DESC);
`

// Init applies Schema to db.
func Init(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}
