package sqlite

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Open opens (or creates) a SQLite database at path and applies the schema.
// Use ":memory:" for an ephemeral database in tests. WAL mode keeps readers
// from blocking the single writer.
func Open(path string) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is empty")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// modernc's driver serializes writes per connection; a single connection
	// avoids SQLITE_BUSY under concurrent use.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`PRAGMA journal_mode=WAL; PRAGMA foreign_keys=ON;`); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS cases (
    case_id        TEXT PRIMARY KEY,
    registry_ref   TEXT NOT NULL,
    title          TEXT,
    creation_time  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS timeline_entries (
    entry_id           TEXT PRIMARY KEY,
    case_id            TEXT NOT NULL REFERENCES cases(case_id),
    content_hash       TEXT NOT NULL,
    event_date         TEXT NOT NULL,
    event_type         TEXT NOT NULL,
    description        TEXT NOT NULL,
    normalized_content TEXT NOT NULL,
    source             TEXT NOT NULL,
    source_id          TEXT,
    confidence         REAL NOT NULL,
    has_conflict       INTEGER NOT NULL DEFAULT 0,
    conflict_details   TEXT,
    original_texts     TEXT NOT NULL DEFAULT '{}',
    reviewed_by        TEXT,
    reviewed_at        TEXT,
    base_event_id      TEXT REFERENCES timeline_entries(entry_id),
    relation_type      TEXT,
    metadata           TEXT NOT NULL DEFAULT '{}',
    creation_time      TEXT NOT NULL,
    last_update_time   TEXT NOT NULL,
    UNIQUE (case_id, content_hash)
);

CREATE INDEX IF NOT EXISTS idx_timeline_entries_case_date
    ON timeline_entries (case_id, event_date DESC);

CREATE TABLE IF NOT EXISTS document_extractions (
    extraction_id  TEXT PRIMARY KEY,
    case_id        TEXT NOT NULL REFERENCES cases(case_id),
    document_id    TEXT NOT NULL,
    model          TEXT NOT NULL,
    confidence     REAL NOT NULL,
    events         TEXT NOT NULL,
    creation_time  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_document_extractions_case
    ON document_extractions (case_id);

CREATE TABLE IF NOT EXISTS merge_jobs (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    case_id         TEXT NOT NULL REFERENCES cases(case_id),
    status          TEXT NOT NULL DEFAULT 'pending',
    attempt_count   INTEGER NOT NULL DEFAULT 0,
    next_attempt_at TEXT NOT NULL,
    creation_time   TEXT NOT NULL,
    update_time     TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_merge_jobs_ready
    ON merge_jobs (status, next_attempt_at);
`
