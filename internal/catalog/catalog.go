// Package catalog indexes persisted sessions and recordings in a small
// SQLite database, so resume_from_state() can list resumable sessions
// without scanning the filesystem (SPEC_FULL §4.6, supplementing a
// capability original_source/crates/code_assistant/src/session/mod.rs
// exposes that the distilled spec leaves implicit). Grounded on the
// teacher's cmd/looms/cmd_eval.go, which imports modernc.org/sqlite
// directly (self-registering as "sqlite") rather than going through the
// cgo/nocgo sqlitedriver split used where SQLCipher encryption matters —
// this catalog never needs encryption.
package catalog

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const driverName = "sqlite"

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id               TEXT PRIMARY KEY,
	task_title       TEXT NOT NULL DEFAULT '',
	compaction_count INTEGER NOT NULL DEFAULT 0,
	created_at       DATETIME NOT NULL,
	updated_at       DATETIME NOT NULL
);
CREATE TABLE IF NOT EXISTS recordings (
	id         TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	path       TEXT NOT NULL,
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_recordings_session ON recordings(session_id);
`

// SessionMeta is one row of the sessions index.
type SessionMeta struct {
	ID              string
	TaskTitle       string
	CompactionCount int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// RecordingMeta is one row of the recordings index.
type RecordingMeta struct {
	ID        string
	SessionID string
	Path      string
	CreatedAt time.Time
}

// Catalog is a small SQLite-backed index, safe for concurrent use.
type Catalog struct {
	mu sync.Mutex
	db *sql.DB
}

// Open opens (creating if absent) the catalog database at path and applies
// its schema.
func Open(path string) (*Catalog, error) {
	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("catalog: open %q: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("catalog: apply schema: %w", err)
	}
	return &Catalog{db: db}, nil
}

// Close releases the underlying database handle.
func (c *Catalog) Close() error {
	return c.db.Close()
}

// UpsertSession records or updates a session's index row. Store.Save does
// not call it; callers update the catalog themselves.
func (c *Catalog) UpsertSession(id, taskTitle string, compactionCount int, now time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.db.Exec(`
		INSERT INTO sessions (id, task_title, compaction_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			task_title = excluded.task_title,
			compaction_count = excluded.compaction_count,
			updated_at = excluded.updated_at
	`, id, taskTitle, compactionCount, now, now)
	if err != nil {
		return fmt.Errorf("catalog: upsert session %q: %w", id, err)
	}
	return nil
}

// ListSessions returns every indexed session, most recently updated first —
// the listing resume_from_state() needs to offer the user a choice of
// sessions to resume.
func (c *Catalog) ListSessions() ([]SessionMeta, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rows, err := c.db.Query(`SELECT id, task_title, compaction_count, created_at, updated_at FROM sessions ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("catalog: list sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionMeta
	for rows.Next() {
		var m SessionMeta
		if err := rows.Scan(&m.ID, &m.TaskTitle, &m.CompactionCount, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("catalog: scan session row: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// RecordRecording indexes a persisted provider recording against its owning
// session.
func (c *Catalog) RecordRecording(id, sessionID, path string, now time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.db.Exec(
		`INSERT INTO recordings (id, session_id, path, created_at) VALUES (?, ?, ?, ?)`,
		id, sessionID, path, now,
	)
	if err != nil {
		return fmt.Errorf("catalog: record recording %q: %w", id, err)
	}
	return nil
}

// RecordingsFor returns every recording indexed against sessionID.
func (c *Catalog) RecordingsFor(sessionID string) ([]RecordingMeta, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rows, err := c.db.Query(`SELECT id, session_id, path, created_at FROM recordings WHERE session_id = ? ORDER BY created_at ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("catalog: list recordings for %q: %w", sessionID, err)
	}
	defer rows.Close()

	var out []RecordingMeta
	for rows.Next() {
		var m RecordingMeta
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Path, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("catalog: scan recording row: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
