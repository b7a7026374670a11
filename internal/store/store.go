// Package store is the SQLite persistence collaborator: a meta key/value
// table, the append-only kernel event log, and boot-time garbage collection.
// Callers treat every write as fire-and-forget; an unreachable database
// degrades the system to in-memory operation, never breaks the loop.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mirelabs/coherent/go-kernel/internal/runtime"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS meta (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS kernel_events (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	event_id   TEXT NOT NULL,
	event_type TEXT NOT NULL,
	origin     TEXT,
	payload    TEXT NOT NULL,
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_kernel_events_created
ON kernel_events(created_at);
`

// #endregion schema

// #region store-struct
// Store manages kernel persistence in SQLite.
type Store struct {
	db *sql.DB
}

// #endregion store-struct

// #region constructor
// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// #endregion constructor

// #region meta

// GetMeta reads a meta value into out. Returns false when the key is absent.
func (s *Store) GetMeta(key string, out any) (bool, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM meta WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get meta %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(value), out); err != nil {
		return false, fmt.Errorf("unmarshal meta %s: %w", key, err)
	}
	return true, nil
}

// SetMeta upserts a meta value as JSON.
func (s *Store) SetMeta(key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal meta %s: %w", key, err)
	}
	_, err = s.db.Exec(
		`INSERT INTO meta (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, string(data), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("set meta %s: %w", key, err)
	}
	return nil
}

// #endregion meta

// #region events

// WriteEvent appends one event to the durable log.
func (s *Store) WriteEvent(e runtime.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO kernel_events (event_id, event_type, origin, payload, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		e.ID, string(e.Type), nullIfEmpty(string(e.Origin)), string(payload),
		e.At.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	return nil
}

// ListEvents returns up to limit persisted events, oldest first.
func (s *Store) ListEvents(limit int) ([]runtime.Event, error) {
	rows, err := s.db.Query(
		`SELECT payload FROM kernel_events ORDER BY id ASC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []runtime.Event
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		var e runtime.Event
		if err := json.Unmarshal([]byte(payload), &e); err != nil {
			return nil, fmt.Errorf("unmarshal event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// GarbageCollect removes events older than the retention window. Invoked
// once at boot.
func (s *Store) GarbageCollect(retention time.Duration) error {
	cutoff := time.Now().UTC().Add(-retention).Format(time.RFC3339Nano)
	_, err := s.db.Exec(`DELETE FROM kernel_events WHERE created_at < ?`, cutoff)
	if err != nil {
		return fmt.Errorf("gc events: %w", err)
	}
	return nil
}

// #endregion events

// #region helpers
func nullIfEmpty(v string) interface{} {
	if v == "" {
		return nil
	}
	return v
}

// #endregion helpers
