package core

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Build record statuses
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// fixed width so started_at sorts as text
const historyTimeFormat = "2006-01-02T15:04:05.000000000Z"

// BuildRecord is one generator run
type BuildRecord struct {
	ID         string        `json:"id"`
	RunID      string        `json:"runId"`
	Generator  string        `json:"generator"`
	Trigger    string        `json:"trigger"`
	StartedAt  time.Time     `json:"startedAt"`
	Duration   time.Duration `json:"durationNs"`
	Items      int           `json:"items"`
	ItemErrors int           `json:"itemErrors"`
	Status     string        `json:"status"`
	Message    string        `json:"message,omitempty"`
}

// History stores generator runs in a SQLite database
type History struct {
	db *sql.DB
}

// OpenHistory opens (or creates) the history database at path
func OpenHistory(path string) (*History, error) {
	if path == "" {
		return nil, ErrHistoryDisabled
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database %s: %w", path, err)
	}
	// a single connection keeps ":memory:" databases alive across calls
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	if _, err := db.Exec(`PRAGMA busy_timeout=5000;`); err != nil {
		db.Close()
		return nil, err
	}

	h := &History{db: db}
	if err := h.ensureSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate history database: %w", err)
	}
	return h, nil
}

// Close closes the underlying database connection.
func (h *History) Close() error {
	return h.db.Close()
}

func (h *History) ensureSchema() error {
	_, err := h.db.Exec(`
CREATE TABLE IF NOT EXISTS builds (
    id TEXT PRIMARY KEY,
    run_id TEXT NOT NULL,
    generator TEXT NOT NULL,
    trigger TEXT NOT NULL,
    started_at TEXT NOT NULL,
    duration_ns INTEGER NOT NULL,
    items INTEGER NOT NULL DEFAULT 0,
    item_errors INTEGER NOT NULL DEFAULT 0,
    status TEXT NOT NULL,
    message TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS builds_started_at ON builds (started_at);
`)
	return err
}

// Record stores one run
func (h *History) Record(rec BuildRecord) error {
	_, err := h.db.Exec(`INSERT INTO builds (id, run_id, generator, trigger, started_at, duration_ns, items, item_errors, status, message)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.RunID, rec.Generator, rec.Trigger,
		rec.StartedAt.UTC().Format(historyTimeFormat), int64(rec.Duration),
		rec.Items, rec.ItemErrors, rec.Status, rec.Message)
	return err
}

// Recent returns the newest runs first, at most limit of them
func (h *History) Recent(limit int) ([]BuildRecord, error) {
	if limit <= 0 {
		limit = DefaultHistoryRows
	}

	rows, err := h.db.Query(`SELECT id, run_id, generator, trigger, started_at, duration_ns, items, item_errors, status, message
FROM builds ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []BuildRecord{}
	for rows.Next() {
		var rec BuildRecord
		var started string
		var duration int64
		if err := rows.Scan(&rec.ID, &rec.RunID, &rec.Generator, &rec.Trigger, &started,
			&duration, &rec.Items, &rec.ItemErrors, &rec.Status, &rec.Message); err != nil {
			return nil, err
		}
		rec.StartedAt, _ = time.Parse(historyTimeFormat, started)
		rec.Duration = time.Duration(duration)
		records = append(records, rec)
	}
	return records, rows.Err()
}
