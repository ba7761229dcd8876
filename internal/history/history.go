// Package history keeps a durable record of booking runs in a local SQLite
// database: when each run started, when it finished, and its outcome.
package history

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"bookpilot/internal/logging"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	task_id     TEXT NOT NULL,
	started_at  TEXT NOT NULL,
	finished_at TEXT,
	outcome     TEXT
);
CREATE INDEX IF NOT EXISTS idx_runs_task ON runs(task_id);
`

// Run is one recorded booking attempt.
type Run struct {
	ID         int64
	TaskID     string
	StartedAt  time.Time
	FinishedAt time.Time
	Outcome    string
}

// Store is the run-history database handle.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the history database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init history schema: %w", err)
	}
	logging.Get(logging.CategoryStore).Debugf("history db open at %s", path)
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// RecordStart inserts a new run row and returns its id.
func (s *Store) RecordStart(taskID string, startedAt time.Time) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO runs (task_id, started_at) VALUES (?, ?)`,
		taskID, startedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("run id: %w", err)
	}
	return id, nil
}

// RecordFinish stamps a run with its outcome and finish time.
func (s *Store) RecordFinish(runID int64, outcome string, finishedAt time.Time) error {
	_, err := s.db.Exec(
		`UPDATE runs SET finished_at = ?, outcome = ? WHERE id = ?`,
		finishedAt.UTC().Format(time.RFC3339), outcome, runID,
	)
	if err != nil {
		return fmt.Errorf("finish run %d: %w", runID, err)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first, up to limit.
func (s *Store) ListRuns(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(
		`SELECT id, task_id, started_at, finished_at, outcome
		 FROM runs ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var started string
		var finished, outcome sql.NullString
		if err := rows.Scan(&r.ID, &r.TaskID, &started, &finished, &outcome); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if t, err := time.Parse(time.RFC3339, started); err == nil {
			r.StartedAt = t
		}
		if finished.Valid {
			if t, err := time.Parse(time.RFC3339, finished.String); err == nil {
				r.FinishedAt = t
			}
		}
		r.Outcome = outcome.String
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
