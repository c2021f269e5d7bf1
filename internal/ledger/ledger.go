// Package ledger is the per-worker outcome store.
//
// Every request an action performs is written twice: a row is inserted with
// a null code when the request starts and updated with latency, code and
// reason when it ends. A row that never receives its update is reported as
// incomplete. One run-info row per test run records the plans and the run's
// start and finish.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Reserved response codes for requests that never produced an HTTP status.
const (
	CodeOK           = 200
	CodeCancelled    = 0
	CodeDisconnected = -1
	CodeTransport    = -2
	CodeUnclassified = -3
)

// Run statuses.
const (
	StatusInProgress = "IN PROGRESS"
	StatusFinished   = "FINISHED"
)

// IncompleteReason labels rows whose completion was never written.
const IncompleteReason = "Incomplete (still running or aborted)"

// ErrNoRunInfo is returned when the ledger holds no run-info row.
var ErrNoRunInfo = errors.New("ledger: no run info recorded")

// Store wraps the SQLite database of one test run on one worker.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Path returns the conventional ledger location for a run.
func Path(dir, runID string) string {
	return filepath.Join(dir, runID+".db")
}

// Open opens or creates the ledger at path. Several processes may open the
// same file; each holds a single connection and SQLite serializes writers.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping ledger: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA synchronous=NORMAL;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	s := &Store{db: db, now: time.Now}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("schema migration failed: %w", err)
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS recs (
		id INTEGER PRIMARY KEY,
		atomic BOOLEAN NOT NULL DEFAULT 1,
		timestamp REAL NOT NULL,
		action TEXT NOT NULL,
		user TEXT NOT NULL,
		latency REAL DEFAULT NULL,
		code INTEGER DEFAULT NULL,
		reason TEXT DEFAULT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_recs_atomic_ts ON recs(atomic, timestamp);

	CREATE TABLE IF NOT EXISTS info (
		id INTEGER PRIMARY KEY,
		test_run_id TEXT NOT NULL,
		test_run_status TEXT NOT NULL DEFAULT 'IN PROGRESS',
		worker_name TEXT NOT NULL,
		timestamp_started REAL NOT NULL,
		timestamp_completed REAL,
		total_load_info TEXT,
		worker_load_info TEXT
	);
	`
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	return nil
}

// Reset removes every request and run-info row.
func (s *Store) Reset(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reset: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{"DELETE FROM recs", "DELETE FROM info"} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("reset ledger: %w", err)
		}
	}
	return tx.Commit()
}

func toSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

func fromSeconds(v float64) time.Time {
	return time.Unix(0, int64(v*float64(time.Second)))
}
