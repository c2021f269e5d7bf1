package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// RunInfo is the run-level row of a worker's ledger. Finished is zero until
// the worker completes.
type RunInfo struct {
	RunID      string
	Status     string
	Worker     string
	Started    time.Time
	Finished   time.Time
	TotalLoad  string
	WorkerLoad string
}

// Elapsed returns the seconds between start and finish, or between start
// and now when the run is still going.
func (r RunInfo) Elapsed(now time.Time) int {
	end := now
	if !r.Finished.IsZero() {
		end = r.Finished
	}
	return int(end.Sub(r.Started) / time.Second)
}

// StartRun records a run as in progress.
func (s *Store) StartRun(ctx context.Context, info RunInfo) error {
	if info.Started.IsZero() {
		info.Started = s.now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO info (test_run_id, test_run_status, worker_name, timestamp_started, total_load_info, worker_load_info)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		info.RunID, StatusInProgress, info.Worker, toSeconds(info.Started), info.TotalLoad, info.WorkerLoad)
	if err != nil {
		return fmt.Errorf("insert run info: %w", err)
	}
	return nil
}

// FinishRun marks the run finished at the given time.
func (s *Store) FinishRun(ctx context.Context, finished time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE info SET test_run_status = ?, timestamp_completed = ?`,
		StatusFinished, toSeconds(finished))
	if err != nil {
		return fmt.Errorf("update run info: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNoRunInfo
	}
	return nil
}

// RunInfo returns the run-info row.
func (s *Store) RunInfo(ctx context.Context) (RunInfo, error) {
	var (
		info              RunInfo
		started           float64
		finished          sql.NullFloat64
		total, workerLoad sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT test_run_id, test_run_status, worker_name, timestamp_started, timestamp_completed, total_load_info, worker_load_info
		 FROM info ORDER BY id LIMIT 1`).
		Scan(&info.RunID, &info.Status, &info.Worker, &started, &finished, &total, &workerLoad)
	if errors.Is(err, sql.ErrNoRows) {
		return RunInfo{}, ErrNoRunInfo
	}
	if err != nil {
		return RunInfo{}, fmt.Errorf("query run info: %w", err)
	}
	info.Started = fromSeconds(started)
	if finished.Valid {
		info.Finished = fromSeconds(finished.Float64)
	}
	info.TotalLoad = total.String
	info.WorkerLoad = workerLoad.String
	return info, nil
}
