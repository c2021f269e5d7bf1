package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Entry is one in-flight request row. It must be finished on every exit
// path; callers typically defer Finish right after Begin succeeds.
type Entry struct {
	store   *Store
	id      int64
	started time.Time

	once sync.Once
	err  error
}

// Begin inserts the start-phase row for a request. Atomic rows are single
// HTTP calls; non-atomic rows cover one whole action iteration.
func (s *Store) Begin(ctx context.Context, action, user string, atomic bool) (*Entry, error) {
	started := s.now()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO recs (atomic, timestamp, action, user) VALUES (?, ?, ?, ?)`,
		atomic, toSeconds(started), action, user)
	if err != nil {
		return nil, fmt.Errorf("insert record: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("insert record: %w", err)
	}
	return &Entry{store: s, id: id, started: started}, nil
}

// ID returns the row id.
func (e *Entry) ID() int64 { return e.id }

// Finish writes latency, code and reason. Only the first call has an effect.
// It runs even when the request's context is already cancelled.
func (e *Entry) Finish(code int, reason string) error {
	if e == nil {
		return nil
	}
	e.once.Do(func() {
		latency := e.store.now().Sub(e.started).Seconds()
		_, err := e.store.db.ExecContext(context.Background(),
			`UPDATE recs SET latency = ?, code = ?, reason = ? WHERE id = ?`,
			latency, code, reason, e.id)
		if err != nil {
			e.err = fmt.Errorf("update record %d: %w", e.id, err)
		}
	})
	return e.err
}
