// Package worker runs one worker's share of a test run: it prepares the
// ledger, starts one process per action and records when they are all done.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/gofrs/flock"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/torosent/crowdbench/internal/ledger"
	"github.com/torosent/crowdbench/internal/logging"
	"github.com/torosent/crowdbench/internal/plan"
)

// ErrRunLocked is returned when another worker process already owns the run
// in the same data directory.
var ErrRunLocked = errors.New("test run is already running in this data directory")

// Spawner runs one action process to completion.
type Spawner interface {
	Spawn(ctx context.Context, action string) error
}

// SpawnerFunc adapts a function to Spawner.
type SpawnerFunc func(ctx context.Context, action string) error

func (f SpawnerFunc) Spawn(ctx context.Context, action string) error { return f(ctx, action) }

// Orchestrator drives one worker through a test run.
type Orchestrator struct {
	RunID    string
	Worker   string
	DataDir  string
	Document plan.Document
	Spawner  Spawner
	Logger   *zap.Logger

	now func() time.Time
}

// Result lists what happened to the worker's action processes.
type Result struct {
	Actions []string
	Failed  map[string]error
}

// LockPath is the run lock file in dir.
func LockPath(dir, runID string) string {
	return filepath.Join(dir, runID+".lock")
}

// Run executes the worker's plan. Errors setting up the run are returned; a
// failing action process is logged and reported in Result without stopping
// the others.
func (o *Orchestrator) Run(ctx context.Context) (Result, error) {
	log := logging.OrNop(o.Logger).With(zap.String("run", o.RunID), zap.String("worker", o.Worker))
	now := o.now
	if now == nil {
		now = time.Now
	}
	if o.Spawner == nil {
		return Result{}, errors.New("worker: spawner is required")
	}

	part, err := o.Document.Worker(o.Worker)
	if err != nil {
		return Result{}, err
	}

	if err := os.MkdirAll(o.DataDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("create data dir: %w", err)
	}
	lock := flock.New(LockPath(o.DataDir, o.RunID))
	locked, err := lock.TryLock()
	if err != nil {
		return Result{}, fmt.Errorf("lock run: %w", err)
	}
	if !locked {
		return Result{}, ErrRunLocked
	}
	defer lock.Unlock()

	store, err := ledger.Open(ledger.Path(o.DataDir, o.RunID))
	if err != nil {
		return Result{}, err
	}
	defer store.Close()

	if err := store.Reset(ctx); err != nil {
		return Result{}, err
	}
	totalLoad, err := json.Marshal(o.Document.Total())
	if err != nil {
		return Result{}, fmt.Errorf("encode total load: %w", err)
	}
	workerLoad, err := json.Marshal(part)
	if err != nil {
		return Result{}, fmt.Errorf("encode worker load: %w", err)
	}
	if err := store.StartRun(ctx, ledger.RunInfo{
		RunID:      o.RunID,
		Worker:     o.Worker,
		Started:    now(),
		TotalLoad:  string(totalLoad),
		WorkerLoad: string(workerLoad),
	}); err != nil {
		return Result{}, err
	}

	res := Result{Actions: part.ActionNames(), Failed: make(map[string]error)}
	failures := make(chan actionFailure, len(res.Actions))
	log.Info("starting action processes", zap.Strings("actions", res.Actions))

	var g errgroup.Group
	for _, name := range res.Actions {
		g.Go(func() error {
			started := time.Now()
			if err := o.Spawner.Spawn(ctx, name); err != nil {
				log.Error("action process failed", zap.String("action", name), zap.Error(err))
				failures <- actionFailure{name, err}
				return nil
			}
			log.Info("action process finished", zap.String("action", name), zap.Duration("elapsed", time.Since(started)))
			return nil
		})
	}
	_ = g.Wait()
	close(failures)
	for f := range failures {
		res.Failed[f.action] = f.err
	}

	if err := store.FinishRun(context.WithoutCancel(ctx), now()); err != nil {
		return res, err
	}
	log.Info("test run finished", zap.Int("failed", len(res.Failed)))
	return res, nil
}

type actionFailure struct {
	action string
	err    error
}

// FailedActions returns the names of the failed actions in sorted order.
func (r Result) FailedActions() []string {
	names := make([]string, 0, len(r.Failed))
	for name := range r.Failed {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
