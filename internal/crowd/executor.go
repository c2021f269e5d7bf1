package crowd

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/torosent/crowdbench/internal/output"
	"github.com/torosent/crowdbench/internal/plan"
	"github.com/torosent/crowdbench/internal/schedule"
)

// Report summarizes one executor run.
type Report struct {
	Action    string
	Batches   int
	Launched  int           // user loops started
	Abandoned int           // user loops still running when the grace period ran out
	Elapsed   time.Duration
}

// Executor replays one action's compiled schedule.
type Executor struct {
	opt Options
	sem *semaphore.Weighted
}

func New(opt Options) *Executor {
	opt.normalize()
	return &Executor{opt: opt, sem: semaphore.NewWeighted(int64(opt.Concurrency))}
}

// run holds the state shared by the batches of a single Run call.
type run struct {
	ctx     context.Context
	started time.Time
	iterate Iteration
	pool    *idPool

	mu      sync.Mutex
	stopped bool
	batches sync.WaitGroup

	launched int64
	active   int64
	nbatches int64
}

// Run launches every schedule entry at its start offset and cancels it at its
// end offset. The whole run stops at the schedule duration; user loops still
// running after the grace period are reported as abandoned. Users are drawn
// from the ids in users.
func (e *Executor) Run(ctx context.Context, res schedule.Result, users plan.Range, iterate Iteration) Report {
	log := e.opt.Logger.With(zap.String("action", e.opt.Action))
	started := time.Now()
	report := Report{Action: e.opt.Action}
	if len(res.Entries) == 0 || res.Duration <= 0 {
		log.Info("empty schedule, nothing to run")
		return report
	}

	if peak := peakUsers(res.Entries); peak > users.Len() {
		log.Warn("user range smaller than schedule peak",
			zap.Int("peak", peak), zap.Int("range", users.Len()))
	}

	runCtx, cancel := context.WithDeadline(ctx, started.Add(e.at(res.Duration)))
	defer cancel()

	r := &run{ctx: runCtx, started: started, iterate: iterate, pool: newIDPool(users)}

	e.opt.Collector.Start()
	if e.opt.Progress != nil {
		defer output.StartProgress(e.opt.Action, e.opt.Collector, e.opt.ProgressInterval, e.opt.Progress).Stop()
	}

	timers := make([]*time.Timer, 0, len(res.Entries))
	for _, entry := range res.Entries {
		timers = append(timers, time.AfterFunc(e.at(entry.Start), func() {
			e.launch(r, entry, log)
		}))
	}

	<-runCtx.Done()
	for _, t := range timers {
		t.Stop()
	}
	r.mu.Lock()
	r.stopped = true
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.batches.Wait()
		close(done)
	}()
	grace := time.NewTimer(e.opt.Grace)
	defer grace.Stop()
	select {
	case <-done:
	case <-grace.C:
	}

	report.Batches = int(atomic.LoadInt64(&r.nbatches))
	report.Launched = int(atomic.LoadInt64(&r.launched))
	report.Abandoned = int(atomic.LoadInt64(&r.active))
	report.Elapsed = time.Since(started)
	if report.Abandoned > 0 {
		log.Warn("abandoned running users", zap.Int("users", report.Abandoned))
	}
	log.Info("schedule finished",
		zap.Int("batches", report.Batches),
		zap.Int("launched", report.Launched),
		zap.Duration("elapsed", report.Elapsed))
	return report
}

func (e *Executor) at(seconds int) time.Duration {
	return time.Duration(seconds) * e.opt.Unit
}

// launch starts one batch. Its users share a context that expires at the
// entry's end offset. With fewer free ids than users the batch launches short.
func (e *Executor) launch(r *run, entry schedule.Entry, log *zap.Logger) {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.batches.Add(1)
	r.mu.Unlock()

	ids := r.pool.take(entry.Users)
	if len(ids) < entry.Users {
		log.Warn("not enough free user ids for batch",
			zap.Int("start", entry.Start), zap.Int("wanted", entry.Users), zap.Int("got", len(ids)))
	}
	log.Debug("launching batch",
		zap.Int("start", entry.Start), zap.Int("duration", entry.Duration), zap.Int("users", len(ids)))
	atomic.AddInt64(&r.nbatches, 1)
	atomic.AddInt64(&r.launched, int64(len(ids)))

	batchCtx, cancel := context.WithDeadline(r.ctx, r.started.Add(e.at(entry.End())))
	go func() {
		defer r.batches.Done()
		defer cancel()
		var users sync.WaitGroup
		users.Add(len(ids))
		for _, id := range ids {
			go func() {
				defer users.Done()
				e.user(batchCtx, r, id)
			}()
		}
		users.Wait()
		r.pool.put(ids)
	}()
}

// user repeats the action until ctx is done. The concurrency slot is held for
// the whole loop.
func (e *Executor) user(ctx context.Context, r *run, id int) {
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return
	}
	defer e.sem.Release(1)

	atomic.AddInt64(&r.active, 1)
	defer atomic.AddInt64(&r.active, -1)
	e.opt.Collector.UserStarted()
	defer e.opt.Collector.UserStopped()

	for ctx.Err() == nil {
		r.iterate(ctx, id)
	}
}
