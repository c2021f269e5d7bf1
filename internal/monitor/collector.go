package monitor

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/torosent/crowdbench/internal/ledger"
)

// ledgerCollector exports the totals of every run ledger in a directory.
// Values are read from the ledgers at scrape time.
type ledgerCollector struct {
	dir    string
	logger *zap.Logger

	requests   *prometheus.Desc
	latencySum *prometheus.Desc
	finished   *prometheus.Desc
	elapsed    *prometheus.Desc
}

func newLedgerCollector(dir string, logger *zap.Logger) *ledgerCollector {
	return &ledgerCollector{
		dir:    dir,
		logger: logger,
		requests: prometheus.NewDesc(
			"crowdbench_requests_total",
			"Ledger rows by action, row kind and outcome.",
			[]string{"run", "action", "kind", "outcome"}, nil),
		latencySum: prometheus.NewDesc(
			"crowdbench_latency_seconds_sum",
			"Sum of recorded latencies by action, row kind and outcome.",
			[]string{"run", "action", "kind", "outcome"}, nil),
		finished: prometheus.NewDesc(
			"crowdbench_run_finished",
			"1 once the worker has finished the run.",
			[]string{"run", "worker"}, nil),
		elapsed: prometheus.NewDesc(
			"crowdbench_run_elapsed_seconds",
			"Seconds since the run started, or its total length once finished.",
			[]string{"run", "worker"}, nil),
	}
}

func (c *ledgerCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.requests
	ch <- c.latencySum
	ch <- c.finished
	ch <- c.elapsed
}

func (c *ledgerCollector) Collect(ch chan<- prometheus.Metric) {
	paths, err := filepath.Glob(filepath.Join(c.dir, "*.db"))
	if err != nil {
		c.logger.Warn("list ledgers", zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, path := range paths {
		run := strings.TrimSuffix(filepath.Base(path), ".db")
		if err := c.collectRun(ctx, ch, run, path); err != nil {
			c.logger.Warn("collect ledger", zap.String("run", run), zap.Error(err))
		}
	}
}

func (c *ledgerCollector) collectRun(ctx context.Context, ch chan<- prometheus.Metric, run, path string) error {
	store, err := ledger.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()

	info, err := store.RunInfo(ctx)
	if err == nil {
		finished := 0.0
		if !info.Finished.IsZero() {
			finished = 1
		}
		ch <- prometheus.MustNewConstMetric(c.finished, prometheus.GaugeValue, finished, run, info.Worker)
		ch <- prometheus.MustNewConstMetric(c.elapsed, prometheus.GaugeValue, float64(info.Elapsed(time.Now())), run, info.Worker)
	}

	counts, err := store.Counts(ctx)
	if err != nil {
		return err
	}
	for _, oc := range counts {
		kind := "action"
		if oc.Atomic {
			kind = "request"
		}
		ch <- prometheus.MustNewConstMetric(c.requests, prometheus.CounterValue, float64(oc.Count), run, oc.Action, kind, oc.Outcome)
		ch <- prometheus.MustNewConstMetric(c.latencySum, prometheus.CounterValue, oc.LatencySum, run, oc.Action, kind, oc.Outcome)
	}
	return nil
}
