// Package monitor exposes a worker's ledgers over HTTP and merges the views
// of every worker into one.
//
// Each worker runs a [Server] answering three JSONP endpoints for a test run:
// chart data, an outcome summary and a recent log excerpt. The central
// [Aggregator] queries every host of the inventory and combines the answers
// with [MergeCharts], [MergeSummaries] and [MergeLogs].
package monitor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/torosent/crowdbench/internal/ledger"
	"github.com/torosent/crowdbench/internal/logging"
)

var runIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// Options configure a Server.
type Options struct {
	DataDir  string
	Addr     string
	Bucket   time.Duration
	Window   int
	LogLines int
	Logger   *zap.Logger
}

// Server answers monitoring queries from the ledgers in its data directory.
type Server struct {
	opt      Options
	logger   *zap.Logger
	registry *prometheus.Registry
	server   *http.Server
	now      func() time.Time
}

func NewServer(opt Options) *Server {
	if opt.DataDir == "" {
		opt.DataDir = "."
	}
	if opt.Bucket <= 0 {
		opt.Bucket = ledger.DefaultBucket
	}
	if opt.Window <= 0 {
		opt.Window = ledger.DefaultChartWindow
	}
	if opt.LogLines < 0 {
		opt.LogLines = 0
	}
	s := &Server{
		opt:      opt,
		logger:   logging.OrNop(opt.Logger),
		registry: prometheus.NewRegistry(),
		now:      time.Now,
	}
	s.registry.MustRegister(newLedgerCollector(opt.DataDir, s.logger))
	return s
}

// Handler returns the routed handler, wrapped in logging and panic recovery.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /_get_chartdata", s.handleChart)
	mux.HandleFunc("GET /_get_summary", s.handleSummary)
	mux.HandleFunc("GET /_get_logs", s.handleLogs)
	for _, path := range []string{"/_get_chartdata", "/_get_summary", "/_get_logs"} {
		mux.HandleFunc("OPTIONS "+path, handleOptions)
	}
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	return withLogging(s.logger, withRecovery(s.logger, mux))
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.opt.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("monitor listening", zap.String("addr", s.opt.Addr))
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("monitor listen on %s: %w", s.opt.Addr, err)
		}
		return nil
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.logger.Info("monitor stopping")
	return s.server.Shutdown(shutdownCtx)
}

// openRun opens the ledger of the run named in the request. The caller closes
// the store.
func (s *Server) openRun(r *http.Request) (*ledger.Store, string, int, error) {
	runID := strings.TrimSpace(r.URL.Query().Get("test_run_id"))
	if !runIDPattern.MatchString(runID) {
		return nil, runID, http.StatusBadRequest, fmt.Errorf("invalid test_run_id %q", runID)
	}
	path := ledger.Path(s.opt.DataDir, runID)
	if _, err := os.Stat(path); err != nil {
		return nil, runID, http.StatusNotFound, fmt.Errorf("test run %s not found", runID)
	}
	store, err := ledger.Open(path)
	if err != nil {
		return nil, runID, http.StatusInternalServerError, err
	}
	return store, runID, http.StatusOK, nil
}

func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	metric := strings.TrimSpace(q.Get("y_axis"))
	if metric == "" {
		metric = MetricAtomicOps
	}
	var atomic, latency bool
	switch metric {
	case MetricAtomicOps:
		atomic = true
	case MetricAtomicLatency:
		atomic, latency = true, true
	case MetricOps:
	case MetricLatency:
		latency = true
	default:
		writeError(w, http.StatusBadRequest, fmt.Errorf("unknown y_axis %q", metric))
		return
	}

	store, _, status, err := s.openRun(r)
	if err != nil {
		writeError(w, status, err)
		return
	}
	defer store.Close()

	info, err := store.RunInfo(r.Context())
	if errors.Is(err, ledger.ErrNoRunInfo) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		s.internalError(w, err)
		return
	}

	buckets, err := store.Chart(r.Context(), ledger.ChartQuery{
		Started: info.Started,
		Atomic:  atomic,
		Latency: latency,
		Actions: splitList(q.Get("actions")),
		Bucket:  s.opt.Bucket,
		Limit:   s.opt.Window,
	})
	if err != nil {
		s.internalError(w, err)
		return
	}
	// The newest bucket is still filling while the run is going.
	if info.Finished.IsZero() && len(buckets) > 0 {
		buckets = buckets[:len(buckets)-1]
	}

	label := q.Get("slave")
	if label == "" {
		label = q.Get("host")
	}
	chart := Chart{
		Label:    label,
		Points:   make([]Point, 0, len(buckets)),
		Status:   info.Status,
		Started:  unixSeconds(info.Started),
		Progress: info.Elapsed(s.now()),
	}
	if !info.Finished.IsZero() {
		finished := unixSeconds(info.Finished)
		chart.Finished = &finished
	}
	for _, b := range buckets {
		chart.Points = append(chart.Points, Point{
			Timestamp:  fmt.Sprint(b.Offset),
			Failed:     b.Failed,
			Passed:     b.Passed,
			Incomplete: b.Incomplete,
		})
	}
	writeJSONP(w, q.Get("callback"), chart)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	store, _, status, err := s.openRun(r)
	if err != nil {
		writeError(w, status, err)
		return
	}
	defer store.Close()

	counts, err := store.Summary(r.Context())
	if err != nil {
		s.internalError(w, err)
		return
	}
	writeJSONP(w, r.URL.Query().Get("callback"), summaryItems(counts))
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	runID := strings.TrimSpace(r.URL.Query().Get("test_run_id"))
	if !runIDPattern.MatchString(runID) {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid test_run_id %q", runID))
		return
	}
	bundle := LogBundle{
		Host: r.Host,
		Logs: Logs{
			Monitor: readLogExcerpt(logging.MonitorLog(s.opt.DataDir), s.opt.LogLines),
			TestRun: readLogExcerpt(logging.RunLog(s.opt.DataDir, runID), s.opt.LogLines),
		},
	}
	writeJSONP(w, r.URL.Query().Get("callback"), []LogBundle{bundle})
}

func (s *Server) internalError(w http.ResponseWriter, err error) {
	s.logger.Error("monitor query failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, err)
}

func handleOptions(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{}`))
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
