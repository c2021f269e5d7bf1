package monitor

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/torosent/crowdbench/internal/config"
	"github.com/torosent/crowdbench/internal/logging"
)

// HostError reports a host whose answer could not be used.
type HostError struct {
	Host string
	Err  error
}

func (e HostError) Error() string { return fmt.Sprintf("%s: %v", e.Host, e.Err) }
func (e HostError) Unwrap() error { return e.Err }

// ChartRequest selects a chart series.
type ChartRequest struct {
	RunID   string
	Metric  string
	Actions []string
}

// Aggregator queries the monitoring service of every host and merges the
// answers. Unreachable hosts are reported and skipped.
type Aggregator struct {
	hosts  []config.Host
	client *http.Client
	logger *zap.Logger
	limit  int
}

func NewAggregator(hosts []config.Host, client *http.Client, logger *zap.Logger) *Aggregator {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Aggregator{hosts: hosts, client: client, logger: logging.OrNop(logger), limit: 16}
}

// Chart merges the chart series of every host.
func (a *Aggregator) Chart(ctx context.Context, req ChartRequest) (Chart, []HostError) {
	q := url.Values{}
	q.Set("test_run_id", req.RunID)
	q.Set("y_axis", req.Metric)
	q.Set("actions", strings.Join(req.Actions, ","))
	q.Set("slave", TotalLabel)

	charts := make([]Chart, len(a.hosts))
	ok := make([]bool, len(a.hosts))
	errs := a.fanOut(ctx, "/_get_chartdata", q, func(i int, body []byte) error {
		c, err := parseChart(body, TotalLabel)
		if err != nil {
			return err
		}
		charts[i], ok[i] = c, true
		return nil
	})
	return MergeCharts(keep(charts, ok)), errs
}

// Summary merges the outcome summaries of every host.
func (a *Aggregator) Summary(ctx context.Context, runID string) ([]SummaryItem, []HostError) {
	q := url.Values{}
	q.Set("test_run_id", runID)

	summaries := make([][]SummaryItem, len(a.hosts))
	errs := a.fanOut(ctx, "/_get_summary", q, func(i int, body []byte) error {
		items, err := parseSummary(body)
		summaries[i] = items
		return err
	})
	return MergeSummaries(summaries), errs
}

// Logs collects the log excerpts of every host.
func (a *Aggregator) Logs(ctx context.Context, runID string) ([]LogBundle, []HostError) {
	q := url.Values{}
	q.Set("test_run_id", runID)

	bundles := make([]LogBundle, len(a.hosts))
	ok := make([]bool, len(a.hosts))
	errs := a.fanOut(ctx, "/_get_logs", q, func(i int, body []byte) error {
		b, err := parseLogs(body)
		if err != nil {
			return err
		}
		b.Host = a.hosts[i].Host
		bundles[i], ok[i] = b, true
		return nil
	})
	return MergeLogs(keep(bundles, ok)), errs
}

// fanOut queries path on every host concurrently and hands each body to
// parse. Failures are collected per host in host order.
func (a *Aggregator) fanOut(ctx context.Context, path string, q url.Values, parse func(i int, body []byte) error) []HostError {
	failures := make([]error, len(a.hosts))
	var g errgroup.Group
	g.SetLimit(a.limit)
	for i, h := range a.hosts {
		g.Go(func() error {
			body, err := a.get(ctx, h.MonitorURL()+path+"?"+q.Encode())
			if err == nil {
				err = parse(i, body)
			}
			if err != nil {
				a.logger.Warn("monitor host failed", zap.String("host", h.Host), zap.String("path", path), zap.Error(err))
				failures[i] = err
			}
			return nil
		})
	}
	_ = g.Wait()

	var errs []HostError
	for i, err := range failures {
		if err != nil {
			errs = append(errs, HostError{Host: a.hosts[i].Host, Err: err})
		}
	}
	return errs
}

func (a *Aggregator) get(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		msg := gjson.GetBytes(body, "error").String()
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, msg)
	}
	return stripJSONP(body), nil
}

// stripJSONP returns the payload inside cb(...), or body unchanged.
func stripJSONP(body []byte) []byte {
	trimmed := strings.TrimSpace(string(body))
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		return []byte(trimmed)
	}
	open, end := strings.Index(trimmed, "("), strings.LastIndex(trimmed, ")")
	if open < 0 || end <= open {
		return []byte(trimmed)
	}
	return []byte(trimmed[open+1 : end])
}

func parseChart(body []byte, label string) (Chart, error) {
	if !gjson.ValidBytes(body) {
		return Chart{}, fmt.Errorf("invalid chart payload")
	}
	res := gjson.ParseBytes(body)
	c := Chart{
		Label:    label,
		Status:   res.Get("status").String(),
		Started:  res.Get("started").Float(),
		Progress: int(res.Get("progress").Int()),
	}
	if f := res.Get("finished"); f.Type == gjson.Number {
		v := f.Float()
		c.Finished = &v
	}
	res.Get(label).ForEach(func(_, p gjson.Result) bool {
		c.Points = append(c.Points, Point{
			Timestamp:  p.Get("timestamp").String(),
			Failed:     p.Get("failed").Float(),
			Passed:     p.Get("passed").Float(),
			Incomplete: p.Get("incomplete").Float(),
		})
		return true
	})
	return c, nil
}

func parseSummary(body []byte) ([]SummaryItem, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("invalid summary payload")
	}
	var items []SummaryItem
	gjson.ParseBytes(body).ForEach(func(_, v gjson.Result) bool {
		item := SummaryItem{Reason: v.Get("reason").String(), Count: int(v.Get("count").Int())}
		if code := v.Get("code"); code.Type == gjson.Number {
			n := int(code.Int())
			item.Code = &n
		}
		items = append(items, item)
		return true
	})
	return items, nil
}

func parseLogs(body []byte) (LogBundle, error) {
	if !gjson.ValidBytes(body) {
		return LogBundle{}, fmt.Errorf("invalid logs payload")
	}
	first := gjson.GetBytes(body, "0")
	return LogBundle{
		Host: first.Get("host").String(),
		Logs: Logs{
			Monitor: first.Get("logs.monitor").String(),
			TestRun: first.Get("logs.testrun").String(),
		},
	}, nil
}

func keep[T any](items []T, ok []bool) []T {
	out := make([]T, 0, len(items))
	for i, item := range items {
		if ok[i] {
			out = append(out, item)
		}
	}
	return out
}

// Handler serves the merged views under the same paths and parameters as a
// worker's Server. Unreachable hosts are listed in response headers.
func (a *Aggregator) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /_get_chartdata", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		chart, errs := a.Chart(r.Context(), ChartRequest{
			RunID:   q.Get("test_run_id"),
			Metric:  q.Get("y_axis"),
			Actions: splitList(q.Get("actions")),
		})
		setHostErrors(w, errs)
		writeJSONP(w, q.Get("callback"), chart)
	})
	mux.HandleFunc("GET /_get_summary", func(w http.ResponseWriter, r *http.Request) {
		summary, errs := a.Summary(r.Context(), r.URL.Query().Get("test_run_id"))
		setHostErrors(w, errs)
		writeJSONP(w, r.URL.Query().Get("callback"), summary)
	})
	mux.HandleFunc("GET /_get_logs", func(w http.ResponseWriter, r *http.Request) {
		logs, errs := a.Logs(r.Context(), r.URL.Query().Get("test_run_id"))
		setHostErrors(w, errs)
		writeJSONP(w, r.URL.Query().Get("callback"), logs)
	})
	for _, path := range []string{"/_get_chartdata", "/_get_summary", "/_get_logs"} {
		mux.HandleFunc("OPTIONS "+path, handleOptions)
	}
	mux.HandleFunc("GET /healthz", handleHealth)
	return withLogging(a.logger, withRecovery(a.logger, mux))
}

// setHostErrors reports failed hosts as a count plus one
// X-Crowdbench-Host-Error header per host.
func setHostErrors(w http.ResponseWriter, errs []HostError) {
	if len(errs) == 0 {
		return
	}
	w.Header().Set("X-Crowdbench-Host-Errors", strconv.Itoa(len(errs)))
	for _, e := range errs {
		w.Header().Add("X-Crowdbench-Host-Error", headerSafe.Replace(e.Error()))
	}
}

var headerSafe = strings.NewReplacer("\r", " ", "\n", " ")
