package monitor

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/torosent/crowdbench/internal/config"
	"github.com/torosent/crowdbench/internal/ledger"
)

func ptr[T any](v T) *T { return &v }

func TestMergeChartsSumsBuckets(t *testing.T) {
	a := Chart{Points: []Point{{Timestamp: "5", Passed: 3, Failed: 1}}, Status: ledger.StatusFinished}
	b := Chart{Points: []Point{{Timestamp: "5", Passed: 2, Incomplete: 1}}, Status: ledger.StatusFinished}

	merged := MergeCharts([]Chart{a, b})
	require.Len(t, merged.Points, 1)
	assert.Equal(t, Point{Timestamp: "5", Passed: 5, Failed: 1, Incomplete: 1}, merged.Points[0])
	assert.Equal(t, TotalLabel, merged.Label)
}

func TestMergeChartsSortsNumerically(t *testing.T) {
	a := Chart{Points: []Point{{Timestamp: "100", Passed: 1}, {Timestamp: "20", Passed: 1}}}
	b := Chart{Points: []Point{{Timestamp: "9", Passed: 1}}}

	merged := MergeCharts([]Chart{a, b})
	var keys []string
	for _, p := range merged.Points {
		keys = append(keys, p.Timestamp)
	}
	assert.Equal(t, []string{"9", "20", "100"}, keys)
}

func TestMergeChartsStatus(t *testing.T) {
	a := Chart{Status: ledger.StatusFinished, Started: 100, Finished: ptr(160.0), Progress: 60}
	b := Chart{Status: ledger.StatusInProgress, Started: 90, Progress: 45}

	merged := MergeCharts([]Chart{a, b})
	assert.Equal(t, ledger.StatusInProgress, merged.Status)
	assert.Equal(t, 90.0, merged.Started)
	require.NotNil(t, merged.Finished)
	assert.Equal(t, 160.0, *merged.Finished)
	assert.Equal(t, 45, merged.Progress)
}

func TestMergeChartsAllFinished(t *testing.T) {
	a := Chart{Status: ledger.StatusFinished, Started: 100, Finished: ptr(160.0), Progress: 60}
	b := Chart{Status: ledger.StatusFinished, Started: 101, Finished: ptr(170.0), Progress: 69}

	merged := MergeCharts([]Chart{a, b})
	assert.Equal(t, ledger.StatusFinished, merged.Status)
	assert.Equal(t, 170.0, *merged.Finished)
	assert.Equal(t, 0, merged.Progress)
}

func TestMergeChartsNoneFinished(t *testing.T) {
	merged := MergeCharts([]Chart{
		{Status: ledger.StatusInProgress, Started: 100, Progress: 5},
		{Status: ledger.StatusInProgress, Started: 100, Progress: 7},
	})
	assert.Nil(t, merged.Finished)
	assert.Equal(t, 5, merged.Progress)

	data, err := merged.MarshalJSON()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"finished":"(not finished)"`)
}

func TestMergeSummaries(t *testing.T) {
	merged := MergeSummaries([][]SummaryItem{
		{{Reason: "OK", Count: 3, Code: ptr(200)}, {Reason: ledger.IncompleteReason, Count: 1}},
		{{Reason: "OK", Count: 4, Code: ptr(200)}, {Reason: "Bad Gateway", Count: 2, Code: ptr(502)}},
	})
	require.Len(t, merged, 3)
	assert.Equal(t, "Bad Gateway", merged[0].Reason)
	assert.Equal(t, ledger.IncompleteReason, merged[1].Reason)
	assert.Equal(t, "OK", merged[2].Reason)
	assert.Equal(t, 7, merged[2].Count)
	assert.Equal(t, 200, *merged[2].Code)
}

func TestMergeLogsKeepsEveryHost(t *testing.T) {
	merged := MergeLogs([]LogBundle{{Host: "b"}, {Host: "a"}})
	require.Len(t, merged, 2)
	assert.Equal(t, "a", merged[0].Host)
	assert.Equal(t, "b", merged[1].Host)
}

func TestStripJSONP(t *testing.T) {
	assert.Equal(t, `{"a":1}`, string(stripJSONP([]byte(`cb({"a":1})`))))
	assert.Equal(t, `[1]`, string(stripJSONP([]byte(" [1]\n"))))
}

func hostFor(t *testing.T, srv *httptest.Server) config.Host {
	t.Helper()
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	host, port, err := net.SplitHostPort(u.Host)
	require.NoError(t, err)
	p, err := strconv.Atoi(port)
	require.NoError(t, err)
	return config.Host{Host: host, WebPort: p}
}

func TestAggregatorMergesReachableHosts(t *testing.T) {
	dirA, dirB := t.TempDir(), t.TempDir()
	seedRun(t, dirA, "run1", 40*time.Second, sampleRows)
	seedRun(t, dirB, "run1", 0, []row{
		{true, 1, "A", 0.1, 200, "OK"},
		{true, 25, "A", 0.1, 200, "OK"},
	})
	srvA := httptest.NewServer(NewServer(Options{DataDir: dirA}).Handler())
	defer srvA.Close()
	serverB := NewServer(Options{DataDir: dirB})
	serverB.now = func() time.Time { return testStart.Add(30 * time.Second) }
	srvB := httptest.NewServer(serverB.Handler())
	defer srvB.Close()

	dead := httptest.NewServer(http.NotFoundHandler())
	deadHost := hostFor(t, dead)
	dead.Close()

	agg := NewAggregator([]config.Host{hostFor(t, srvA), hostFor(t, srvB), deadHost}, nil, nil)
	ctx := context.Background()

	chart, errs := agg.Chart(ctx, ChartRequest{RunID: "run1", Metric: MetricAtomicOps})
	require.Len(t, errs, 1)
	assert.Equal(t, deadHost.Host, errs[0].Host)

	assert.Equal(t, ledger.StatusInProgress, chart.Status)
	assert.Equal(t, float64(testStart.Unix()), chart.Started)
	require.NotNil(t, chart.Finished)
	assert.Equal(t, float64(testStart.Unix()+40), *chart.Finished)
	assert.Equal(t, 30, chart.Progress)
	require.Len(t, chart.Points, 2)
	assert.Equal(t, Point{Timestamp: "0", Passed: 2, Failed: 1}, chart.Points[0])
	assert.Equal(t, Point{Timestamp: "10", Passed: 1, Incomplete: 1}, chart.Points[1])

	summary, errs := agg.Summary(ctx, "run1")
	require.Len(t, errs, 1)
	for _, item := range summary {
		if item.Reason == "OK" {
			assert.Equal(t, 5, item.Count)
		}
	}

	logs, errs := agg.Logs(ctx, "run1")
	require.Len(t, errs, 1)
	assert.Len(t, logs, 2)
}

func TestAggregatorHandler(t *testing.T) {
	dir := t.TempDir()
	seedRun(t, dir, "run1", 40*time.Second, sampleRows)
	srv := httptest.NewServer(NewServer(Options{DataDir: dir}).Handler())
	defer srv.Close()

	h := NewAggregator([]config.Host{hostFor(t, srv)}, nil, nil).Handler()
	res, body := get(t, h, "/_get_chartdata?test_run_id=run1&y_axis=aops&callback=cb")
	require.Equal(t, http.StatusOK, res.StatusCode)
	data := decodeJSONP(t, body, "cb")
	assert.Len(t, data[TotalLabel].([]any), 2)
	assert.Empty(t, res.Header.Get("X-Crowdbench-Host-Errors"))
}

func TestAggregatorHandlerListsHostErrors(t *testing.T) {
	dir := t.TempDir()
	seedRun(t, dir, "run1", 40*time.Second, sampleRows)
	srv := httptest.NewServer(NewServer(Options{DataDir: dir}).Handler())
	defer srv.Close()

	dead := httptest.NewServer(http.NotFoundHandler())
	deadHost := hostFor(t, dead)
	dead.Close()

	h := NewAggregator([]config.Host{hostFor(t, srv), deadHost}, nil, nil).Handler()
	for _, path := range []string{
		"/_get_chartdata?test_run_id=run1&y_axis=aops",
		"/_get_summary?test_run_id=run1",
		"/_get_logs?test_run_id=run1",
	} {
		res, _ := get(t, h, path)
		require.Equal(t, http.StatusOK, res.StatusCode, path)
		assert.Equal(t, "1", res.Header.Get("X-Crowdbench-Host-Errors"), path)
		perHost := res.Header.Values("X-Crowdbench-Host-Error")
		require.Len(t, perHost, 1, path)
		assert.True(t, strings.HasPrefix(perHost[0], deadHost.Host+": "), perHost[0])
		assert.NotContains(t, perHost[0], "\n")
	}
}
