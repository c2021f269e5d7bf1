package monitor

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/torosent/crowdbench/internal/ledger"
	"github.com/torosent/crowdbench/internal/logging"
)

var testStart = time.Unix(1_700_000_000, 0)

type row struct {
	atomic  bool
	offset  float64
	action  string
	latency any
	code    any
	reason  any
}

func seedRun(t *testing.T, dir, runID string, finished time.Duration, rows []row) {
	t.Helper()
	path := ledger.Path(dir, runID)
	store, err := ledger.Open(path)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, store.StartRun(ctx, ledger.RunInfo{RunID: runID, Worker: "w1", Started: testStart}))
	if finished > 0 {
		require.NoError(t, store.FinishRun(ctx, testStart.Add(finished)))
	}
	require.NoError(t, store.Close())

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()
	for i, r := range rows {
		_, err := db.Exec(`INSERT INTO recs (atomic, timestamp, action, user, latency, code, reason) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			r.atomic, float64(testStart.Unix())+r.offset, r.action, i, r.latency, r.code, r.reason)
		require.NoError(t, err)
	}
}

var sampleRows = []row{
	{true, 1, "A", 0.1, 200, "OK"},
	{true, 2, "A", 0.3, 500, "Internal Server Error"},
	{true, 12, "A", nil, nil, nil},
	{true, 15, "B", 0.2, 200, "OK"},
	{false, 3, "A", 0.5, 200, "OK"},
}

func get(t *testing.T, h http.Handler, target string) (*http.Response, string) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	res := rec.Result()
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res, string(body)
}

func decodeJSONP(t *testing.T, body, callback string) map[string]any {
	t.Helper()
	require.True(t, strings.HasPrefix(body, callback+"("), body)
	require.True(t, strings.HasSuffix(body, ")"), body)
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(body[len(callback)+1:len(body)-1]), &out))
	return out
}

func TestChartDataFinishedRun(t *testing.T) {
	dir := t.TempDir()
	seedRun(t, dir, "run1", 40*time.Second, sampleRows)
	srv := NewServer(Options{DataDir: dir})

	res, body := get(t, srv.Handler(), "/_get_chartdata?test_run_id=run1&y_axis=aops&slave=w1&callback=cb")
	require.Equal(t, http.StatusOK, res.StatusCode, body)
	assert.Equal(t, "application/javascript", res.Header.Get("Content-Type"))

	data := decodeJSONP(t, body, "cb")
	assert.Equal(t, ledger.StatusFinished, data["status"])
	assert.Equal(t, float64(testStart.Unix()), data["started"])
	assert.Equal(t, float64(testStart.Unix()+40), data["finished"])
	assert.Equal(t, float64(40), data["progress"])

	points := data["w1"].([]any)
	require.Len(t, points, 2)
	assert.Equal(t, map[string]any{"timestamp": "0", "passed": 1.0, "failed": 1.0, "incomplete": 0.0}, points[0])
	assert.Equal(t, map[string]any{"timestamp": "10", "passed": 1.0, "failed": 0.0, "incomplete": 1.0}, points[1])
}

func TestChartDataDropsFillingBucketWhileRunning(t *testing.T) {
	dir := t.TempDir()
	seedRun(t, dir, "run1", 0, sampleRows)
	srv := NewServer(Options{DataDir: dir})
	srv.now = func() time.Time { return testStart.Add(17 * time.Second) }

	_, body := get(t, srv.Handler(), "/_get_chartdata?test_run_id=run1&slave=w1&callback=cb")
	data := decodeJSONP(t, body, "cb")
	assert.Equal(t, ledger.StatusInProgress, data["status"])
	assert.Equal(t, NotFinished, data["finished"])
	assert.Equal(t, float64(17), data["progress"])

	points := data["w1"].([]any)
	require.Len(t, points, 1)
	assert.Equal(t, "0", points[0].(map[string]any)["timestamp"])
}

func TestChartDataMetricsAndFilters(t *testing.T) {
	dir := t.TempDir()
	seedRun(t, dir, "run1", 40*time.Second, sampleRows)
	h := NewServer(Options{DataDir: dir}).Handler()

	_, body := get(t, h, "/_get_chartdata?test_run_id=run1&y_axis=ops&callback=cb")
	points := decodeJSONP(t, body, "cb")[TotalLabel].([]any)
	require.Len(t, points, 1)
	assert.Equal(t, 1.0, points[0].(map[string]any)["passed"])

	_, body = get(t, h, "/_get_chartdata?test_run_id=run1&y_axis=aops&actions=B&callback=cb")
	points = decodeJSONP(t, body, "cb")[TotalLabel].([]any)
	require.Len(t, points, 1)
	assert.Equal(t, "10", points[0].(map[string]any)["timestamp"])

	_, body = get(t, h, "/_get_chartdata?test_run_id=run1&y_axis=avgl&actions=A&callback=cb")
	points = decodeJSONP(t, body, "cb")[TotalLabel].([]any)
	require.Len(t, points, 2)
	first := points[0].(map[string]any)
	assert.InDelta(t, 0.1, first["passed"], 1e-9)
	assert.InDelta(t, 0.3, first["failed"], 1e-9)

	res, _ := get(t, h, "/_get_chartdata?test_run_id=run1&y_axis=bogus")
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestChartDataWithoutCallbackIsPlainJSON(t *testing.T) {
	dir := t.TempDir()
	seedRun(t, dir, "run1", 40*time.Second, nil)
	res, body := get(t, NewServer(Options{DataDir: dir}).Handler(), "/_get_chartdata?test_run_id=run1")
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "application/json", res.Header.Get("Content-Type"))
	assert.JSONEq(t, `{"total":[],"status":"FINISHED","started":1700000000,"finished":1700000040,"progress":40}`, body)
}

func TestRequestValidation(t *testing.T) {
	dir := t.TempDir()
	seedRun(t, dir, "run1", 40*time.Second, nil)
	h := NewServer(Options{DataDir: dir}).Handler()

	cases := []struct {
		target string
		status int
	}{
		{"/_get_chartdata?test_run_id=../etc", http.StatusBadRequest},
		{"/_get_chartdata?test_run_id=", http.StatusBadRequest},
		{"/_get_chartdata?test_run_id=missing", http.StatusNotFound},
		{"/_get_summary?test_run_id=missing", http.StatusNotFound},
		{"/_get_summary?test_run_id=run1&callback=alert(1)", http.StatusBadRequest},
		{"/_get_logs?test_run_id=a/b", http.StatusBadRequest},
	}
	for _, tc := range cases {
		res, body := get(t, h, tc.target)
		assert.Equal(t, tc.status, res.StatusCode, "%s: %s", tc.target, body)
	}
}

func TestSummary(t *testing.T) {
	dir := t.TempDir()
	seedRun(t, dir, "run1", 40*time.Second, sampleRows)
	_, body := get(t, NewServer(Options{DataDir: dir}).Handler(), "/_get_summary?test_run_id=run1")

	var items []SummaryItem
	require.NoError(t, json.Unmarshal([]byte(body), &items))
	require.Len(t, items, 3)
	assert.Equal(t, "OK", items[0].Reason)
	assert.Equal(t, 3, items[0].Count)
	require.NotNil(t, items[0].Code)
	assert.Equal(t, 200, *items[0].Code)

	var incomplete *SummaryItem
	for i := range items {
		if items[i].Reason == ledger.IncompleteReason {
			incomplete = &items[i]
		}
	}
	require.NotNil(t, incomplete)
	assert.Nil(t, incomplete.Code)
	assert.Equal(t, 1, incomplete.Count)
}

func TestLogsExcerpt(t *testing.T) {
	dir := t.TempDir()
	var lines []string
	for i := 0; i < 15; i++ {
		lines = append(lines, `{"level":"warn","msg":"line `+string(rune('a'+i))+`"}`)
		lines = append(lines, `{"level":"info","msg":"request","status":200}`)
	}
	require.NoError(t, os.WriteFile(logging.RunLog(dir, "run1"), []byte(strings.Join(lines, "\n")+"\n"), 0o644))

	srv := NewServer(Options{DataDir: dir, LogLines: 10})
	_, body := get(t, srv.Handler(), "/_get_logs?test_run_id=run1")

	var bundles []LogBundle
	require.NoError(t, json.Unmarshal([]byte(body), &bundles))
	require.Len(t, bundles, 1)
	got := strings.Split(bundles[0].Logs.TestRun, "\n")
	require.Len(t, got, 10)
	assert.Contains(t, got[0], "line f")
	assert.Contains(t, got[9], "line o")
	assert.NotContains(t, bundles[0].Logs.TestRun, `"status":200`)
	assert.True(t, strings.HasPrefix(bundles[0].Logs.Monitor, "Could not find logs:"))
}

func TestOptionsAndHealth(t *testing.T) {
	h := NewServer(Options{DataDir: t.TempDir()}).Handler()
	for _, path := range []string{"/_get_chartdata", "/_get_summary", "/_get_logs"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "{}", rec.Body.String())
	}
	res, body := get(t, h, "/healthz")
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, body)
}

func TestMetricsEndpoint(t *testing.T) {
	dir := t.TempDir()
	seedRun(t, dir, "run1", 40*time.Second, sampleRows)
	_, body := get(t, NewServer(Options{DataDir: dir}).Handler(), "/metrics")

	assert.Contains(t, body, `crowdbench_requests_total{action="A",kind="request",outcome="passed",run="run1"} 1`)
	assert.Contains(t, body, `crowdbench_requests_total{action="A",kind="action",outcome="passed",run="run1"} 1`)
	assert.Contains(t, body, `crowdbench_run_finished{run="run1",worker="w1"} 1`)
	assert.Contains(t, body, `crowdbench_run_elapsed_seconds{run="run1",worker="w1"} 40`)
}

func TestTailLogSkipsBlankLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.log")
	require.NoError(t, os.WriteFile(path, []byte("one\n\n127.0.0.1 \"GET / HTTP/1.1\" 200 12\ntwo\n"), 0o644))
	got, err := tailLog(path, 5)
	require.NoError(t, err)
	assert.Equal(t, "one\ntwo", got)
}
