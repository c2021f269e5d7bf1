package metrics

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// StatusOK is the only response code counted as a success.
const StatusOK = 200

// Collector records per-request metrics of one action process in a
// thread-safe manner.
type Collector struct {
	mu         sync.Mutex
	hist       *hdrhistogram.Histogram
	successes  int64
	failures   int64
	minLatency time.Duration
	maxLatency time.Duration
	sumLatency time.Duration
	codes      map[int]int64
	reasons    map[string]int64
	start      time.Time

	activeUsers atomic.Int64
	peakUsers   atomic.Int64
}

// Stats represents aggregated metrics.
type Stats struct {
	Total          int64         `json:"total"`
	Successes      int64         `json:"successes"`
	Failures       int64         `json:"failures"`
	ActiveUsers    int64         `json:"active_users"`
	PeakUsers      int64         `json:"peak_users"`
	MinLatency     time.Duration `json:"-"`
	MaxLatency     time.Duration `json:"-"`
	MeanLatency    time.Duration `json:"-"`
	P50Latency     time.Duration `json:"-"`
	P90Latency     time.Duration `json:"-"`
	P99Latency     time.Duration `json:"-"`
	Duration       time.Duration `json:"-"`
	RequestsPerSec float64       `json:"requests_per_sec"`

	// JSON-friendly millisecond fields.
	MinLatencyMs  float64 `json:"min_latency_ms"`
	MaxLatencyMs  float64 `json:"max_latency_ms"`
	MeanLatencyMs float64 `json:"mean_latency_ms"`
	P50LatencyMs  float64 `json:"p50_latency_ms"`
	P90LatencyMs  float64 `json:"p90_latency_ms"`
	P99LatencyMs  float64 `json:"p99_latency_ms"`
	DurationMs    float64 `json:"duration_ms"`

	Codes   map[int]int    `json:"codes,omitempty"`
	Reasons map[string]int `json:"failure_reasons,omitempty"`
}

func NewCollector() *Collector {
	// Track latencies from 1µs up to 60s with 3 significant figures.
	h := hdrhistogram.New(1, 60_000_000, 3)
	return &Collector{
		hist:    h,
		codes:   make(map[int]int64),
		reasons: make(map[string]int64),
		start:   time.Now(),
	}
}

// Start resets the reference time used for rate computation.
func (c *Collector) Start() {
	c.mu.Lock()
	c.start = time.Now()
	c.mu.Unlock()
}

// Elapsed returns the time since Start.
func (c *Collector) Elapsed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Since(c.start)
}

// Record records one finished request. Any code other than StatusOK counts
// as a failure and its reason is tallied.
func (c *Collector) Record(latency time.Duration, code int, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if latency > 0 {
		us := latency.Microseconds()
		if us < c.hist.LowestTrackableValue() {
			us = c.hist.LowestTrackableValue()
		}
		if us > c.hist.HighestTrackableValue() {
			us = c.hist.HighestTrackableValue()
		}
		_ = c.hist.RecordValue(us)
	}
	c.sumLatency += latency

	if c.minLatency == 0 || latency < c.minLatency {
		c.minLatency = latency
	}
	if latency > c.maxLatency {
		c.maxLatency = latency
	}

	c.codes[code]++
	if code == StatusOK {
		c.successes++
		return
	}
	c.failures++
	if reason == "" {
		reason = "unknown"
	}
	c.reasons[reason]++
}

// UserStarted and UserStopped track the number of running user loops.
func (c *Collector) UserStarted() {
	n := c.activeUsers.Add(1)
	for {
		peak := c.peakUsers.Load()
		if n <= peak || c.peakUsers.CompareAndSwap(peak, n) {
			return
		}
	}
}

func (c *Collector) UserStopped() {
	c.activeUsers.Add(-1)
}

// Stats computes and returns current aggregated statistics.
func (c *Collector) Stats(elapsed time.Duration) Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.successes + c.failures
	stats := Stats{
		Total:       total,
		Successes:   c.successes,
		Failures:    c.failures,
		ActiveUsers: c.activeUsers.Load(),
		PeakUsers:   c.peakUsers.Load(),
		MinLatency:  c.minLatency,
		MaxLatency:  c.maxLatency,
	}

	if total > 0 {
		stats.MeanLatency = time.Duration(int64(c.sumLatency) / total)
	}

	if c.hist.TotalCount() > 0 {
		stats.P50Latency = time.Duration(c.hist.ValueAtQuantile(50)) * time.Microsecond
		stats.P90Latency = time.Duration(c.hist.ValueAtQuantile(90)) * time.Microsecond
		stats.P99Latency = time.Duration(c.hist.ValueAtQuantile(99)) * time.Microsecond
	}

	stats.MinLatencyMs = toMillis(stats.MinLatency)
	stats.MaxLatencyMs = toMillis(stats.MaxLatency)
	stats.MeanLatencyMs = toMillis(stats.MeanLatency)
	stats.P50LatencyMs = toMillis(stats.P50Latency)
	stats.P90LatencyMs = toMillis(stats.P90Latency)
	stats.P99LatencyMs = toMillis(stats.P99Latency)

	stats.Duration = elapsed
	stats.DurationMs = toMillis(elapsed)
	if elapsed > 0 && total > 0 {
		stats.RequestsPerSec = float64(total) / elapsed.Seconds()
	}

	if len(c.codes) > 0 {
		stats.Codes = make(map[int]int, len(c.codes))
		for k, v := range c.codes {
			stats.Codes[k] = int(v)
		}
	}
	if len(c.reasons) > 0 {
		stats.Reasons = make(map[string]int, len(c.reasons))
		for k, v := range c.reasons {
			stats.Reasons[k] = int(v)
		}
	}

	return stats
}

func toMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
