package monitor

import (
	"encoding/json"
	"strconv"

	"github.com/torosent/crowdbench/internal/ledger"
)

// NotFinished stands in for the finish timestamp of a run still going.
const NotFinished = "(not finished)"

// TotalLabel keys the merged series.
const TotalLabel = "total"

// Metric kinds accepted by the chart endpoint.
const (
	MetricAtomicOps     = "aops" // single requests per bucket
	MetricAtomicLatency = "avgl" // average single-request latency
	MetricOps           = "ops"  // whole-action iterations per bucket
	MetricLatency       = "avg"  // average whole-action latency
)

// Point is one chart bucket. Timestamp is the bucket offset in seconds from
// the run start, as a string.
type Point struct {
	Timestamp  string  `json:"timestamp"`
	Failed     float64 `json:"failed"`
	Passed     float64 `json:"passed"`
	Incomplete float64 `json:"incomplete"`
}

// Offset returns the bucket offset as an integer.
func (p Point) Offset() int {
	n, _ := strconv.Atoi(p.Timestamp)
	return n
}

// Chart is the chart payload of one worker, or of all of them once merged.
// It is encoded with the series under Label.
type Chart struct {
	Label    string
	Points   []Point
	Status   string
	Started  float64
	Finished *float64 // nil while the run is going
	Progress int
}

func (c Chart) MarshalJSON() ([]byte, error) {
	label := c.Label
	if label == "" {
		label = TotalLabel
	}
	points := c.Points
	if points == nil {
		points = []Point{}
	}
	var finished any = NotFinished
	if c.Finished != nil {
		finished = *c.Finished
	}
	return json.Marshal(map[string]any{
		label:      points,
		"status":   c.Status,
		"started":  c.Started,
		"finished": finished,
		"progress": c.Progress,
	})
}

// SummaryItem counts the rows sharing a reason.
type SummaryItem struct {
	Reason string `json:"reason"`
	Count  int    `json:"count"`
	Code   *int   `json:"code"`
}

// LogBundle is the recent log excerpt of one host.
type LogBundle struct {
	Host string `json:"host"`
	Logs Logs   `json:"logs"`
}

// Logs holds the tail of the monitoring service log and of the run log.
type Logs struct {
	Monitor string `json:"monitor"`
	TestRun string `json:"testrun"`
}

func summaryItems(counts []ledger.ReasonCount) []SummaryItem {
	out := make([]SummaryItem, 0, len(counts))
	for _, rc := range counts {
		if rc.Count == 0 {
			continue
		}
		out = append(out, SummaryItem{Reason: rc.Reason, Count: rc.Count, Code: rc.Code})
	}
	return out
}
