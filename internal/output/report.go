package output

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/torosent/crowdbench/internal/metrics"
)

// PrintReport writes the end-of-run summary of one action process.
func PrintReport(w io.Writer, action string, stats metrics.Stats) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintf(tw, "\n%s results\n", action)
	fmt.Fprintf(tw, "requests\t%d\t(%d passed, %d failed)\n", stats.Total, stats.Successes, stats.Failures)
	fmt.Fprintf(tw, "peak users\t%d\t\n", stats.PeakUsers)
	fmt.Fprintf(tw, "duration\t%s\t(%.2f req/s)\n", stats.Duration.Round(time.Millisecond), stats.RequestsPerSec)
	fmt.Fprintf(tw, "latency\tmin %s\tmean %s\tmax %s\n", stats.MinLatency, stats.MeanLatency, stats.MaxLatency)
	fmt.Fprintf(tw, "\tp50 %s\tp90 %s\tp99 %s\n", stats.P50Latency, stats.P90Latency, stats.P99Latency)

	for _, row := range metrics.FlattenCodes(stats.Codes) {
		fmt.Fprintf(tw, "code %d\t%d\t\n", row.Code, row.Count)
	}

	reasons := make([]string, 0, len(stats.Reasons))
	for reason := range stats.Reasons {
		reasons = append(reasons, reason)
	}
	sort.Slice(reasons, func(i, j int) bool {
		ci, cj := stats.Reasons[reasons[i]], stats.Reasons[reasons[j]]
		return ci > cj || (ci == cj && reasons[i] < reasons[j])
	})
	for _, reason := range reasons {
		fmt.Fprintf(tw, "failed: %s\t%d\t\n", reason, stats.Reasons[reason])
	}
}

// PrintJSONReport outputs a JSON-formatted report.
func PrintJSONReport(w io.Writer, action string, stats metrics.Stats) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		Action string `json:"action"`
		metrics.Stats
	}{Action: action, Stats: stats})
}
