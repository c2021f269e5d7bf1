package monitor

import (
	"sort"
	"strconv"

	"github.com/torosent/crowdbench/internal/ledger"
)

// MergeCharts combines the charts of several workers. Buckets with the same
// offset are added together. The run is in progress while any worker is;
// it started at the earliest start and finished at the latest finish seen.
// Progress is the smallest one reported, or 0 once every worker finished.
func MergeCharts(charts []Chart) Chart {
	merged := Chart{Label: TotalLabel, Status: ledger.StatusFinished}
	sums := make(map[int]*Point)
	allFinished := true
	for i, c := range charts {
		for _, p := range c.Points {
			off := p.Offset()
			sum, ok := sums[off]
			if !ok {
				sum = &Point{Timestamp: strconv.Itoa(off)}
				sums[off] = sum
			}
			sum.Failed += p.Failed
			sum.Passed += p.Passed
			sum.Incomplete += p.Incomplete
		}
		if c.Status == ledger.StatusInProgress {
			merged.Status = ledger.StatusInProgress
		}
		if c.Started > 0 && (merged.Started == 0 || c.Started < merged.Started) {
			merged.Started = c.Started
		}
		if c.Finished != nil {
			if merged.Finished == nil || *c.Finished > *merged.Finished {
				finished := *c.Finished
				merged.Finished = &finished
			}
		} else {
			allFinished = false
		}
		if i == 0 || c.Progress < merged.Progress {
			merged.Progress = c.Progress
		}
	}
	if allFinished {
		merged.Progress = 0
	}

	offsets := make([]int, 0, len(sums))
	for off := range sums {
		offsets = append(offsets, off)
	}
	sort.Ints(offsets)
	merged.Points = make([]Point, 0, len(offsets))
	for _, off := range offsets {
		merged.Points = append(merged.Points, *sums[off])
	}
	return merged
}

// MergeSummaries adds up the counts of matching reasons, keeping the first
// code seen for each. The result is sorted by reason.
func MergeSummaries(summaries [][]SummaryItem) []SummaryItem {
	byReason := make(map[string]*SummaryItem)
	for _, summary := range summaries {
		for _, item := range summary {
			cur, ok := byReason[item.Reason]
			if !ok {
				cp := item
				byReason[item.Reason] = &cp
				continue
			}
			cur.Count += item.Count
		}
	}
	reasons := make([]string, 0, len(byReason))
	for r := range byReason {
		reasons = append(reasons, r)
	}
	sort.Strings(reasons)
	out := make([]SummaryItem, 0, len(reasons))
	for _, r := range reasons {
		out = append(out, *byReason[r])
	}
	return out
}

// MergeLogs lists the log excerpts of every host in host order.
func MergeLogs(bundles []LogBundle) []LogBundle {
	out := append([]LogBundle(nil), bundles...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Host < out[j].Host })
	return out
}
