package schedule

import (
	"fmt"
	"strings"
)

// Entry is one batch of users launched together and cancelled together.
// Start and Duration are in seconds relative to the run start.
type Entry struct {
	Start    int    `json:"start"`
	Duration int    `json:"duration"`
	Users    int    `json:"users"`
	Action   string `json:"action"`
}

// End returns the offset at which the batch is cancelled.
func (e Entry) End() int {
	return e.Start + e.Duration
}

// Result is the compiled form of one action's delta sequence.
type Result struct {
	Duration    int     `json:"duration"`
	Entries     []Entry `json:"schedule"`
	Description string  `json:"description"`
}

// Compile packs the deltas of one action into batches. Deltas and intervals are
// aligned by index; extra elements of the longer slice are ignored. Compile does
// not validate its input: intervals where the cumulative count is negative are
// treated as empty.
func Compile(action string, deltas, intervals []int) Result {
	n := len(deltas)
	if len(intervals) < n {
		n = len(intervals)
	}

	res := Result{Duration: Sum(intervals)}
	remaining := Cumulative(deltas[:n])

	var b strings.Builder
	fmt.Fprintf(&b, "#%s:\n", action)

	offset := 0
	for i := 0; i < n; i++ {
		if remaining[i] > 0 {
			fmt.Fprintf(&b, "%d-th second: need %d more user(s) doing %s:\n", offset, remaining[i], action)
			for remaining[i] > 0 {
				users := remaining[i]
				end := i
				for end < n && remaining[end] > 0 {
					if remaining[end] < users {
						users = remaining[end]
					}
					end++
				}
				duration := Sum(intervals[i:end])
				res.Entries = append(res.Entries, Entry{
					Start:    offset,
					Duration: duration,
					Users:    users,
					Action:   action,
				})
				fmt.Fprintf(&b, "\t- scheduling %d user(s) to act for %d seconds\n", users, duration)
				for k := i; k < end; k++ {
					remaining[k] -= users
				}
			}
		} else if deltas[i] < 0 {
			fmt.Fprintf(&b, "%d-th second: stopping %d user(s) doing %s\n", offset, -deltas[i], action)
		}
		offset += intervals[i]
	}

	res.Description = b.String()
	return res
}

// Replay returns the number of users that the entries keep active during each
// interval.
func Replay(entries []Entry, intervals []int) []int {
	active := make([]int, len(intervals))
	offset := 0
	for i, d := range intervals {
		for _, e := range entries {
			if e.Start <= offset && offset < e.End() {
				active[i] += e.Users
			}
		}
		offset += d
	}
	return active
}

// Cumulative returns the running sums of deltas.
func Cumulative(deltas []int) []int {
	counts := make([]int, len(deltas))
	total := 0
	for i, d := range deltas {
		total += d
		counts[i] = total
	}
	return counts
}

// Peak returns the highest cumulative count reached by deltas, or 0.
func Peak(deltas []int) int {
	peak := 0
	for _, c := range Cumulative(deltas) {
		if c > peak {
			peak = c
		}
	}
	return peak
}

// Sum adds up values.
func Sum(values []int) int {
	total := 0
	for _, v := range values {
		total += v
	}
	return total
}
