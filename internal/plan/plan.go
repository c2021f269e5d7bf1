// Package plan turns a test-run definition into per-worker load plans.
//
// A definition is authored by a person: per-step durations plus, for every
// action, either fixed user-count deltas or random ranges. [Normalize] draws
// the random values, [Plan.Validate] rejects plans that would drive a count
// negative, [Distribute] splits the load across the worker set and [Describe]
// renders the whole thing as audit text.
package plan

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/torosent/crowdbench/internal/schedule"
)

// Range is a half-open range of synthetic user ids, [Range[0], Range[1]).
type Range [2]int

func (r Range) Start() int { return r[0] }
func (r Range) End() int   { return r[1] }

// Len returns the number of ids in the range.
func (r Range) Len() int {
	if r[1] < r[0] {
		return 0
	}
	return r[1] - r[0]
}

// Plan is a load plan: interval durations in seconds and, per action, one
// signed user-count delta per interval. Worker plans additionally carry the
// user id range assigned to each action.
type Plan struct {
	Intervals []int            `json:"intervals"`
	Actions   map[string][]int `json:"actions"`
	Users     map[string]Range `json:"users"`
}

// ActionNames returns the plan's actions in sorted order.
func (p Plan) ActionNames() []string {
	names := make([]string, 0, len(p.Actions))
	for name := range p.Actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Duration returns the total plan length in seconds.
func (p Plan) Duration() int {
	return schedule.Sum(p.Intervals)
}

// Compile compiles the schedule of one action.
func (p Plan) Compile(action string) schedule.Result {
	return schedule.Compile(action, p.Actions[action], p.Intervals)
}

// ValidationError lists every problem found in a plan.
type ValidationError struct {
	issues []string
}

func (e ValidationError) Error() string {
	if len(e.issues) == 0 {
		return "plan validation failed"
	}
	return fmt.Sprintf("plan validation failed: %s", strings.Join(e.issues, "; "))
}

// Issues returns the human-readable messages.
func (e ValidationError) Issues() []string {
	return append([]string(nil), e.issues...)
}

// Validate checks interval durations, delta alignment and that no action ever
// has a negative number of active users. When catalog is non-empty every
// action must be registered in it.
func (p Plan) Validate(catalog ...string) error {
	var issues []string

	if len(p.Intervals) == 0 {
		issues = append(issues, "at least one interval is required")
	}
	for i, d := range p.Intervals {
		if d <= 0 {
			issues = append(issues, fmt.Sprintf("interval #%d has non-positive duration %d", i+1, d))
		}
	}
	if len(p.Actions) == 0 {
		issues = append(issues, "at least one action is required")
	}

	known := make(map[string]bool, len(catalog))
	for _, name := range catalog {
		known[name] = true
	}

	for _, action := range p.ActionNames() {
		deltas := p.Actions[action]
		if len(catalog) > 0 && !known[action] {
			issues = append(issues, fmt.Sprintf("action %q is not registered", action))
		}
		if len(deltas) != len(p.Intervals) {
			issues = append(issues, fmt.Sprintf("action %s: expected %d deltas, got %d", action, len(p.Intervals), len(deltas)))
			continue
		}
		offset := 0
		for i, count := range schedule.Cumulative(deltas) {
			if count < 0 {
				issues = append(issues, fmt.Sprintf("got negative users count (=%d) for action %s at %d-th second", count, action, offset))
			}
			offset += p.Intervals[i]
		}
	}

	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}
	return nil
}

// Document is the plan file handed to workers, keyed by worker name.
type Document map[string]Plan

// Worker returns the plan of one worker.
func (d Document) Worker(name string) (Plan, error) {
	p, ok := d[name]
	if !ok {
		return Plan{}, fmt.Errorf("worker %q not found in plan document", name)
	}
	return p, nil
}

// Total sums every worker's share back into the aggregate plan. User ranges
// are merged into the span covering all workers.
func (d Document) Total() Plan {
	total := Plan{Actions: make(map[string][]int), Users: make(map[string]Range)}
	for _, part := range d {
		if total.Intervals == nil {
			total.Intervals = append([]int(nil), part.Intervals...)
		}
		for name, deltas := range part.Actions {
			sum := total.Actions[name]
			if len(sum) < len(deltas) {
				sum = append(sum, make([]int, len(deltas)-len(sum))...)
			}
			for i, v := range deltas {
				sum[i] += v
			}
			total.Actions[name] = sum
		}
		for name, r := range part.Users {
			cur, ok := total.Users[name]
			if !ok {
				total.Users[name] = r
				continue
			}
			total.Users[name] = Range{min(cur.Start(), r.Start()), max(cur.End(), r.End())}
		}
	}
	return total
}

// WriteDocument stores doc as indented JSON.
func WriteDocument(path string, doc Document) error {
	data, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		return fmt.Errorf("encode plan document: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write plan document: %w", err)
	}
	return nil
}

// ReadDocument loads a plan document written by WriteDocument.
func ReadDocument(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan document: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode plan document: %w", err)
	}
	return doc, nil
}

// NewRunID returns a sortable, unique test run identifier.
func NewRunID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulid.DefaultEntropy()).String()
}
