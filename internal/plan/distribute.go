package plan

import (
	"fmt"
	"math/rand"
	"sort"
	"strings"

	"github.com/torosent/crowdbench/internal/schedule"
)

// SortedHosts returns a sorted copy of hosts, rejecting empty and duplicate names.
func SortedHosts(hosts []string) ([]string, error) {
	if len(hosts) == 0 {
		return nil, fmt.Errorf("at least one worker host is required")
	}
	sorted := append([]string(nil), hosts...)
	sort.Strings(sorted)
	for i, h := range sorted {
		if strings.TrimSpace(h) == "" {
			return nil, fmt.Errorf("worker host name cannot be empty")
		}
		if i > 0 && sorted[i-1] == h {
			return nil, fmt.Errorf("worker host %q is listed twice", h)
		}
	}
	return sorted, nil
}

// Distribute splits p across hosts. Each interval's delta is divided by
// magnitude: every worker gets |d|/n users and the first host in sorted
// order also takes the |d| mod n remainder, all with the sign of d. A worker
// never removes more users than it runs; removals it cannot cover are
// taken from the other workers in host order. Each worker receives, per
// action, a user id range as large as its peak count; ranges of one action
// are laid out contiguously from 0 in host order. The aggregate's Users
// field is set to the union of those ranges.
func Distribute(p *Plan, hosts []string) (map[string]Plan, error) {
	sorted, err := SortedHosts(hosts)
	if err != nil {
		return nil, err
	}
	n := len(sorted)

	parts := make(map[string]Plan, n)
	for _, h := range sorted {
		parts[h] = Plan{
			Intervals: append([]int(nil), p.Intervals...),
			Actions:   make(map[string][]int, len(p.Actions)),
			Users:     make(map[string]Range, len(p.Actions)),
		}
	}
	p.Users = make(map[string]Range, len(p.Actions))

	for _, action := range p.ActionNames() {
		shares := splitDeltas(p.Actions[action], n)
		next := 0
		for idx, h := range sorted {
			peak := schedule.Peak(shares[idx])
			parts[h].Actions[action] = shares[idx]
			parts[h].Users[action] = Range{next, next + peak}
			next += peak
		}
		p.Users[action] = Range{0, next}
	}
	return parts, nil
}

// splitDeltas returns one delta sequence per worker, indexed like the
// sorted host list.
func splitDeltas(deltas []int, n int) [][]int {
	shares := make([][]int, n)
	for w := range shares {
		shares[w] = make([]int, len(deltas))
	}
	active := make([]int, n)

	for k, d := range deltas {
		sign, mag := 1, d
		if d < 0 {
			sign, mag = -1, -d
		}
		short := 0
		for w := range shares {
			share := mag / n
			if w == 0 {
				share += mag % n
			}
			share *= sign
			if active[w]+share < 0 {
				short += active[w] + share
				share = -active[w]
			}
			shares[w][k] = share
			active[w] += share
		}
		for w := 0; short < 0 && w < n; w++ {
			take := min(active[w], -short)
			shares[w][k] -= take
			active[w] -= take
			short += take
		}
	}
	return shares
}

// Prepared is a validated, distributed test run ready to hand to workers.
type Prepared struct {
	RunID       string
	Hosts       []string
	Total       Plan
	Parts       map[string]Plan
	Description string
}

// Document returns the per-worker plan document.
func (p *Prepared) Document() Document {
	doc := make(Document, len(p.Parts))
	for h, part := range p.Parts {
		doc[h] = part
	}
	return doc
}

// Prepare normalizes, validates, distributes and describes def. Validation
// failures are returned as a ValidationError and nothing else is produced.
func Prepare(def Definition, hosts []string, rnd *rand.Rand, catalog ...string) (*Prepared, error) {
	total, err := Normalize(def, rnd)
	if err != nil {
		return nil, err
	}
	if err := total.Validate(catalog...); err != nil {
		return nil, err
	}
	sorted, err := SortedHosts(hosts)
	if err != nil {
		return nil, err
	}
	parts, err := Distribute(&total, sorted)
	if err != nil {
		return nil, err
	}
	return &Prepared{
		RunID:       NewRunID(),
		Hosts:       sorted,
		Total:       total,
		Parts:       parts,
		Description: Describe(total, parts, sorted),
	}, nil
}
