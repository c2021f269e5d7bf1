package crowd

import (
	"sort"

	"github.com/torosent/crowdbench/internal/plan"
	"github.com/torosent/crowdbench/internal/schedule"
)

// idPool hands out the synthetic user ids of a worker's range. An id is held
// by exactly one batch at a time and returns to the pool when the batch ends.
type idPool struct {
	ids chan int
}

func newIDPool(r plan.Range) *idPool {
	p := &idPool{ids: make(chan int, r.Len())}
	for id := r.Start(); id < r.End(); id++ {
		p.ids <- id
	}
	return p
}

// take returns up to n free ids without blocking.
func (p *idPool) take(n int) []int {
	ids := make([]int, 0, n)
	for len(ids) < n {
		select {
		case id := <-p.ids:
			ids = append(ids, id)
		default:
			return ids
		}
	}
	return ids
}

func (p *idPool) put(ids []int) {
	for _, id := range ids {
		select {
		case p.ids <- id:
		default:
		}
	}
}

// peakUsers returns the largest number of users the entries keep active at
// once. A batch ending at t no longer overlaps a batch starting at t.
func peakUsers(entries []schedule.Entry) int {
	type event struct{ at, delta int }
	events := make([]event, 0, 2*len(entries))
	for _, e := range entries {
		events = append(events, event{e.Start, e.Users}, event{e.End(), -e.Users})
	}
	sort.Slice(events, func(i, j int) bool {
		if events[i].at != events[j].at {
			return events[i].at < events[j].at
		}
		return events[i].delta < events[j].delta
	})
	peak, active := 0, 0
	for _, ev := range events {
		active += ev.delta
		if active > peak {
			peak = active
		}
	}
	return peak
}
