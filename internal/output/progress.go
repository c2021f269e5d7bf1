package output

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/torosent/crowdbench/internal/metrics"
)

// Progress writes a snapshot line for one action every interval until
// stopped.
type Progress struct {
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// StartProgress begins writing snapshots of collector to w.
func StartProgress(action string, collector *metrics.Collector, interval time.Duration, w io.Writer) *Progress {
	if interval <= 0 {
		interval = time.Second
	}
	p := &Progress{stop: make(chan struct{}), done: make(chan struct{})}
	go func() {
		defer close(p.done)
		tick := time.NewTicker(interval)
		defer tick.Stop()
		for {
			select {
			case <-p.stop:
				return
			case <-tick.C:
				fmt.Fprintln(w, FormatProgress(action, collector.Stats(collector.Elapsed())))
			}
		}
	}()
	return p
}

// Stop ends the snapshots and waits for the last write. Safe to call twice.
func (p *Progress) Stop() {
	p.once.Do(func() { close(p.stop) })
	<-p.done
}

// FormatProgress renders one snapshot line.
func FormatProgress(action string, stats metrics.Stats) string {
	return fmt.Sprintf("%s | users %d | requests %d | passed %d | failed %d | %.1f req/s | p99 %.1fms",
		action, stats.ActiveUsers, stats.Total, stats.Successes, stats.Failures, stats.RequestsPerSec, stats.P99LatencyMs)
}
