package crowd

import (
	"context"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/torosent/crowdbench/internal/metrics"
)

// DefaultConcurrency caps simultaneously running user loops per action process.
const DefaultConcurrency = 1000

// Iteration runs one pass of an action for the synthetic user id. It is
// called repeatedly, with no delay, until ctx is done.
type Iteration func(ctx context.Context, id int)

// Options configure the Executor.
type Options struct {
	Action           string        // action name used in logs and progress lines
	Concurrency      int           // user loops allowed to run at once
	Grace            time.Duration // wait for in-flight iterations after the run stops
	Unit             time.Duration // length of one schedule second
	Collector        *metrics.Collector
	Logger           *zap.Logger
	Progress         io.Writer // progress lines; nil disables them
	ProgressInterval time.Duration
}

func (o *Options) normalize() {
	if o.Concurrency <= 0 {
		o.Concurrency = DefaultConcurrency
	}
	if o.Grace < 0 {
		o.Grace = 0
	}
	if o.Unit <= 0 {
		o.Unit = time.Second
	}
	if o.Collector == nil {
		o.Collector = metrics.NewCollector()
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.ProgressInterval <= 0 {
		o.ProgressInterval = 10 * time.Second
	}
}
