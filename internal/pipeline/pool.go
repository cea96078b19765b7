// Package pipeline provides the bounded worker pool used for every
// concurrent remote fetch phase: items are all submitted up front, a fixed
// number of workers drain the queue, and the caller joins with a timeout
// before collecting whatever completed.
package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// DefaultWorkers is the pool width used when none is configured.
	DefaultWorkers = 20
	// DefaultJoinTimeout bounds the wait for workers to drain after all
	// items are submitted. Workers still running after this are abandoned,
	// not killed.
	DefaultJoinTimeout = 60 * time.Second

	progressInterval = 100 * time.Millisecond
)

// Result pairs one item's outcome with its error, if any. Failed items do
// not abort the batch; callers inspect Err per result.
type Result[R any] struct {
	Value R
	Err   error
}

// Progress receives periodic (remaining, total) updates while a run drains.
type Progress func(remaining, total int)

// Options tunes a single Run invocation.
type Options struct {
	Workers     int
	JoinTimeout time.Duration
	Logger      *slog.Logger
	OnProgress  Progress
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = DefaultWorkers
	}
	if o.JoinTimeout <= 0 {
		o.JoinTimeout = DefaultJoinTimeout
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Run fans items out over a bounded worker pool and returns the collected
// results. Completion order is unrelated to submission order: results must
// carry their own identity.
//
// The queue is closed once every item is enqueued; each worker exits when
// the queue drains. If workers have not exited within JoinTimeout they are
// abandoned with a warning and Run returns the results gathered so far.
func Run[T, R any](ctx context.Context, items []T, worker func(context.Context, T) (R, error), opts Options) []Result[R] {
	opts = opts.withDefaults()
	total := len(items)
	if total == 0 {
		return nil
	}

	queue := make(chan T, total)
	results := make(chan Result[R], total)
	var completed atomic.Int64

	var wg sync.WaitGroup
	for i := 0; i < opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range queue {
				value, err := worker(ctx, item)
				results <- Result[R]{Value: value, Err: err}
				completed.Add(1)
			}
		}()
	}

	for _, item := range items {
		queue <- item
	}
	close(queue)

	joined := make(chan struct{})
	go func() {
		wg.Wait()
		close(joined)
	}()

	if opts.OnProgress != nil {
		opts.OnProgress(total, total)
	}
	ticker := time.NewTicker(progressInterval)
	defer ticker.Stop()

	deadline := time.NewTimer(opts.JoinTimeout)
	defer deadline.Stop()

wait:
	for {
		select {
		case <-joined:
			break wait
		case <-ticker.C:
			if opts.OnProgress != nil {
				opts.OnProgress(total-int(completed.Load()), total)
			}
		case <-deadline.C:
			opts.Logger.Warn("pipeline join timeout, abandoning workers",
				slog.Int("workers", opts.Workers),
				slog.Int("completed", int(completed.Load())),
				slog.Int("total", total),
			)
			break wait
		}
	}

	if opts.OnProgress != nil {
		opts.OnProgress(total-int(completed.Load()), total)
	}

	out := make([]Result[R], 0, total)
	for {
		select {
		case r := <-results:
			out = append(out, r)
		default:
			return out
		}
	}
}
