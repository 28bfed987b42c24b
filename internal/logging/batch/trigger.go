package batch

import (
	"context"
	"time"
)

// flushTrigger turns ticks and threshold kicks into flushes on a single
// goroutine. Kicks coalesce in a one-slot channel.
type flushTrigger struct {
	interval  time.Duration
	batchSize int
	depth     func() int
	kick      chan struct{}
}

func newFlushTrigger(interval time.Duration, batchSize int, depth func() int) *flushTrigger {
	return &flushTrigger{
		interval:  interval,
		batchSize: batchSize,
		depth:     depth,
		kick:      make(chan struct{}, 1),
	}
}

// notify is called by producers with the queue depth after an enqueue.
func (t *flushTrigger) notify(depth int) {
	if depth < t.batchSize {
		return
	}
	select {
	case t.kick <- struct{}{}:
	default:
	}
}

// run returns once ctx is done. Sends use sendCtx, which outlives ctx so an
// in-flight batch can finish during shutdown.
func (t *flushTrigger) run(ctx, sendCtx context.Context, flush func(context.Context) int) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			flush(sendCtx)
		case <-t.kick:
		}

		// Threshold flushes only ship full batches; a partial tail waits
		// for the next tick.
		for ctx.Err() == nil && t.depth() >= t.batchSize {
			if flush(sendCtx) == 0 {
				break
			}
		}
	}
}
