package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"
	"go.uber.org/atomic"

	"github.com/Arun-Labana/logai-sdk/internal/logging"
	"github.com/Arun-Labana/logai-sdk/internal/logging/queue"
)

type counters struct {
	accepted *atomic.Uint64
	dropped  *atomic.Uint64
	sent     *atomic.Uint64
	failed   *atomic.Uint64
}

func newCounters() *counters {
	return &counters{
		accepted: atomic.NewUint64(0),
		dropped:  atomic.NewUint64(0),
		sent:     atomic.NewUint64(0),
		failed:   atomic.NewUint64(0),
	}
}

// Flusher moves one batch at a time from the queue to the sink. Flushes
// never overlap: a caller waits for the lane to be free.
type Flusher struct {
	queue     *queue.Bounded[logging.Entry]
	sink      logging.Sink
	targetID  string
	batchSize int

	lane     chan struct{}
	logger   log.Logger
	monitor  *Monitor
	counters *counters
}

func NewFlusher(q *queue.Bounded[logging.Entry], sink logging.Sink, targetID string, batchSize int, opts ...Option) *Flusher {
	return newFlusher(q, sink, targetID, batchSize, buildOptions(opts), newCounters())
}

func newFlusher(q *queue.Bounded[logging.Entry], sink logging.Sink, targetID string, batchSize int, o options, c *counters) *Flusher {
	if batchSize <= 0 {
		batchSize = logging.DefaultBatchSize
	}
	return &Flusher{
		queue:     q,
		sink:      sink,
		targetID:  targetID,
		batchSize: batchSize,
		lane:      make(chan struct{}, 1),
		logger:    o.logger,
		monitor:   o.monitor,
		counters:  c,
	}
}

// Flush sends at most one batch and returns how many entries it took off
// the queue. An empty queue means no sink call. A failed batch is reported
// and discarded. If ctx ends while waiting for the lane, Flush returns 0.
func (f *Flusher) Flush(ctx context.Context) int {
	select {
	case f.lane <- struct{}{}:
	case <-ctx.Done():
		return 0
	}
	defer func() { <-f.lane }()

	batch := f.queue.DrainUpTo(f.batchSize)
	f.monitor.gauge("queue.depth", f.queue.Len())
	if len(batch) == 0 {
		return 0
	}

	batchID := uuid.NewString()
	start := time.Now()
	err := f.send(ctx, batch)
	f.monitor.since("flush.duration", start)

	if err != nil {
		f.counters.failed.Inc()
		f.monitor.incr("batches.failed", 1)
		level.Error(f.logger).Log(
			"msg", "dropping batch after failed send",
			"batch_id", batchID,
			"size", len(batch),
			"err", &logging.SendError{BatchID: batchID, BatchSize: len(batch), Err: err},
		)
		return len(batch)
	}

	f.counters.sent.Add(uint64(len(batch)))
	f.monitor.incr("batches.sent", 1)
	level.Debug(f.logger).Log("msg", "batch sent", "batch_id", batchID, "size", len(batch), "took", time.Since(start))
	return len(batch)
}

func (f *Flusher) send(ctx context.Context, batch []logging.Entry) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sink panic: %v", r)
		}
	}()
	return f.sink.Send(ctx, f.targetID, batch)
}
