package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/go-playground/validator/v10"
	"go.uber.org/atomic"
	"golang.org/x/time/rate"

	"github.com/Arun-Labana/logai-sdk/internal/logging"
	"github.com/Arun-Labana/logai-sdk/internal/logging/normalize"
	"github.com/Arun-Labana/logai-sdk/internal/logging/queue"
)

type State int32

const (
	StateStopped State = iota
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "stopped"
	}
}

type Stats struct {
	Accepted      uint64 `json:"accepted"`
	Dropped       uint64 `json:"dropped"`
	Sent          uint64 `json:"sent"`
	FailedBatches uint64 `json:"failed_batches"`
}

// run holds everything built by one Start and torn down by the next Stop.
type run struct {
	queue   *queue.Bounded[logging.Entry]
	sink    logging.Sink
	flusher *Flusher
	trigger *flushTrigger

	stopWorker context.CancelFunc
	abandon    context.CancelFunc
	done       chan struct{}
}

// Processor buffers entries in a bounded queue and ships them in batches.
// Append never blocks on the sink.
type Processor struct {
	cfg      logging.Config
	factory  logging.SinkFactory
	logger   log.Logger
	monitor  *Monitor
	validate *validator.Validate

	// lifecycle serializes Start and Stop.
	lifecycle sync.Mutex
	// ingest is read-held by Append and write-held on state changes, so no
	// entry is enqueued once Stop has begun.
	ingest  sync.RWMutex
	state   *atomic.Int32
	current *run

	counters     *counters
	pendingDrops *atomic.Uint64
	dropWarn     *rate.Limiter
}

func NewProcessor(cfg logging.Config, factory logging.SinkFactory, opts ...Option) *Processor {
	o := buildOptions(opts)
	return &Processor{
		cfg:          cfg.WithDefaults(),
		factory:      factory,
		logger:       o.logger,
		monitor:      o.monitor,
		validate:     validator.New(),
		state:        atomic.NewInt32(int32(StateStopped)),
		counters:     newCounters(),
		pendingDrops: atomic.NewUint64(0),
		dropWarn:     rate.NewLimiter(rate.Every(time.Second), 1),
	}
}

func (p *Processor) Start() {
	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()

	if p.State() != StateStopped {
		return
	}

	if err := p.checkConfig(); err != nil {
		level.Error(p.logger).Log("msg", "remote log shipping disabled", "err", err)
		return
	}

	sink, err := p.factory(p.cfg)
	if err != nil {
		level.Error(p.logger).Log("msg", "remote log shipping disabled", "err", fmt.Errorf("create sink: %w", err))
		return
	}

	q := queue.NewBounded[logging.Entry](p.cfg.QueueSize)
	workerCtx, stopWorker := context.WithCancel(context.Background())
	sendCtx, abandon := context.WithCancel(context.Background())

	r := &run{
		queue:      q,
		sink:       sink,
		flusher:    newFlusher(q, sink, p.cfg.TargetID, p.cfg.BatchSize, options{logger: p.logger, monitor: p.monitor}, p.counters),
		trigger:    newFlushTrigger(p.cfg.FlushInterval, p.cfg.BatchSize, q.Len),
		stopWorker: stopWorker,
		abandon:    abandon,
		done:       make(chan struct{}),
	}

	p.ingest.Lock()
	p.current = r
	p.state.Store(int32(StateRunning))
	p.ingest.Unlock()

	go func() {
		defer close(r.done)
		r.trigger.run(workerCtx, sendCtx, r.flusher.Flush)
	}()

	level.Info(p.logger).Log(
		"msg", "remote log shipping started",
		"endpoint", p.cfg.Endpoint,
		"target", p.cfg.TargetID,
		"batch_size", p.cfg.BatchSize,
		"flush_interval", p.cfg.FlushInterval,
		"queue_size", p.cfg.QueueSize,
	)
}

// Append filters, normalizes and enqueues ev. It is a no-op unless the
// processor is running.
func (p *Processor) Append(ev logging.Event) {
	if p.State() != StateRunning || !ev.Level.AtLeast(p.cfg.Threshold) {
		return
	}
	entry := normalize.Entry(ev, !p.cfg.ExcludeCallerData)

	p.ingest.RLock()
	defer p.ingest.RUnlock()

	r := p.current
	if r == nil || p.State() != StateRunning {
		return
	}
	if !r.queue.TryEnqueue(entry) {
		p.drop()
		return
	}
	p.counters.accepted.Inc()
	p.monitor.incr("entries.accepted", 1)
	r.trigger.notify(r.queue.Len())
}

func (p *Processor) drop() {
	p.counters.dropped.Inc()
	p.monitor.incr("entries.dropped", 1)
	p.pendingDrops.Inc()

	if p.dropWarn.Allow() {
		level.Warn(p.logger).Log(
			"msg", "dropping log entries",
			"dropped", p.pendingDrops.Swap(0),
			"err", logging.ErrQueueFull,
		)
	}
}

// Stop ships what is left in the queue and releases the sink. It waits at
// most ShutdownTimeout for an in-flight batch before abandoning it.
func (p *Processor) Stop() {
	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()

	if p.State() != StateRunning {
		return
	}

	p.ingest.Lock()
	p.state.Store(int32(StateStopping))
	r := p.current
	p.ingest.Unlock()

	grace, cancel := context.WithTimeout(context.Background(), p.cfg.ShutdownTimeout)
	defer cancel()

	r.stopWorker()
	select {
	case <-r.done:
		p.drain(grace, r)
	case <-grace.Done():
		r.abandon()
		level.Error(p.logger).Log(
			"msg", "abandoning in-flight batch",
			"entries_left", r.queue.Len(),
			"grace", p.cfg.ShutdownTimeout,
			"err", logging.ErrShutdownTimeout,
		)
	}
	r.abandon()

	if closer, ok := r.sink.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			level.Warn(p.logger).Log("msg", "failed to close sink", "err", err)
		}
	}

	p.ingest.Lock()
	p.current = nil
	p.state.Store(int32(StateStopped))
	p.ingest.Unlock()

	level.Info(p.logger).Log("msg", "remote log shipping stopped")
}

func (p *Processor) drain(ctx context.Context, r *run) {
	for r.queue.Len() > 0 {
		if ctx.Err() != nil {
			level.Error(p.logger).Log(
				"msg", "shutdown grace elapsed during final flush",
				"entries_left", r.queue.Len(),
				"err", logging.ErrShutdownTimeout,
			)
			return
		}
		if r.flusher.Flush(ctx) == 0 {
			return
		}
	}
}

func (p *Processor) checkConfig() error {
	if p.factory == nil {
		return fmt.Errorf("%w: no sink factory", logging.ErrInvalidConfig)
	}

	err := p.validate.Struct(p.cfg)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", logging.ErrInvalidConfig, err)
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", logging.ErrInvalidConfig, strings.Join(fields, ", "))
}

func (p *Processor) State() State {
	return State(p.state.Load())
}

// Len is the number of queued entries, or 0 if no queue exists.
func (p *Processor) Len() int {
	p.ingest.RLock()
	defer p.ingest.RUnlock()

	if p.current == nil {
		return 0
	}
	return p.current.queue.Len()
}

func (p *Processor) Cap() int {
	p.ingest.RLock()
	defer p.ingest.RUnlock()

	if p.current == nil {
		return 0
	}
	return p.current.queue.Cap()
}

func (p *Processor) Stats() Stats {
	return Stats{
		Accepted:      p.counters.accepted.Load(),
		Dropped:       p.counters.dropped.Load(),
		Sent:          p.counters.sent.Load(),
		FailedBatches: p.counters.failed.Load(),
	}
}
