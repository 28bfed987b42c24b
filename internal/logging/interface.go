package logging

import (
	"context"
	"time"
)

// Appender is what host adapters (zap, zerolog, file tailer, HTTP ingest)
// hand their events to. Append must never block on I/O.
type Appender interface {
	Append(event Event)
}

// Sink delivers one batch to the remote store. A non-nil error means the
// whole batch failed; callers do not retry.
type Sink interface {
	Send(ctx context.Context, targetID string, batch []Entry) error
}

// SinkFactory builds a Sink from the validated configuration.
type SinkFactory func(cfg Config) (Sink, error)

const (
	DefaultBatchSize       = 50
	DefaultFlushInterval   = 5 * time.Second
	DefaultQueueSize       = 5000
	DefaultShutdownTimeout = 10 * time.Second
)

type Config struct {
	Endpoint   string `koanf:"endpoint" validate:"required"`
	Credential string `koanf:"credential" validate:"required"`
	TargetID   string `koanf:"target_id" validate:"required"`

	// NodeName identifies the host for sinks that label by node.
	NodeName string `koanf:"node_name"`

	Threshold         Level         `koanf:"threshold"`
	BatchSize         int           `koanf:"batch_size" validate:"gte=0"`
	FlushInterval     time.Duration `koanf:"flush_interval" validate:"gte=0"`
	QueueSize         int           `koanf:"queue_size" validate:"gte=0"`
	ExcludeCallerData bool          `koanf:"exclude_caller_data"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout" validate:"gte=0"`
}

func DefaultConfig() Config {
	return Config{
		Threshold:       LevelWarn,
		BatchSize:       DefaultBatchSize,
		FlushInterval:   DefaultFlushInterval,
		QueueSize:       DefaultQueueSize,
		ShutdownTimeout: DefaultShutdownTimeout,
	}
}

// WithDefaults fills the zero-valued threshold, sizes and durations.
func (c Config) WithDefaults() Config {
	if c.Threshold == LevelUnset {
		c.Threshold = LevelWarn
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = DefaultFlushInterval
	}
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}
	return c
}
