package batch

import (
	"github.com/go-kit/log"
)

type Option func(*options)

type options struct {
	logger  log.Logger
	monitor *Monitor
}

func WithLogger(logger log.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func WithMonitor(m *Monitor) Option {
	return func(o *options) {
		o.monitor = m
	}
}

func buildOptions(opts []Option) options {
	o := options{logger: log.NewNopLogger()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
