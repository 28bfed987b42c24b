package batch

import (
	"time"

	"github.com/hashicorp/go-metrics"
)

// Monitor records shipping metrics in memory. A nil Monitor records nothing.
type Monitor struct {
	sink    *metrics.InmemSink
	metrics *metrics.Metrics
}

func NewMonitor(service string) *Monitor {
	sink := metrics.NewInmemSink(10*time.Second, time.Minute)
	conf := metrics.DefaultConfig(service)
	conf.EnableHostname = false
	conf.EnableHostnameLabel = false
	conf.EnableRuntimeMetrics = false
	conf.TimerGranularity = time.Millisecond

	m, _ := metrics.New(conf, sink)
	return &Monitor{sink: sink, metrics: m}
}

func (m *Monitor) Sink() *metrics.InmemSink {
	if m == nil {
		return nil
	}
	return m.sink
}

func (m *Monitor) incr(name string, n int) {
	if m == nil || m.metrics == nil {
		return
	}
	m.metrics.IncrCounter([]string{name}, float32(n))
}

func (m *Monitor) gauge(name string, v int) {
	if m == nil || m.metrics == nil {
		return
	}
	m.metrics.SetGauge([]string{name}, float32(v))
}

func (m *Monitor) since(name string, start time.Time) {
	if m == nil || m.metrics == nil {
		return
	}
	m.metrics.MeasureSince([]string{name}, start)
}
