package testutils

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/atomic"

	"github.com/Arun-Labana/logai-sdk/internal/logging"
)

type MockSink struct {
	Batches   [][]logging.Entry
	TargetIDs []string
	mu        sync.Mutex
	Err       error
	Delay     time.Duration
	Calls     int
	Closed    bool

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func (m *MockSink) Send(ctx context.Context, targetID string, batch []logging.Entry) error {
	n := m.inFlight.Inc()
	defer m.inFlight.Dec()
	for {
		seen := m.maxInFlight.Load()
		if n <= seen || m.maxInFlight.CompareAndSwap(seen, n) {
			break
		}
	}

	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls++
	if m.Err != nil {
		return m.Err
	}

	m.Batches = append(m.Batches, append([]logging.Entry(nil), batch...))
	m.TargetIDs = append(m.TargetIDs, targetID)
	return nil
}

func (m *MockSink) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed = true
	return nil
}

func (m *MockSink) GetBatches() [][]logging.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]logging.Entry(nil), m.Batches...)
}

func (m *MockSink) GetCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Calls
}

func (m *MockSink) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Closed
}

// InFlight is the number of Send calls currently running.
func (m *MockSink) InFlight() int {
	return int(m.inFlight.Load())
}

// MaxInFlight is the highest number of overlapping Send calls seen.
func (m *MockSink) MaxInFlight() int {
	return int(m.maxInFlight.Load())
}

// Factory returns a SinkFactory that always hands out m and counts calls.
func (m *MockSink) Factory(calls *atomic.Int32) logging.SinkFactory {
	return func(logging.Config) (logging.Sink, error) {
		if calls != nil {
			calls.Inc()
		}
		return m, nil
	}
}

type MockAppender struct {
	Events []logging.Event
	mu     sync.Mutex
}

func (m *MockAppender) Append(ev logging.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, ev)
}

func (m *MockAppender) GetEvents() []logging.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]logging.Event(nil), m.Events...)
}

// LogRecorder is a go-kit logger that keeps every record.
type LogRecorder struct {
	mu      sync.Mutex
	Records []map[string]interface{}
}

func (r *LogRecorder) Log(keyvals ...interface{}) error {
	record := make(map[string]interface{}, len(keyvals)/2)
	for i := 0; i+1 < len(keyvals); i += 2 {
		record[fmt.Sprint(keyvals[i])] = keyvals[i+1]
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.Records = append(r.Records, record)
	return nil
}

// WithLevel returns the records logged at lvl ("info", "warn", "error").
func (r *LogRecorder) WithLevel(lvl string) []map[string]interface{} {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []map[string]interface{}
	for _, rec := range r.Records {
		if v, ok := rec["level"]; ok && fmt.Sprint(v) == lvl {
			out = append(out, rec)
		}
	}
	return out
}

func CreateTempLogStructure(t *testing.T) string {
	tempDir := t.TempDir()

	structure := map[string]string{
		"default_pod-1_uid123/container-1/app.log":          "log content 1\nERROR line 2\n",
		"default_pod-1_uid123/container-2/app.log":          `{"level":"error","msg":"payment failed","trace_id":"t-9"}` + "\n",
		"kube-system_pod-2_uid456/container/app.log":        "log content 3\nWARN disk almost full\n",
		"default_pod-3_uid789/container/app.log":            "log content 4\n",
		"monitoring_pod-4_uid101/grafana/grafana.log":       "grafana starting\n",
		"monitoring_pod-4_uid101/prometheus/prometheus.log": "prometheus ready\n",
	}

	for path, content := range structure {
		fullPath := filepath.Join(tempDir, path)
		dir := filepath.Dir(fullPath)

		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatalf("Failed to create directory %s: %v", dir, err)
		}

		if err := os.WriteFile(fullPath, []byte(content), 0644); err != nil {
			t.Fatalf("Failed to write file %s: %v", fullPath, err)
		}
	}

	return tempDir
}
