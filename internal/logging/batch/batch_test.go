package batch

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/Arun-Labana/logai-sdk/internal/logging"
	"github.com/Arun-Labana/logai-sdk/internal/testutils"
)

func testConfig() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Endpoint = "https://example.supabase.co"
	cfg.Credential = "service-key"
	cfg.TargetID = "app-1"
	return cfg
}

func warnEvent(msg string) logging.Event {
	return logging.Event{Time: time.Now(), Level: logging.LevelWarn, Message: msg}
}

func TestProcessor_ThresholdThenPeriodic(t *testing.T) {
	sink := &testutils.MockSink{}
	cfg := testConfig()
	cfg.BatchSize = 50
	cfg.FlushInterval = 400 * time.Millisecond

	p := NewProcessor(cfg, sink.Factory(nil))
	p.Start()
	defer p.Stop()

	for i := 0; i < 60; i++ {
		p.Append(warnEvent(fmt.Sprintf("e%d", i)))
	}

	require.Eventually(t, func() bool { return len(sink.GetBatches()) == 1 }, 200*time.Millisecond, 5*time.Millisecond)
	assert.Len(t, sink.GetBatches()[0], 50)
	assert.Equal(t, 10, p.Len())

	require.Eventually(t, func() bool { return len(sink.GetBatches()) == 2 }, 2*time.Second, 10*time.Millisecond)
	batches := sink.GetBatches()
	assert.Len(t, batches[1], 10)
	assert.Equal(t, "e50", batches[1][0].Message)
	assert.Equal(t, 0, p.Len())
}

func TestProcessor_StopFlushesRemaining(t *testing.T) {
	sink := &testutils.MockSink{}
	cfg := testConfig()
	cfg.FlushInterval = time.Hour

	p := NewProcessor(cfg, sink.Factory(nil))
	p.Start()

	for i := 0; i < 7; i++ {
		p.Append(warnEvent(fmt.Sprintf("e%d", i)))
	}
	assert.Equal(t, 7, p.Len())

	p.Stop()

	assert.Equal(t, StateStopped, p.State())
	batches := sink.GetBatches()
	require.Len(t, batches, 1)
	assert.Len(t, batches[0], 7)
	assert.True(t, sink.IsClosed())
	assert.Equal(t, uint64(7), p.Stats().Sent)
}

func TestProcessor_StopDrainsSeveralBatches(t *testing.T) {
	sink := &testutils.MockSink{}
	cfg := testConfig()
	cfg.BatchSize = 50
	cfg.FlushInterval = time.Hour

	p := NewProcessor(cfg, sink.Factory(nil))
	p.Start()
	for i := 0; i < 49; i++ {
		p.Append(warnEvent("x"))
	}
	for i := 0; i < 49; i++ {
		p.Append(warnEvent("y"))
	}
	p.Stop()

	total := 0
	for _, b := range sink.GetBatches() {
		assert.LessOrEqual(t, len(b), 50)
		total += len(b)
	}
	assert.Equal(t, 98, total)
}

func TestProcessor_FailingSinkDiscardsBatch(t *testing.T) {
	sink := &testutils.MockSink{Err: errors.New("401 unauthorized")}
	logs := &testutils.LogRecorder{}
	cfg := testConfig()
	cfg.FlushInterval = 50 * time.Millisecond

	p := NewProcessor(cfg, sink.Factory(nil), WithLogger(logs))
	p.Start()
	defer p.Stop()

	for i := 0; i < 5; i++ {
		p.Append(warnEvent("lost"))
	}

	require.Eventually(t, func() bool { return sink.GetCalls() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, p.Len())
	assert.Len(t, logs.WithLevel("error"), 1)
	assert.Equal(t, uint64(1), p.Stats().FailedBatches)
}

func TestProcessor_MissingCredentialStaysStopped(t *testing.T) {
	sink := &testutils.MockSink{}
	logs := &testutils.LogRecorder{}
	calls := atomic.NewInt32(0)
	cfg := testConfig()
	cfg.Credential = ""

	p := NewProcessor(cfg, sink.Factory(calls), WithLogger(logs))
	p.Start()

	assert.Equal(t, StateStopped, p.State())
	assert.Equal(t, int32(0), calls.Load())

	p.Append(warnEvent("ignored"))
	assert.Equal(t, 0, p.Len())
	assert.Equal(t, uint64(0), p.Stats().Accepted)

	errs := logs.WithLevel("error")
	require.Len(t, errs, 1)
	err, ok := errs[0]["err"].(error)
	require.True(t, ok)
	assert.ErrorIs(t, err, logging.ErrInvalidConfig)
	assert.Contains(t, err.Error(), "Credential")
	assert.NotContains(t, fmt.Sprint(logs.Records), "service-key")

	// Stop on a processor that never started is a no-op.
	p.Stop()
	assert.Equal(t, StateStopped, p.State())
}

func TestProcessor_SinkFactoryFailure(t *testing.T) {
	logs := &testutils.LogRecorder{}
	p := NewProcessor(testConfig(), func(logging.Config) (logging.Sink, error) {
		return nil, errors.New("no route to host")
	}, WithLogger(logs))

	p.Start()

	assert.Equal(t, StateStopped, p.State())
	assert.Len(t, logs.WithLevel("error"), 1)
}

func TestProcessor_BelowThresholdIgnored(t *testing.T) {
	sink := &testutils.MockSink{}
	cfg := testConfig()
	cfg.FlushInterval = time.Hour

	p := NewProcessor(cfg, sink.Factory(nil))
	p.Start()
	defer p.Stop()

	p.Append(logging.Event{Level: logging.LevelInfo, Message: "chatty"})
	p.Append(logging.Event{Level: logging.LevelDebug, Message: "chattier"})
	p.Append(logging.Event{Level: logging.LevelError, Message: "kept"})

	assert.Equal(t, 1, p.Len())
}

func TestProcessor_LiteralConfigUsesDefaults(t *testing.T) {
	sink := &testutils.MockSink{}
	cfg := logging.Config{Endpoint: "https://example.supabase.co", Credential: "service-key", TargetID: "app-1"}

	p := NewProcessor(cfg, sink.Factory(nil))
	p.Start()
	require.Equal(t, StateRunning, p.State())

	p.Append(logging.Event{Level: logging.LevelDebug, Message: "debug"})
	p.Append(logging.Event{Level: logging.LevelInfo, Message: "info"})
	p.Append(logging.Event{Message: "no level"})
	assert.Equal(t, 0, p.Len())

	p.Append(logging.Event{
		Level:   logging.LevelWarn,
		Message: "kept",
		Caller:  logging.Caller{File: "billing/charge.go", Line: 42, Function: "billing.Charge"},
	})
	assert.Equal(t, 1, p.Len())

	p.Stop()
	batches := sink.GetBatches()
	require.Len(t, batches, 1)
	require.Len(t, batches[0], 1)
	assert.Equal(t, "billing/charge.go", batches[0][0].FileName)
	assert.Equal(t, 42, batches[0][0].LineNumber)
}

func TestProcessor_ExcludeCallerData(t *testing.T) {
	sink := &testutils.MockSink{}
	cfg := testConfig()
	cfg.ExcludeCallerData = true

	p := NewProcessor(cfg, sink.Factory(nil))
	p.Start()
	p.Append(logging.Event{
		Level:   logging.LevelError,
		Message: "no location",
		Caller:  logging.Caller{File: "billing/charge.go", Line: 42},
	})
	p.Stop()

	batches := sink.GetBatches()
	require.Len(t, batches, 1)
	assert.Empty(t, batches[0][0].FileName)
	assert.Zero(t, batches[0][0].LineNumber)
}

func TestProcessor_QueueFullDropsWithOneWarning(t *testing.T) {
	sink := &testutils.MockSink{}
	logs := &testutils.LogRecorder{}
	cfg := testConfig()
	cfg.QueueSize = 2
	cfg.FlushInterval = time.Hour

	p := NewProcessor(cfg, sink.Factory(nil), WithLogger(logs))
	p.Start()
	defer p.Stop()

	for i := 0; i < 5; i++ {
		p.Append(warnEvent("burst"))
	}

	stats := p.Stats()
	assert.Equal(t, uint64(2), stats.Accepted)
	assert.Equal(t, uint64(3), stats.Dropped)
	assert.Equal(t, 2, p.Len())

	warns := logs.WithLevel("warn")
	require.Len(t, warns, 1)
	assert.Equal(t, uint64(1), warns[0]["dropped"])
	assert.ErrorIs(t, warns[0]["err"].(error), logging.ErrQueueFull)
}

func TestProcessor_StartIsIdempotent(t *testing.T) {
	sink := &testutils.MockSink{}
	calls := atomic.NewInt32(0)

	p := NewProcessor(testConfig(), sink.Factory(calls))
	p.Start()
	p.Start()
	defer p.Stop()

	assert.Equal(t, StateRunning, p.State())
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, logging.DefaultQueueSize, p.Cap())
}

func TestProcessor_Restart(t *testing.T) {
	sink := &testutils.MockSink{}
	cfg := testConfig()
	cfg.FlushInterval = time.Hour

	p := NewProcessor(cfg, sink.Factory(nil))
	p.Start()
	p.Append(warnEvent("first"))
	p.Stop()

	p.Append(warnEvent("while stopped"))

	p.Start()
	p.Append(warnEvent("second"))
	p.Stop()

	batches := sink.GetBatches()
	require.Len(t, batches, 2)
	assert.Equal(t, "first", batches[0][0].Message)
	assert.Equal(t, "second", batches[1][0].Message)
}

func TestProcessor_StopAbandonsSlowFlush(t *testing.T) {
	sink := &testutils.MockSink{Delay: 10 * time.Second}
	logs := &testutils.LogRecorder{}
	cfg := testConfig()
	cfg.BatchSize = 1
	cfg.FlushInterval = time.Hour
	cfg.ShutdownTimeout = 100 * time.Millisecond

	p := NewProcessor(cfg, sink.Factory(nil), WithLogger(logs))
	p.Start()

	p.Append(warnEvent("stuck"))
	require.Eventually(t, func() bool { return sink.InFlight() == 1 }, time.Second, time.Millisecond)
	p.Append(warnEvent("left behind"))

	start := time.Now()
	p.Stop()

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, StateStopped, p.State())

	var timedOut bool
	for _, rec := range logs.WithLevel("error") {
		if err, ok := rec["err"].(error); ok && errors.Is(err, logging.ErrShutdownTimeout) {
			timedOut = true
		}
	}
	assert.True(t, timedOut)
	assert.Eventually(t, func() bool { return sink.InFlight() == 0 }, time.Second, 5*time.Millisecond)
}

func TestProcessor_LenBeforeStart(t *testing.T) {
	p := NewProcessor(testConfig(), (&testutils.MockSink{}).Factory(nil))
	assert.Equal(t, 0, p.Len())
	assert.Equal(t, StateStopped, p.State())
}

func TestProcessor_StopGivesUpDrainingAfterGrace(t *testing.T) {
	sink := &testutils.MockSink{Delay: time.Second}
	logs := &testutils.LogRecorder{}
	cfg := testConfig()
	cfg.BatchSize = 1
	cfg.FlushInterval = time.Hour
	cfg.ShutdownTimeout = 100 * time.Millisecond

	p := NewProcessor(cfg, sink.Factory(nil), WithLogger(logs))
	p.Start()

	// Enqueue behind the trigger's back so the worker stays idle and the
	// whole backlog is left to the final drain.
	for i := 0; i < 3; i++ {
		require.True(t, p.current.queue.TryEnqueue(logging.Entry{Level: logging.LevelWarn, Message: fmt.Sprintf("e%d", i)}))
	}
	require.Equal(t, 3, p.Len())

	start := time.Now()
	p.Stop()

	assert.Less(t, time.Since(start), 600*time.Millisecond)
	assert.Equal(t, StateStopped, p.State())
	assert.True(t, sink.IsClosed())
	assert.Empty(t, sink.GetBatches())

	var left any
	for _, rec := range logs.WithLevel("error") {
		if err, ok := rec["err"].(error); ok && errors.Is(err, logging.ErrShutdownTimeout) {
			left = rec["entries_left"]
		}
	}
	assert.Equal(t, 2, left)
	assert.Equal(t, uint64(1), p.Stats().FailedBatches)
}
