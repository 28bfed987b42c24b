package zaphook

import (
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Arun-Labana/logai-sdk/internal/logging"
	"github.com/Arun-Labana/logai-sdk/internal/logging/batch"
	"github.com/Arun-Labana/logai-sdk/internal/testutils"
)

func TestCore_ForwardsEnabledEntries(t *testing.T) {
	appender := &testutils.MockAppender{}
	logger := zap.New(NewCore(appender, zapcore.WarnLevel), zap.AddCaller()).Named("billing")

	logger.Info("not shipped")
	logger.Warn("card declined",
		zap.String("traceId", "t-1"),
		zap.Int("attempt", 3),
		zap.Duration("took", 1500*time.Millisecond),
		zap.Strings("tags", []string{"a", "b"}),
	)

	events := appender.GetEvents()
	require.Len(t, events, 1)
	ev := events[0]
	assert.Equal(t, logging.LevelWarn, ev.Level)
	assert.Equal(t, "card declined", ev.Message)
	assert.Equal(t, "billing", ev.Logger)
	assert.Equal(t, "t-1", ev.Fields["traceId"])
	assert.Equal(t, "3", ev.Fields["attempt"])
	assert.Equal(t, "1.5s", ev.Fields["took"])
	assert.Equal(t, `["a","b"]`, ev.Fields["tags"])
	assert.True(t, strings.HasSuffix(ev.Caller.File, "core_test.go"), ev.Caller.File)
	assert.Contains(t, ev.Caller.Function, "TestCore_ForwardsEnabledEntries")
	assert.False(t, ev.Time.IsZero())
}

func TestCore_ErrorFieldBecomesCause(t *testing.T) {
	appender := &testutils.MockAppender{}
	logger := zap.New(NewCore(appender, zapcore.ErrorLevel))

	cause := errors.New("connection refused")
	logger.Error("query failed", zap.Error(cause))

	events := appender.GetEvents()
	require.Len(t, events, 1)
	assert.Equal(t, cause, events[0].Err)
	assert.NotContains(t, events[0].Fields, "error")
}

func TestCore_WithKeepsParentFields(t *testing.T) {
	appender := &testutils.MockAppender{}
	base := zap.New(NewCore(appender, zapcore.WarnLevel))
	child := base.With(zap.String("tenant", "acme"))

	child.Warn("from child", zap.String("k", "v"))
	base.Warn("from parent")

	events := appender.GetEvents()
	require.Len(t, events, 2)
	assert.Equal(t, map[string]string{"tenant": "acme", "k": "v"}, events[0].Fields)
	assert.Nil(t, events[1].Fields)
}

func TestConvertLevel(t *testing.T) {
	assert.Equal(t, logging.LevelDebug, convertLevel(zapcore.DebugLevel))
	assert.Equal(t, logging.LevelInfo, convertLevel(zapcore.InfoLevel))
	assert.Equal(t, logging.LevelWarn, convertLevel(zapcore.WarnLevel))
	assert.Equal(t, logging.LevelError, convertLevel(zapcore.ErrorLevel))
	assert.Equal(t, logging.LevelFatal, convertLevel(zapcore.DPanicLevel))
	assert.Equal(t, logging.LevelFatal, convertLevel(zapcore.FatalLevel))
}

func TestCore_ShipsThroughProcessor(t *testing.T) {
	sink := &testutils.MockSink{}
	cfg := logging.DefaultConfig()
	cfg.Endpoint = "https://example.supabase.co"
	cfg.Credential = "key"
	cfg.TargetID = "app-1"
	cfg.FlushInterval = time.Hour

	p := batch.NewProcessor(cfg, sink.Factory(nil))
	p.Start()

	logger := zap.New(NewCore(p, zapcore.DebugLevel))
	logger.Info("below processor threshold")
	logger.Error("shipped", zap.Error(errors.New("boom")))

	p.Stop()

	batches := sink.GetBatches()
	require.Len(t, batches, 1)
	require.Len(t, batches[0], 1)
	entry := batches[0][0]
	assert.Equal(t, "shipped", entry.Message)
	assert.Contains(t, entry.StackTrace, "boom")
	assert.Equal(t, "TestCore_ShipsThroughProcessor", entry.MethodName)
}
