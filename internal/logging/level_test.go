package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{
		"trace":    LevelTrace,
		"DEBUG":    LevelDebug,
		"Info":     LevelInfo,
		"warning":  LevelWarn,
		" error ":  LevelError,
		"fatal":    LevelFatal,
		"verbose":  LevelInfo,
		"":         LevelInfo,
		"critical": LevelFatal,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestLevel_TextRoundTrip(t *testing.T) {
	var l Level
	require.NoError(t, l.UnmarshalText([]byte("warn")))
	assert.Equal(t, LevelWarn, l)

	text, err := LevelError.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "ERROR", string(text))
	assert.Equal(t, "INFO", Level(42).String())
}

func TestLevel_AtLeast(t *testing.T) {
	assert.True(t, LevelError.AtLeast(LevelWarn))
	assert.True(t, LevelWarn.AtLeast(LevelWarn))
	assert.False(t, LevelInfo.AtLeast(LevelWarn))
	assert.True(t, LevelUnset.AtLeast(LevelInfo))
	assert.False(t, LevelUnset.AtLeast(LevelWarn))
}

func TestConfig_WithDefaults(t *testing.T) {
	cfg := Config{BatchSize: 10}.WithDefaults()
	assert.Equal(t, 10, cfg.BatchSize)
	assert.Equal(t, DefaultFlushInterval, cfg.FlushInterval)
	assert.Equal(t, DefaultQueueSize, cfg.QueueSize)
	assert.Equal(t, DefaultShutdownTimeout, cfg.ShutdownTimeout)
	assert.Equal(t, LevelWarn, cfg.Threshold)
	assert.False(t, cfg.ExcludeCallerData)

	cfg = Config{Threshold: LevelTrace}.WithDefaults()
	assert.Equal(t, LevelTrace, cfg.Threshold)
}
