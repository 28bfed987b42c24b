// Package zerologhook lets a zerolog logger feed the shipper as one of its
// outputs.
package zerologhook

import (
	"strings"

	"github.com/rs/zerolog"

	"github.com/Arun-Labana/logai-sdk/internal/logging"
	"github.com/Arun-Labana/logai-sdk/internal/logging/jsonline"
)

// Writer implements zerolog.LevelWriter. Use it with zerolog.MultiLevelWriter
// next to the application's console or file output.
type Writer struct {
	appender  logging.Appender
	threshold zerolog.Level
}

func NewWriter(appender logging.Appender, threshold zerolog.Level) *Writer {
	return &Writer{appender: appender, threshold: threshold}
}

func (w *Writer) Write(p []byte) (int, error) {
	w.appender.Append(decode(p, zerolog.NoLevel))
	return len(p), nil
}

func (w *Writer) WriteLevel(l zerolog.Level, p []byte) (int, error) {
	if l < w.threshold && l != zerolog.NoLevel {
		return len(p), nil
	}
	w.appender.Append(decode(p, l))
	return len(p), nil
}

func decode(p []byte, l zerolog.Level) logging.Event {
	ev, ok := jsonline.Parse(p)
	if !ok {
		ev = logging.Event{
			Level:   logging.LevelInfo,
			Message: strings.TrimRight(string(p), "\n"),
		}
	}
	if lvl, known := convertLevel(l); known {
		ev.Level = lvl
	}
	return ev
}

func convertLevel(l zerolog.Level) (logging.Level, bool) {
	switch l {
	case zerolog.TraceLevel:
		return logging.LevelTrace, true
	case zerolog.DebugLevel:
		return logging.LevelDebug, true
	case zerolog.InfoLevel:
		return logging.LevelInfo, true
	case zerolog.WarnLevel:
		return logging.LevelWarn, true
	case zerolog.ErrorLevel:
		return logging.LevelError, true
	case zerolog.FatalLevel, zerolog.PanicLevel:
		return logging.LevelFatal, true
	default:
		return 0, false
	}
}
