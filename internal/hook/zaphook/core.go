// Package zaphook lets a zap logger feed the shipper through a tee'd core.
package zaphook

import (
	"encoding/json"
	"fmt"

	"go.uber.org/zap/zapcore"

	"github.com/Arun-Labana/logai-sdk/internal/logging"
)

type Core struct {
	zapcore.LevelEnabler
	appender logging.Appender
	fields   []zapcore.Field
}

// NewCore is usually combined with the application's own core:
//
//	zap.New(zapcore.NewTee(appCore, zaphook.NewCore(processor, zapcore.WarnLevel)))
func NewCore(appender logging.Appender, enab zapcore.LevelEnabler) *Core {
	return &Core{LevelEnabler: enab, appender: appender}
}

func (c *Core) With(fields []zapcore.Field) zapcore.Core {
	clone := *c
	clone.fields = make([]zapcore.Field, 0, len(c.fields)+len(fields))
	clone.fields = append(clone.fields, c.fields...)
	clone.fields = append(clone.fields, fields...)
	return &clone
}

func (c *Core) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *Core) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	enc := zapcore.NewMapObjectEncoder()
	var cause error

	for _, group := range [][]zapcore.Field{c.fields, fields} {
		for _, f := range group {
			if f.Type == zapcore.ErrorType && cause == nil {
				if err, ok := f.Interface.(error); ok {
					cause = err
					continue
				}
			}
			f.AddTo(enc)
		}
	}

	ev := logging.Event{
		Time:    ent.Time,
		Level:   convertLevel(ent.Level),
		Logger:  ent.LoggerName,
		Message: ent.Message,
		Err:     cause,
		Stack:   ent.Stack,
		Fields:  stringify(enc.Fields),
	}
	if ent.Caller.Defined {
		ev.Caller = logging.Caller{
			File:     ent.Caller.File,
			Line:     ent.Caller.Line,
			Function: ent.Caller.Function,
		}
	}

	c.appender.Append(ev)
	return nil
}

func (c *Core) Sync() error {
	return nil
}

func convertLevel(l zapcore.Level) logging.Level {
	switch {
	case l < zapcore.InfoLevel:
		return logging.LevelDebug
	case l == zapcore.InfoLevel:
		return logging.LevelInfo
	case l == zapcore.WarnLevel:
		return logging.LevelWarn
	case l == zapcore.ErrorLevel:
		return logging.LevelError
	default:
		return logging.LevelFatal
	}
}

func stringify(m map[string]interface{}) map[string]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		switch val := v.(type) {
		case string:
			out[k] = val
		case fmt.Stringer:
			out[k] = val.String()
		case bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
			out[k] = fmt.Sprint(val)
		default:
			if raw, err := json.Marshal(val); err == nil {
				out[k] = string(raw)
			} else {
				out[k] = fmt.Sprint(val)
			}
		}
	}
	return out
}
