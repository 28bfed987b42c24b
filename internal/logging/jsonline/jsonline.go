// Package jsonline decodes structured JSON log lines, as written by zap,
// zerolog, logrus and most container runtimes' apps, into events.
package jsonline

import (
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/Arun-Labana/logai-sdk/internal/logging"
)

var (
	levelKeys   = []string{"level", "severity", "lvl"}
	messageKeys = []string{"message", "msg"}
	timeKeys    = []string{"time", "timestamp", "ts", "@timestamp"}
	loggerKeys  = []string{"logger", "name"}
	threadKeys  = []string{"thread", "goroutine"}
	stackKeys   = []string{"stacktrace", "stack", "stack_trace"}
	errorKeys   = []string{"error", "err"}
)

// Parse reports false when line is not a JSON object.
func Parse(line []byte) (logging.Event, bool) {
	trimmed := strings.TrimSpace(string(line))
	if !strings.HasPrefix(trimmed, "{") || !gjson.Valid(trimmed) {
		return logging.Event{}, false
	}

	doc := gjson.Parse(trimmed)
	ev := logging.Event{Level: logging.LevelInfo}
	claimed := make(map[string]bool)

	if v, key := first(doc, levelKeys); key != "" {
		ev.Level = logging.ParseLevel(v.String())
		claimed[key] = true
	}
	if v, key := first(doc, messageKeys); key != "" {
		ev.Message = v.String()
		claimed[key] = true
	}
	if v, key := first(doc, timeKeys); key != "" {
		if ts, ok := parseTime(v); ok {
			ev.Time = ts
			claimed[key] = true
		}
	}
	if v, key := first(doc, loggerKeys); key != "" {
		ev.Logger = v.String()
		claimed[key] = true
	}
	if v, key := first(doc, threadKeys); key != "" {
		ev.Thread = v.String()
		claimed[key] = true
	}
	if v := doc.Get("caller"); v.Exists() {
		ev.Caller = parseCaller(v.String())
		claimed["caller"] = true
	}
	if v, key := first(doc, stackKeys); key != "" {
		ev.Stack = v.String()
		claimed[key] = true
	}
	if v, key := first(doc, errorKeys); key != "" && ev.Stack == "" {
		ev.Stack = v.String()
		claimed[key] = true
	}

	doc.ForEach(func(key, value gjson.Result) bool {
		k := key.String()
		if claimed[k] {
			return true
		}
		if ev.Fields == nil {
			ev.Fields = make(map[string]string)
		}
		if value.Type == gjson.String {
			ev.Fields[k] = value.String()
		} else {
			ev.Fields[k] = value.Raw
		}
		return true
	})

	return ev, true
}

func first(doc gjson.Result, keys []string) (gjson.Result, string) {
	for _, k := range keys {
		if v := doc.Get(k); v.Exists() {
			return v, k
		}
	}
	return gjson.Result{}, ""
}

// parseTime accepts RFC 3339 strings and numeric epochs in seconds or
// milliseconds.
func parseTime(v gjson.Result) (time.Time, bool) {
	switch v.Type {
	case gjson.String:
		ts, err := time.Parse(time.RFC3339Nano, v.String())
		return ts, err == nil
	case gjson.Number:
		f := v.Float()
		if f > 1e12 {
			return time.UnixMilli(int64(f)), true
		}
		sec := int64(f)
		return time.Unix(sec, int64((f-float64(sec))*1e9)), true
	default:
		return time.Time{}, false
	}
}

// parseCaller splits "path/file.go:42".
func parseCaller(s string) logging.Caller {
	idx := strings.LastIndex(s, ":")
	if idx < 0 {
		return logging.Caller{File: s}
	}
	line, err := strconv.Atoi(s[idx+1:])
	if err != nil {
		return logging.Caller{File: s}
	}
	return logging.Caller{File: s[:idx], Line: line}
}
