// Package normalize turns host events into shipping entries.
package normalize

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/Arun-Labana/logai-sdk/internal/logging"
)

// MaxCauseDepth bounds how many wrapped causes FormatError renders.
const MaxCauseDepth = 16

var traceKeys = []string{"traceId", "trace_id"}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

type frame struct {
	file     string
	line     int
	function string
}

// Entry builds the immutable entry for ev. It has no side effects.
func Entry(ev logging.Event, includeCaller bool) logging.Entry {
	entry := logging.Entry{
		Timestamp:  ev.Time,
		Level:      ev.Level,
		Logger:     ev.Logger,
		Message:    ev.Message,
		ThreadName: ev.Thread,
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	if entry.Level == logging.LevelUnset {
		entry.Level = logging.LevelInfo
	}

	var origin *frame
	if ev.Err != nil {
		entry.StackTrace = FormatError(ev.Err)
		origin = firstFrame(ev.Err)
	} else if ev.Stack != "" {
		entry.StackTrace = ev.Stack
	}

	switch {
	case origin != nil:
		entry.FileName = origin.file
		entry.LineNumber = origin.line
		entry.ClassName, entry.MethodName = splitFunction(origin.function)
	case includeCaller && ev.Caller.Defined():
		entry.FileName = ev.Caller.File
		entry.LineNumber = ev.Caller.Line
		entry.ClassName, entry.MethodName = splitFunction(ev.Caller.Function)
	}

	if len(ev.Fields) > 0 {
		entry.Context = make(map[string]string, len(ev.Fields))
		for k, v := range ev.Fields {
			entry.Context[k] = v
		}
		for _, key := range traceKeys {
			if id, ok := ev.Fields[key]; ok && id != "" {
				entry.TraceID = id
				break
			}
		}
	}

	return entry
}

// FormatError renders err and its causes, outermost first, each followed by
// its stack frames when it carries any. Chains longer than MaxCauseDepth are
// cut with a marker line.
func FormatError(err error) string {
	if err == nil {
		return ""
	}

	var (
		b       strings.Builder
		pending errors.StackTrace
		printed int
	)
	depth := 0
	for ; err != nil && depth < MaxCauseDepth; depth++ {
		var st errors.StackTrace
		if tracer, ok := err.(stackTracer); ok {
			st = tracer.StackTrace()
		}
		next := errors.Unwrap(err)

		// Wrappers that only add a stack repeat their cause's message.
		if next != nil && next.Error() == err.Error() {
			if pending == nil {
				pending = st
			}
			err = next
			continue
		}
		if st == nil {
			st = pending
		}
		pending = nil

		if printed > 0 {
			b.WriteString("Caused by: ")
		}
		fmt.Fprintf(&b, "%T: %s\n", err, err.Error())
		b.WriteString(FormatStack(st))
		printed++
		err = next
	}
	if err != nil {
		fmt.Fprintf(&b, "... cause chain truncated after %d levels\n", MaxCauseDepth)
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// FormatStack renders one "\tat function (file:line)" line per frame.
func FormatStack(st errors.StackTrace) string {
	var b strings.Builder
	for _, f := range st {
		fr := resolve(f)
		fmt.Fprintf(&b, "\tat %s (%s:%d)\n", fr.function, fr.file, fr.line)
	}
	return b.String()
}

// firstFrame is the top frame of the outermost error in the chain that has
// a stack.
func firstFrame(err error) *frame {
	for depth := 0; err != nil && depth < MaxCauseDepth; depth++ {
		if st, ok := err.(stackTracer); ok {
			if frames := st.StackTrace(); len(frames) > 0 {
				fr := resolve(frames[0])
				return &fr
			}
		}
		err = errors.Unwrap(err)
	}
	return nil
}

func resolve(f errors.Frame) frame {
	pc := uintptr(f) - 1
	fn := runtime.FuncForPC(pc)
	if fn == nil {
		return frame{file: "unknown", function: "unknown"}
	}
	file, line := fn.FileLine(pc)
	return frame{file: file, line: line, function: fn.Name()}
}

// splitFunction separates "pkg/path.(*Type).Method" into
// "pkg/path.(*Type)" and "Method".
func splitFunction(name string) (string, string) {
	slash := strings.LastIndex(name, "/")
	dot := strings.LastIndex(name[slash+1:], ".")
	if dot < 0 {
		return "", name
	}
	dot += slash + 1
	return name[:dot], name[dot+1:]
}
