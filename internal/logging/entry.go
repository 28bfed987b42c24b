package logging

import (
	"time"
)

// Entry is a normalized log record ready for shipping. It is created once
// by the normalizer and never modified afterwards.
type Entry struct {
	Timestamp  time.Time         `json:"timestamp"`
	Level      Level             `json:"level"`
	Logger     string            `json:"logger,omitempty"`
	Message    string            `json:"message"`
	StackTrace string            `json:"stack_trace,omitempty"`
	FileName   string            `json:"file_name,omitempty"`
	LineNumber int               `json:"line_number,omitempty"`
	ClassName  string            `json:"class_name,omitempty"`
	MethodName string            `json:"method_name,omitempty"`
	TraceID    string            `json:"trace_id,omitempty"`
	ThreadName string            `json:"thread_name,omitempty"`
	Context    map[string]string `json:"mdc_context,omitempty"`
}

// Caller is the source location an event was logged from.
type Caller struct {
	File     string
	Line     int
	Function string
}

func (c Caller) Defined() bool {
	return c.File != "" || c.Function != ""
}

// Event is a raw event as seen by a host adapter, before normalization.
type Event struct {
	Time   time.Time
	Level  Level
	Logger string
	// Message is already formatted.
	Message string
	// Err, if set, is rendered with its cause chain into Entry.StackTrace.
	Err error
	// Stack is a pre-rendered stack trace, used when Err carries none.
	Stack  string
	Caller Caller
	Thread string
	Fields map[string]string
}
