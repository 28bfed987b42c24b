package logging

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidConfig   = errors.New("invalid shipper configuration")
	ErrQueueFull       = errors.New("log queue full")
	ErrShutdownTimeout = errors.New("shutdown grace period elapsed")
)

// SendError describes a batch the sink could not take. The batch is gone
// by the time this is reported.
type SendError struct {
	BatchID   string
	BatchSize int
	Err       error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send batch %s (%d entries): %v", e.BatchID, e.BatchSize, e.Err)
}

func (e *SendError) Unwrap() error {
	return e.Err
}
