package stream

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrDestroyed acknowledges writes a destroyed stage will never process.
	ErrDestroyed = errors.New("stream: stage destroyed")
	// ErrWriteAfterEnd acknowledges writes made after End.
	ErrWriteAfterEnd = errors.New("stream: write after end")
	// ErrPanic marks a stage function that panicked.
	ErrPanic = errors.New("stream: stage panicked")
)

// StageError provides context about an item a stage failed to process.
// It wraps the underlying error with the stage name, the offending item,
// and when and how quickly the failure happened.
type StageError[T any] struct {
	Item      T
	Timestamp time.Time
	Err       error
	Stage     Name
	Duration  time.Duration
	Timeout   bool
	Canceled  bool
}

// Error implements the error interface, providing a detailed error message.
func (e *StageError[T]) Error() string {
	location := fmt.Sprintf("stage %q", e.Stage)
	if e.Timeout {
		return fmt.Sprintf("%s timed out after %v: %v", location, e.Duration, e.Err)
	}
	if e.Canceled {
		return fmt.Sprintf("%s canceled after %v: %v", location, e.Duration, e.Err)
	}
	return fmt.Sprintf("%s failed after %v: %v", location, e.Duration, e.Err)
}

// Unwrap returns the underlying error, supporting error wrapping patterns.
func (e *StageError[T]) Unwrap() error {
	return e.Err
}

// IsTimeout returns true if the error was caused by a timeout.
func (e *StageError[T]) IsTimeout() bool {
	return e.Timeout || errors.Is(e.Err, context.DeadlineExceeded)
}

// IsCanceled returns true if the error was caused by cancellation.
func (e *StageError[T]) IsCanceled() bool {
	return e.Canceled || errors.Is(e.Err, context.Canceled)
}

// StageName returns the name of the stage that failed.
func (e *StageError[T]) StageName() Name {
	return e.Stage
}
