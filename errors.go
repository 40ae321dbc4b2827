package unwind

import (
	"errors"
	"fmt"
	"time"
)

// AbortError indicates that the external cancellation signal fired while a
// step or compensation was pending or in flight. Aborted operations are
// never retried, regardless of remaining attempts.
type AbortError struct {
	// Cause is the cancellation cause of the execution context, when one
	// was provided via context.WithCancelCause.
	Cause error
}

// Error implements the error interface for AbortError.
func (e *AbortError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("saga aborted: %v", e.Cause)
	}
	return "saga aborted"
}

// Unwrap returns the cancellation cause.
func (e *AbortError) Unwrap() error {
	return e.Cause
}

// TimeoutError indicates that a single attempt exceeded its configured
// deadline. Unlike an abort, a timed-out attempt is eligible for retry.
type TimeoutError struct {
	Timeout time.Duration
}

// Error implements the error interface for TimeoutError.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("attempt timed out after %s", e.Timeout)
}

// CompensationError indicates that the compensation pass itself could not
// finish. It is produced only when the saga is configured to halt on
// compensation failure, and carries the step whose compensation failed.
type CompensationError struct {
	StepName string
	Cause    error
}

// Error implements the error interface for CompensationError.
func (e *CompensationError) Error() string {
	return fmt.Sprintf("compensation for step %q failed: %v", e.StepName, e.Cause)
}

// Unwrap returns the underlying compensation failure.
func (e *CompensationError) Unwrap() error {
	return e.Cause
}

// IsAbort reports whether err is, or wraps, an AbortError.
func IsAbort(err error) bool {
	var abort *AbortError
	return errors.As(err, &abort)
}

// IsTimeout reports whether err is, or wraps, a TimeoutError.
func IsTimeout(err error) bool {
	var timeout *TimeoutError
	return errors.As(err, &timeout)
}

// normalizePanic converts a recovered panic value into an error. Values that
// already are errors pass through; anything else is stringified.
func normalizePanic(r any) error {
	if err, ok := r.(error); ok {
		return err
	}
	return fmt.Errorf("%v", r)
}
