package monitor

import (
	"errors"
	"fmt"
)

// Sentinel errors for the monitor package.
var (
	// ErrInternal marks programming-contract violations: a monitor
	// completed twice, a counting monitor over-counted, a missing service.
	ErrInternal = errors.New("internal error")

	// ErrCancelled is the error of a cancelled monitor.
	ErrCancelled = errors.New("request cancelled")

	// ErrNotCompleted is returned when data is read before completion.
	ErrNotCompleted = errors.New("request has not completed")

	// ErrUnknown is used when Fail is called with a nil error.
	ErrUnknown = errors.New("unknown error")
)

// InternalError is a contract violation. It is raised with panic and the
// session executor re-raises it instead of recovering.
type InternalError struct {
	Msg string
}

// Error implements the error interface.
func (e *InternalError) Error() string {
	return "internal error: " + e.Msg
}

// Unwrap returns ErrInternal.
func (e *InternalError) Unwrap() error {
	return ErrInternal
}

// Fatal reports that the error must not be recovered.
func (e *InternalError) Fatal() bool {
	return true
}

func internalErrorf(format string, args ...any) *InternalError {
	return &InternalError{Msg: fmt.Sprintf(format, args...)}
}

// NewInternalError returns an InternalError with a formatted message.
func NewInternalError(format string, args ...any) *InternalError {
	return internalErrorf(format, args...)
}
