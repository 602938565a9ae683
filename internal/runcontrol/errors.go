package runcontrol

import "errors"

var (
	// ErrTerminated is returned for requests against a terminated context.
	ErrTerminated = errors.New("context terminated")

	// ErrNotSuspended is returned when resuming or stepping a context that
	// is not suspended.
	ErrNotSuspended = errors.New("context not suspended")

	// ErrDisposed is returned after the service was disposed.
	ErrDisposed = errors.New("run control disposed")

	// ErrInvalidStep is returned for an unknown step type.
	ErrInvalidStep = errors.New("invalid step type")
)
