package breakpoints

import "errors"

var (
	// ErrNoLocation is returned when inserting a breakpoint without a location.
	ErrNoLocation = errors.New("breakpoint location required")

	// ErrUnknownBreakpoint is returned for a number not in the table.
	ErrUnknownBreakpoint = errors.New("unknown breakpoint")

	// ErrMalformedReply is returned when a reply lacks the expected results.
	ErrMalformedReply = errors.New("malformed breakpoint reply")

	// ErrDisposed is returned after the service was disposed.
	ErrDisposed = errors.New("breakpoints disposed")
)
