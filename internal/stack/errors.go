package stack

import "errors"

var (
	// ErrMalformedReply is returned when a reply lacks the expected results.
	ErrMalformedReply = errors.New("malformed stack reply")

	// ErrDisposed is returned after the service was disposed.
	ErrDisposed = errors.New("stack service disposed")
)
