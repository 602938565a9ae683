package execctx

import "errors"

var (
	// ErrUnknownContext is returned for a handle that does not resolve.
	ErrUnknownContext = errors.New("unknown execution context")

	// ErrWrongKind is returned when a handle names a context of another kind.
	ErrWrongKind = errors.New("wrong execution context kind")
)
