package logging

import "errors"

var (
	// ErrInvalidLevel is returned for an unknown level name.
	ErrInvalidLevel = errors.New("invalid log level")

	// ErrInvalidFormat is returned for an unknown encoder name.
	ErrInvalidFormat = errors.New("invalid log format")
)
