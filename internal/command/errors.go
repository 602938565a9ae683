package command

import (
	"errors"
	"fmt"
)

// Sentinel errors for command completion.
var (
	// ErrTimeout completes a command whose reply did not arrive in time.
	ErrTimeout = errors.New("command timed out")

	// ErrDisconnected completes every command outstanding when the
	// backend connection is lost, and every command queued afterwards.
	ErrDisconnected = errors.New("backend disconnected")

	// ErrRejected is matched by every CommandError.
	ErrRejected = errors.New("command rejected")

	// ErrAlreadyStarted is returned by a second call to Start.
	ErrAlreadyStarted = errors.New("engine already started")
)

// CommandError is an error-class result for an issued command.
type CommandError struct {
	Token     uint64
	Operation string
	Message   string
	Code      string
}

func (e *CommandError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (token %d): %s [%s]", e.Operation, e.Token, e.Message, e.Code)
	}
	return fmt.Sprintf("%s (token %d): %s", e.Operation, e.Token, e.Message)
}

// Unwrap allows errors.Is(err, ErrRejected).
func (e *CommandError) Unwrap() error {
	return ErrRejected
}

func disconnected(cause error) error {
	if cause == nil || errors.Is(cause, ErrDisconnected) {
		return ErrDisconnected
	}
	return fmt.Errorf("%w: %v", ErrDisconnected, cause)
}
