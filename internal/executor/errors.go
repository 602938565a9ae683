package executor

import "errors"

// Sentinel errors for the executor package.
var (
	// ErrAlreadyRunning is returned when Start is called twice.
	ErrAlreadyRunning = errors.New("executor is already running")

	// ErrShutdown is returned when a task is submitted to a stopped executor.
	ErrShutdown = errors.New("executor is shut down")

	// ErrShutdownTimeout is returned when the drain does not finish in time.
	ErrShutdownTimeout = errors.New("executor shutdown timeout exceeded")

	// ErrNilTask is returned when a nil task is submitted.
	ErrNilTask = errors.New("task cannot be nil")
)
