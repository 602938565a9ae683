package session

import (
	"errors"
	"fmt"

	"github.com/dshills/gdbmi/internal/monitor"
)

var (
	// ErrServiceNotFound is returned for a capability nobody registered.
	// It is an internal error: services are resolved at start.
	ErrServiceNotFound = fmt.Errorf("service not found: %w", monitor.ErrInternal)

	// ErrServiceType is returned when a service has an unexpected type.
	ErrServiceType = fmt.Errorf("service type mismatch: %w", monitor.ErrInternal)

	// ErrDuplicateService is returned when a capability is registered twice.
	ErrDuplicateService = errors.New("service already registered")

	// ErrInvalidService is returned for a nil service.
	ErrInvalidService = errors.New("invalid service")

	// ErrRegistryDisposed is returned after the registry was disposed.
	ErrRegistryDisposed = errors.New("service registry disposed")

	// ErrTrackerDisposed is returned after the tracker was disposed.
	ErrTrackerDisposed = errors.New("service tracker disposed")

	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = errors.New("session already started")

	// ErrNotActive is returned for requests against a session that is not
	// started or already disposed.
	ErrNotActive = errors.New("session not active")

	// ErrTerminated is the cause reported to commands failed by Terminate.
	ErrTerminated = errors.New("session terminated")

	// ErrSessionNotFound is returned by Manager for an unknown id.
	ErrSessionNotFound = errors.New("session not found")
)
