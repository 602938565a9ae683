// Package monitor provides request monitors: single-completion objects that
// represent one pending asynchronous operation on a session executor.
//
// A monitor completes exactly once, with Success, Error or Cancelled.
// Callbacks registered on it always run as tasks on the monitor's executor,
// never inline on the goroutine that completed it. A monitor may have a
// parent; once the monitor's own callbacks have run, its outcome is passed
// on to the parent.
//
// Typed results use DataMonitor[V]. Fan-in uses Counting (N children
// complete one parent) and Multi (N typed children complete one parent
// with the collected values). Map, AndThen and MapErr compose monitors
// without subclassing.
package monitor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dshills/gdbmi/internal/executor"
)

// Status is the completion status of a monitor.
type Status int32

const (
	// StatusPending means the operation has not completed.
	StatusPending Status = iota
	// StatusSuccess means the operation succeeded.
	StatusSuccess
	// StatusError means the operation failed; Err holds the reason.
	StatusError
	// StatusCancelled means the caller cancelled the operation.
	StatusCancelled
)

// String returns a string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Submitter runs tasks. *executor.Executor satisfies it.
type Submitter interface {
	Submit(task executor.Task) (uint64, error)
}

// Parent receives the outcome of a child monitor.
type Parent interface {
	childCompleted(status Status, err error)
}

// Completer is the completion side of a monitor. Combinators accept it so
// that both *RequestMonitor and *DataMonitor[V] can be used as parents.
type Completer interface {
	Done()
	Fail(err error)
	Cancel() bool
}

var nextID atomic.Uint64

// RequestMonitor tracks one asynchronous operation.
type RequestMonitor struct {
	id     uint64
	exec   Submitter
	parent Parent

	mu        sync.Mutex
	status    Status
	err       error
	errSet    error
	callbacks []func(*RequestMonitor)
	onCancel  []func()
	late      int
	done      chan struct{}
}

// New creates a monitor bound to exec. parent may be nil.
func New(exec Submitter, parent Parent) *RequestMonitor {
	return &RequestMonitor{
		id:     nextID.Add(1),
		exec:   exec,
		parent: parent,
		done:   make(chan struct{}),
	}
}

// ID returns the monitor's unique id.
func (m *RequestMonitor) ID() uint64 {
	return m.id
}

// Status returns the current status.
func (m *RequestMonitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Err returns the completion error. It is ErrCancelled for a cancelled
// monitor and nil while pending or after success.
func (m *RequestMonitor) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// IsDone reports whether the monitor has completed.
func (m *RequestMonitor) IsDone() bool {
	return m.Status() != StatusPending
}

// IsCancelled reports whether the monitor was cancelled.
func (m *RequestMonitor) IsCancelled() bool {
	return m.Status() == StatusCancelled
}

// LateCompletions returns how many natural completions arrived after the
// monitor was cancelled. They are ignored.
func (m *RequestMonitor) LateCompletions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.late
}

// SetError records an error to complete with on the next Done.
func (m *RequestMonitor) SetError(err error) {
	m.mu.Lock()
	m.errSet = err
	m.mu.Unlock()
}

// Done completes the monitor with Success, or with Error if SetError was
// called.
func (m *RequestMonitor) Done() {
	m.mu.Lock()
	err := m.errSet
	m.mu.Unlock()

	if err != nil {
		m.finish(StatusError, err)
		return
	}
	m.finish(StatusSuccess, nil)
}

// Fail completes the monitor with Error.
func (m *RequestMonitor) Fail(err error) {
	if err == nil {
		err = ErrUnknown
	}
	m.finish(StatusError, err)
}

// Cancel completes a pending monitor with Cancelled. A later natural
// completion is ignored. Children created for it by Map, AndThen and
// MapErr are cancelled before Cancel returns. Cancel returns false if the
// monitor had already completed.
func (m *RequestMonitor) Cancel() bool {
	return m.finish(StatusCancelled, ErrCancelled)
}

// cancelWith registers fn to run synchronously when the monitor is
// cancelled. fn runs at once if the monitor is already cancelled.
func (m *RequestMonitor) cancelWith(fn func()) {
	m.mu.Lock()
	switch m.status {
	case StatusPending:
		m.onCancel = append(m.onCancel, fn)
		m.mu.Unlock()
	case StatusCancelled:
		m.mu.Unlock()
		fn()
	default:
		m.mu.Unlock()
	}
}

// OnComplete registers fn to run on the executor when the monitor
// completes, whatever the status.
func (m *RequestMonitor) OnComplete(fn func(*RequestMonitor)) {
	m.mu.Lock()
	if m.status == StatusPending {
		m.callbacks = append(m.callbacks, fn)
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	m.post(func() { fn(m) })
}

// OnSuccess registers fn to run on the executor if the monitor succeeds.
func (m *RequestMonitor) OnSuccess(fn func()) {
	m.OnComplete(func(rm *RequestMonitor) {
		if rm.Status() == StatusSuccess {
			fn()
		}
	})
}

// OnError registers fn to run on the executor if the monitor fails.
func (m *RequestMonitor) OnError(fn func(error)) {
	m.OnComplete(func(rm *RequestMonitor) {
		if rm.Status() == StatusError {
			fn(rm.Err())
		}
	})
}

// Wait blocks until the monitor completes or ctx is done. It is for
// callers outside the executor and returns the completion error.
func (m *RequestMonitor) Wait(ctx context.Context) error {
	select {
	case <-m.done:
		return m.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Completed is closed when the monitor completes.
func (m *RequestMonitor) Completed() <-chan struct{} {
	return m.done
}

// String returns a short description for logs.
func (m *RequestMonitor) String() string {
	return fmt.Sprintf("rm#%d[%s]", m.id, m.Status())
}

func (m *RequestMonitor) childCompleted(status Status, err error) {
	switch status {
	case StatusSuccess:
		m.Done()
	case StatusError:
		m.Fail(err)
	case StatusCancelled:
		m.Cancel()
	}
}

// finish performs the single Pending transition. Cancelling a completed
// monitor is a no-op; completing a cancelled one is counted as late.
func (m *RequestMonitor) finish(status Status, err error) bool {
	m.mu.Lock()
	if m.status != StatusPending {
		prev := m.status
		switch {
		case prev == StatusCancelled:
			if status != StatusCancelled {
				m.late++
			}
			m.mu.Unlock()
			return false
		case status == StatusCancelled:
			m.mu.Unlock()
			return false
		}
		m.mu.Unlock()
		panic(internalErrorf("%s completed twice (%s, then %s)", m.describe(prev), prev, status))
	}
	m.status = status
	m.err = err
	callbacks := m.callbacks
	m.callbacks = nil
	cancelled := m.onCancel
	m.onCancel = nil
	close(m.done)
	m.mu.Unlock()

	if status == StatusCancelled {
		for _, fn := range cancelled {
			fn()
		}
	}

	parent := m.parent
	if len(callbacks) == 0 && parent == nil {
		return true
	}
	m.post(func() {
		for _, cb := range callbacks {
			cb(m)
		}
		if parent != nil {
			parent.childCompleted(status, err)
		}
	})
	return true
}

func (m *RequestMonitor) describe(status Status) string {
	return fmt.Sprintf("rm#%d[%s]", m.id, status)
}

// post runs fn on the executor. When the executor has shut down the
// callbacks are dropped; Wait still observes the completion.
func (m *RequestMonitor) post(fn func()) {
	if m.exec == nil {
		panic(internalErrorf("rm#%d has no executor", m.id))
	}
	_, _ = m.exec.Submit(fn)
}
