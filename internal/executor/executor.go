// Package executor provides the single-worker task queue that every debug
// session runs on.
//
// An Executor accepts tasks from any goroutine and runs them one at a time,
// in submission order, on one dedicated worker goroutine. State owned by a
// session (the command table, the execution context tree, run-control
// state) is only touched from tasks running on that session's executor, so
// none of it needs locking.
//
// A task that submits further work never runs that work inline: the new
// task is queued behind everything already submitted and runs after the
// current task returns.
package executor

import (
	"context"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

// Task is a unit of work run on the executor.
type Task func()

// PanicHandler is called when a task panics. seq is the submission sequence
// number of the task.
type PanicHandler func(seq uint64, recovered any, stack []byte)

// fatal is implemented by panic values that must not be swallowed.
type fatal interface {
	Fatal() bool
}

type queuedTask struct {
	seq  uint64
	task Task
}

// Executor runs tasks sequentially on a single goroutine.
type Executor struct {
	name string

	mu       sync.Mutex
	queue    []queuedTask
	seq      uint64
	started  bool
	stopping bool
	stopped  bool

	wake chan struct{}
	done chan struct{}

	panicHandler PanicHandler

	submitted atomic.Uint64
	executed  atomic.Uint64
	rejected  atomic.Uint64
	panicked  atomic.Uint64
}

// Option configures an Executor.
type Option func(*Executor)

// WithName sets a name used to identify the executor in stats.
func WithName(name string) Option {
	return func(e *Executor) {
		e.name = name
	}
}

// WithPanicHandler sets the handler invoked when a task panics.
func WithPanicHandler(h PanicHandler) Option {
	return func(e *Executor) {
		e.panicHandler = h
	}
}

// New creates an executor. Tasks may be submitted before Start; they run
// once the worker is started.
func New(opts ...Option) *Executor {
	e := &Executor{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name returns the executor name.
func (e *Executor) Name() string {
	return e.name
}

// Start launches the worker goroutine.
func (e *Executor) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stopped || e.stopping {
		return ErrShutdown
	}
	if e.started {
		return ErrAlreadyRunning
	}
	e.started = true
	go e.worker()
	return nil
}

// Submit enqueues a task and returns its sequence number. It never blocks.
// Submit fails with ErrShutdown once the executor has stopped.
func (e *Executor) Submit(task Task) (uint64, error) {
	if task == nil {
		return 0, ErrNilTask
	}

	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		e.rejected.Add(1)
		return 0, ErrShutdown
	}
	e.seq++
	seq := e.seq
	e.queue = append(e.queue, queuedTask{seq: seq, task: task})
	e.mu.Unlock()

	e.submitted.Add(1)
	e.signal()
	return seq, nil
}

// Run submits fn and waits for it to finish. It is meant for callers
// outside the executor; calling Run from a task deadlocks.
func (e *Executor) Run(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if _, err := e.Submit(func() {
		defer close(finished)
		fn()
	}); err != nil {
		return err
	}

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Schedule submits task after delay. If the executor has stopped by then
// the task is discarded.
func (e *Executor) Schedule(delay time.Duration, task Task) *Timer {
	t := &Timer{}
	t.timer = time.AfterFunc(delay, func() {
		if t.stopped.Load() {
			return
		}
		_, _ = e.Submit(task)
	})
	return t
}

// Shutdown stops the executor.
//
// Tasks already queued are drained: they run to completion in order, and
// tasks they submit while the queue drains run as well. Once the worker
// finds the queue empty the executor is stopped and every later Submit
// returns ErrShutdown. Shutdown waits for the drain or for ctx.
func (e *Executor) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return nil
	}
	e.stopping = true
	if !e.started {
		// Nothing will ever run the queue; discard it explicitly.
		dropped := len(e.queue)
		e.queue = nil
		e.stopped = true
		e.mu.Unlock()
		e.rejected.Add(uint64(dropped))
		close(e.done)
		return nil
	}
	e.mu.Unlock()

	e.signal()

	select {
	case <-e.done:
		return nil
	case <-ctx.Done():
		return ErrShutdownTimeout
	}
}

// Done is closed when the executor has stopped.
func (e *Executor) Done() <-chan struct{} {
	return e.done
}

// IsStopped reports whether the executor has stopped accepting tasks.
func (e *Executor) IsStopped() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stopped
}

// Stats returns executor statistics.
func (e *Executor) Stats() Stats {
	e.mu.Lock()
	pending := len(e.queue)
	e.mu.Unlock()

	return Stats{
		Name:      e.name,
		Submitted: e.submitted.Load(),
		Executed:  e.executed.Load(),
		Rejected:  e.rejected.Load(),
		Panicked:  e.panicked.Load(),
		Pending:   pending,
	}
}

func (e *Executor) signal() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

func (e *Executor) worker() {
	for {
		e.mu.Lock()
		for len(e.queue) == 0 {
			if e.stopping {
				e.stopped = true
				e.mu.Unlock()
				close(e.done)
				return
			}
			e.mu.Unlock()
			<-e.wake
			e.mu.Lock()
		}
		next := e.queue[0]
		e.queue[0] = queuedTask{}
		e.queue = e.queue[1:]
		e.mu.Unlock()

		e.execute(next)
	}
}

// execute runs one task with panic recovery. Panics whose value reports
// itself as fatal are re-raised.
func (e *Executor) execute(qt queuedTask) {
	defer func() {
		e.executed.Add(1)
		r := recover()
		if r == nil {
			return
		}
		if f, ok := r.(fatal); ok && f.Fatal() {
			panic(r)
		}
		e.panicked.Add(1)
		if e.panicHandler != nil {
			stack := debug.Stack()
			func() {
				defer func() { _ = recover() }()
				e.panicHandler(qt.seq, r, stack)
			}()
		}
	}()

	qt.task()
}

// Timer is a pending scheduled task.
type Timer struct {
	timer   *time.Timer
	stopped atomic.Bool
}

// Stop prevents the task from being submitted. It returns false if the
// timer already fired or was stopped.
func (t *Timer) Stop() bool {
	if t == nil || t.timer == nil {
		return false
	}
	if t.stopped.Swap(true) {
		return false
	}
	return t.timer.Stop()
}

// Stats contains executor statistics.
type Stats struct {
	Name      string
	Submitted uint64
	Executed  uint64
	Rejected  uint64
	Panicked  uint64
	Pending   int
}
