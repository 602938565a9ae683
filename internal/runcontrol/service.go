// Package runcontrol tracks the run state of the processes and threads of
// a session and issues resume, step and suspend commands.
//
// State follows the backend, not the requests. A resume or step moves its
// target to Running or Stepping when the backend accepts the command with
// a ^running result. The transition is applied from a command listener,
// synchronously with the result record, so a *stopped record that follows
// on the wire is always applied after it:
//
//	Suspended ──^running──► Running/Stepping ──*stopped──► Suspended
//	     │                                                    │
//	     └──────────── exit, =thread-group-exited ────────────┴──► Terminated
//
// A command that was accepted and then failed shows up only as a state
// change with ReasonError; its request monitor has already succeeded.
package runcontrol

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/dshills/gdbmi/internal/command"
	"github.com/dshills/gdbmi/internal/event"
	"github.com/dshills/gdbmi/internal/execctx"
	"github.com/dshills/gdbmi/internal/executor"
	"github.com/dshills/gdbmi/internal/mi"
	"github.com/dshills/gdbmi/internal/monitor"
)

// Queuer queues MI commands. *command.Engine satisfies it.
type Queuer interface {
	Queue(cmd mi.Command, rm *command.Monitor)
}

// Publisher publishes session events. *event.Bus satisfies it.
type Publisher interface {
	Publish(ctx context.Context, ev event.Event) error
}

// resumeOps maps commands that answer ^running to the state they enter.
var resumeOps = map[string]State{
	"-exec-continue":         StateRunning,
	"-exec-run":              StateRunning,
	"-exec-jump":             StateRunning,
	"-exec-next":             StateStepping,
	"-exec-step":             StateStepping,
	"-exec-finish":           StateStepping,
	"-exec-until":            StateStepping,
	"-exec-next-instruction": StateStepping,
	"-exec-step-instruction": StateStepping,
}

type contextState struct {
	state   State
	reason  Reason
	details string
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithVocabulary sets the stop reason table.
func WithVocabulary(v Vocabulary) Option {
	return func(s *Service) {
		s.vocab = v
	}
}

// WithInitialState sets the state of newly discovered processes:
// StateSuspended after attaching, StateRunning after launching.
func WithInitialState(st State) Option {
	return func(s *Service) {
		s.initial = st
	}
}

// WithPublisher sets where events are published.
func WithPublisher(p Publisher, sessionID string) Option {
	return func(s *Service) {
		s.pub = p
		s.sessionID = sessionID
	}
}

// Service is the run-control service of one session. Request methods may
// be called from any goroutine; everything else runs on the executor.
type Service struct {
	exec      *executor.Executor
	queuer    Queuer
	arena     *execctx.Arena
	pub       Publisher
	sessionID string
	logger    *zap.Logger
	vocab     Vocabulary
	initial   State

	// Owned by the executor.
	states      map[execctx.Handle]*contextState
	interrupted map[execctx.Handle]bool
	disposed    bool
}

// New creates a run-control service.
func New(exec *executor.Executor, q Queuer, arena *execctx.Arena, opts ...Option) *Service {
	s := &Service{
		exec:        exec,
		queuer:      q,
		arena:       arena,
		logger:      zap.NewNop(),
		vocab:       DefaultVocabulary(),
		initial:     StateSuspended,
		states:      make(map[execctx.Handle]*contextState),
		interrupted: make(map[execctx.Handle]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Resume continues h. rm succeeds when the backend accepts the command.
func (s *Service) Resume(h execctx.Handle, rm *monitor.RequestMonitor) {
	s.submit(rm, func() {
		if err := s.checkSuspended(h); err != nil {
			rm.Fail(err)
			return
		}
		c, _ := s.arena.Get(h)
		cmd := mi.ExecContinue(false)
		switch c.Kind {
		case execctx.KindProcess:
			cmd = cmd.WithContext(mi.Context{ThreadGroup: c.ID})
		default:
			cmd = cmd.WithContext(mi.Context{Thread: s.threadID(h)})
		}
		s.queue(cmd, rm)
	})
}

// Step steps h. rm succeeds when the backend accepts the command.
func (s *Service) Step(h execctx.Handle, typ StepType, rm *monitor.RequestMonitor) {
	s.submit(rm, func() {
		cmd, ok := typ.command()
		if !ok {
			rm.Fail(fmt.Errorf("%w: %d", ErrInvalidStep, typ))
			return
		}
		if err := s.checkSuspended(h); err != nil {
			rm.Fail(err)
			return
		}
		c, _ := s.arena.Get(h)
		switch c.Kind {
		case execctx.KindThread:
			cmd = cmd.WithContext(mi.Context{Thread: c.ID})
		case execctx.KindFrame:
			cmd = cmd.WithContext(mi.Context{Thread: s.threadID(h), Frame: c.ID})
		}
		s.queue(cmd, rm)
	})
}

// Suspend interrupts h. A suspended context completes rm at once.
func (s *Service) Suspend(h execctx.Handle, rm *monitor.RequestMonitor) {
	s.submit(rm, func() {
		cs, err := s.lookup(h)
		if err != nil {
			rm.Fail(err)
			return
		}
		switch cs.state {
		case StateTerminated:
			rm.Fail(ErrTerminated)
			return
		case StateSuspended:
			rm.Done()
			return
		}

		c, _ := s.arena.Get(h)
		cmd := mi.ExecInterrupt(false)
		if c.Kind == execctx.KindProcess {
			cmd = cmd.WithContext(mi.Context{ThreadGroup: c.ID})
		} else {
			cmd = cmd.WithContext(mi.Context{Thread: s.threadID(h)})
		}
		if p, ok := s.arena.Ancestor(h, execctx.KindProcess); ok {
			s.interrupted[p] = true
		}
		s.queue(cmd, rm)
	})
}

// ExecutionData reports the current state of h.
func (s *Service) ExecutionData(h execctx.Handle, rm *monitor.DataMonitor[ExecutionData]) {
	s.submit(rm, func() {
		data, err := s.Data(h)
		if err != nil {
			rm.Fail(err)
			return
		}
		rm.Complete(data)
	})
}

// Data returns the state of h. Executor only.
func (s *Service) Data(h execctx.Handle) (ExecutionData, error) {
	cs, err := s.lookup(h)
	if err != nil {
		return ExecutionData{}, err
	}
	return ExecutionData{State: cs.state, Reason: cs.reason, Details: cs.details}, nil
}

// Dispose stops tracking. Executor only.
func (s *Service) Dispose() {
	s.disposed = true
	s.states = make(map[execctx.Handle]*contextState)
	s.interrupted = make(map[execctx.Handle]bool)
}

func (s *Service) submit(rm monitor.Completer, fn func()) {
	task := func() {
		if s.disposed {
			rm.Fail(ErrDisposed)
			return
		}
		fn()
	}
	if _, err := s.exec.Submit(task); err != nil {
		rm.Fail(fmt.Errorf("%w: %v", ErrDisposed, err))
	}
}

func (s *Service) queue(cmd mi.Command, rm *monitor.RequestMonitor) {
	s.queuer.Queue(cmd, monitor.AndThen(s.exec, rm, func(*mi.ResultRecord) { rm.Done() }))
}

func (s *Service) checkSuspended(h execctx.Handle) error {
	cs, err := s.lookup(h)
	if err != nil {
		return err
	}
	switch cs.state {
	case StateSuspended:
		return nil
	case StateTerminated:
		return ErrTerminated
	default:
		return fmt.Errorf("%w: %s", ErrNotSuspended, cs.state)
	}
}

// lookup resolves the state of h. Frames report their thread; contexts
// without their own entry inherit from their parent.
func (s *Service) lookup(h execctx.Handle) (*contextState, error) {
	if _, ok := s.arena.Get(h); !ok {
		return nil, fmt.Errorf("%w: %d", execctx.ErrUnknownContext, h)
	}
	for cur := h; cur.Valid(); cur = s.arena.Parent(cur) {
		if cs, ok := s.states[cur]; ok {
			return cs, nil
		}
	}
	return &contextState{state: s.initial}, nil
}

func (s *Service) threadID(h execctx.Handle) string {
	if t, ok := s.arena.Ancestor(h, execctx.KindThread); ok {
		c, _ := s.arena.Get(t)
		return c.ID
	}
	return ""
}

func (s *Service) stateOf(h execctx.Handle) contextState {
	if cs, ok := s.states[h]; ok {
		return *cs
	}
	return contextState{state: s.initial}
}

func (s *Service) set(h execctx.Handle, cs contextState) {
	s.states[h] = &cs
}

// setProcess sets p and every thread of p.
func (s *Service) setProcess(p execctx.Handle, cs contextState) {
	s.set(p, cs)
	for _, t := range s.arena.Children(p) {
		s.set(t, cs)
	}
}

func (s *Service) publish(topic event.Topic, payload any) {
	if s.pub == nil {
		return
	}
	if err := s.pub.Publish(context.Background(), event.New(topic, s.sessionID, payload)); err != nil {
		s.logger.Warn("publish failed", zap.String("topic", string(topic)), zap.Error(err))
	}
}
