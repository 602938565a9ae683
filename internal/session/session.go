// Package session ties one debugger backend connection to its executor,
// command engine and services.
//
// A Session is created idle, becomes active on Start and is disposed by
// Terminate or when the backend disconnects. Disposal fails every
// outstanding request with command.ErrDisconnected, disposes the services
// and drains the executor. Sessions share nothing; a Manager keeps several
// of them by id.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/dshills/gdbmi/internal/breakpoints"
	"github.com/dshills/gdbmi/internal/command"
	"github.com/dshills/gdbmi/internal/event"
	"github.com/dshills/gdbmi/internal/execctx"
	"github.com/dshills/gdbmi/internal/executor"
	"github.com/dshills/gdbmi/internal/mi"
	"github.com/dshills/gdbmi/internal/monitor"
	"github.com/dshills/gdbmi/internal/runcontrol"
	"github.com/dshills/gdbmi/internal/stack"
	"github.com/dshills/gdbmi/internal/transport"
)

// State is the lifecycle state of a session.
type State int32

const (
	// StateIdle is a session that has not been started.
	StateIdle State = iota
	// StateActive is a session bound to a backend.
	StateActive
	// StateDisposed is a terminated session.
	StateDisposed
)

// String returns a string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateActive:
		return "active"
	case StateDisposed:
		return "disposed"
	default:
		return "unknown"
	}
}

// LaunchMode says how the inferior came to be under the debugger.
type LaunchMode string

const (
	// LaunchRun starts the program; its threads begin running.
	LaunchRun LaunchMode = "launch"
	// LaunchAttach attaches to a process; its threads begin suspended.
	LaunchAttach LaunchMode = "attach"
)

// Config configures a session.
type Config struct {
	// CommandTimeout is the default command timeout. Zero disables it.
	CommandTimeout time.Duration

	// LaunchMode selects the initial run state of new processes.
	LaunchMode LaunchMode

	// GDBVersion selects the stop reason vocabulary. Empty means newest.
	GDBVersion string
}

// DefaultConfig returns the default session configuration.
func DefaultConfig() Config {
	return Config{
		CommandTimeout: command.DefaultTimeout,
		LaunchMode:     LaunchAttach,
	}
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithID sets the session id instead of a generated one.
func WithID(id string) Option {
	return func(s *Session) {
		s.id = id
	}
}

// WithBus publishes session events on bus, which may be shared between
// sessions. Events carry the session id.
func WithBus(bus *event.Bus) Option {
	return func(s *Session) {
		s.bus = bus
	}
}

// WithCommandListener adds a command listener, such as a tracer.
func WithCommandListener(l command.CommandListener) Option {
	return func(s *Session) {
		s.listeners = append(s.listeners, l)
	}
}

// Info is the payload of session lifecycle events.
type Info struct {
	ID    string `json:"id"`
	State string `json:"state"`
	Cause string `json:"cause,omitempty"`
}

// Output is the payload of output events.
type Output struct {
	Kind mi.StreamKind `json:"-"`
	Text string        `json:"text"`
}

// Session is one backend connection.
type Session struct {
	id        string
	cfg       Config
	logger    *zap.Logger
	bus       *event.Bus
	listeners []command.CommandListener

	exec     *executor.Executor
	registry *Registry
	state    atomic.Int32

	startMu   sync.Mutex
	engine    *command.Engine
	transport transport.Transport
	arena     *execctx.Arena

	termOnce sync.Once
	termErr  error
	termDone chan struct{}
}

// New creates an idle session.
func New(cfg Config, opts ...Option) *Session {
	s := &Session{
		id:       uuid.NewString(),
		cfg:      cfg,
		logger:   zap.NewNop(),
		registry: NewRegistry(),
		termDone: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(zap.String("session", s.id))
	if s.bus == nil {
		s.bus = event.NewBus(event.WithLogger(s.logger.Named("bus")))
	}
	s.exec = executor.New(
		executor.WithName("session-"+s.id),
		executor.WithPanicHandler(func(seq uint64, recovered any, stack []byte) {
			s.logger.Error("task panicked",
				zap.Uint64("seq", seq),
				zap.Any("panic", recovered),
				zap.ByteString("stack", stack))
		}),
	)
	return s
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// State returns the lifecycle state.
func (s *Session) State() State { return State(s.state.Load()) }

// Executor returns the session executor.
func (s *Session) Executor() *executor.Executor { return s.exec }

// Arena returns the execution contexts of the session. Executor only.
func (s *Session) Arena() *execctx.Arena { return s.arena }

// Bus returns the bus session events are published on.
func (s *Session) Bus() *event.Bus { return s.bus }

// Start binds the session to t, registers the services and makes the
// session active.
func (s *Session) Start(ctx context.Context, t transport.Transport) error {
	s.startMu.Lock()
	defer s.startMu.Unlock()

	switch s.State() {
	case StateActive:
		return ErrAlreadyStarted
	case StateDisposed:
		return ErrNotActive
	}

	if err := s.exec.Start(); err != nil {
		return fmt.Errorf("start executor: %w", err)
	}

	s.transport = t
	s.arena = execctx.NewArena()
	s.engine = command.New(s.exec, t,
		command.WithLogger(s.logger.Named("engine")),
		command.WithTimeout(s.cfg.CommandTimeout),
		command.WithDisconnectHandler(s.onDisconnect),
	)

	initial := runcontrol.StateSuspended
	if s.cfg.LaunchMode == LaunchRun {
		initial = runcontrol.StateRunning
	}
	rc := runcontrol.New(s.exec, s.engine, s.arena,
		runcontrol.WithLogger(s.logger.Named("runcontrol")),
		runcontrol.WithVocabulary(runcontrol.VocabularyFor(s.cfg.GDBVersion)),
		runcontrol.WithInitialState(initial),
		runcontrol.WithPublisher(s.bus, s.id),
	)
	bp := breakpoints.New(s.exec, s.engine,
		breakpoints.WithLogger(s.logger.Named("breakpoints")),
		breakpoints.WithPublisher(s.bus, s.id),
	)
	st := stack.New(s.exec, s.engine, s.arena, stack.WithLogger(s.logger.Named("stack")))

	for _, l := range append([]command.CommandListener{rc, bp}, s.listeners...) {
		s.engine.AddCommandListener(l)
	}
	s.engine.AddEventListener(rc)
	s.engine.AddEventListener(bp)
	s.engine.AddEventListener(command.EventListenerFunc(s.forwardOutput))

	err := multierr.Combine(
		s.registry.Register(CapRunControl, rc),
		s.registry.Register(CapBreakpoints, bp),
		s.registry.Register(CapStack, st),
		s.registry.Register(CapCommandControl, s.engine),
	)
	if err != nil {
		return err
	}

	s.state.Store(int32(StateActive))
	if err := s.engine.Start(); err != nil {
		s.state.Store(int32(StateIdle))
		return err
	}

	s.logger.Info("session started")
	return s.exec.Run(ctx, func() {
		s.publish(event.TopicSessionStarted, Info{ID: s.id, State: StateActive.String()})
	})
}

// Get resolves a capability. It implements Resolver.
func (s *Session) Get(c Capability) (any, error) {
	return s.registry.Get(c)
}

// Service resolves a capability.
func (s *Session) Service(c Capability) (any, error) {
	return s.registry.Get(c)
}

// ServiceAs resolves a capability of a known type.
func ServiceAs[T any](s *Session, c Capability) (T, error) {
	return As[T](s, c)
}

// Capabilities lists the registered capabilities.
func (s *Session) Capabilities() []Capability {
	return s.registry.Capabilities()
}

// Submit runs task on the session executor.
func (s *Session) Submit(task executor.Task) error {
	if s.State() != StateActive {
		return ErrNotActive
	}
	_, err := s.exec.Submit(task)
	return err
}

// Queue sends cmd and returns a monitor completed with its result.
func (s *Session) Queue(cmd mi.Command) *command.Monitor {
	rm := monitor.NewData[*mi.ResultRecord](s.exec, nil)
	if s.State() != StateActive {
		rm.Fail(ErrNotActive)
		return rm
	}
	s.engine.Queue(cmd, rm)
	return rm
}

// Subscribe registers handler for events matching pattern.
func (s *Session) Subscribe(pattern event.Topic, handler event.Handler) (event.Subscription, error) {
	return s.bus.Subscribe(pattern, handler)
}

// Done is closed once the session has terminated.
func (s *Session) Done() <-chan struct{} {
	return s.termDone
}

// Terminate disposes the session. Outstanding commands fail with
// command.ErrDisconnected. It is safe to call more than once; later calls
// wait for the first and return its result.
func (s *Session) Terminate(ctx context.Context) error {
	s.termOnce.Do(func() {
		s.termErr = s.terminate(ctx, ErrTerminated)
		close(s.termDone)
	})
	select {
	case <-s.termDone:
		return s.termErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) terminate(ctx context.Context, cause error) error {
	s.startMu.Lock()
	prev := State(s.state.Swap(int32(StateDisposed)))
	s.startMu.Unlock()

	if prev == StateIdle {
		return s.exec.Shutdown(ctx)
	}

	s.engine.Disconnect(cause)

	var errs error
	runErr := s.exec.Run(ctx, func() {
		s.registry.Dispose()
		info := Info{ID: s.id, State: StateDisposed.String()}
		if !errors.Is(cause, ErrTerminated) {
			info.Cause = cause.Error()
		}
		s.publish(event.TopicSessionTerminated, info)
	})
	errs = multierr.Append(errs, runErr)
	if err := s.transport.Close(); err != nil && !errors.Is(err, transport.ErrClosed) {
		errs = multierr.Append(errs, fmt.Errorf("close transport: %w", err))
	}
	errs = multierr.Append(errs, s.exec.Shutdown(ctx))

	s.logger.Info("session terminated", zap.Error(cause))
	return errs
}

// onDisconnect runs on the executor when the backend goes away.
func (s *Session) onDisconnect(err error) {
	if s.State() != StateActive {
		return
	}
	s.logger.Warn("backend disconnected", zap.Error(err))
	go func() {
		s.termOnce.Do(func() {
			s.termErr = s.terminate(context.Background(), err)
			close(s.termDone)
		})
	}()
}

func (s *Session) forwardOutput(rec mi.Record) {
	r, ok := rec.(*mi.StreamRecord)
	if !ok {
		return
	}
	topic := event.TopicConsoleOutput
	switch r.Kind {
	case mi.StreamTarget:
		topic = event.TopicTargetOutput
	case mi.StreamLog:
		topic = event.TopicLogOutput
	}
	s.publish(topic, Output{Kind: r.Kind, Text: r.Text})
}

func (s *Session) publish(topic event.Topic, payload any) {
	if err := s.bus.Publish(context.Background(), event.New(topic, s.id, payload)); err != nil {
		s.logger.Warn("publish failed", zap.String("topic", string(topic)), zap.Error(err))
	}
}
