// Package command correlates MI commands with their result records.
//
// The Engine owns the outstanding-command table. Every table mutation, every
// write to the transport and every inbound record is handled by a task on
// the session executor, so the table needs no lock and the order in which
// commands are written matches the order in which they were queued.
//
//	Queue ──► executor task ──► token, table insert, Write
//	                                              │
//	transport reader ──► ParseLine ──► executor task ──► table lookup
//	                                              │           │
//	                                     EventListeners   RM completion
package command

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/dshills/gdbmi/internal/executor"
	"github.com/dshills/gdbmi/internal/mi"
	"github.com/dshills/gdbmi/internal/monitor"
	"github.com/dshills/gdbmi/internal/transport"
)

// DefaultTimeout is used when neither the command nor the engine sets one.
const DefaultTimeout = 30 * time.Second

// State is the position of a command in its life cycle.
type State int

const (
	// StateQueued means the command has a token but is not written yet.
	StateQueued State = iota
	// StateSent means the command is being written.
	StateSent
	// StateAwaitingResult means the command was written and has no reply.
	StateAwaitingResult
	// StateCompleted means the command left the table.
	StateCompleted
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateQueued:
		return "queued"
	case StateSent:
		return "sent"
	case StateAwaitingResult:
		return "awaiting-result"
	case StateCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// Info describes one table entry.
type Info struct {
	Token     uint64
	Operation string
	State     State
	Cancelled bool
	Age       time.Duration
}

// Stats holds engine counters.
type Stats struct {
	Queued         uint64
	Sent           uint64
	Completed      uint64
	Failed         uint64
	TimedOut       uint64
	Cancelled      uint64
	Dropped        uint64
	ProtocolErrors uint64
}

// Monitor is the completion handed to Queue.
type Monitor = monitor.DataMonitor[*mi.ResultRecord]

type entry struct {
	token    uint64
	cmd      mi.Command
	rm       *Monitor
	state    State
	queuedAt time.Time
	timer    *executor.Timer
}

type listenerEntry[L any] struct {
	id       uint64
	listener L
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithTimeout sets the default command timeout. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.timeout = d
	}
}

// WithDisconnectHandler sets a function called on the executor once the
// engine has failed its outstanding commands after a disconnect.
func WithDisconnectHandler(fn func(err error)) Option {
	return func(e *Engine) {
		e.onDisconnect = fn
	}
}

// Engine is the MI command engine of one session.
type Engine struct {
	exec         *executor.Executor
	transport    transport.Transport
	logger       *zap.Logger
	timeout      time.Duration
	onDisconnect func(error)

	startMu sync.Mutex
	started bool

	listenerMu     sync.Mutex
	listenerID     uint64
	cmdListeners   []listenerEntry[CommandListener]
	eventListeners []listenerEntry[EventListener]

	// Owned by the executor.
	lastToken uint64
	pending   map[uint64]*entry
	console   []string
	closed    error

	queued         atomic.Uint64
	sent           atomic.Uint64
	completed      atomic.Uint64
	failed         atomic.Uint64
	timedOut       atomic.Uint64
	cancelled      atomic.Uint64
	dropped        atomic.Uint64
	protocolErrors atomic.Uint64
}

// New creates an engine that runs on exec and writes to t.
func New(exec *executor.Executor, t transport.Transport, opts ...Option) *Engine {
	e := &Engine{
		exec:      exec,
		transport: t,
		logger:    zap.NewNop(),
		timeout:   DefaultTimeout,
		pending:   make(map[uint64]*entry),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start starts reading from the transport.
func (e *Engine) Start() error {
	e.startMu.Lock()
	defer e.startMu.Unlock()

	if e.started {
		return ErrAlreadyStarted
	}
	if err := e.transport.Start(e.onLine, e.onClose); err != nil {
		return fmt.Errorf("start transport: %w", err)
	}
	e.started = true
	return nil
}

// Queue writes cmd and completes rm with its result record. It may be
// called from any goroutine. A command whose monitor is cancelled before
// the write is never written.
func (e *Engine) Queue(cmd mi.Command, rm *Monitor) {
	e.queued.Add(1)
	if _, err := e.exec.Submit(func() { e.dispatch(cmd, rm) }); err != nil {
		e.failed.Add(1)
		rm.Fail(disconnected(err))
	}
}

// Disconnect fails every outstanding command with ErrDisconnected and
// rejects later ones. It may be called from any goroutine.
func (e *Engine) Disconnect(cause error) {
	if _, err := e.exec.Submit(func() { e.disconnect(cause) }); err != nil {
		// The worker has exited; nothing else touches the table.
		e.disconnect(cause)
	}
}

// AddCommandListener registers l and returns a function that removes it.
func (e *Engine) AddCommandListener(l CommandListener) (remove func()) {
	e.listenerMu.Lock()
	defer e.listenerMu.Unlock()

	e.listenerID++
	id := e.listenerID
	e.cmdListeners = append(append([]listenerEntry[CommandListener](nil), e.cmdListeners...),
		listenerEntry[CommandListener]{id: id, listener: l})

	return func() {
		e.listenerMu.Lock()
		defer e.listenerMu.Unlock()
		e.cmdListeners = without(e.cmdListeners, id)
	}
}

// AddEventListener registers l and returns a function that removes it.
func (e *Engine) AddEventListener(l EventListener) (remove func()) {
	e.listenerMu.Lock()
	defer e.listenerMu.Unlock()

	e.listenerID++
	id := e.listenerID
	e.eventListeners = append(append([]listenerEntry[EventListener](nil), e.eventListeners...),
		listenerEntry[EventListener]{id: id, listener: l})

	return func() {
		e.listenerMu.Lock()
		defer e.listenerMu.Unlock()
		e.eventListeners = without(e.eventListeners, id)
	}
}

func without[L any](list []listenerEntry[L], id uint64) []listenerEntry[L] {
	out := make([]listenerEntry[L], 0, len(list))
	for _, le := range list {
		if le.id != id {
			out = append(out, le)
		}
	}
	return out
}

// Stats returns a copy of the counters.
func (e *Engine) Stats() Stats {
	return Stats{
		Queued:         e.queued.Load(),
		Sent:           e.sent.Load(),
		Completed:      e.completed.Load(),
		Failed:         e.failed.Load(),
		TimedOut:       e.timedOut.Load(),
		Cancelled:      e.cancelled.Load(),
		Dropped:        e.dropped.Load(),
		ProtocolErrors: e.protocolErrors.Load(),
	}
}

// Outstanding returns the number of table entries. Executor only.
func (e *Engine) Outstanding() int {
	return len(e.pending)
}

// Snapshot returns the table ordered by token. Executor only.
func (e *Engine) Snapshot() []Info {
	now := time.Now()
	out := make([]Info, 0, len(e.pending))
	for _, ent := range e.pending {
		out = append(out, Info{
			Token:     ent.token,
			Operation: ent.cmd.Operation,
			State:     ent.state,
			Cancelled: ent.rm.IsCancelled(),
			Age:       now.Sub(ent.queuedAt),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Token < out[j].Token })
	return out
}

func (e *Engine) dispatch(cmd mi.Command, rm *Monitor) {
	if rm.IsDone() {
		e.cancelled.Add(1)
		e.logger.Debug("command cancelled before write", zap.String("operation", cmd.Operation))
		return
	}
	if e.closed != nil {
		e.failed.Add(1)
		rm.Fail(e.closed)
		return
	}

	e.lastToken++
	token := e.lastToken
	ent := &entry{
		token:    token,
		cmd:      cmd,
		rm:       rm,
		state:    StateQueued,
		queuedAt: time.Now(),
	}
	e.pending[token] = ent
	e.notifyQueued(token, cmd)

	ent.state = StateSent
	if err := e.transport.Write(cmd.Encode(token)); err != nil {
		delete(e.pending, token)
		ent.state = StateCompleted
		err = disconnected(err)
		e.failed.Add(1)
		e.logger.Warn("write failed",
			zap.Uint64("token", token),
			zap.String("operation", cmd.Operation),
			zap.Error(err))
		e.notifyDone(token, cmd, nil, err)
		rm.Fail(err)
		return
	}
	e.sent.Add(1)
	ent.state = StateAwaitingResult
	e.logger.Debug("command sent", zap.Uint64("token", token), zap.String("operation", cmd.Operation))
	e.notifySent(token, cmd)

	timeout := cmd.Timeout
	if timeout == 0 {
		timeout = e.timeout
	}
	if timeout > 0 {
		ent.timer = e.exec.Schedule(timeout, func() { e.expire(ent, timeout) })
	}
}

func (e *Engine) expire(ent *entry, after time.Duration) {
	if cur, ok := e.pending[ent.token]; !ok || cur != ent {
		return
	}
	delete(e.pending, ent.token)
	ent.state = StateCompleted

	if ent.rm.IsCancelled() {
		e.cancelled.Add(1)
		return
	}

	err := fmt.Errorf("%s (token %d) after %s: %w", ent.cmd.Operation, ent.token, after, ErrTimeout)
	e.timedOut.Add(1)
	e.logger.Warn("command timed out", zap.Uint64("token", ent.token), zap.String("operation", ent.cmd.Operation))
	e.notifyDone(ent.token, ent.cmd, nil, err)
	ent.rm.Fail(err)
}

func (e *Engine) onLine(line string) {
	if strings.TrimSpace(line) == "" {
		return
	}
	rec, err := mi.ParseLine(line)
	task := func() {
		if err != nil {
			e.protocolError(err)
			return
		}
		e.handle(rec)
	}
	if _, serr := e.exec.Submit(task); serr != nil {
		e.logger.Debug("record dropped after shutdown", zap.String("line", line))
	}
}

func (e *Engine) onClose(err error) {
	e.Disconnect(err)
}

func (e *Engine) handle(rec mi.Record) {
	switch r := rec.(type) {
	case *mi.ResultRecord:
		if !r.HasToken {
			e.deliver(r)
			return
		}
		e.complete(r)
	case *mi.StreamRecord:
		if r.Kind == mi.StreamConsole && len(e.pending) > 0 {
			e.console = append(e.console, r.Text)
		}
		e.deliver(r)
	case *mi.AsyncRecord:
		e.deliver(r)
	case *mi.PromptRecord:
	}
}

func (e *Engine) complete(r *mi.ResultRecord) {
	ent, ok := e.pending[r.Token]
	if !ok {
		e.dropped.Add(1)
		e.logger.Warn("result for unknown token",
			zap.Uint64("token", r.Token),
			zap.String("class", string(r.Class)))
		return
	}
	delete(e.pending, r.Token)
	ent.state = StateCompleted
	if ent.timer != nil {
		ent.timer.Stop()
	}
	r.Console, e.console = e.console, nil

	if ent.rm.IsCancelled() {
		e.cancelled.Add(1)
		e.logger.Debug("reply for cancelled command discarded", zap.Uint64("token", r.Token))
		return
	}

	var err error
	if r.Class == mi.ClassError {
		err = &CommandError{
			Token:     r.Token,
			Operation: ent.cmd.Operation,
			Message:   r.ErrorMessage(),
			Code:      r.ErrorCode(),
		}
		e.failed.Add(1)
	} else {
		e.completed.Add(1)
	}

	e.notifyDone(r.Token, ent.cmd, r, err)
	if err != nil {
		ent.rm.Fail(err)
		return
	}
	ent.rm.Complete(r)
}

func (e *Engine) protocolError(err error) {
	e.protocolErrors.Add(1)

	var pe *mi.ProtocolError
	if errors.As(err, &pe) && pe.HasToken && pe.IsResult {
		if ent, ok := e.pending[pe.Token]; ok {
			delete(e.pending, pe.Token)
			ent.state = StateCompleted
			if ent.timer != nil {
				ent.timer.Stop()
			}
			e.logger.Warn("malformed reply", zap.Uint64("token", pe.Token), zap.Error(err))
			if ent.rm.IsCancelled() {
				e.cancelled.Add(1)
				return
			}
			e.failed.Add(1)
			e.notifyDone(pe.Token, ent.cmd, nil, err)
			ent.rm.Fail(err)
			return
		}
	}
	e.logger.Warn("malformed record", zap.Error(err))
}

func (e *Engine) disconnect(cause error) {
	if e.closed != nil {
		return
	}
	err := disconnected(cause)
	e.closed = err

	tokens := make([]uint64, 0, len(e.pending))
	for token := range e.pending {
		tokens = append(tokens, token)
	}
	sort.Slice(tokens, func(i, j int) bool { return tokens[i] < tokens[j] })

	for _, token := range tokens {
		ent := e.pending[token]
		delete(e.pending, token)
		ent.state = StateCompleted
		if ent.timer != nil {
			ent.timer.Stop()
		}
		if ent.rm.IsCancelled() {
			e.cancelled.Add(1)
			continue
		}
		e.failed.Add(1)
		e.notifyDone(token, ent.cmd, nil, err)
		ent.rm.Fail(err)
	}
	e.console = nil

	e.logger.Info("backend disconnected", zap.Error(cause), zap.Int("failed", len(tokens)))
	if e.onDisconnect != nil {
		e.onDisconnect(err)
	}
}

func (e *Engine) commandListeners() []listenerEntry[CommandListener] {
	e.listenerMu.Lock()
	defer e.listenerMu.Unlock()
	return e.cmdListeners
}

func (e *Engine) notifyQueued(token uint64, cmd mi.Command) {
	for _, le := range e.commandListeners() {
		le.listener.CommandQueued(token, cmd)
	}
}

func (e *Engine) notifySent(token uint64, cmd mi.Command) {
	for _, le := range e.commandListeners() {
		le.listener.CommandSent(token, cmd)
	}
}

func (e *Engine) notifyDone(token uint64, cmd mi.Command, rec *mi.ResultRecord, err error) {
	for _, le := range e.commandListeners() {
		le.listener.CommandDone(token, cmd, rec, err)
	}
}

func (e *Engine) deliver(rec mi.Record) {
	e.listenerMu.Lock()
	listeners := e.eventListeners
	e.listenerMu.Unlock()

	for _, le := range listeners {
		le.listener.EventReceived(rec)
	}
}
