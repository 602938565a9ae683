package breakpoints

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/dshills/gdbmi/internal/command"
	"github.com/dshills/gdbmi/internal/event"
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

// Event is the payload of breakpoint events.
type Event struct {
	Breakpoint Breakpoint `json:"breakpoint"`

	// ThreadID is set for hits.
	ThreadID string `json:"threadId,omitempty"`
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithPublisher sets where events are published.
func WithPublisher(p Publisher, sessionID string) Option {
	return func(s *Service) {
		s.pub = p
		s.sessionID = sessionID
	}
}

// Service manages the breakpoints of one session.
type Service struct {
	exec      *executor.Executor
	queuer    Queuer
	pub       Publisher
	sessionID string
	logger    *zap.Logger

	// Owned by the executor.
	table    map[string]*Breakpoint
	disposed bool
}

// New creates a breakpoint service.
func New(exec *executor.Executor, q Queuer, opts ...Option) *Service {
	s := &Service{
		exec:   exec,
		queuer: q,
		logger: zap.NewNop(),
		table:  make(map[string]*Breakpoint),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Insert inserts a breakpoint and delivers the backend's table entry.
func (s *Service) Insert(spec Spec, rm *monitor.DataMonitor[Breakpoint]) {
	s.submit(rm, func() {
		if spec.Location == "" {
			rm.Fail(ErrNoLocation)
			return
		}
		s.queuer.Queue(spec.command(), monitor.Map(s.exec, rm, func(rec *mi.ResultRecord) (Breakpoint, error) {
			t := rec.Results.Tuple("bkpt")
			if t == nil {
				return Breakpoint{}, fmt.Errorf("%w: no bkpt in %s result", ErrMalformedReply, rec.Class)
			}
			b := FromTuple(t)
			s.store(b, event.TopicBreakpointCreated)
			return b, nil
		}))
	})
}

// Delete deletes breakpoint number.
func (s *Service) Delete(number string, rm *monitor.RequestMonitor) {
	s.submit(rm, func() {
		if _, ok := s.table[number]; !ok {
			rm.Fail(fmt.Errorf("%w: %s", ErrUnknownBreakpoint, number))
			return
		}
		s.queuer.Queue(mi.BreakDelete(number), monitor.AndThen(s.exec, rm, func(*mi.ResultRecord) {
			s.remove(number)
			rm.Done()
		}))
	})
}

// Enable enables breakpoint number.
func (s *Service) Enable(number string, rm *monitor.RequestMonitor) {
	s.setEnabled(number, true, rm)
}

// Disable disables breakpoint number.
func (s *Service) Disable(number string, rm *monitor.RequestMonitor) {
	s.setEnabled(number, false, rm)
}

func (s *Service) setEnabled(number string, enabled bool, rm *monitor.RequestMonitor) {
	s.submit(rm, func() {
		if _, ok := s.table[number]; !ok {
			rm.Fail(fmt.Errorf("%w: %s", ErrUnknownBreakpoint, number))
			return
		}
		cmd := mi.BreakDisable(number)
		if enabled {
			cmd = mi.BreakEnable(number)
		}
		s.queuer.Queue(cmd, monitor.AndThen(s.exec, rm, func(*mi.ResultRecord) {
			if b, ok := s.table[number]; ok && b.Enabled != enabled {
				b.Enabled = enabled
				s.publish(event.TopicBreakpointModified, Event{Breakpoint: *b})
			}
			rm.Done()
		}))
	})
}

// Refresh replaces the table with the result of -break-list.
func (s *Service) Refresh(rm *monitor.DataMonitor[[]Breakpoint]) {
	s.submit(rm, func() {
		s.queuer.Queue(mi.BreakList(), monitor.Map(s.exec, rm, func(rec *mi.ResultRecord) ([]Breakpoint, error) {
			body := rec.Results.Tuple("BreakpointTable").List("body")
			table := make(map[string]*Breakpoint, body.Len())
			for _, t := range body.Tuples() {
				b := FromTuple(t)
				table[b.Number] = &b
			}
			s.table = table
			return s.List(), nil
		}))
	})
}

// Breakpoints delivers the current table ordered by number.
func (s *Service) Breakpoints(rm *monitor.DataMonitor[[]Breakpoint]) {
	s.submit(rm, func() {
		rm.Complete(s.List())
	})
}

// List returns the table ordered by number. Executor only.
func (s *Service) List() []Breakpoint {
	out := make([]Breakpoint, 0, len(s.table))
	for _, b := range s.table {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i].Number, out[j].Number) })
	return out
}

// Get returns breakpoint number. Executor only.
func (s *Service) Get(number string) (Breakpoint, bool) {
	b, ok := s.table[number]
	if !ok {
		return Breakpoint{}, false
	}
	return *b, true
}

// Dispose stops tracking. Executor only.
func (s *Service) Dispose() {
	s.disposed = true
	s.table = make(map[string]*Breakpoint)
}

// CommandQueued implements command.CommandListener.
func (s *Service) CommandQueued(uint64, mi.Command) {}

// CommandSent implements command.CommandListener.
func (s *Service) CommandSent(uint64, mi.Command) {}

// CommandDone implements command.CommandListener. A -break-delete typed at
// the console is not echoed as =breakpoint-deleted, so the reply is
// applied here too.
func (s *Service) CommandDone(_ uint64, cmd mi.Command, rec *mi.ResultRecord, err error) {
	if err != nil || rec == nil || s.disposed || cmd.Operation != "-break-delete" {
		return
	}
	for _, n := range cmd.Parameters {
		s.remove(n)
	}
}

// EventReceived implements command.EventListener.
func (s *Service) EventReceived(rec mi.Record) {
	r, ok := rec.(*mi.AsyncRecord)
	if !ok || s.disposed {
		return
	}
	switch {
	case r.Kind == mi.AsyncNotify && r.Class == "breakpoint-created":
		if t := r.Results.Tuple("bkpt"); t != nil {
			s.store(FromTuple(t), event.TopicBreakpointCreated)
		}
	case r.Kind == mi.AsyncNotify && r.Class == "breakpoint-modified":
		if t := r.Results.Tuple("bkpt"); t != nil {
			s.store(FromTuple(t), event.TopicBreakpointModified)
		}
	case r.Kind == mi.AsyncNotify && r.Class == "breakpoint-deleted":
		s.remove(r.Results.String("id"))
	case r.Kind == mi.AsyncExec && r.Class == "stopped" && r.Results.String("reason") == "breakpoint-hit":
		s.hit(r.Results.String("bkptno"), r.Results.String("thread-id"), r.Results.String("disp"))
	}
}

// store inserts or replaces b. Hit counts never go backwards.
func (s *Service) store(b Breakpoint, topic event.Topic) {
	if b.Number == "" {
		return
	}
	old, existed := s.table[b.Number]
	if existed {
		if old.HitCount > b.HitCount {
			b.HitCount = old.HitCount
		}
		if b == *old {
			return
		}
		topic = event.TopicBreakpointModified
	}
	s.table[b.Number] = &b
	s.logger.Debug("breakpoint", zap.String("topic", string(topic)), zap.String("number", b.Number))
	s.publish(topic, Event{Breakpoint: b})
}

func (s *Service) remove(number string) {
	b, ok := s.table[number]
	if !ok {
		return
	}
	delete(s.table, number)
	s.publish(event.TopicBreakpointDeleted, Event{Breakpoint: *b})
}

func (s *Service) hit(number, threadID, disp string) {
	b, ok := s.table[number]
	if !ok {
		s.logger.Debug("hit on unknown breakpoint", zap.String("number", number))
		return
	}
	b.HitCount++
	s.publish(event.TopicBreakpointHit, Event{Breakpoint: *b, ThreadID: threadID})
	if disp == "del" || b.Temporary() {
		s.remove(number)
	}
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

func (s *Service) publish(topic event.Topic, payload Event) {
	if s.pub == nil {
		return
	}
	if err := s.pub.Publish(context.Background(), event.New(topic, s.sessionID, payload)); err != nil {
		s.logger.Warn("publish failed", zap.String("topic", string(topic)), zap.Error(err))
	}
}
