// Package stack queries threads and call stacks and records them as
// execution contexts.
package stack

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/dshills/gdbmi/internal/command"
	"github.com/dshills/gdbmi/internal/execctx"
	"github.com/dshills/gdbmi/internal/executor"
	"github.com/dshills/gdbmi/internal/mi"
	"github.com/dshills/gdbmi/internal/monitor"
)

// Queuer queues MI commands. *command.Engine satisfies it.
type Queuer interface {
	Queue(cmd mi.Command, rm *command.Monitor)
}

// Frame is one stack frame.
type Frame struct {
	// Context is the frame's execution context.
	Context execctx.Handle `json:"-"`

	ThreadID string `json:"threadId"`
	Level    int    `json:"level"`
	Address  string `json:"addr,omitempty"`
	Function string `json:"func,omitempty"`
	File     string `json:"file,omitempty"`
	FullName string `json:"fullname,omitempty"`
	Line     int    `json:"line,omitempty"`

	// From is the shared library for frames without debug info.
	From string `json:"from,omitempty"`
}

// Location returns file:line, or the function or address when there is
// no line information.
func (f Frame) Location() string {
	switch {
	case f.File != "" && f.Line > 0:
		return fmt.Sprintf("%s:%d", f.File, f.Line)
	case f.Function != "":
		return f.Function
	default:
		return f.Address
	}
}

// Thread is one thread as described by -thread-info.
type Thread struct {
	Context  execctx.Handle `json:"-"`
	ID       string         `json:"id"`
	TargetID string         `json:"targetId,omitempty"`
	Name     string         `json:"name,omitempty"`

	// State is "stopped" or "running".
	State string `json:"state"`
	Core  string `json:"core,omitempty"`

	// Top is the innermost frame of a stopped thread.
	Top *Frame `json:"frame,omitempty"`
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// Service answers stack and thread queries for one session.
type Service struct {
	exec   *executor.Executor
	queuer Queuer
	arena  *execctx.Arena
	logger *zap.Logger

	disposed bool
}

// New creates a stack service.
func New(exec *executor.Executor, q Queuer, arena *execctx.Arena, opts ...Option) *Service {
	s := &Service{
		exec:   exec,
		queuer: q,
		arena:  arena,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Frames lists every frame of thread, innermost first.
func (s *Service) Frames(thread execctx.Handle, rm *monitor.DataMonitor[[]Frame]) {
	s.submit(rm, func() {
		c, err := s.expect(thread, execctx.KindThread)
		if err != nil {
			rm.Fail(err)
			return
		}
		cmd := mi.StackListFrames(-1, 0).WithContext(mi.Context{Thread: c.ID})
		s.queuer.Queue(cmd, monitor.Map(s.exec, rm, func(rec *mi.ResultRecord) ([]Frame, error) {
			return s.frames(thread, rec)
		}))
	})
}

// Depth reports the number of frames of thread.
func (s *Service) Depth(thread execctx.Handle, rm *monitor.DataMonitor[int]) {
	s.submit(rm, func() {
		c, err := s.expect(thread, execctx.KindThread)
		if err != nil {
			rm.Fail(err)
			return
		}
		cmd := mi.StackInfoDepth().WithContext(mi.Context{Thread: c.ID})
		s.queuer.Queue(cmd, monitor.Map(s.exec, rm, func(rec *mi.ResultRecord) (int, error) {
			n, ok := rec.Results.Int("depth")
			if !ok {
				return 0, fmt.Errorf("%w: no depth", ErrMalformedReply)
			}
			return n, nil
		}))
	})
}

// Threads describes the threads of process. Threads the arena has not seen
// yet are added under process.
func (s *Service) Threads(process execctx.Handle, rm *monitor.DataMonitor[[]Thread]) {
	s.submit(rm, func() {
		if _, err := s.expect(process, execctx.KindProcess); err != nil {
			rm.Fail(err)
			return
		}
		s.queuer.Queue(mi.ThreadInfo(""), monitor.Map(s.exec, rm, func(rec *mi.ResultRecord) ([]Thread, error) {
			return s.threads(process, rec)
		}))
	})
}

// TopFrames queries the innermost frame of every known thread of process
// concurrently. Frames are delivered in thread order.
func (s *Service) TopFrames(process execctx.Handle, rm *monitor.DataMonitor[[]Frame]) {
	s.submit(rm, func() {
		if _, err := s.expect(process, execctx.KindProcess); err != nil {
			rm.Fail(err)
			return
		}
		multi := monitor.NewMulti[Frame](s.exec, rm)
		for _, thread := range s.arena.Children(process) {
			thread := thread
			c, _ := s.arena.Get(thread)
			cmd := mi.StackListFrames(0, 0).WithContext(mi.Context{Thread: c.ID})
			s.queuer.Queue(cmd, monitor.Map(s.exec, multi.Add(), func(rec *mi.ResultRecord) (Frame, error) {
				frames, err := s.frames(thread, rec)
				if err != nil {
					return Frame{}, err
				}
				if len(frames) == 0 {
					return Frame{}, fmt.Errorf("%w: thread %s has no frames", ErrMalformedReply, c.ID)
				}
				return frames[0], nil
			}))
		}
		multi.Seal()
	})
}

// Dispose stops the service. Executor only.
func (s *Service) Dispose() {
	s.disposed = true
}

func (s *Service) frames(thread execctx.Handle, rec *mi.ResultRecord) ([]Frame, error) {
	c, ok := s.arena.Get(thread)
	if !ok {
		return nil, fmt.Errorf("%w: thread %d exited", execctx.ErrUnknownContext, thread)
	}
	stack := rec.Results.List("stack")
	if stack == nil {
		return nil, fmt.Errorf("%w: no stack", ErrMalformedReply)
	}
	out := make([]Frame, 0, stack.Len())
	for _, t := range stack.Tuples() {
		f := parseFrame(t)
		f.ThreadID = c.ID
		h, err := s.arena.NewFrame(thread, t.String("level"))
		if err != nil {
			return nil, err
		}
		f.Context = h
		out = append(out, f)
	}
	return out, nil
}

func (s *Service) threads(process execctx.Handle, rec *mi.ResultRecord) ([]Thread, error) {
	list := rec.Results.List("threads")
	out := make([]Thread, 0, list.Len())
	for _, t := range list.Tuples() {
		id := t.String("id")
		h, known := s.arena.Thread(id)
		switch {
		case known && s.arena.Parent(h) != process:
			continue
		case !known:
			var err error
			if h, err = s.arena.NewThread(process, id); err != nil {
				return nil, err
			}
			s.logger.Debug("thread discovered", zap.String("id", id))
		}

		th := Thread{
			Context:  h,
			ID:       id,
			TargetID: t.String("target-id"),
			Name:     t.String("name"),
			State:    t.String("state"),
			Core:     t.String("core"),
		}
		if ft := t.Tuple("frame"); ft != nil {
			f := parseFrame(ft)
			f.ThreadID = id
			if fh, err := s.arena.NewFrame(h, ft.String("level")); err == nil {
				f.Context = fh
			}
			th.Top = &f
		}
		out = append(out, th)
	}
	return out, nil
}

func parseFrame(t mi.Tuple) Frame {
	f := Frame{
		Address:  t.String("addr"),
		Function: t.String("func"),
		File:     t.String("file"),
		FullName: t.String("fullname"),
		From:     t.String("from"),
	}
	f.Level, _ = t.Int("level")
	f.Line, _ = t.Int("line")
	return f
}

func (s *Service) expect(h execctx.Handle, kind execctx.Kind) (execctx.Context, error) {
	c, ok := s.arena.Get(h)
	if !ok {
		return execctx.Context{}, fmt.Errorf("%w: %d", execctx.ErrUnknownContext, h)
	}
	if c.Kind != kind {
		return execctx.Context{}, fmt.Errorf("%w: %s is not a %s", execctx.ErrWrongKind, c, kind)
	}
	return c, nil
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
