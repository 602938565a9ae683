package runcontrol

import (
	"go.uber.org/zap"

	"github.com/dshills/gdbmi/internal/event"
	"github.com/dshills/gdbmi/internal/execctx"
	"github.com/dshills/gdbmi/internal/mi"
)

// CommandQueued implements command.CommandListener.
func (s *Service) CommandQueued(uint64, mi.Command) {}

// CommandSent implements command.CommandListener.
func (s *Service) CommandSent(uint64, mi.Command) {}

// CommandDone applies the state change of an accepted resume or step.
func (s *Service) CommandDone(_ uint64, cmd mi.Command, rec *mi.ResultRecord, err error) {
	if err != nil || rec == nil || s.disposed {
		return
	}
	switch rec.Class {
	case mi.ClassRunning:
		st, ok := resumeOps[cmd.Operation]
		if !ok {
			st = StateRunning
		}
		for _, p := range s.targets(cmd.Context) {
			s.resume(p, st, false)
		}
	case mi.ClassExit:
		s.backendExited()
	}
}

// EventReceived applies out-of-band records.
func (s *Service) EventReceived(rec mi.Record) {
	if s.disposed {
		return
	}
	switch r := rec.(type) {
	case *mi.AsyncRecord:
		switch r.Kind {
		case mi.AsyncExec:
			s.execRecord(r)
		case mi.AsyncNotify:
			s.notifyRecord(r)
		}
	case *mi.ResultRecord:
		if r.Class == mi.ClassExit {
			s.backendExited()
		}
	}
}

func (s *Service) execRecord(r *mi.AsyncRecord) {
	switch r.Class {
	case "running":
		id := r.Results.String("thread-id")
		if id == "" || id == "all" {
			for _, p := range s.targets(mi.Context{}) {
				s.resume(p, StateRunning, true)
			}
			return
		}
		if t, ok := s.ensureThread(id); ok {
			p := s.arena.Parent(t)
			s.resume(p, StateRunning, true)
		}
	case "stopped":
		s.stopped(r)
	}
}

// targets returns the processes a command with ctx applies to. All-stop:
// resuming one thread resumes its whole process.
func (s *Service) targets(ctx mi.Context) []execctx.Handle {
	if ctx.ThreadGroup != "" {
		if p, ok := s.arena.Process(ctx.ThreadGroup); ok {
			return []execctx.Handle{p}
		}
		return nil
	}
	if ctx.Thread != "" {
		if t, ok := s.arena.Thread(ctx.Thread); ok {
			return []execctx.Handle{s.arena.Parent(t)}
		}
	}
	var out []execctx.Handle
	for _, p := range s.arena.Processes() {
		if s.stateOf(p).state != StateTerminated {
			out = append(out, p)
		}
	}
	if len(out) == 0 && len(s.arena.Processes()) == 0 {
		out = append(out, s.arena.NewProcess("i1"))
	}
	return out
}

// resume moves p to st. A *running record keeps a step in progress.
func (s *Service) resume(p execctx.Handle, st State, fromRecord bool) {
	cur := s.stateOf(p)
	switch {
	case cur.state == StateTerminated:
		return
	case fromRecord && cur.state != StateSuspended:
		return
	case !fromRecord && cur.state == st:
		return
	}

	s.setProcess(p, contextState{state: st, reason: ReasonUserRequest})
	for _, t := range s.arena.Children(p) {
		s.arena.ClearFrames(t)
	}
	s.logger.Debug("resumed", zap.Uint32("context", uint32(p)), zap.Stringer("state", st))
	s.publish(event.TopicResumed, ResumedEvent{Context: p, State: st, Reason: ReasonUserRequest})
}

func (s *Service) stopped(r *mi.AsyncRecord) {
	raw := r.Results.String("reason")
	reason := s.vocab.Reason(raw)
	threadID := r.Results.String("thread-id")

	var thread, p execctx.Handle
	if threadID != "" {
		if t, ok := s.ensureThread(threadID); ok {
			thread, p = t, s.arena.Parent(t)
		}
	}

	if reason == ReasonExited {
		code := r.Results.String("exit-code")
		targets := []execctx.Handle{p}
		if !p.Valid() {
			targets = s.targets(mi.Context{})
		}
		for _, proc := range targets {
			s.terminate(proc, code, false)
		}
		return
	}

	if !p.Valid() {
		ps := s.targets(mi.Context{})
		if len(ps) == 0 {
			return
		}
		p = ps[0]
	}
	if s.stateOf(p).state == StateTerminated {
		return
	}

	signal := r.Results.String("signal-name")
	if s.interrupted[p] && (raw == "" || signal == "SIGINT" || signal == "0") {
		reason = ReasonUserRequest
	}
	delete(s.interrupted, p)

	details := firstNonEmpty(signal, r.Results.String("bkptno"), r.Results.String("msg"))
	cs := contextState{state: StateSuspended, reason: reason, details: details}

	var stoppedThreads []string
	if v, ok := r.Results.Get("stopped-threads"); ok {
		if c, isConst := v.(mi.Const); isConst && c == "all" {
			stoppedThreads = []string{"all"}
		} else if l, isList := v.(*mi.List); isList {
			stoppedThreads = l.Strings()
		}
	}

	if len(stoppedThreads) == 0 || stoppedThreads[0] == "all" {
		s.setProcess(p, cs)
	} else {
		for _, id := range stoppedThreads {
			if t, ok := s.ensureThread(id); ok {
				s.set(t, cs)
			}
		}
		if s.allThreadsSuspended(p) {
			s.set(p, cs)
		}
	}

	target := p
	if thread.Valid() {
		target = thread
	}
	s.logger.Debug("suspended",
		zap.Uint32("context", uint32(target)),
		zap.Stringer("reason", reason),
		zap.String("details", details))
	s.publish(event.TopicSuspended, SuspendedEvent{
		Context:        target,
		ThreadID:       threadID,
		Reason:         reason,
		Details:        details,
		StoppedThreads: stoppedThreads,
		Frame:          r.Results.Tuple("frame"),
	})
}

func (s *Service) allThreadsSuspended(p execctx.Handle) bool {
	for _, t := range s.arena.Children(p) {
		if s.stateOf(t).state != StateSuspended {
			return false
		}
	}
	return true
}

func (s *Service) notifyRecord(r *mi.AsyncRecord) {
	switch r.Class {
	case "thread-group-added":
		id := r.Results.String("id")
		if _, ok := s.arena.Process(id); !ok {
			s.arena.NewProcess(id)
		}

	case "thread-group-started":
		id := r.Results.String("id")
		if old, ok := s.arena.Process(id); ok && s.stateOf(old).state == StateTerminated {
			for _, h := range s.arena.Remove(old) {
				delete(s.states, h)
			}
		}
		p := s.arena.NewProcess(id)
		if _, ok := s.states[p]; !ok {
			s.set(p, contextState{state: s.initial})
		}
		c, _ := s.arena.Get(p)
		s.publish(event.TopicContextStarted, ContextEvent{Context: c})

	case "thread-group-exited":
		if p, ok := s.arena.Process(r.Results.String("id")); ok {
			s.terminate(p, r.Results.String("exit-code"), false)
		}

	case "thread-created":
		p, ok := s.arena.Process(r.Results.String("group-id"))
		if !ok {
			p = s.arena.NewProcess(r.Results.String("group-id"))
		}
		t, err := s.arena.NewThread(p, r.Results.String("id"))
		if err != nil {
			s.logger.Warn("thread-created", zap.Error(err))
			return
		}
		s.set(t, s.stateOf(p))
		c, _ := s.arena.Get(t)
		s.publish(event.TopicContextStarted, ContextEvent{Context: c})

	case "thread-exited":
		if t, ok := s.arena.Thread(r.Results.String("id")); ok {
			s.removeThread(t)
		}
	}
}

func (s *Service) removeThread(t execctx.Handle) {
	c, _ := s.arena.Get(t)
	for _, h := range s.arena.Remove(t) {
		delete(s.states, h)
	}
	s.publish(event.TopicContextExited, ContextEvent{Context: c})
}

// terminate moves p to Terminated and drops its threads.
func (s *Service) terminate(p execctx.Handle, exitCode string, backend bool) {
	if !p.Valid() {
		return
	}
	for _, t := range s.arena.Children(p) {
		s.removeThread(t)
	}
	if s.stateOf(p).state == StateTerminated {
		return
	}
	s.set(p, contextState{state: StateTerminated, reason: ReasonExited, details: exitCode})
	delete(s.interrupted, p)
	s.logger.Debug("terminated", zap.Uint32("context", uint32(p)), zap.String("exit_code", exitCode))
	s.publish(event.TopicExited, ExitedEvent{Context: p, ExitCode: exitCode, Backend: backend})
}

func (s *Service) backendExited() {
	for _, p := range s.arena.Processes() {
		s.terminate(p, "", true)
	}
}

// ensureThread finds a thread by id, creating it under the only live
// process when the backend reports it before =thread-created.
func (s *Service) ensureThread(id string) (execctx.Handle, bool) {
	if t, ok := s.arena.Thread(id); ok {
		return t, true
	}
	ps := s.targets(mi.Context{})
	if len(ps) == 0 {
		return 0, false
	}
	t, err := s.arena.NewThread(ps[0], id)
	if err != nil {
		return 0, false
	}
	s.set(t, s.stateOf(ps[0]))
	return t, true
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
