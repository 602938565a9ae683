package main

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/tidwall/sjson"

	"github.com/dshills/gdbmi/internal/breakpoints"
	"github.com/dshills/gdbmi/internal/event"
	"github.com/dshills/gdbmi/internal/mi"
	"github.com/dshills/gdbmi/internal/runcontrol"
	"github.com/dshills/gdbmi/internal/session"
	"github.com/dshills/gdbmi/internal/stack"
)

// printer writes one JSON document per line. It is an event.Handler.
type printer struct {
	mu sync.Mutex
	w  io.Writer
}

func newPrinter(w io.Writer) *printer {
	return &printer{w: w}
}

// Handle implements event.Handler.
func (p *printer) Handle(_ context.Context, ev event.Event) error {
	line, err := encodeEvent(ev)
	if err != nil {
		return err
	}
	return p.write(line)
}

func (p *printer) write(line string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := fmt.Fprintln(p.w, line)
	return err
}

// doc accumulates sjson edits and keeps the first error.
type doc struct {
	s   string
	err error
}

func newDoc(typ string) *doc {
	d := &doc{s: "{}"}
	d.set("type", typ)
	return d
}

func (d *doc) set(path string, v any) {
	if d.err != nil {
		return
	}
	d.s, d.err = sjson.Set(d.s, path, v)
}

func (d *doc) setIf(path, v string) {
	if v != "" {
		d.set(path, v)
	}
}

func (d *doc) String() (string, error) {
	return d.s, d.err
}

func encodeEvent(ev event.Event) (string, error) {
	d := newDoc("event")
	d.set("topic", string(ev.Topic))
	d.set("session", ev.Session)
	d.set("time", ev.Time.UTC().Format(time.RFC3339Nano))

	switch p := ev.Payload.(type) {
	case runcontrol.SuspendedEvent:
		d.set("payload.context", uint32(p.Context))
		d.setIf("payload.thread", p.ThreadID)
		d.set("payload.reason", p.Reason.String())
		d.setIf("payload.details", p.Details)
		if len(p.StoppedThreads) > 0 {
			d.set("payload.stoppedThreads", p.StoppedThreads)
		}
		if len(p.Frame) > 0 {
			d.setIf("payload.frame.addr", p.Frame.String("addr"))
			d.setIf("payload.frame.func", p.Frame.String("func"))
			d.setIf("payload.frame.file", p.Frame.String("file"))
			if line, ok := p.Frame.Int("line"); ok {
				d.set("payload.frame.line", line)
			}
		}
	case runcontrol.ResumedEvent:
		d.set("payload.context", uint32(p.Context))
		d.setIf("payload.thread", p.ThreadID)
		d.set("payload.state", p.State.String())
		d.set("payload.reason", p.Reason.String())
	case runcontrol.ExitedEvent:
		d.set("payload.context", uint32(p.Context))
		d.setIf("payload.exitCode", p.ExitCode)
		d.set("payload.backend", p.Backend)
	case runcontrol.ContextEvent:
		d.set("payload.context", uint32(p.Context.Handle))
		d.set("payload.kind", p.Context.Kind.String())
		d.set("payload.id", p.Context.ID)
		if p.Context.Parent.Valid() {
			d.set("payload.parent", uint32(p.Context.Parent))
		}
	case breakpoints.Event:
		d.set("payload.breakpoint", p.Breakpoint)
		d.setIf("payload.thread", p.ThreadID)
	case session.Output:
		d.set("payload.stream", streamName(p.Kind))
		d.set("payload.text", p.Text)
	case nil:
	default:
		d.set("payload", p)
	}
	return d.String()
}

func streamName(k mi.StreamKind) string {
	switch k {
	case mi.StreamConsole:
		return "console"
	case mi.StreamTarget:
		return "target"
	case mi.StreamLog:
		return "log"
	default:
		return "unknown"
	}
}

func encodeFrames(thread string, frames []stack.Frame) (string, error) {
	d := newDoc("frames")
	d.set("thread", thread)
	d.set("frames", frames)
	return d.String()
}

func encodeThreads(threads []stack.Thread) (string, error) {
	d := newDoc("threads")
	d.set("threads", threads)
	return d.String()
}

func encodeReply(command string, err error) (string, error) {
	d := newDoc("reply")
	d.set("command", command)
	if err != nil {
		d.set("status", "error")
		d.set("error", err.Error())
	} else {
		d.set("status", "ok")
	}
	return d.String()
}
