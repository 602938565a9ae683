package session

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/dshills/gdbmi/internal/breakpoints"
	"github.com/dshills/gdbmi/internal/command"
	"github.com/dshills/gdbmi/internal/event"
	"github.com/dshills/gdbmi/internal/mi"
	"github.com/dshills/gdbmi/internal/monitor"
	"github.com/dshills/gdbmi/internal/runcontrol"
	"github.com/dshills/gdbmi/internal/stack"
)

type fakeTransport struct {
	mu      sync.Mutex
	written []string
	onLine  func(string)
	onClose func(error)
	closed  bool
}

func (f *fakeTransport) Start(onLine func(string), onClose func(error)) error {
	f.onLine, f.onClose = onLine, onClose
	return nil
}

func (f *fakeTransport) Write(p []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return io.ErrClosedPipe
	}
	f.written = append(f.written, string(p))
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeTransport) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeTransport) lines() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.written...)
}

type recorder struct {
	mu     sync.Mutex
	events []event.Event
}

func (r *recorder) Handle(_ context.Context, ev event.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) topics() []event.Topic {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]event.Topic, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Topic)
	}
	return out
}

func (r *recorder) last() event.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

func startSession(t *testing.T, pattern event.Topic) (*Session, *fakeTransport, *recorder) {
	t.Helper()
	s := New(DefaultConfig(), WithLogger(zaptest.NewLogger(t)))
	rec := &recorder{}
	_, err := s.Subscribe(pattern, rec)
	require.NoError(t, err)

	ft := &fakeTransport{}
	require.NoError(t, s.Start(context.Background(), ft))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.Terminate(ctx)
	})
	return s, ft, rec
}

func wait(t *testing.T, rm *monitor.RequestMonitor) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := rm.Wait(ctx)
	require.False(t, errors.Is(err, context.DeadlineExceeded), "monitor did not complete")
	return err
}

func flush(t *testing.T, s *Session) {
	t.Helper()
	require.NoError(t, s.Executor().Run(context.Background(), func() {}))
}

func TestStartRegistersServices(t *testing.T) {
	s, _, rec := startSession(t, "session.*")

	assert.Equal(t, StateActive, s.State())
	assert.Equal(t, []Capability{CapRunControl, CapBreakpoints, CapStack, CapCommandControl}, s.Capabilities())
	assert.Equal(t, []event.Topic{event.TopicSessionStarted}, rec.topics())

	rc, err := ServiceAs[*runcontrol.Service](s, CapRunControl)
	require.NoError(t, err)
	assert.NotNil(t, rc)

	_, err = ServiceAs[*breakpoints.Service](s, CapBreakpoints)
	require.NoError(t, err)
	_, err = ServiceAs[*stack.Service](s, CapStack)
	require.NoError(t, err)
	_, err = ServiceAs[*command.Engine](s, CapCommandControl)
	require.NoError(t, err)

	_, err = s.Service("disassembly")
	assert.ErrorIs(t, err, ErrServiceNotFound)
	assert.ErrorIs(t, err, monitor.ErrInternal)

	_, err = ServiceAs[*stack.Service](s, CapRunControl)
	assert.ErrorIs(t, err, ErrServiceType)
	assert.ErrorIs(t, err, monitor.ErrInternal)

	assert.ErrorIs(t, s.Start(context.Background(), &fakeTransport{}), ErrAlreadyStarted)
}

func TestQueue(t *testing.T) {
	s, ft, _ := startSession(t, "**")

	rm := s.Queue(mi.GdbVersion())
	flush(t, s)
	assert.Equal(t, []string{"1-gdb-version\n"}, ft.lines())

	ft.onLine(`~"GNU gdb (GDB) 14.2\n"`)
	ft.onLine("1^done")
	require.NoError(t, wait(t, rm.RequestMonitor))

	r, err := rm.Data()
	require.NoError(t, err)
	assert.Equal(t, mi.ClassDone, r.Class)
	assert.Equal(t, []string{"GNU gdb (GDB) 14.2\n"}, r.Console)
}

func TestOutputEvents(t *testing.T) {
	s, ft, rec := startSession(t, "output.*")

	ft.onLine(`~"hello\n"`)
	ft.onLine(`@"target says"`)
	ft.onLine(`&"warning: log\n"`)
	flush(t, s)

	assert.Equal(t, []event.Topic{
		event.TopicConsoleOutput,
		event.TopicTargetOutput,
		event.TopicLogOutput,
	}, rec.topics())
	assert.Equal(t, "warning: log\n", rec.last().Payload.(Output).Text)
	assert.Equal(t, s.ID(), rec.last().Session)
}

func TestSubmit(t *testing.T) {
	s, _, _ := startSession(t, "**")

	ran := make(chan struct{})
	require.NoError(t, s.Submit(func() { close(ran) }))
	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("task did not run")
	}
}

func TestTerminateFailsOutstanding(t *testing.T) {
	s, ft, rec := startSession(t, "session.*")

	first := s.Queue(mi.ExecContinue(false))
	second := s.Queue(mi.ListFeatures())
	flush(t, s)

	require.NoError(t, s.Terminate(context.Background()))
	assert.Equal(t, StateDisposed, s.State())
	assert.True(t, ft.isClosed())

	assert.ErrorIs(t, wait(t, first.RequestMonitor), command.ErrDisconnected)
	assert.ErrorIs(t, wait(t, second.RequestMonitor), command.ErrDisconnected)
	assert.Equal(t, []event.Topic{event.TopicSessionStarted, event.TopicSessionTerminated}, rec.topics())

	// Idempotent.
	require.NoError(t, s.Terminate(context.Background()))

	late := s.Queue(mi.GdbVersion())
	assert.ErrorIs(t, late.Err(), ErrNotActive)
	assert.ErrorIs(t, s.Submit(func() {}), ErrNotActive)

	_, err := s.Service(CapRunControl)
	assert.ErrorIs(t, err, ErrRegistryDisposed)

	select {
	case <-s.Done():
	default:
		t.Fatal("Done not closed")
	}
}

func TestBackendHangUpTerminates(t *testing.T) {
	s, ft, rec := startSession(t, "session.*")

	rm := s.Queue(mi.GdbVersion())
	flush(t, s)

	ft.onClose(io.EOF)

	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session did not terminate")
	}
	assert.Equal(t, StateDisposed, s.State())
	assert.ErrorIs(t, wait(t, rm.RequestMonitor), command.ErrDisconnected)

	info := rec.last().Payload.(Info)
	assert.Equal(t, "disposed", info.State)
	assert.Contains(t, info.Cause, "EOF")
}

func TestTerminateIdle(t *testing.T) {
	s := New(DefaultConfig())
	require.NoError(t, s.Terminate(context.Background()))
	assert.Equal(t, StateDisposed, s.State())
	assert.ErrorIs(t, s.Start(context.Background(), &fakeTransport{}), ErrNotActive)
}

func TestLaunchModeSetsInitialState(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LaunchMode = LaunchRun
	s := New(cfg)
	ft := &fakeTransport{}
	require.NoError(t, s.Start(context.Background(), ft))
	t.Cleanup(func() { _ = s.Terminate(context.Background()) })

	ft.onLine(`=thread-group-started,id="i1",pid="7"`)
	rc, err := ServiceAs[*runcontrol.Service](s, CapRunControl)
	require.NoError(t, err)

	var (
		data runcontrol.ExecutionData
		ok   bool
	)
	require.NoError(t, s.Executor().Run(context.Background(), func() {
		p, found := s.Arena().Process("i1")
		if !found {
			return
		}
		ok = true
		data, err = rc.Data(p)
	}))
	require.True(t, ok)
	require.NoError(t, err)
	assert.Equal(t, runcontrol.StateRunning, data.State)
}
