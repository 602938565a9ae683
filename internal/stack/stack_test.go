package stack

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/dshills/gdbmi/internal/command"
	"github.com/dshills/gdbmi/internal/execctx"
	"github.com/dshills/gdbmi/internal/executor"
	"github.com/dshills/gdbmi/internal/monitor"
)

type wire struct {
	mu      sync.Mutex
	written []string
	onLine  func(string)
}

func (w *wire) Start(onLine func(string), _ func(error)) error {
	w.onLine = onLine
	return nil
}

func (w *wire) Write(p []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.written = append(w.written, string(p))
	return nil
}

func (w *wire) Close() error { return nil }

func (w *wire) lines() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.written...)
}

type rig struct {
	exec    *executor.Executor
	wire    *wire
	arena   *execctx.Arena
	svc     *Service
	process execctx.Handle
	threads []execctx.Handle
}

// newRig sets up process i1 with the given thread ids.
func newRig(t *testing.T, threadIDs ...string) *rig {
	t.Helper()
	r := &rig{
		exec:  executor.New(executor.WithName("stack-test")),
		wire:  &wire{},
		arena: execctx.NewArena(),
	}
	logger := zaptest.NewLogger(t)
	engine := command.New(r.exec, r.wire, command.WithTimeout(0), command.WithLogger(logger))
	r.svc = New(r.exec, engine, r.arena, WithLogger(logger))

	require.NoError(t, r.exec.Start())
	require.NoError(t, engine.Start())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = r.exec.Shutdown(ctx)
	})

	require.NoError(t, r.exec.Run(context.Background(), func() {
		r.process = r.arena.NewProcess("i1")
		for _, id := range threadIDs {
			h, err := r.arena.NewThread(r.process, id)
			require.NoError(t, err)
			r.threads = append(r.threads, h)
		}
	}))
	return r
}

func (r *rig) feed(t *testing.T, lines ...string) {
	t.Helper()
	for _, line := range lines {
		r.wire.onLine(line)
	}
	r.flush(t)
}

func (r *rig) flush(t *testing.T) {
	t.Helper()
	for idle := false; !idle; {
		require.NoError(t, r.exec.Run(context.Background(), func() {
			idle = r.exec.Stats().Pending == 0
		}))
	}
}

func wait(t *testing.T, rm *monitor.RequestMonitor) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := rm.Wait(ctx)
	require.False(t, errors.Is(err, context.DeadlineExceeded), "monitor did not complete")
	return err
}

func TestFrames(t *testing.T) {
	r := newRig(t, "1")

	dm := monitor.NewData[[]Frame](r.exec, nil)
	r.svc.Frames(r.threads[0], dm)
	r.flush(t)
	assert.Equal(t, []string{"1-stack-list-frames --thread 1\n"}, r.wire.lines())

	r.feed(t, `1^done,stack=[frame={level="0",addr="0x0000000000001139",func="main",file="m.c",fullname="/src/m.c",line="7",arch="i386:x86-64"},`+
		`frame={level="1",addr="0x00007ffff7df0083",func="__libc_start_main",from="/lib/libc.so.6"}]`)
	require.NoError(t, wait(t, dm.RequestMonitor))

	frames, err := dm.Data()
	require.NoError(t, err)
	require.Len(t, frames, 2)

	assert.Equal(t, 0, frames[0].Level)
	assert.Equal(t, "m.c:7", frames[0].Location())
	assert.Equal(t, "1", frames[0].ThreadID)
	assert.Equal(t, 1, frames[1].Level)
	assert.Equal(t, "__libc_start_main", frames[1].Location())
	assert.Equal(t, "/lib/libc.so.6", frames[1].From)

	require.NoError(t, r.exec.Run(context.Background(), func() {
		for i, f := range frames {
			c, ok := r.arena.Get(f.Context)
			require.True(t, ok)
			assert.Equal(t, execctx.KindFrame, c.Kind)
			assert.Equal(t, r.threads[0], c.Parent)
			assert.Equal(t, []string{"0", "1"}[i], c.ID)
		}
	}))
}

func TestFramesWrongKind(t *testing.T) {
	r := newRig(t, "1")

	dm := monitor.NewData[[]Frame](r.exec, nil)
	r.svc.Frames(r.process, dm)
	assert.ErrorIs(t, wait(t, dm.RequestMonitor), execctx.ErrWrongKind)

	unknown := monitor.NewData[[]Frame](r.exec, nil)
	r.svc.Frames(execctx.Handle(99), unknown)
	assert.ErrorIs(t, wait(t, unknown.RequestMonitor), execctx.ErrUnknownContext)
	assert.Empty(t, r.wire.lines())
}

func TestDepth(t *testing.T) {
	r := newRig(t, "3")

	dm := monitor.NewData[int](r.exec, nil)
	r.svc.Depth(r.threads[0], dm)
	r.flush(t)
	r.feed(t, `1^done,depth="12"`)
	require.NoError(t, wait(t, dm.RequestMonitor))

	n, err := dm.Data()
	require.NoError(t, err)
	assert.Equal(t, 12, n)
	assert.Equal(t, []string{"1-stack-info-depth --thread 3\n"}, r.wire.lines())
}

func TestThreads(t *testing.T) {
	r := newRig(t, "1")

	dm := monitor.NewData[[]Thread](r.exec, nil)
	r.svc.Threads(r.process, dm)
	r.flush(t)
	assert.Equal(t, []string{"1-thread-info\n"}, r.wire.lines())

	r.feed(t, `1^done,threads=[{id="2",target-id="Thread 0x7ffff7d8a640 (LWP 11)",name="worker",state="running",core="1"},`+
		`{id="1",target-id="process 10",frame={level="0",addr="0x0000000000001139",func="main",args=[],file="m.c",line="7"},state="stopped",core="0"}],current-thread-id="1"`)
	require.NoError(t, wait(t, dm.RequestMonitor))

	threads, err := dm.Data()
	require.NoError(t, err)
	require.Len(t, threads, 2)

	assert.Equal(t, "2", threads[0].ID)
	assert.Equal(t, "worker", threads[0].Name)
	assert.Equal(t, "running", threads[0].State)
	assert.Nil(t, threads[0].Top)

	assert.Equal(t, r.threads[0], threads[1].Context)
	require.NotNil(t, threads[1].Top)
	assert.Equal(t, "main", threads[1].Top.Function)

	require.NoError(t, r.exec.Run(context.Background(), func() {
		h, ok := r.arena.Thread("2")
		require.True(t, ok)
		assert.Equal(t, r.process, r.arena.Parent(h))
		assert.Equal(t, h, threads[0].Context)
	}))
}

func TestTopFrames(t *testing.T) {
	r := newRig(t, "1", "2")

	dm := monitor.NewData[[]Frame](r.exec, nil)
	r.svc.TopFrames(r.process, dm)
	r.flush(t)
	assert.Equal(t, []string{
		"1-stack-list-frames --thread 1 0 0\n",
		"2-stack-list-frames --thread 2 0 0\n",
	}, r.wire.lines())

	// Replies arrive out of order; results keep thread order.
	r.feed(t,
		`2^done,stack=[frame={level="0",addr="0x2",func="worker"}]`,
		`1^done,stack=[frame={level="0",addr="0x1",func="main"}]`,
	)
	require.NoError(t, wait(t, dm.RequestMonitor))

	frames, err := dm.Data()
	require.NoError(t, err)
	require.Len(t, frames, 2)
	assert.Equal(t, "main", frames[0].Function)
	assert.Equal(t, "1", frames[0].ThreadID)
	assert.Equal(t, "worker", frames[1].Function)
	assert.Equal(t, "2", frames[1].ThreadID)
}

func TestTopFramesFailure(t *testing.T) {
	r := newRig(t, "1", "2")

	dm := monitor.NewData[[]Frame](r.exec, nil)
	r.svc.TopFrames(r.process, dm)
	r.flush(t)
	r.feed(t,
		`1^done,stack=[frame={level="0",addr="0x1",func="main"}]`,
		`2^error,msg="Thread is running."`,
	)
	assert.ErrorIs(t, wait(t, dm.RequestMonitor), command.ErrRejected)
}

func TestTopFramesNoThreads(t *testing.T) {
	r := newRig(t)

	dm := monitor.NewData[[]Frame](r.exec, nil)
	r.svc.TopFrames(r.process, dm)
	require.NoError(t, wait(t, dm.RequestMonitor))

	frames, err := dm.Data()
	require.NoError(t, err)
	assert.Empty(t, frames)
	assert.Empty(t, r.wire.lines())
}

func TestMalformedStack(t *testing.T) {
	r := newRig(t, "1")

	dm := monitor.NewData[[]Frame](r.exec, nil)
	r.svc.Frames(r.threads[0], dm)
	r.flush(t)
	r.feed(t, "1^done")
	assert.ErrorIs(t, wait(t, dm.RequestMonitor), ErrMalformedReply)
}
