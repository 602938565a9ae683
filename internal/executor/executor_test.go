package executor

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startExecutor(t *testing.T, opts ...Option) *Executor {
	t.Helper()
	e := New(opts...)
	require.NoError(t, e.Start())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = e.Shutdown(ctx)
	})
	return e
}

func TestExecutorRunsInSubmissionOrder(t *testing.T) {
	e := startExecutor(t)

	const n = 1000
	var (
		order  []int
		active atomic.Int32
		maxAct atomic.Int32
	)
	for i := 0; i < n; i++ {
		i := i
		_, err := e.Submit(func() {
			cur := active.Add(1)
			if cur > maxAct.Load() {
				maxAct.Store(cur)
			}
			order = append(order, i)
			active.Add(-1)
		})
		require.NoError(t, err)
	}

	require.NoError(t, e.Run(context.Background(), func() {}))
	require.Len(t, order, n)
	for i, v := range order {
		assert.Equal(t, i, v)
	}
	assert.Equal(t, int32(1), maxAct.Load())
}

func TestExecutorSequenceNumbersIncrease(t *testing.T) {
	e := New()
	var last uint64
	for i := 0; i < 10; i++ {
		seq, err := e.Submit(func() {})
		require.NoError(t, err)
		assert.Greater(t, seq, last)
		last = seq
	}
	assert.Equal(t, 10, e.Stats().Pending)
}

func TestExecutorConcurrentSubmittersAreSerialized(t *testing.T) {
	e := startExecutor(t)

	var (
		wg      sync.WaitGroup
		counter int
		active  atomic.Int32
		overlap atomic.Bool
	)
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				_, _ = e.Submit(func() {
					if active.Add(1) > 1 {
						overlap.Store(true)
					}
					counter++
					active.Add(-1)
				})
			}
		}()
	}
	wg.Wait()

	require.NoError(t, e.Run(context.Background(), func() {}))
	assert.Equal(t, 1600, counter)
	assert.False(t, overlap.Load())
}

func TestExecutorNoReentrantExecution(t *testing.T) {
	e := startExecutor(t)

	var trace []string
	_, err := e.Submit(func() {
		trace = append(trace, "outer-start")
		_, _ = e.Submit(func() { trace = append(trace, "inner") })
		trace = append(trace, "outer-end")
	})
	require.NoError(t, err)
	_, err = e.Submit(func() { trace = append(trace, "second") })
	require.NoError(t, err)

	require.NoError(t, e.Run(context.Background(), func() {}))
	assert.Equal(t, []string{"outer-start", "outer-end", "second", "inner"}, trace)
}

func TestExecutorShutdownDrainsQueue(t *testing.T) {
	e := New()
	require.NoError(t, e.Start())

	gate := make(chan struct{})
	var ran atomic.Int32
	_, _ = e.Submit(func() { <-gate })
	for i := 0; i < 5; i++ {
		_, _ = e.Submit(func() {
			ran.Add(1)
			_, _ = e.Submit(func() { ran.Add(1) })
		})
	}

	shutdownErr := make(chan error, 1)
	go func() {
		shutdownErr <- e.Shutdown(context.Background())
	}()
	close(gate)

	require.NoError(t, <-shutdownErr)
	assert.Equal(t, int32(10), ran.Load())
	assert.True(t, e.IsStopped())

	_, err := e.Submit(func() {})
	assert.ErrorIs(t, err, ErrShutdown)
	assert.Equal(t, uint64(1), e.Stats().Rejected)
}

func TestExecutorShutdownBeforeStartDiscardsQueue(t *testing.T) {
	e := New()
	_, _ = e.Submit(func() {})
	_, _ = e.Submit(func() {})

	require.NoError(t, e.Shutdown(context.Background()))
	assert.Equal(t, uint64(2), e.Stats().Rejected)
	assert.ErrorIs(t, e.Start(), ErrShutdown)
}

func TestExecutorRecoversPanics(t *testing.T) {
	var (
		mu        sync.Mutex
		recovered []any
	)
	e := startExecutor(t, WithPanicHandler(func(_ uint64, r any, stack []byte) {
		mu.Lock()
		recovered = append(recovered, r)
		mu.Unlock()
		assert.NotEmpty(t, stack)
	}))

	_, _ = e.Submit(func() { panic("boom") })
	var after bool
	require.NoError(t, e.Run(context.Background(), func() { after = true }))

	assert.True(t, after)
	mu.Lock()
	assert.Equal(t, []any{"boom"}, recovered)
	mu.Unlock()
	assert.Equal(t, uint64(1), e.Stats().Panicked)
}

func TestExecutorSchedule(t *testing.T) {
	e := startExecutor(t)

	fired := make(chan struct{})
	e.Schedule(10*time.Millisecond, func() { close(fired) })

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("scheduled task did not run")
	}

	var ran atomic.Bool
	timer := e.Schedule(50*time.Millisecond, func() { ran.Store(true) })
	assert.True(t, timer.Stop())
	assert.False(t, timer.Stop())
	time.Sleep(80 * time.Millisecond)
	assert.False(t, ran.Load())
}

func TestExecutorDoubleStart(t *testing.T) {
	e := startExecutor(t)
	assert.ErrorIs(t, e.Start(), ErrAlreadyRunning)
}

func TestExecutorRunHonorsContext(t *testing.T) {
	e := New() // never started, so Run cannot complete
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := e.Run(ctx, func() {})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
