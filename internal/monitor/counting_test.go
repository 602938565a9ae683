package monitor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountingCompletesParentAfterNthChild(t *testing.T) {
	e := newExecutor(t)

	for _, n := range []int{1, 2, 5, 32} {
		parent := New(e, nil)
		var completions atomic.Int32
		parent.OnComplete(func(*RequestMonitor) { completions.Add(1) })

		counting := NewCounting(e, parent, n)
		for i := 0; i < n-1; i++ {
			counting.Done(nil)
			assert.False(t, parent.IsDone(), "parent completed after %d of %d children", i+1, n)
		}
		counting.Done(nil)

		require.NoError(t, parent.Wait(context.Background()))
		require.NoError(t, e.Run(context.Background(), func() {}))
		assert.Equal(t, int32(1), completions.Load())
		assert.Equal(t, StatusSuccess, parent.Status())
	}
}

func TestCountingChildErrorFailsParent(t *testing.T) {
	e := newExecutor(t)
	parent := New(e, nil)
	counting := NewCounting(e, parent, 3)

	counting.Done(nil)
	counting.Done(errors.New("thread 2: cannot access memory"))
	assert.False(t, parent.IsDone())
	counting.Done(errors.New("thread 3: cannot access memory"))

	err := parent.Wait(context.Background())
	require.Error(t, err)
	assert.Equal(t, StatusError, parent.Status())
	assert.Contains(t, err.Error(), "thread 2")
	assert.Contains(t, err.Error(), "thread 3")
}

func TestCountingCancelledChildCountsAsSuccess(t *testing.T) {
	e := newExecutor(t)
	parent := New(e, nil)
	counting := NewCounting(e, parent, 2)

	counting.Child().Cancel()
	counting.Child().Done()

	require.NoError(t, parent.Wait(context.Background()))
	assert.Equal(t, StatusSuccess, parent.Status())
	assert.Equal(t, 2, counting.Count())
}

func TestCountingOverCountIsInternalError(t *testing.T) {
	e := newExecutor(t)
	parent := New(e, nil)
	counting := NewCounting(e, parent, 1)
	counting.Done(nil)

	defer func() {
		r := recover()
		require.NotNil(t, r)
		assert.ErrorIs(t, r.(error), ErrInternal)
	}()
	counting.Done(nil)
}

func TestCountingChildrenFromManyGoroutines(t *testing.T) {
	e := newExecutor(t)
	parent := New(e, nil)
	const n = 64
	counting := NewCounting(e, parent, n)

	children := make([]*RequestMonitor, n)
	for i := range children {
		children[i] = counting.Child()
	}

	var wg sync.WaitGroup
	for _, child := range children {
		wg.Add(1)
		go func(rm *RequestMonitor) {
			defer wg.Done()
			rm.Done()
		}(child)
	}
	wg.Wait()

	require.NoError(t, parent.Wait(context.Background()))
	assert.Equal(t, n, counting.Count())
}

func TestCountingSetTargetLater(t *testing.T) {
	e := newExecutor(t)
	parent := New(e, nil)
	counting := NewCounting(e, parent, -1)

	counting.Done(nil)
	counting.Done(nil)
	assert.False(t, parent.IsDone())

	counting.SetTarget(3)
	assert.False(t, parent.IsDone())
	counting.Done(nil)
	require.NoError(t, parent.Wait(context.Background()))

	already := New(e, nil)
	late := NewCounting(e, already, -1)
	late.Done(nil)
	late.SetTarget(1)
	require.NoError(t, already.Wait(context.Background()))
}

func TestCountingZeroTargetCompletesImmediately(t *testing.T) {
	e := newExecutor(t)
	parent := New(e, nil)
	NewCounting(e, parent, 0)
	assert.Equal(t, StatusSuccess, parent.Status())
}

func TestCountingCancelCompletesParentImmediately(t *testing.T) {
	e := newExecutor(t)
	parent := New(e, nil)
	counting := NewCounting(e, parent, 2)
	first := counting.Child()
	second := counting.Child()

	assert.True(t, counting.Cancel())
	assert.Equal(t, StatusCancelled, parent.Status())

	first.Fail(errors.New("discarded"))
	second.Done()
	require.NoError(t, e.Run(context.Background(), func() {}))
	require.NoError(t, e.Run(context.Background(), func() {}))

	assert.Equal(t, 2, counting.Count())
	assert.Equal(t, StatusCancelled, parent.Status())
	assert.ErrorIs(t, parent.Err(), ErrCancelled)
}

func TestMultiCollectsInOrder(t *testing.T) {
	e := newExecutor(t)
	parent := NewData[[]string](e, nil)
	multi := NewMulti(e, parent)

	a := multi.Add()
	b := multi.Add()
	c := multi.Add()
	multi.Seal()

	c.Complete("main")
	a.Complete("worker")
	b.Complete("io")

	require.NoError(t, parent.Wait(context.Background()))
	values, err := parent.Data()
	require.NoError(t, err)
	assert.Equal(t, []string{"worker", "io", "main"}, values)
}

func TestMultiEmpty(t *testing.T) {
	e := newExecutor(t)
	parent := NewData[[]int](e, nil)
	multi := NewMulti(e, parent)
	multi.Seal()

	require.NoError(t, parent.Wait(context.Background()))
	values, _ := parent.Data()
	assert.Empty(t, values)
}

func TestMultiChildFailure(t *testing.T) {
	e := newExecutor(t)
	parent := NewData[[]int](e, nil)
	multi := NewMulti(e, parent)
	a := multi.Add()
	b := multi.Add()
	multi.Seal()

	a.Complete(1)
	b.Fail(errors.New("frame gone"))

	assert.EqualError(t, parent.Wait(context.Background()), "frame gone")
}
