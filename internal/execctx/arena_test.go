package execctx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArenaTree(t *testing.T) {
	a := NewArena()

	p := a.NewProcess("i1")
	t1, err := a.NewThread(p, "1")
	require.NoError(t, err)
	t2, err := a.NewThread(p, "2")
	require.NoError(t, err)
	f0, err := a.NewFrame(t1, "0")
	require.NoError(t, err)
	f1, err := a.NewFrame(t1, "1")
	require.NoError(t, err)

	assert.Equal(t, 5, a.Len())
	assert.Equal(t, []Handle{t1, t2}, a.Children(p))
	assert.Equal(t, []Handle{f0, f1}, a.Children(t1))
	assert.Equal(t, t1, a.Parent(f1))
	assert.Equal(t, Handle(0), a.Parent(p))

	proc, ok := a.Ancestor(f1, KindProcess)
	require.True(t, ok)
	assert.Equal(t, p, proc)

	self, ok := a.Ancestor(t2, KindThread)
	require.True(t, ok)
	assert.Equal(t, t2, self)

	_, ok = a.Ancestor(p, KindFrame)
	assert.False(t, ok)

	ctx, ok := a.Get(f0)
	require.True(t, ok)
	assert.Equal(t, Context{Handle: f0, Kind: KindFrame, ID: "0", Parent: t1}, ctx)
	assert.Equal(t, "frame 0", ctx.String())
}

func TestArenaIdempotentCreate(t *testing.T) {
	a := NewArena()
	p := a.NewProcess("i1")
	assert.Equal(t, p, a.NewProcess("i1"))

	th, _ := a.NewThread(p, "7")
	again, _ := a.NewThread(p, "7")
	assert.Equal(t, th, again)
	assert.Equal(t, 2, a.Len())

	found, ok := a.Thread("7")
	require.True(t, ok)
	assert.Equal(t, th, found)

	byProc, ok := a.Process("i1")
	require.True(t, ok)
	assert.Equal(t, p, byProc)

	h, ok := a.Lookup(KindThread, p, "7")
	require.True(t, ok)
	assert.Equal(t, th, h)
}

func TestArenaWrongKind(t *testing.T) {
	a := NewArena()
	p := a.NewProcess("i1")

	_, err := a.NewFrame(p, "0")
	assert.ErrorIs(t, err, ErrWrongKind)

	_, err = a.NewThread(Handle(42), "1")
	assert.ErrorIs(t, err, ErrUnknownContext)
}

func TestArenaRemoveSubtree(t *testing.T) {
	a := NewArena()
	p := a.NewProcess("i1")
	th, _ := a.NewThread(p, "1")
	f, _ := a.NewFrame(th, "0")
	other, _ := a.NewThread(p, "2")

	removed := a.Remove(th)
	assert.Equal(t, []Handle{f, th}, removed)
	assert.Equal(t, []Handle{other}, a.Children(p))

	_, ok := a.Get(f)
	assert.False(t, ok)
	_, ok = a.Thread("1")
	assert.False(t, ok)

	// Handles are not reused.
	again, _ := a.NewThread(p, "1")
	assert.NotEqual(t, th, again)

	assert.Nil(t, a.Remove(th))
}

func TestArenaClearFrames(t *testing.T) {
	a := NewArena()
	p := a.NewProcess("i1")
	th, _ := a.NewThread(p, "1")
	a.NewFrame(th, "0")
	a.NewFrame(th, "1")

	a.ClearFrames(th)
	assert.Empty(t, a.Children(th))
	assert.Equal(t, 2, a.Len())
}

func TestArenaThreadMovesBetweenProcesses(t *testing.T) {
	a := NewArena()
	p1 := a.NewProcess("i1")
	p2 := a.NewProcess("i2")
	old, _ := a.NewThread(p1, "3")
	moved, _ := a.NewThread(p2, "3")

	assert.NotEqual(t, old, moved)
	assert.Empty(t, a.Children(p1))
	assert.Equal(t, []Handle{moved}, a.Threads())
	assert.Equal(t, []Handle{p1, p2}, a.Processes())
}
