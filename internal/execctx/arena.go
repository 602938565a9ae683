// Package execctx stores the process, thread and frame contexts of one
// session in an arena indexed by handle.
//
// A context names its parent by handle, so ancestor lookup is a walk over
// the arena rather than a type hierarchy. Handles are never reused within
// an arena; a handle of a removed context simply stops resolving.
//
// An Arena is not safe for concurrent use. It belongs to the session
// executor.
package execctx

import "fmt"

// Kind is the kind of a context.
type Kind int

const (
	KindProcess Kind = iota
	KindThread
	KindFrame
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindProcess:
		return "process"
	case KindThread:
		return "thread"
	case KindFrame:
		return "frame"
	default:
		return "unknown"
	}
}

// Handle identifies a context within one arena. The zero handle is none.
type Handle uint32

// Valid reports whether h is not the zero handle.
func (h Handle) Valid() bool { return h != 0 }

// Context is one execution context.
type Context struct {
	Handle Handle
	Kind   Kind

	// ID is the backend identifier: thread group id ("i1"), global thread
	// id ("3") or frame level ("0").
	ID string

	Parent Handle
}

// String returns a readable path such as "process i1/thread 2".
func (c Context) String() string {
	return fmt.Sprintf("%s %s", c.Kind, c.ID)
}

type key struct {
	kind   Kind
	parent Handle
	id     string
}

type node struct {
	ctx      Context
	children []Handle
}

// Arena holds the contexts of one session.
type Arena struct {
	nodes   map[Handle]*node
	index   map[key]Handle
	threads map[string]Handle
	next    Handle
}

// NewArena creates an empty arena.
func NewArena() *Arena {
	return &Arena{
		nodes:   make(map[Handle]*node),
		index:   make(map[key]Handle),
		threads: make(map[string]Handle),
	}
}

// NewProcess returns the process with the given id, creating it if needed.
func (a *Arena) NewProcess(id string) Handle {
	return a.add(KindProcess, 0, id)
}

// NewThread returns the thread with the given id under process, creating
// it if needed. Thread ids are global, so an existing thread with the same
// id under another process is moved.
func (a *Arena) NewThread(process Handle, id string) (Handle, error) {
	if err := a.expect(process, KindProcess); err != nil {
		return 0, err
	}
	if h, ok := a.threads[id]; ok {
		if a.nodes[h].ctx.Parent == process {
			return h, nil
		}
		a.Remove(h)
	}
	h := a.add(KindThread, process, id)
	a.threads[id] = h
	return h, nil
}

// NewFrame returns the frame at level under thread, creating it if needed.
func (a *Arena) NewFrame(thread Handle, level string) (Handle, error) {
	if err := a.expect(thread, KindThread); err != nil {
		return 0, err
	}
	return a.add(KindFrame, thread, level), nil
}

func (a *Arena) expect(h Handle, kind Kind) error {
	n, ok := a.nodes[h]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownContext, h)
	}
	if n.ctx.Kind != kind {
		return fmt.Errorf("%w: %s is not a %s", ErrWrongKind, n.ctx, kind)
	}
	return nil
}

func (a *Arena) add(kind Kind, parent Handle, id string) Handle {
	k := key{kind: kind, parent: parent, id: id}
	if h, ok := a.index[k]; ok {
		return h
	}
	a.next++
	h := a.next
	a.nodes[h] = &node{ctx: Context{Handle: h, Kind: kind, ID: id, Parent: parent}}
	a.index[k] = h
	if p, ok := a.nodes[parent]; ok {
		p.children = append(p.children, h)
	}
	return h
}

// Get returns the context for h.
func (a *Arena) Get(h Handle) (Context, bool) {
	n, ok := a.nodes[h]
	if !ok {
		return Context{}, false
	}
	return n.ctx, true
}

// Parent returns the parent handle of h, or zero.
func (a *Arena) Parent(h Handle) Handle {
	if n, ok := a.nodes[h]; ok {
		return n.ctx.Parent
	}
	return 0
}

// Ancestor walks from h towards the root and returns the first context of
// the given kind, h itself included.
func (a *Arena) Ancestor(h Handle, kind Kind) (Handle, bool) {
	for h.Valid() {
		n, ok := a.nodes[h]
		if !ok {
			return 0, false
		}
		if n.ctx.Kind == kind {
			return h, true
		}
		h = n.ctx.Parent
	}
	return 0, false
}

// Lookup finds a context by kind, parent and backend id.
func (a *Arena) Lookup(kind Kind, parent Handle, id string) (Handle, bool) {
	h, ok := a.index[key{kind: kind, parent: parent, id: id}]
	return h, ok
}

// Process finds a process by thread group id.
func (a *Arena) Process(id string) (Handle, bool) {
	return a.Lookup(KindProcess, 0, id)
}

// Thread finds a thread by global thread id.
func (a *Arena) Thread(id string) (Handle, bool) {
	h, ok := a.threads[id]
	return h, ok
}

// Children returns the direct children of h in creation order.
func (a *Arena) Children(h Handle) []Handle {
	n, ok := a.nodes[h]
	if !ok {
		return nil
	}
	return append([]Handle(nil), n.children...)
}

// Processes returns every process in creation order.
func (a *Arena) Processes() []Handle {
	var out []Handle
	for h := Handle(1); h <= a.next; h++ {
		if n, ok := a.nodes[h]; ok && n.ctx.Kind == KindProcess {
			out = append(out, h)
		}
	}
	return out
}

// Threads returns every thread of every process in creation order.
func (a *Arena) Threads() []Handle {
	var out []Handle
	for _, p := range a.Processes() {
		out = append(out, a.Children(p)...)
	}
	return out
}

// ClearFrames removes the frames of thread. Frames are only valid while
// the thread is suspended.
func (a *Arena) ClearFrames(thread Handle) {
	for _, f := range a.Children(thread) {
		if n, ok := a.nodes[f]; ok && n.ctx.Kind == KindFrame {
			a.Remove(f)
		}
	}
}

// Remove deletes h and its subtree and returns the removed handles,
// children first.
func (a *Arena) Remove(h Handle) []Handle {
	n, ok := a.nodes[h]
	if !ok {
		return nil
	}

	var removed []Handle
	for _, c := range append([]Handle(nil), n.children...) {
		removed = append(removed, a.Remove(c)...)
	}

	delete(a.nodes, h)
	delete(a.index, key{kind: n.ctx.Kind, parent: n.ctx.Parent, id: n.ctx.ID})
	if n.ctx.Kind == KindThread && a.threads[n.ctx.ID] == h {
		delete(a.threads, n.ctx.ID)
	}
	if p, ok := a.nodes[n.ctx.Parent]; ok {
		p.children = without(p.children, h)
	}
	return append(removed, h)
}

func without(list []Handle, h Handle) []Handle {
	out := list[:0]
	for _, x := range list {
		if x != h {
			out = append(out, x)
		}
	}
	return out
}

// Len returns the number of live contexts.
func (a *Arena) Len() int {
	return len(a.nodes)
}
