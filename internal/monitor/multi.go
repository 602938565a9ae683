package monitor

// Multi collects the values of several typed children into one parent
// value. Children are added with Add; Seal fixes the count. The values are
// delivered in the order the children were added.
//
// Add and Seal must be called from a single goroutine, normally the
// session executor task that performs the fan-out.
type Multi[V any] struct {
	exec     Submitter
	parent   *DataMonitor[[]V]
	counting *Counting
	children []*DataMonitor[V]
	sealed   bool
}

// NewMulti creates a collector that completes parent.
func NewMulti[V any](exec Submitter, parent *DataMonitor[[]V]) *Multi[V] {
	m := &Multi[V]{
		exec:   exec,
		parent: parent,
	}

	gate := New(exec, nil)
	gate.OnComplete(func(rm *RequestMonitor) {
		if rm.Status() != StatusSuccess {
			forward(rm, parent)
			return
		}
		values := make([]V, len(m.children))
		for i, child := range m.children {
			values[i], _ = child.Data()
		}
		parent.Complete(values)
	})
	m.counting = NewCounting(exec, gate, -1)
	return m
}

// Add returns a new child monitor.
func (m *Multi[V]) Add() *DataMonitor[V] {
	if m.sealed {
		panic(internalErrorf("child added to a sealed multi monitor"))
	}
	child := NewData[V](m.exec, m.counting)
	m.children = append(m.children, child)
	return child
}

// Seal fixes the number of children. With no children the parent
// completes with an empty slice.
func (m *Multi[V]) Seal() {
	m.sealed = true
	m.counting.SetTarget(len(m.children))
}

// Cancel cancels the parent; outstanding children are discarded.
func (m *Multi[V]) Cancel() bool {
	return m.counting.Cancel()
}
