package monitor

import "sync"

// DataMonitor is a monitor that carries a result value.
type DataMonitor[V any] struct {
	*RequestMonitor

	dataMu  sync.Mutex
	data    V
	hasData bool
}

// NewData creates a typed monitor bound to exec. parent may be nil; only
// the status is passed on to it, not the value.
func NewData[V any](exec Submitter, parent Parent) *DataMonitor[V] {
	return &DataMonitor[V]{RequestMonitor: New(exec, parent)}
}

// SetData stores the result value. It must be called before Done.
func (m *DataMonitor[V]) SetData(v V) {
	m.dataMu.Lock()
	m.data = v
	m.hasData = true
	m.dataMu.Unlock()
}

// Complete stores v and completes the monitor with Success.
func (m *DataMonitor[V]) Complete(v V) {
	m.SetData(v)
	m.Done()
}

// Data returns the result value. It fails with ErrNotCompleted while the
// monitor is pending and with the completion error after a failure or
// cancellation.
func (m *DataMonitor[V]) Data() (V, error) {
	var zero V
	switch m.Status() {
	case StatusPending:
		return zero, ErrNotCompleted
	case StatusSuccess:
		m.dataMu.Lock()
		defer m.dataMu.Unlock()
		return m.data, nil
	default:
		return zero, m.Err()
	}
}

// HasData reports whether SetData was called.
func (m *DataMonitor[V]) HasData() bool {
	m.dataMu.Lock()
	defer m.dataMu.Unlock()
	return m.hasData
}

// OnData registers fn to run on the executor with the value if the
// monitor succeeds.
func (m *DataMonitor[V]) OnData(fn func(V)) {
	m.OnComplete(func(rm *RequestMonitor) {
		if rm.Status() != StatusSuccess {
			return
		}
		m.dataMu.Lock()
		v := m.data
		m.dataMu.Unlock()
		fn(v)
	})
}

// forward passes a non-success outcome on to parent.
func forward(rm *RequestMonitor, parent Completer) {
	switch rm.Status() {
	case StatusError:
		parent.Fail(rm.Err())
	case StatusCancelled:
		parent.Cancel()
	}
}

// linkCancel cancels child when parent is cancelled.
func linkCancel(parent Completer, child *RequestMonitor) {
	if p, ok := parent.(interface{ cancelWith(func()) }); ok {
		p.cancelWith(func() { child.Cancel() })
	}
}

// Map returns a child monitor whose value is converted by fn and delivered
// to parent. Errors from the child or from fn fail the parent.
// Cancellation propagates both ways.
func Map[V, W any](exec Submitter, parent *DataMonitor[W], fn func(V) (W, error)) *DataMonitor[V] {
	child := NewData[V](exec, nil)
	linkCancel(parent, child.RequestMonitor)
	child.OnComplete(func(rm *RequestMonitor) {
		if rm.Status() != StatusSuccess {
			forward(rm, parent)
			return
		}
		v, _ := child.Data()
		w, err := fn(v)
		if err != nil {
			parent.Fail(err)
			return
		}
		parent.Complete(w)
	})
	return child
}

// AndThen returns a child monitor whose value is handed to fn on success.
// fn continues the chain and is responsible for completing parent.
// Errors and cancellation propagate to parent without calling fn, and
// cancelling parent cancels the child.
func AndThen[V any](exec Submitter, parent Completer, fn func(V)) *DataMonitor[V] {
	child := NewData[V](exec, nil)
	linkCancel(parent, child.RequestMonitor)
	child.OnComplete(func(rm *RequestMonitor) {
		if rm.Status() != StatusSuccess {
			forward(rm, parent)
			return
		}
		v, _ := child.Data()
		fn(v)
	})
	return child
}

// MapErr returns a child monitor that passes its value through to parent
// and rewrites a failure with fn.
func MapErr[V any](exec Submitter, parent *DataMonitor[V], fn func(error) error) *DataMonitor[V] {
	child := NewData[V](exec, nil)
	linkCancel(parent, child.RequestMonitor)
	child.OnComplete(func(rm *RequestMonitor) {
		switch rm.Status() {
		case StatusSuccess:
			v, _ := child.Data()
			parent.Complete(v)
		case StatusError:
			parent.Fail(fn(rm.Err()))
		case StatusCancelled:
			parent.Cancel()
		}
	})
	return child
}
