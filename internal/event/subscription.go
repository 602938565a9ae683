package event

import "sync/atomic"

// Subscription is a registered handler.
type Subscription interface {
	// ID returns the unique subscription identifier.
	ID() string

	// Topic returns the subscribed pattern.
	Topic() Topic

	// IsActive reports whether the subscription still receives events.
	IsActive() bool

	// Cancel stops delivery. It is safe to call more than once and from
	// inside the handler.
	Cancel()
}

type subscription struct {
	id      string
	pattern Topic
	handler Handler
	bus     *Bus
	active  atomic.Bool
}

func (s *subscription) ID() string     { return s.id }
func (s *subscription) Topic() Topic   { return s.pattern }
func (s *subscription) IsActive() bool { return s.active.Load() }

func (s *subscription) Cancel() {
	if s.active.Swap(false) {
		s.bus.remove(s)
	}
}
