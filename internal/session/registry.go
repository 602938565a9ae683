package session

import (
	"fmt"
	"sync"
)

// Capability names a service a session provides.
type Capability string

// Capabilities registered by Start.
const (
	CapRunControl     Capability = "runcontrol"
	CapBreakpoints    Capability = "breakpoints"
	CapStack          Capability = "stack"
	CapCommandControl Capability = "command"
)

// Disposer is implemented by services that release state when the
// session ends.
type Disposer interface {
	Dispose()
}

// Registry maps capabilities to services.
type Registry struct {
	mu       sync.RWMutex
	services map[Capability]any
	order    []Capability
	disposed bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{services: make(map[Capability]any)}
}

// Register adds svc under c.
func (r *Registry) Register(c Capability, svc any) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.disposed {
		return ErrRegistryDisposed
	}
	if svc == nil {
		return fmt.Errorf("%w: nil service for %s", ErrInvalidService, c)
	}
	if _, ok := r.services[c]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateService, c)
	}
	r.services[c] = svc
	r.order = append(r.order, c)
	return nil
}

// Get returns the service registered under c.
func (r *Registry) Get(c Capability) (any, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.disposed {
		return nil, ErrRegistryDisposed
	}
	svc, ok := r.services[c]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrServiceNotFound, c)
	}
	return svc, nil
}

// Capabilities returns the registered capabilities in registration order.
func (r *Registry) Capabilities() []Capability {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Capability(nil), r.order...)
}

// Dispose disposes every service in reverse registration order and empties
// the registry. Later calls do nothing.
func (r *Registry) Dispose() {
	r.mu.Lock()
	if r.disposed {
		r.mu.Unlock()
		return
	}
	r.disposed = true
	order, services := r.order, r.services
	r.order, r.services = nil, make(map[Capability]any)
	r.mu.Unlock()

	for i := len(order) - 1; i >= 0; i-- {
		if d, ok := services[order[i]].(Disposer); ok {
			d.Dispose()
		}
	}
}

// Tracker caches service lookups for one consumer.
type Tracker struct {
	registry *Registry
	mu       sync.Mutex
	cache    map[Capability]any
	disposed bool
}

// NewTracker creates a tracker over r.
func NewTracker(r *Registry) *Tracker {
	return &Tracker{registry: r, cache: make(map[Capability]any)}
}

// Get resolves c, caching the result.
func (t *Tracker) Get(c Capability) (any, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.disposed {
		return nil, ErrTrackerDisposed
	}
	if svc, ok := t.cache[c]; ok {
		return svc, nil
	}
	svc, err := t.registry.Get(c)
	if err != nil {
		return nil, err
	}
	t.cache[c] = svc
	return svc, nil
}

// Len returns the number of cached services.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.cache)
}

// Dispose releases the cached services.
func (t *Tracker) Dispose() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.disposed = true
	t.cache = nil
}

// Resolver resolves capabilities. *Registry, *Tracker and *Session
// implement it.
type Resolver interface {
	Get(c Capability) (any, error)
}

// As resolves c through r and asserts its type.
func As[T any](r Resolver, c Capability) (T, error) {
	var zero T
	svc, err := r.Get(c)
	if err != nil {
		return zero, err
	}
	typed, ok := svc.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s is %T, not %T", ErrServiceType, c, svc, zero)
	}
	return typed, nil
}
