package session

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/multierr"
)

// Manager keeps independent sessions by id.
//
// Manager is safe for concurrent use.
type Manager struct {
	mu       sync.RWMutex
	cfg      Config
	opts     []Option
	sessions map[string]*Session
}

// NewManager creates a manager whose sessions are built with cfg and opts.
func NewManager(cfg Config, opts ...Option) *Manager {
	return &Manager{
		cfg:      cfg,
		opts:     opts,
		sessions: make(map[string]*Session),
	}
}

// Create creates an idle session and tracks it. extra options are applied
// after the manager's.
func (m *Manager) Create(extra ...Option) (*Session, error) {
	opts := append(append([]Option(nil), m.opts...), extra...)
	s := New(m.cfg, opts...)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.ID()]; ok {
		return nil, fmt.Errorf("session %s already exists", s.ID())
	}
	m.sessions[s.ID()] = s
	return s, nil
}

// Get returns the session with id.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Sessions returns the tracked sessions ordered by id.
func (m *Manager) Sessions() []*Session {
	m.mu.RLock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Len returns the number of tracked sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Remove terminates the session with id and stops tracking it.
func (m *Manager) Remove(ctx context.Context, id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s.Terminate(ctx)
}

// TerminateAll terminates every session concurrently and forgets them.
func (m *Manager) TerminateAll(ctx context.Context) error {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs error
	)
	for id, s := range sessions {
		id, s := id, s
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Terminate(ctx); err != nil {
				mu.Lock()
				errs = multierr.Append(errs, fmt.Errorf("session %s: %w", id, err))
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return errs
}
