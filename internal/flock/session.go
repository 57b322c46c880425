package flock

import (
	"context"
	"sync"
)

// Session scopes a portion of a flock's lifetime: it remembers which
// members its Initialize call actually brought up and finalises exactly
// those when closed, leaving members that were already ready untouched.
//
// Closing a session while other ready members still depend on its members
// is the caller's responsibility to avoid.
type Session struct {
	flock *Flock

	mu     sync.Mutex
	owned  map[string]struct{}
	closed bool
}

// Session creates a session bound to the flock.
func (f *Flock) Session() *Session {
	return &Session{flock: f, owned: make(map[string]struct{})}
}

// Initialize runs the flock's up pass and records the members this session
// brought up.
func (s *Session) Initialize(ctx context.Context, opts ...Option) error {
	started, err := s.flock.initialize(ctx, buildRunOptions(opts))

	s.mu.Lock()
	for _, name := range started {
		s.owned[name] = struct{}{}
	}
	s.mu.Unlock()

	return err
}

// Owned returns the names this session is responsible for finalising.
func (s *Session) Owned() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.owned))
	for name := range s.owned {
		out = append(out, name)
	}
	return out
}

// Close finalises the session's members in reverse dependency order. It is
// idempotent; a second call is a no-op.
func (s *Session) Close(ctx context.Context, opts ...Option) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	owned := s.owned
	s.owned = make(map[string]struct{})
	s.mu.Unlock()

	if len(owned) == 0 {
		return nil
	}
	return s.flock.finalize(ctx, buildRunOptions(opts), owned)
}
