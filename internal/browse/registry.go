package browse

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"osusume/pkg/metrics"
)

// Registry owns the live sessions, one per client.
type Registry struct {
	deps Deps

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewRegistry(deps Deps) *Registry {
	return &Registry{deps: deps, sessions: make(map[string]*Session)}
}

// Create starts a new session under a fresh id.
func (r *Registry) Create(ctx context.Context) (*Session, error) {
	s := NewSession(uuid.NewString(), r.deps)
	if err := s.Start(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("start session: %w", err)
	}

	r.mu.Lock()
	r.sessions[s.ID()] = s
	r.mu.Unlock()
	metrics.ActiveSessions.Inc()
	return s, nil
}

func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	s.touch()
	return s, nil
}

// Has reports whether id names a live session.
func (r *Registry) Has(_ context.Context, id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sessions[id]
	return ok
}

// Delete closes and forgets the session.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	s.Close()
	metrics.ActiveSessions.Dec()
	return nil
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Reap closes sessions not used for maxIdle and returns how many it closed.
func (r *Registry) Reap(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)

	r.mu.Lock()
	var stale []*Session
	for id, s := range r.sessions {
		if s.idleSince().Before(cutoff) {
			stale = append(stale, s)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for _, s := range stale {
		s.Close()
		metrics.ActiveSessions.Dec()
	}
	return len(stale)
}

// RunReaper calls Reap every interval until ctx is done.
func (r *Registry) RunReaper(ctx context.Context, interval, maxIdle time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := r.Reap(maxIdle); n > 0 {
				r.deps.Logger.Info().Int("reaped", n).Msg("idle sessions closed")
			}
		}
	}
}

// Close ends every session.
func (r *Registry) Close() {
	r.mu.Lock()
	all := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, s := range all {
		s.Close()
		metrics.ActiveSessions.Dec()
	}
}
