package session

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"blastd/internal/transport"
)

// Session is the mutable per-campaign state tracked by the registry.
//
// It is mutated only through Registry.Update (atomic read-modify-write);
// reads always receive copies.
type Session struct {
	ID           string
	Running      bool
	Target       transport.Target
	StartTime    time.Time
	SentCount    int
	FailedCount  int
	LastActivity time.Time
}

// Registry is the in-memory table of campaign sessions.
//
// Safe for concurrent use by the delivery engines, the campaign supervisor
// and the HTTP layer without caller-side locking.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Create registers a new running session with an opaque, unguessable id.
func (r *Registry) Create(target transport.Target) Session {
	now := time.Now()
	s := &Session{
		ID:           uuid.NewString(),
		Running:      true,
		Target:       target,
		StartTime:    now,
		LastActivity: now,
	}
	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()
	return *s
}

// Get returns a copy of the session, if present.
func (r *Registry) Get(id string) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// Update applies fn to the session under the registry lock.
// It reports false (and does not call fn) if the id is unknown.
func (r *Registry) Update(id string, fn func(*Session)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return false
	}
	fn(s)
	return true
}

// Touch bumps LastActivity, keeping it monotonically non-decreasing.
func (r *Registry) Touch(id string) bool {
	now := time.Now()
	return r.Update(id, func(s *Session) {
		if now.After(s.LastActivity) {
			s.LastActivity = now
		}
	})
}

func (r *Registry) Remove(id string) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
}

// List returns copies of all sessions, newest first.
func (r *Registry) List() []Session {
	r.mu.RLock()
	out := make([]Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, *s)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
