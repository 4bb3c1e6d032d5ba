package server

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// sessionTimeout is how long a session may go untouched before Cleanup
// reclaims it.
const sessionTimeout = 30 * time.Minute

// Session is a bookkeeping record for one HTTP-level Mcp-Session-Id: the
// dispatch loop itself has no notion of sessions (every Request is
// independent); this exists purely so a streamable HTTP
// transport can hand a client a stable id to present on subsequent calls.
type Session struct {
	ID        string
	CreatedAt time.Time
	LastUsed  time.Time
}

// SessionRegistry tracks live Mcp-Session-Id values. It has no bearing on
// protocol dispatch; ActionSubscribe is still always rejected by Server.Run
// regardless of whether a Registry is attached to the transport.
type SessionRegistry struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewSessionRegistry returns an empty registry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{sessions: make(map[string]*Session)}
}

// Create mints a fresh session id.
func (r *SessionRegistry) Create() *Session {
	now := time.Now()
	s := &Session{ID: uuid.New().String(), CreatedAt: now, LastUsed: now}

	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()

	return s
}

// Touch refreshes a session's LastUsed time and reports whether it is
// still known.
func (r *SessionRegistry) Touch(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return false
	}
	s.LastUsed = time.Now()
	return true
}

// Cleanup drops every session untouched for longer than sessionTimeout.
// The registry never schedules its own timer (so tests stay
// deterministic): sessions are dropped only when a caller invokes Cleanup.
func (r *SessionRegistry) Cleanup() {
	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	for id, s := range r.sessions {
		if now.Sub(s.LastUsed) > sessionTimeout {
			delete(r.sessions, id)
		}
	}
}
