// Package session tracks per-browser state: the local identity, the active
// external account selection, and admin standing. Sessions are in-memory
// with a sliding TTL; the active-account pointer is a convenience selector,
// never an authorization decision.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultTTL is how long an idle session survives.
const DefaultTTL = 24 * time.Hour

// Session is one browser session.
type Session struct {
	ID            string
	OwnerID       string
	ActiveXUserID string
	IsAdmin       bool
	CreatedAt     time.Time
	lastSeen      time.Time
}

// Store keeps sessions in memory.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	ttl      time.Duration
	now      func() time.Time
}

// NewStore creates a Store with the given TTL; non-positive means DefaultTTL.
func NewStore(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		sessions: make(map[string]*Session),
		ttl:      ttl,
		now:      time.Now,
	}
}

// New creates and registers a fresh session.
func (s *Store) New() *Session {
	now := s.now()
	sess := &Session{
		ID:        uuid.NewString(),
		CreatedAt: now,
		lastSeen:  now,
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleanup()
	s.sessions[sess.ID] = sess
	return sess
}

// Get returns the session for id, refreshing its TTL, or nil when unknown or
// expired.
func (s *Store) Get(id string) *Session {
	if id == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil
	}
	if s.now().Sub(sess.lastSeen) > s.ttl {
		delete(s.sessions, id)
		return nil
	}
	sess.lastSeen = s.now()
	return sess
}

// Delete removes the session.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

// cleanup drops expired sessions. Must be called with mu held.
func (s *Store) cleanup() {
	cutoff := s.now().Add(-s.ttl)
	for id, sess := range s.sessions {
		if sess.lastSeen.Before(cutoff) {
			delete(s.sessions, id)
		}
	}
}
