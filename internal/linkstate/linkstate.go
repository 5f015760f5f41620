// Package linkstate holds the ephemeral per-session state of an in-flight
// link attempt: the CSRF state token, PKCE verifier, and redirect URI cached
// between the authorization redirect and its callback. Attempts live in
// memory with a short TTL and are consumed exactly once; they are never
// written to the durable store.
package linkstate

import (
	"sync"
	"time"
)

// DefaultTTL bounds how long a link attempt may wait for its callback.
const DefaultTTL = 10 * time.Minute

// StateMismatchError reports a callback whose state token does not match the
// cached attempt (or arrives with no attempt cached at all). It is never
// retried; the user must start a fresh link.
type StateMismatchError struct {
	Reason string
}

func (e *StateMismatchError) Error() string {
	if e.Reason != "" {
		return "oauth state mismatch: " + e.Reason
	}
	return "oauth state mismatch"
}

// Attempt is the cached context of one authorization redirect.
type Attempt struct {
	State          string
	CodeVerifier   string
	RedirectURI    string
	LinkingOwnerID string // set when an existing identity links another account
	CreatedAt      time.Time
}

// Store keeps at most one in-flight attempt per browser session.
type Store struct {
	mu       sync.Mutex
	attempts map[string]Attempt
	ttl      time.Duration
	now      func() time.Time
}

// NewStore creates a Store with the default TTL.
func NewStore() *Store {
	return &Store{
		attempts: make(map[string]Attempt),
		ttl:      DefaultTTL,
		now:      time.Now,
	}
}

// Begin caches the attempt for the session, replacing any previous in-flight
// attempt for the same session.
func (s *Store) Begin(sessionID string, a Attempt) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleanup()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.now()
	}
	s.attempts[sessionID] = a
}

// Consume validates the callback's state token against the session's cached
// attempt and returns it. The attempt is discarded whether or not validation
// succeeds, so a callback can be consumed at most once. A missing, expired,
// or mismatched attempt yields a StateMismatchError.
func (s *Store) Consume(sessionID, state string) (*Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	attempt, ok := s.attempts[sessionID]
	if ok {
		delete(s.attempts, sessionID)
	}
	switch {
	case !ok:
		return nil, &StateMismatchError{Reason: "no link attempt in progress"}
	case s.now().Sub(attempt.CreatedAt) > s.ttl:
		return nil, &StateMismatchError{Reason: "link attempt expired"}
	case state == "" || state != attempt.State:
		return nil, &StateMismatchError{Reason: "state token does not match"}
	}
	return &attempt, nil
}

// cleanup drops expired attempts. Must be called with mu held.
func (s *Store) cleanup() {
	cutoff := s.now().Add(-s.ttl)
	for k, v := range s.attempts {
		if v.CreatedAt.Before(cutoff) {
			delete(s.attempts, k)
		}
	}
}
