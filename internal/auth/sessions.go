// Package auth implements the optional Google sign-in flow and the
// in-memory sign-in session store behind it.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

// DefaultSessionTTL is how long a sign-in session stays valid.
const DefaultSessionTTL = 7 * 24 * time.Hour

type sessionEntry struct {
	email       string
	displayName string
	expiresAt   time.Time
}

// SessionStore holds sign-in sessions in memory, keyed by opaque token.
// Like chat sessions, sign-ins do not survive a restart; the browser just
// signs in again.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]sessionEntry
	ttl      time.Duration
}

// NewSessionStore creates a store with the given session lifetime.
func NewSessionStore(ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionStore{
		sessions: make(map[string]sessionEntry),
		ttl:      ttl,
	}
}

// Issue creates a session for the signed-in user and returns its token.
func (s *SessionStore) Issue(email, displayName string) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	token := hex.EncodeToString(buf)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.prune()
	s.sessions[token] = sessionEntry{
		email:       email,
		displayName: displayName,
		expiresAt:   time.Now().Add(s.ttl),
	}
	return token, nil
}

// Lookup resolves a token to its signed-in identity. Expired and unknown
// tokens report ok=false. Satisfies identity.AuthLookup.
func (s *SessionStore) Lookup(token string) (email, displayName string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, found := s.sessions[token]
	if !found {
		return "", "", false
	}
	if time.Now().After(entry.expiresAt) {
		delete(s.sessions, token)
		return "", "", false
	}
	return entry.email, entry.displayName, true
}

// Revoke discards a session, for sign-out.
func (s *SessionStore) Revoke(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, token)
}

// Len returns the number of live sessions, expired ones included until the
// next prune.
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// prune drops expired sessions. Caller holds the lock.
func (s *SessionStore) prune() {
	now := time.Now()
	for token, entry := range s.sessions {
		if now.After(entry.expiresAt) {
			delete(s.sessions, token)
		}
	}
}
