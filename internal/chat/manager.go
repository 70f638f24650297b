package chat

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/naurat/naurbotmx/internal/identity"
)

// Manager tracks live chat sessions by visitor key. Sessions are the only
// state this application holds, and they are purely in-memory: the reaper
// discards idle ones and a restart forgets everything except what the
// remote backend can replay for authenticated visitors.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	resolver *identity.Resolver
	backend  Backend
	logger   *slog.Logger
}

// NewManager creates an empty session registry.
func NewManager(resolver *identity.Resolver, backend Backend, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		sessions: make(map[string]*Session),
		resolver: resolver,
		backend:  backend,
		logger:   logger,
	}
}

// Get returns the live session for a visitor, or nil.
func (m *Manager) Get(visitorID string) *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[visitorID]
}

// GetOrCreate returns the visitor's session, creating it when absent.
// Identity is resolved exactly once, at creation. A sign-in or sign-out
// changes the authenticated email for the visitor key; since identity is
// immutable per session, the stale session is closed and replaced.
func (m *Manager) GetOrCreate(visitorID, email, displayName string) *Session {
	m.mu.RLock()
	sess := m.sessions[visitorID]
	m.mu.RUnlock()
	if sess != nil && sess.Identity().Email == email {
		return sess
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	sess = m.sessions[visitorID]
	if sess != nil {
		if sess.Identity().Email == email {
			return sess
		}
		sess.Close()
		m.logger.Info("chat session replaced after identity change", "visitor_id", visitorID)
	}

	sess = NewSession(m.resolver.Resolve(email, displayName), m.backend, m.logger)
	m.sessions[visitorID] = sess
	m.logger.Info("chat session created",
		"visitor_id", visitorID,
		"authenticated", sess.Identity().Authenticated(),
	)
	return sess
}

// Remove closes and drops the visitor's session, if any.
func (m *Manager) Remove(visitorID string) {
	m.mu.Lock()
	sess := m.sessions[visitorID]
	delete(m.sessions, visitorID)
	m.mu.Unlock()
	if sess != nil {
		sess.Close()
	}
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sweep closes sessions idle for longer than ttl and returns how many were
// discarded.
func (m *Manager) Sweep(ttl time.Duration) int {
	cutoff := time.Now().Add(-ttl)

	m.mu.Lock()
	var expired []*Session
	for visitorID, sess := range m.sessions {
		if sess.LastActive().Before(cutoff) && !sess.Awaiting() {
			delete(m.sessions, visitorID)
			expired = append(expired, sess)
		}
	}
	m.mu.Unlock()

	for _, sess := range expired {
		sess.Close()
	}
	return len(expired)
}

// CloseAll tears down every session, for shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, sess := range sessions {
		sess.Close()
	}
}

// StartReaper runs the idle-session sweep until ctx is cancelled. Sweeps
// run at a quarter of the TTL, at least once a minute.
func StartReaper(ctx context.Context, m *Manager, ttl time.Duration) {
	interval := ttl / 4
	if interval < time.Minute {
		interval = time.Minute
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := m.Sweep(ttl); n > 0 {
					m.logger.Info("reaped idle chat sessions", "count", n, "remaining", m.Len())
				}
			}
		}
	}()
}
