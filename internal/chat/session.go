package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/naurat/naurbotmx/internal/domain"
	"github.com/naurat/naurbotmx/internal/tariff"
)

// Backend is the slice of the Naurat API the session controller needs.
// Implemented by *tariff.Client.
type Backend interface {
	// Conversation fetches stored history for an authenticated visitor.
	Conversation(ctx context.Context, email string) ([]tariff.Message, error)

	// Importation submits one utterance for tariff analysis.
	Importation(ctx context.Context, in tariff.ImportationRequest) (*tariff.ImportationResponse, error)
}

// Conversation copy. The greeting seeds every store before any network
// activity; the apologies are the recovered-failure fallbacks.
const (
	greetingText = "Hello! I'm your Import Bot, ready to assist you in determining tariffs, taxes, and necessary certifications for your imports. Just provide the product you want to import, its country of origin, and an estimated value. No worries if you’re missing some details—we’ll make the most of the information you have!"

	historyApology  = "Sorry, I couldn't retrieve your previous messages. 😔 Please try again later."
	dispatchApology = "Sorry, I couldn't process your request. 😔"

	failureNotice = "Something went wrong. Please try again."
)

// Rejection sentinels. These mark silently-rejected preconditions, not
// failures: callers must not surface them to the visitor.
var (
	ErrEmptyUtterance   = errors.New("empty utterance")
	ErrDispatchInFlight = errors.New("dispatch already in flight")
	ErrSessionClosed    = errors.New("session closed")
)

// Session is the controller for one visitor conversation. It owns the
// conversation store exclusively, resolves its identity exactly once (at
// construction) and enforces single-flight dispatch.
type Session struct {
	identity domain.Identity
	store    *Store
	backend  Backend
	logger   *slog.Logger

	mu         sync.Mutex
	awaiting   bool
	closed     bool
	lastActive time.Time

	historyOnce sync.Once
}

// NewSession creates a session for the given identity and seeds the store
// with the synthetic greeting.
func NewSession(id domain.Identity, backend Backend, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Session{
		identity:   id,
		store:      NewStore(),
		backend:    backend,
		logger:     logger,
		lastActive: time.Now(),
	}
	s.store.Append(domain.NewBotMessage(greetingText, nil, ""))
	return s
}

// Identity returns the session identity, fixed at creation.
func (s *Session) Identity() domain.Identity {
	return s.identity
}

// Store exposes the conversation store for snapshot reads and subscriptions.
func (s *Session) Store() *Store {
	return s.store
}

// Awaiting reports whether a dispatch is in flight. The UI disables the
// compose box while true; Send itself remains the authority.
func (s *Session) Awaiting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.awaiting
}

// LastActive returns the time of the last visitor-driven activity.
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// Touch records visitor activity, deferring the idle reaper.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastActive = time.Now()
	s.mu.Unlock()
}

// Close tears the session down. In-flight dispatches that resolve later
// find a closed store and drop their appends.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	s.store.Close()
}

// LoadHistory replays stored conversation history into the store. It runs
// at most once per session and only for authenticated identities. Failure
// is recovered: one apologetic message, one notice, session stays usable.
// History appends as one atomic batch, so it cannot interleave with a
// racing dispatch; whichever reaches the store lock first appears first.
func (s *Session) LoadHistory(ctx context.Context) {
	s.historyOnce.Do(func() {
		if !s.identity.Authenticated() {
			return
		}

		history, err := s.backend.Conversation(ctx, s.identity.Email)
		if err != nil {
			s.logger.Warn("history load failed", "email", s.identity.Email, "error", err)
			s.store.Append(domain.NewBotMessage(historyApology, nil, ""))
			s.store.Notify(failureNotice)
			return
		}

		batch := make([]domain.Message, 0, len(history))
		for _, m := range history {
			switch m.Owner {
			case tariff.OwnerHuman:
				batch = append(batch, domain.NewUserMessage(m.Message))
			case tariff.OwnerAI:
				batch = append(batch, domain.NewBotMessage(m.Message, m.Noms, m.Lang))
			default:
				s.logger.Warn("skipping history entry with unknown owner", "owner", m.Owner)
			}
		}
		s.store.AppendBatch(batch)
		s.logger.Info("history replayed", "email", s.identity.Email, "messages", len(batch))
	})
}

// Send dispatches one utterance to the backend.
//
// Utterances that are empty after newline stripping are rejected silently
// with ErrEmptyUtterance; a concurrent dispatch is rejected with
// ErrDispatchInFlight. Both are no-ops: nothing is appended and no request
// leaves the process. Otherwise the user message is appended optimistically
// before the network round-trip, and the backend reply (or the apology
// fallback on any failure) follows it. The awaiting flag is released
// unconditionally, so the session always returns to idle.
func (s *Session) Send(ctx context.Context, utterance string) error {
	if blankUtterance(utterance) {
		return ErrEmptyUtterance
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.awaiting {
		s.mu.Unlock()
		return ErrDispatchInFlight
	}
	s.awaiting = true
	s.lastActive = time.Now()
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.awaiting = false
		s.mu.Unlock()
	}()

	s.store.Append(domain.NewUserMessage(utterance))

	req := tariff.ImportationRequest{Prompt: utterance}
	if s.identity.Authenticated() {
		req.UserEmail = s.identity.Email
	} else {
		req.UserID = s.identity.SessionID
	}

	resp, err := s.backend.Importation(ctx, req)
	if err != nil {
		s.logger.Warn("importation dispatch failed", "error", err)
		s.store.Append(domain.NewBotMessage(dispatchApology, nil, ""))
		s.store.Notify(failureNotice)
		return nil
	}

	s.store.Append(domain.NewBotMessage(resp.Message, resp.Noms, resp.Lang))
	return nil
}

// blankUtterance reports whether the utterance contains no content once
// newlines are stripped.
func blankUtterance(u string) bool {
	return strings.TrimSpace(strings.ReplaceAll(u, "\n", "")) == ""
}
