// Package chat implements the chat session controller: the append-only
// conversation store, the single-flight message dispatcher, the history
// loader, the compose-box state machine and the HTTP/WebSocket surface that
// drives them.
package chat

import (
	"sync"

	"github.com/naurat/naurbotmx/internal/domain"
)

// EventType distinguishes store events.
type EventType string

const (
	// EventMessage announces a newly appended conversation message.
	EventMessage EventType = "message"
	// EventNotice carries a transient user-facing notification, the
	// server-side equivalent of a toast.
	EventNotice EventType = "notice"
)

// Event is delivered to store subscribers. Seq is the zero-based position
// of Message in the log, letting renderers reconcile a snapshot read with
// the live stream.
type Event struct {
	Type    EventType       `json:"type"`
	Seq     int             `json:"seq"`
	Message *domain.Message `json:"message,omitempty"`
	Notice  string          `json:"notice,omitempty"`
}

// subscriberBuffer bounds each subscriber channel. A subscriber that cannot
// keep up loses events rather than blocking the conversation.
const subscriberBuffer = 32

// Store is an ordered, append-only log of conversation messages with
// change notification. Insertion order is display order. Once closed, all
// appends become no-ops so late network completions cannot mutate a
// discarded session.
type Store struct {
	mu       sync.Mutex
	messages []domain.Message
	subs     map[int]chan Event
	nextSub  int
	closed   bool
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{subs: make(map[int]chan Event)}
}

// Append adds one message to the log and notifies subscribers.
// Returns false if the store is closed.
func (s *Store) Append(msg domain.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.messages = append(s.messages, msg)
	s.broadcast(Event{Type: EventMessage, Seq: len(s.messages) - 1, Message: &msg})
	return true
}

// AppendBatch adds a sequence of messages atomically, preserving order.
// Used by the history loader so replayed history cannot interleave with a
// racing dispatch.
func (s *Store) AppendBatch(msgs []domain.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	for i := range msgs {
		s.messages = append(s.messages, msgs[i])
		s.broadcast(Event{Type: EventMessage, Seq: len(s.messages) - 1, Message: &msgs[i]})
	}
	return true
}

// Notify emits a transient notice to subscribers without touching the log.
func (s *Store) Notify(notice string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.broadcast(Event{Type: EventNotice, Notice: notice})
}

// Messages returns a snapshot copy of the log.
func (s *Store) Messages() []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Len returns the number of messages in the log.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// Subscribe registers a listener for store events. The returned cancel
// function must be called to release the subscription.
func (s *Store) Subscribe() (<-chan Event, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan Event, subscriberBuffer)
	if s.closed {
		close(ch)
		return ch, func() {}
	}

	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if sub, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Close discards the store. Subscriber channels are closed and any later
// Append, Notify or Subscribe is a no-op.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
}

// broadcast delivers an event to every subscriber. Callers hold s.mu.
func (s *Store) broadcast(ev Event) {
	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
			// Slow subscriber: drop rather than stall the conversation.
		}
	}
}
