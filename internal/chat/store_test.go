package chat

import (
	"testing"

	"github.com/naurat/naurbotmx/internal/domain"
)

func TestStoreAppendPreservesOrder(t *testing.T) {
	t.Parallel()

	s := NewStore()
	s.Append(domain.NewBotMessage("hi", nil, ""))
	s.Append(domain.NewUserMessage("hello"))
	s.AppendBatch([]domain.Message{
		domain.NewUserMessage("one"),
		domain.NewBotMessage("two", nil, "es"),
	})

	msgs := s.Messages()
	if len(msgs) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(msgs))
	}
	want := []domain.Role{domain.RoleBot, domain.RoleUser, domain.RoleUser, domain.RoleBot}
	for i, m := range msgs {
		if m.Role != want[i] {
			t.Errorf("message %d: expected role %q, got %q", i, want[i], m.Role)
		}
	}
}

func TestStoreSubscribeDeliversEventsWithSeq(t *testing.T) {
	t.Parallel()

	s := NewStore()
	events, cancel := s.Subscribe()
	defer cancel()

	s.Append(domain.NewUserMessage("first"))
	s.Notify("heads up")

	ev := <-events
	if ev.Type != EventMessage || ev.Seq != 0 || ev.Message.Text != "first" {
		t.Fatalf("unexpected first event: %+v", ev)
	}
	ev = <-events
	if ev.Type != EventNotice || ev.Notice != "heads up" {
		t.Fatalf("unexpected second event: %+v", ev)
	}
}

func TestStoreCloseDropsLateAppends(t *testing.T) {
	t.Parallel()

	s := NewStore()
	s.Append(domain.NewUserMessage("kept"))
	events, cancel := s.Subscribe()
	defer cancel()

	s.Close()

	if s.Append(domain.NewBotMessage("late", nil, "")) {
		t.Fatal("append after close must be a no-op")
	}
	if s.Len() != 1 {
		t.Fatalf("expected 1 message after close, got %d", s.Len())
	}
	if _, open := <-events; open {
		t.Fatal("subscriber channel must be closed")
	}
}

func TestStoreSlowSubscriberDoesNotBlockAppend(t *testing.T) {
	t.Parallel()

	s := NewStore()
	_, cancel := s.Subscribe() // never drained
	defer cancel()

	for i := 0; i < subscriberBuffer*2; i++ {
		if !s.Append(domain.NewUserMessage("m")) {
			t.Fatal("append must succeed regardless of subscriber backlog")
		}
	}
}
