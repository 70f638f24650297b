package chat

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func waitForLogLines(t *testing.T, path string, n int) []ConversationLogEvent {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		f, err := os.Open(path)
		if err != nil {
			time.Sleep(10 * time.Millisecond)
			continue
		}
		var events []ConversationLogEvent
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			var ev ConversationLogEvent
			if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
				t.Fatalf("malformed log line %q: %v", scanner.Text(), err)
			}
			events = append(events, ev)
		}
		f.Close()
		if len(events) >= n {
			return events
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d log lines in %s", n, path)
	return nil
}

func TestConversationLoggerWritesPerVisitorFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	l, err := NewConversationLogger(ConversationLogConfig{Enabled: true, Dir: dir, QueueSize: 16}, nil)
	if err != nil {
		t.Fatalf("NewConversationLogger failed: %v", err)
	}
	defer l.Close()

	l.Log(ConversationLogEvent{Timestamp: "t1", VisitorID: "v_a", Role: "user", Text: "hola"})
	l.Log(ConversationLogEvent{Timestamp: "t2", VisitorID: "v_a", Role: "bot", Text: "respuesta"})
	l.Log(ConversationLogEvent{Timestamp: "t3", VisitorID: "v_b", Role: "user", Text: "other"})

	a := waitForLogLines(t, filepath.Join(dir, "v_a.ndjson"), 2)
	if a[0].Text != "hola" || a[1].Text != "respuesta" {
		t.Fatalf("unexpected events for v_a: %+v", a)
	}
	b := waitForLogLines(t, filepath.Join(dir, "v_b.ndjson"), 1)
	if b[0].VisitorID != "v_b" {
		t.Fatalf("unexpected events for v_b: %+v", b)
	}
}

func TestConversationLoggerDisabledReturnsNil(t *testing.T) {
	t.Parallel()

	l, err := NewConversationLogger(ConversationLogConfig{Enabled: false}, nil)
	if err != nil {
		t.Fatalf("disabled logger must not fail: %v", err)
	}
	if l != nil {
		t.Fatal("disabled logger must be nil")
	}

	// The nil logger is safe to use everywhere the handler does.
	l.Log(ConversationLogEvent{VisitorID: "v_a", Text: "dropped"})
	if l.Dropped() != 0 {
		t.Fatal("nil logger reports zero drops")
	}
	if err := l.Close(); err != nil {
		t.Fatalf("nil logger Close must be a no-op: %v", err)
	}
}

func TestConversationLoggerCloseDrainsQueue(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	l, err := NewConversationLogger(ConversationLogConfig{Enabled: true, Dir: dir, QueueSize: 64}, nil)
	if err != nil {
		t.Fatalf("NewConversationLogger failed: %v", err)
	}

	for i := 0; i < 10; i++ {
		l.Log(ConversationLogEvent{VisitorID: "v_drain", Role: "user", Text: "line"})
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	events := waitForLogLines(t, filepath.Join(dir, "v_drain.ndjson"), 10)
	if len(events) != 10 {
		t.Fatalf("expected all queued events flushed, got %d", len(events))
	}
}
