package auth

import (
	"testing"
	"time"
)

func TestSessionStoreIssueAndLookup(t *testing.T) {
	t.Parallel()

	s := NewSessionStore(time.Hour)
	token, err := s.Issue("user@example.com", "Example User")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if len(token) != 64 {
		t.Fatalf("expected a 32-byte hex token, got %q", token)
	}

	email, name, ok := s.Lookup(token)
	if !ok || email != "user@example.com" || name != "Example User" {
		t.Fatalf("unexpected lookup result: %q %q %v", email, name, ok)
	}

	if _, _, ok := s.Lookup("unknown"); ok {
		t.Fatal("unknown token must not resolve")
	}
}

func TestSessionStoreTokensAreUnique(t *testing.T) {
	t.Parallel()

	s := NewSessionStore(time.Hour)
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		token, err := s.Issue("user@example.com", "")
		if err != nil {
			t.Fatalf("Issue failed: %v", err)
		}
		if seen[token] {
			t.Fatal("token collision")
		}
		seen[token] = true
	}
}

func TestSessionStoreExpiry(t *testing.T) {
	t.Parallel()

	s := NewSessionStore(10 * time.Millisecond)
	token, err := s.Issue("user@example.com", "")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	time.Sleep(20 * time.Millisecond)
	if _, _, ok := s.Lookup(token); ok {
		t.Fatal("expired token must not resolve")
	}

	// A later issue prunes the dead entry too.
	if _, err := s.Issue("other@example.com", ""); err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if s.Len() != 1 {
		t.Fatalf("expected the expired session pruned, got %d", s.Len())
	}
}

func TestSessionStoreRevoke(t *testing.T) {
	t.Parallel()

	s := NewSessionStore(time.Hour)
	token, err := s.Issue("user@example.com", "")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	s.Revoke(token)
	if _, _, ok := s.Lookup(token); ok {
		t.Fatal("revoked token must not resolve")
	}
}
