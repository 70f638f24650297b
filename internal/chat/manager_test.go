package chat

import (
	"context"
	"testing"
	"time"

	"github.com/naurat/naurbotmx/internal/identity"
)

func testResolver(t *testing.T) *identity.Resolver {
	t.Helper()
	return identity.NewResolver(identity.DefaultAnonIDMin, identity.DefaultAnonIDMax)
}

func TestManagerGetOrCreateReusesSession(t *testing.T) {
	t.Parallel()

	m := NewManager(testResolver(t), &fakeBackend{}, nil)
	a := m.GetOrCreate("v_1", "", "")
	b := m.GetOrCreate("v_1", "", "")
	if a != b {
		t.Fatal("same visitor and identity must map to the same session")
	}
	if m.Len() != 1 {
		t.Fatalf("expected 1 session, got %d", m.Len())
	}
}

func TestManagerGetOrCreateReplacesOnIdentityChange(t *testing.T) {
	t.Parallel()

	m := NewManager(testResolver(t), &fakeBackend{}, nil)
	anon := m.GetOrCreate("v_1", "", "")
	if anon.Identity().Authenticated() {
		t.Fatal("expected an anonymous session")
	}

	signedIn := m.GetOrCreate("v_1", "user@example.com", "Example User")
	if signedIn == anon {
		t.Fatal("sign-in must replace the anonymous session")
	}
	if !signedIn.Identity().Authenticated() {
		t.Fatal("expected an authenticated session")
	}
	if err := anon.Send(context.Background(), "late"); err != ErrSessionClosed {
		t.Fatalf("replaced session must be closed, got %v", err)
	}

	signedOut := m.GetOrCreate("v_1", "", "")
	if signedOut == signedIn {
		t.Fatal("sign-out must replace the authenticated session")
	}
	if m.Len() != 1 {
		t.Fatalf("expected 1 session after replacements, got %d", m.Len())
	}
}

func TestManagerRemove(t *testing.T) {
	t.Parallel()

	m := NewManager(testResolver(t), &fakeBackend{}, nil)
	sess := m.GetOrCreate("v_1", "", "")
	m.Remove("v_1")

	if m.Get("v_1") != nil || m.Len() != 0 {
		t.Fatal("removed session must be gone")
	}
	if err := sess.Send(context.Background(), "late"); err != ErrSessionClosed {
		t.Fatalf("removed session must be closed, got %v", err)
	}
}

func TestManagerSweepDiscardsIdleSessions(t *testing.T) {
	t.Parallel()

	m := NewManager(testResolver(t), &fakeBackend{}, nil)
	idle := m.GetOrCreate("v_idle", "", "")
	m.GetOrCreate("v_fresh", "", "")

	time.Sleep(20 * time.Millisecond)
	m.GetOrCreate("v_fresh", "", "").Touch()

	if n := m.Sweep(10 * time.Millisecond); n != 1 {
		t.Fatalf("expected 1 reaped session, got %d", n)
	}
	if m.Get("v_idle") != nil {
		t.Fatal("idle session must be gone")
	}
	if m.Get("v_fresh") == nil {
		t.Fatal("fresh session must survive the sweep")
	}
	if err := idle.Send(context.Background(), "late"); err != ErrSessionClosed {
		t.Fatalf("reaped session must be closed, got %v", err)
	}
}

func TestManagerSweepSkipsAwaitingSessions(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{block: make(chan struct{})}
	m := NewManager(testResolver(t), backend, nil)
	sess := m.GetOrCreate("v_busy", "", "")

	done := make(chan error, 1)
	go func() { done <- sess.Send(context.Background(), "slow question") }()
	waitFor(t, sess.Awaiting, "dispatch to start")

	time.Sleep(20 * time.Millisecond)
	if n := m.Sweep(time.Nanosecond); n != 0 {
		t.Fatalf("awaiting session must not be reaped, swept %d", n)
	}

	close(backend.block)
	if err := <-done; err != nil {
		t.Fatalf("Send failed: %v", err)
	}
}

func TestManagerCloseAll(t *testing.T) {
	t.Parallel()

	m := NewManager(testResolver(t), &fakeBackend{}, nil)
	sess := m.GetOrCreate("v_1", "", "")
	m.GetOrCreate("v_2", "", "")
	m.CloseAll()

	if m.Len() != 0 {
		t.Fatalf("expected empty registry, got %d", m.Len())
	}
	if err := sess.Send(context.Background(), "late"); err != ErrSessionClosed {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}
}

func TestRateLimiterSlidingWindow(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(2, 50*time.Millisecond)
	if !rl.Allow("v_1") || !rl.Allow("v_1") {
		t.Fatal("requests within the limit must pass")
	}
	if rl.Allow("v_1") {
		t.Fatal("request over the limit must be rejected")
	}
	if !rl.Allow("v_2") {
		t.Fatal("limits are per visitor")
	}

	time.Sleep(60 * time.Millisecond)
	if !rl.Allow("v_1") {
		t.Fatal("budget must recover once the window slides past")
	}
}
