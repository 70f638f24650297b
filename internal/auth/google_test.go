package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/naurat/naurbotmx/internal/config"
	"github.com/naurat/naurbotmx/internal/identity"
)

func newTestRouter(t *testing.T, sessions *SessionStore) chi.Router {
	t.Helper()
	h := NewHandler(config.GoogleConfig{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURL:  "http://localhost:8080/auth/callback",
	}, sessions, nil, true, nil)

	r := chi.NewRouter()
	r.Use(identity.Middleware(sessions, true))
	h.RegisterRoutes(r)
	return r
}

func TestLoginRedirectsToGoogleWithStateCookie(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t, NewSessionStore(time.Hour))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/auth/login", nil))

	if w.Code != http.StatusTemporaryRedirect {
		t.Fatalf("expected 307, got %d", w.Code)
	}
	loc := w.Header().Get("Location")
	if !strings.Contains(loc, "accounts.google.com") {
		t.Fatalf("expected a Google redirect, got %q", loc)
	}

	var state *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == stateCookieName {
			state = c
		}
	}
	if state == nil || state.Value == "" {
		t.Fatal("expected a state cookie")
	}
	if !strings.Contains(loc, "state="+state.Value) {
		t.Fatal("redirect state must match the cookie")
	}
}

func TestCallbackRejectsStateMismatch(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t, NewSessionStore(time.Hour))
	req := httptest.NewRequest(http.MethodGet, "/auth/callback?state=forged&code=abc", nil)
	req.AddCookie(&http.Cookie{Name: stateCookieName, Value: "real"})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestCallbackRejectsMissingCode(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t, NewSessionStore(time.Hour))
	req := httptest.NewRequest(http.MethodGet, "/auth/callback?state=s", nil)
	req.AddCookie(&http.Cookie{Name: stateCookieName, Value: "s"})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestLogoutRevokesSessionAndClearsCookie(t *testing.T) {
	t.Parallel()

	sessions := NewSessionStore(time.Hour)
	token, err := sessions.Issue("user@example.com", "Example User")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	r := newTestRouter(t, sessions)
	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: identity.AuthCookieName, Value: token})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if _, _, ok := sessions.Lookup(token); ok {
		t.Fatal("logout must revoke the session")
	}

	cleared := false
	for _, c := range w.Result().Cookies() {
		if c.Name == identity.AuthCookieName && c.MaxAge < 0 {
			cleared = true
		}
	}
	if !cleared {
		t.Fatal("logout must clear the session cookie")
	}
}

func TestMeReportsSignInState(t *testing.T) {
	t.Parallel()

	sessions := NewSessionStore(time.Hour)
	token, err := sessions.Issue("user@example.com", "Example User")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	r := newTestRouter(t, sessions)

	// Anonymous.
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/me", nil))
	var me meResponse
	if err := json.Unmarshal(w.Body.Bytes(), &me); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if me.Authenticated || me.Email != "" {
		t.Fatalf("expected anonymous, got %+v", me)
	}

	// Signed in.
	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.AddCookie(&http.Cookie{Name: identity.AuthCookieName, Value: token})
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if err := json.Unmarshal(w.Body.Bytes(), &me); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !me.Authenticated || me.Email != "user@example.com" || me.DisplayName != "Example User" {
		t.Fatalf("unexpected signed-in state: %+v", me)
	}
}
