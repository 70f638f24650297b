// Package identity resolves visitor identity for chat sessions and exposes
// it to HTTP handlers through request-scoped context values.
package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	mathrand "math/rand"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/naurat/naurbotmx/internal/domain"
)

const (
	// VisitorCookieName carries the per-browser visitor key that pins a
	// browser to its in-memory chat session.
	VisitorCookieName = "naurbot_visitor_id"
	// AuthCookieName carries the sign-in session token issued by the auth flow.
	AuthCookieName = "naurbot_session"

	visitorCookieMaxAge = 30 * 24 * time.Hour

	// DefaultAnonIDMin and DefaultAnonIDMax bound the anonymous session ID
	// range: 7-digit decimal numbers.
	DefaultAnonIDMin = 1_000_000
	DefaultAnonIDMax = 10_000_000
)

var visitorIDPattern = regexp.MustCompile(`^v_[a-f0-9]{32}$`)

type contextKey int

const (
	visitorIDKey contextKey = iota
	emailKey
	displayNameKey
)

// Resolver produces the identity for a new chat session. Anonymous visitors
// get a random numeric session ID drawn once from [min, max); the value is
// never persisted and dies with the session.
type Resolver struct {
	min int
	max int
}

// NewResolver creates a resolver with the given anonymous ID range.
// An empty or inverted range falls back to the 7-digit default.
func NewResolver(min, max int) *Resolver {
	if min <= 0 || max <= min {
		min = DefaultAnonIDMin
		max = DefaultAnonIDMax
	}
	return &Resolver{min: min, max: max}
}

// Resolve returns an authenticated identity when an email is available and
// an anonymous one otherwise. Absence of email is an expected branch, not
// a failure.
func (r *Resolver) Resolve(email, displayName string) domain.Identity {
	if email != "" {
		return domain.Identity{Email: email, DisplayName: displayName}
	}
	n := r.min + mathrand.Intn(r.max-r.min)
	return domain.Identity{SessionID: strconv.Itoa(n)}
}

// AuthLookup maps a sign-in session token to the visitor it belongs to.
// Implemented by the auth session store; may be nil when sign-in is disabled.
type AuthLookup interface {
	Lookup(token string) (email, displayName string, ok bool)
}

// VisitorIDFromContext extracts the visitor key from the request context.
func VisitorIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(visitorIDKey).(string); ok {
		return v
	}
	return ""
}

// EmailFromContext extracts the signed-in email, empty for anonymous visitors.
func EmailFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(emailKey).(string); ok {
		return v
	}
	return ""
}

// DisplayNameFromContext extracts the signed-in display name, if any.
func DisplayNameFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(displayNameKey).(string); ok {
		return v
	}
	return ""
}

func generateVisitorID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "v_" + hex.EncodeToString(buf), nil
}

func isValidVisitorID(id string) bool {
	return visitorIDPattern.MatchString(id)
}

func setVisitorCookie(w http.ResponseWriter, id string, isDev bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     VisitorCookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(visitorCookieMaxAge.Seconds()),
		Expires:  time.Now().Add(visitorCookieMaxAge),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   !isDev,
	})
}

func getOrCreateVisitorID(w http.ResponseWriter, r *http.Request) (string, error) {
	if c, err := r.Cookie(VisitorCookieName); err == nil && isValidVisitorID(c.Value) {
		return c.Value, nil
	}
	return generateVisitorID()
}

// Middleware injects the per-browser visitor key and, when the request
// carries a valid sign-in token, the visitor's email and display name.
// Handlers construct the session identity from these values explicitly;
// nothing below the HTTP layer reads ambient state.
func Middleware(auth AuthLookup, isDev bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			visitorID, err := getOrCreateVisitorID(w, r)
			if err != nil {
				http.Error(w, `{"error":"failed to establish visitor identity"}`, http.StatusInternalServerError)
				return
			}
			setVisitorCookie(w, visitorID, isDev)

			ctx := context.WithValue(r.Context(), visitorIDKey, visitorID)

			if auth != nil {
				if c, err := r.Cookie(AuthCookieName); err == nil && c.Value != "" {
					if email, name, ok := auth.Lookup(c.Value); ok {
						ctx = context.WithValue(ctx, emailKey, email)
						ctx = context.WithValue(ctx, displayNameKey, name)
					}
				}
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
