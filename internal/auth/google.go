package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/naurat/naurbotmx/internal/api"
	"github.com/naurat/naurbotmx/internal/config"
	"github.com/naurat/naurbotmx/internal/identity"
)

const (
	stateCookieName = "naurbot_oauth_state"
	stateTTL        = 10 * time.Minute
	userinfoURL     = "https://www.googleapis.com/oauth2/v2/userinfo"
)

// LoginNotifier receives a best-effort signal that a user signed in.
// Implemented by the tariff backend client.
type LoginNotifier interface {
	NotifyLogin(ctx context.Context, email string)
}

// Handler serves the Google OAuth sign-in flow: redirect out, exchange the
// code on callback, fetch the profile, and mint a local sign-in session.
type Handler struct {
	oauth    *oauth2.Config
	sessions *SessionStore
	notifier LoginNotifier
	isDev    bool
	logger   *slog.Logger
}

// NewHandler wires the sign-in flow. notifier may be nil.
func NewHandler(cfg config.GoogleConfig, sessions *SessionStore, notifier LoginNotifier, isDev bool, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint:     google.Endpoint,
		},
		sessions: sessions,
		notifier: notifier,
		isDev:    isDev,
		logger:   logger,
	}
}

// RegisterRoutes registers the sign-in routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/auth/login", h.handleLogin)
	r.Get("/auth/callback", h.handleCallback)
	r.Post("/auth/logout", h.handleLogout)
	r.Get("/api/me", h.handleMe)
}

// handleLogin starts the flow: set a state cookie and redirect to Google.
func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	state, err := randomState()
	if err != nil {
		h.logger.Error("failed to generate oauth state", "error", err)
		api.Error(w, http.StatusInternalServerError, "sign-in unavailable")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/auth",
		MaxAge:   int(stateTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   !h.isDev,
	})

	http.Redirect(w, r, h.oauth.AuthCodeURL(state), http.StatusTemporaryRedirect)
}

// googleProfile is the subset of the userinfo response we use.
type googleProfile struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// handleCallback finishes the flow: verify state, exchange the code, fetch
// the profile, issue a local session, and tell the backend someone signed
// in. The notification is fire-and-forget; sign-in succeeds regardless.
func (h *Handler) handleCallback(w http.ResponseWriter, r *http.Request) {
	stateCookie, err := r.Cookie(stateCookieName)
	if err != nil || stateCookie.Value == "" || r.URL.Query().Get("state") != stateCookie.Value {
		api.Error(w, http.StatusBadRequest, "invalid oauth state")
		return
	}
	clearCookie(w, stateCookieName, "/auth", h.isDev)

	code := r.URL.Query().Get("code")
	if code == "" {
		api.Error(w, http.StatusBadRequest, "missing authorization code")
		return
	}

	token, err := h.oauth.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("oauth code exchange failed", "error", err)
		api.Error(w, http.StatusBadGateway, "sign-in failed")
		return
	}

	profile, err := h.fetchProfile(r.Context(), token)
	if err != nil {
		h.logger.Error("failed to fetch google profile", "error", err)
		api.Error(w, http.StatusBadGateway, "sign-in failed")
		return
	}
	if profile.Email == "" {
		api.Error(w, http.StatusBadGateway, "google profile has no email")
		return
	}

	sessionToken, err := h.sessions.Issue(profile.Email, profile.Name)
	if err != nil {
		h.logger.Error("failed to issue sign-in session", "error", err)
		api.Error(w, http.StatusInternalServerError, "sign-in failed")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     identity.AuthCookieName,
		Value:    sessionToken,
		Path:     "/",
		MaxAge:   int(DefaultSessionTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   !h.isDev,
	})

	if h.notifier != nil {
		go h.notifier.NotifyLogin(context.WithoutCancel(r.Context()), profile.Email)
	}

	h.logger.Info("user signed in", "email", profile.Email)
	http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
}

func (h *Handler) fetchProfile(ctx context.Context, token *oauth2.Token) (*googleProfile, error) {
	client := h.oauth.Client(ctx, token)
	resp, err := client.Get(userinfoURL)
	if err != nil {
		return nil, fmt.Errorf("fetch userinfo: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("userinfo returned status %d", resp.StatusCode)
	}

	var profile googleProfile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, fmt.Errorf("decode userinfo: %w", err)
	}
	return &profile, nil
}

// handleLogout revokes the sign-in session and clears its cookie. The chat
// session swap happens on the next request, when the identity middleware
// stops resolving an email for this visitor.
func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(identity.AuthCookieName); err == nil && c.Value != "" {
		h.sessions.Revoke(c.Value)
	}
	clearCookie(w, identity.AuthCookieName, "/", h.isDev)
	api.JSON(w, http.StatusOK, map[string]bool{"signed_out": true})
}

type meResponse struct {
	Authenticated bool   `json:"authenticated"`
	Email         string `json:"email,omitempty"`
	DisplayName   string `json:"display_name,omitempty"`
}

// handleMe reports the caller's sign-in state, for the UI.
func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	email := identity.EmailFromContext(r.Context())
	api.JSON(w, http.StatusOK, meResponse{
		Authenticated: email != "",
		Email:         email,
		DisplayName:   identity.DisplayNameFromContext(r.Context()),
	})
}

func clearCookie(w http.ResponseWriter, name, path string, isDev bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     path,
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   !isDev,
	})
}

func randomState() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
