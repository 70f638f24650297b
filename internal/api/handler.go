// Package api provides shared HTTP response helpers and the health surface.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// HealthHandler reports liveness and basic wiring facts.
type HealthHandler struct {
	started       time.Time
	backendURL    string
	signInEnabled bool
}

// NewHealthHandler creates the health handler.
func NewHealthHandler(backendURL string, signInEnabled bool) *HealthHandler {
	return &HealthHandler{
		started:       time.Now(),
		backendURL:    backendURL,
		signInEnabled: signInEnabled,
	}
}

// RegisterHealth registers the health route.
func (h *HealthHandler) RegisterHealth(r chi.Router) {
	r.Get("/api/health", h.handleHealth)
}

func (h *HealthHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]interface{}{
		"status":         "ok",
		"uptime_seconds": int(time.Since(h.started).Seconds()),
		"backend":        h.backendURL,
		"sign_in":        h.signInEnabled,
	})
}
