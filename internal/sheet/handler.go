// Package sheet serves the visitor's importation spreadsheet, streamed
// straight from the remote backend.
package sheet

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/naurat/naurbotmx/internal/api"
	"github.com/naurat/naurbotmx/internal/identity"
)

// Fetcher streams the caller's spreadsheet from the backend. Implemented
// by the tariff client.
type Fetcher interface {
	Excel(ctx context.Context, email string) (io.ReadCloser, string, error)
}

// Handler serves GET /api/sheet.
type Handler struct {
	fetcher Fetcher
	logger  *slog.Logger
}

// NewHandler creates the spreadsheet download handler.
func NewHandler(fetcher Fetcher, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{fetcher: fetcher, logger: logger}
}

// RegisterRoutes registers the download route.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/api/sheet", h.handleDownload)
}

// handleDownload proxies the spreadsheet. The backend keys sheets by
// email, so only signed-in visitors can download.
func (h *Handler) handleDownload(w http.ResponseWriter, r *http.Request) {
	email := identity.EmailFromContext(r.Context())
	if email == "" {
		api.Error(w, http.StatusUnauthorized, "sign in to download your sheet")
		return
	}

	body, contentType, err := h.fetcher.Excel(r.Context(), email)
	if err != nil {
		h.logger.Error("spreadsheet download failed", "email", email, "error", err)
		api.Error(w, http.StatusBadGateway, "failed to fetch spreadsheet")
		return
	}
	defer func() {
		if closeErr := body.Close(); closeErr != nil {
			h.logger.Debug("failed to close spreadsheet stream", "error", closeErr)
		}
	}()

	if contentType == "" {
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+Filename(identity.DisplayNameFromContext(r.Context()), email, time.Now())+`"`)

	if _, err := io.Copy(w, body); err != nil {
		h.logger.Debug("spreadsheet stream interrupted", "email", email, "error", err)
	}
}

// Filename builds the download name: the visitor's name with spaces
// collapsed to underscores, then a second-resolution timestamp.
func Filename(displayName, email string, now time.Time) string {
	name := strings.TrimSpace(displayName)
	if name == "" {
		name, _, _ = strings.Cut(email, "@")
	}
	name = strings.Join(strings.Fields(name), "_")
	return name + "-" + now.Format("2006-01-02_15-04-05") + ".xlsx"
}
