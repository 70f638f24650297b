package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/naurat/naurbotmx/internal/api"
	"github.com/naurat/naurbotmx/internal/domain"
	"github.com/naurat/naurbotmx/internal/identity"
	"github.com/naurat/naurbotmx/internal/noms"
)

// maxRequestBodySize bounds chat request bodies (1MB).
const maxRequestBodySize = 1 << 20

// HandlerConfig tunes the chat HTTP surface.
type HandlerConfig struct {
	RateLimitRequests int
	RateLimitWindow   time.Duration
	SSEKeepalive      time.Duration
	SSERetryDelay     time.Duration
}

// DefaultHandlerConfig returns the default tuning.
func DefaultHandlerConfig() HandlerConfig {
	return HandlerConfig{
		RateLimitRequests: 10,
		RateLimitWindow:   time.Minute,
		SSEKeepalive:      10 * time.Second,
		SSERetryDelay:     5 * time.Second,
	}
}

// Handler exposes chat sessions over REST and SSE.
type Handler struct {
	manager *Manager
	limiter *RateLimiter
	convlog *ConversationLogger
	cfg     HandlerConfig
}

// NewHandler creates the chat HTTP handler. convlog may be nil to disable
// conversation telemetry.
func NewHandler(manager *Manager, convlog *ConversationLogger, cfg HandlerConfig) *Handler {
	if cfg.RateLimitRequests <= 0 {
		cfg = DefaultHandlerConfig()
	}
	return &Handler{
		manager: manager,
		limiter: NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow),
		convlog: convlog,
		cfg:     cfg,
	}
}

// RegisterRoutes registers the chat routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api/chat", func(r chi.Router) {
		r.Post("/send", h.handleSend)
		r.Get("/history", h.handleHistory)
		r.Get("/stream", h.handleStream)
	})
}

// referenceAsset pairs a reference code with its label artwork, when known.
type referenceAsset struct {
	Code  string `json:"code"`
	Asset string `json:"asset"`
}

// messagePayload is the wire shape of a conversation message, enriched
// with the artwork paths the UI renders under bot replies.
type messagePayload struct {
	Role            domain.Role      `json:"role"`
	Text            string           `json:"text"`
	References      []string         `json:"references,omitempty"`
	Language        domain.Language  `json:"language"`
	ReferenceAssets []referenceAsset `json:"reference_assets,omitempty"`
}

func toPayload(m domain.Message) messagePayload {
	p := messagePayload{
		Role:       m.Role,
		Text:       m.Text,
		References: m.References,
		Language:   m.Language,
	}
	for _, code := range m.References {
		if asset, ok := noms.Lookup(code, m.Language); ok {
			p.ReferenceAssets = append(p.ReferenceAssets, referenceAsset{Code: code, Asset: asset})
		}
	}
	return p
}

func toPayloads(msgs []domain.Message) []messagePayload {
	out := make([]messagePayload, len(msgs))
	for i, m := range msgs {
		out[i] = toPayload(m)
	}
	return out
}

// session resolves the caller's chat session from the request identity and
// replays history for authenticated visitors before first use. History
// load uses a context detached from the request so a dropped connection
// cannot poison the one-shot load.
func (h *Handler) session(r *http.Request) (*Session, string) {
	ctx := r.Context()
	visitorID := identity.VisitorIDFromContext(ctx)
	sess := h.manager.GetOrCreate(visitorID,
		identity.EmailFromContext(ctx),
		identity.DisplayNameFromContext(ctx),
	)
	sess.LoadHistory(context.WithoutCancel(ctx))
	return sess, visitorID
}

type sendRequest struct {
	Message string `json:"message"`
}

type sendResponse struct {
	Accepted bool             `json:"accepted"`
	Messages []messagePayload `json:"messages,omitempty"`
}

// handleSend handles POST /api/chat/send.
func (h *Handler) handleSend(w http.ResponseWriter, r *http.Request) {
	visitorID := identity.VisitorIDFromContext(r.Context())
	if visitorID == "" {
		api.Error(w, http.StatusUnauthorized, "unknown visitor")
		return
	}

	if !h.limiter.Allow(visitorID) {
		api.Error(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sess, _ := h.session(r)
	sess.Touch()

	// Detached from the request: a dropped POST mid-flight must not cancel
	// the backend call and inject a spurious apology into the live session.
	err := sess.Send(context.WithoutCancel(r.Context()), req.Message)
	switch {
	case errors.Is(err, ErrEmptyUtterance), errors.Is(err, ErrDispatchInFlight), errors.Is(err, ErrSessionClosed):
		// Silently rejected preconditions, not failures.
		api.JSON(w, http.StatusOK, sendResponse{Accepted: false})
		return
	case err != nil:
		slog.Error("chat send failed", "visitor_id", visitorID, "error", err)
		api.Error(w, http.StatusInternalServerError, "dispatch failed")
		return
	}

	// Telemetry records turns that actually entered the store; silently
	// rejected submissions never did.
	h.convlog.Log(ConversationLogEvent{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		VisitorID: visitorID,
		Role:      string(domain.RoleUser),
		Text:      req.Message,
	})

	msgs := sess.Store().Messages()
	if len(msgs) > 0 {
		last := msgs[len(msgs)-1]
		if last.Role == domain.RoleBot {
			h.convlog.Log(ConversationLogEvent{
				Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
				VisitorID: visitorID,
				Role:      string(domain.RoleBot),
				Text:      last.Text,
			})
		}
	}

	api.JSON(w, http.StatusOK, sendResponse{Accepted: true, Messages: toPayloads(msgs)})
}

type historyResponse struct {
	Authenticated bool             `json:"authenticated"`
	Messages      []messagePayload `json:"messages"`
}

// handleHistory handles GET /api/chat/history: a snapshot of the store,
// greeting included.
func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	if identity.VisitorIDFromContext(r.Context()) == "" {
		api.Error(w, http.StatusUnauthorized, "unknown visitor")
		return
	}

	sess, _ := h.session(r)
	sess.Touch()

	api.JSON(w, http.StatusOK, historyResponse{
		Authenticated: sess.Identity().Authenticated(),
		Messages:      toPayloads(sess.Store().Messages()),
	})
}

// streamEvent is the SSE data payload for message and notice events.
type streamEvent struct {
	Seq     int             `json:"seq,omitempty"`
	Message *messagePayload `json:"message,omitempty"`
	Notice  string          `json:"notice,omitempty"`
}

// handleStream handles GET /api/chat/stream: the live event feed a
// renderer subscribes to instead of polling. Emits a connected event, a
// full snapshot, then message/notice events with periodic keepalives.
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	visitorID := identity.VisitorIDFromContext(r.Context())
	if visitorID == "" {
		api.Error(w, http.StatusUnauthorized, "unknown visitor")
		return
	}

	sess, _ := h.session(r)
	sess.Touch()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		api.Error(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	if _, err := fmt.Fprintf(w, "retry: %d\n\n", h.cfg.SSERetryDelay.Milliseconds()); err != nil {
		return
	}
	flusher.Flush()

	// Subscribe before the snapshot read so nothing appended in between is
	// lost; the client drops live events whose seq falls inside the snapshot.
	events, cancel := sess.Store().Subscribe()
	defer cancel()

	connected := fmt.Sprintf(`{"status":"connected","authenticated":%t}`, sess.Identity().Authenticated())
	if err := writeSSE(w, "connected", connected); err != nil {
		return
	}

	snapshot, err := json.Marshal(map[string]any{
		"messages": toPayloads(sess.Store().Messages()),
	})
	if err != nil {
		slog.Warn("failed to marshal chat snapshot", "error", err)
		return
	}
	if err := writeSSE(w, "snapshot", string(snapshot)); err != nil {
		return
	}
	flusher.Flush()

	slog.Info("chat stream connected", "visitor_id", visitorID)
	defer slog.Info("chat stream disconnected", "visitor_id", visitorID)

	keepalive := time.NewTicker(h.cfg.SSEKeepalive)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				// Session reaped or replaced.
				_ = writeSSE(w, "closed", `{"status":"closed"}`)
				flusher.Flush()
				return
			}
			if err := h.writeEvent(w, ev); err != nil {
				return
			}
			flusher.Flush()
		case <-keepalive.C:
			if err := writeSSE(w, "ping", `{"status":"alive"}`); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (h *Handler) writeEvent(w io.Writer, ev Event) error {
	out := streamEvent{Seq: ev.Seq, Notice: ev.Notice}
	if ev.Message != nil {
		p := toPayload(*ev.Message)
		out.Message = &p
	}
	data, err := json.Marshal(out)
	if err != nil {
		return err
	}
	return writeSSE(w, string(ev.Type), string(data))
}

func writeSSE(w io.Writer, event, data string) error {
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}
