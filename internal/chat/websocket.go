package chat

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/naurat/naurbotmx/internal/identity"
)

// WebSocketHandler exposes a chat session over an interactive WebSocket:
// the client relays raw input and key events, the server runs the compose
// state machine and the dispatcher, and pushes conversation events back.
type WebSocketHandler struct {
	manager       *Manager
	allowedOrigin string
	isDev         bool
}

// NewWebSocketHandler creates the WebSocket chat handler.
func NewWebSocketHandler(manager *Manager, allowedOrigin string, isDev bool) *WebSocketHandler {
	return &WebSocketHandler{
		manager:       manager,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
	}
}

// inFrame is a client-to-server message.
type inFrame struct {
	Type  string `json:"type"`           // "input" | "key" | "send"
	Text  string `json:"text,omitempty"` // full compose text for "input"
	Key   string `json:"key,omitempty"`  // key name for "key"
	Shift bool   `json:"shift,omitempty"`
}

// outFrame is a server-to-client message.
type outFrame struct {
	Type     string           `json:"type"` // "snapshot" | "message" | "notice" | "compose" | "awaiting" | "closed"
	Seq      int              `json:"seq,omitempty"`
	Message  *messagePayload  `json:"message,omitempty"`
	Messages []messagePayload `json:"messages,omitempty"`
	Notice   string           `json:"notice,omitempty"`
	Text     string           `json:"text,omitempty"`
	Rows     int              `json:"rows,omitempty"`
	Overflow bool             `json:"overflow,omitempty"`
	Awaiting bool             `json:"awaiting,omitempty"`
}

func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return h.allowedOrigin != "" && strings.HasPrefix(origin, h.allowedOrigin)
}

// ServeHTTP upgrades to WebSocket and serves the chat session until the
// client disconnects. The session itself outlives the connection; only
// the compose box is per-connection state.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	visitorID := identity.VisitorIDFromContext(r.Context())
	if visitorID == "" {
		http.Error(w, `{"error": "unknown visitor"}`, http.StatusUnauthorized)
		return
	}

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("failed to accept chat WebSocket", "error", err, "visitor_id", visitorID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "chat ended"); closeErr != nil {
			slog.Debug("failed to close chat websocket", "error", closeErr, "visitor_id", visitorID)
		}
	}()

	connID := uuid.NewString()
	sess := h.manager.GetOrCreate(visitorID,
		identity.EmailFromContext(r.Context()),
		identity.DisplayNameFromContext(r.Context()),
	)
	sess.Touch()
	slog.Info("chat WebSocket connected", "visitor_id", visitorID, "conn_id", connID)
	defer slog.Info("chat WebSocket disconnected", "visitor_id", visitorID, "conn_id", connID)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	out := make(chan outFrame, 64)
	send := func(f outFrame) {
		select {
		case out <- f:
		case <-ctx.Done():
		}
	}

	// Writer: the only goroutine that touches the socket's write side.
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case f := <-out:
				data, err := json.Marshal(f)
				if err != nil {
					slog.Warn("marshal chat frame", "error", err)
					continue
				}
				if err := ws.Write(ctx, websocket.MessageText, data); err != nil {
					cancel()
					return
				}
			}
		}
	}()

	// Subscribe before the snapshot so appends in between are not lost.
	events, cancelSub := sess.Store().Subscribe()
	defer cancelSub()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-events:
				if !ok {
					send(outFrame{Type: "closed"})
					cancel()
					return
				}
				f := outFrame{Type: string(ev.Type), Seq: ev.Seq, Notice: ev.Notice}
				if ev.Message != nil {
					p := toPayload(*ev.Message)
					f.Message = &p
				}
				send(f)
			}
		}
	}()

	compose := NewCompose()
	var inFlight atomic.Bool
	send(outFrame{Type: "snapshot", Messages: toPayloads(sess.Store().Messages())})
	send(composeFrame(compose))
	send(outFrame{Type: "awaiting", Awaiting: sess.Awaiting()})

	// History replay arrives through the subscription; detached from the
	// connection context so a quick disconnect cannot poison the one-shot
	// load.
	go sess.LoadHistory(context.WithoutCancel(ctx))

	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			return
		}
		var f inFrame
		if err := json.Unmarshal(data, &f); err != nil {
			slog.Debug("ignoring malformed chat frame", "visitor_id", visitorID, "error", err)
			continue
		}
		sess.Touch()

		switch f.Type {
		case "input":
			compose.SetText(f.Text)
			send(composeFrame(compose))
		case "key":
			if f.Key != "Enter" {
				continue
			}
			if f.Shift {
				compose.PressEnter(true)
				send(composeFrame(compose))
				continue
			}
			h.submit(ctx, sess, compose, send, submitEnter, &inFlight)
		case "send":
			h.submit(ctx, sess, compose, send, submitButton, &inFlight)
		default:
			slog.Debug("ignoring unknown chat frame type", "type", f.Type)
		}
	}
}

type submitKind int

const (
	submitEnter submitKind = iota
	submitButton
)

// submit runs one compose submission. While a dispatch is awaiting, the
// trigger is ignored outright: the box is not cleared and nothing is sent,
// so a programmatic trigger cannot double-submit. inFlight is the
// per-connection guard: it is flipped before the dispatch goroutine starts,
// so a second trigger arriving before the session flag is set still cannot
// clear the box and lose its text. The clear happens synchronously, before
// the dispatch resolves.
func (h *WebSocketHandler) submit(ctx context.Context, sess *Session, compose *Compose, send func(outFrame), kind submitKind, inFlight *atomic.Bool) {
	if sess.Awaiting() {
		return
	}
	if !inFlight.CompareAndSwap(false, true) {
		return
	}

	var text string
	var ok bool
	if kind == submitButton {
		text, ok = compose.Send()
	} else {
		text, ok = compose.PressEnter(false)
	}
	if !ok {
		inFlight.Store(false)
		return
	}
	send(composeFrame(compose))

	send(outFrame{Type: "awaiting", Awaiting: true})
	go func() {
		// Detached from the socket: a disconnect mid-flight must not turn
		// into a spurious failure, and the session guards its own store.
		_ = sess.Send(context.WithoutCancel(ctx), text)
		inFlight.Store(false)
		send(outFrame{Type: "awaiting", Awaiting: false})
	}()
}

func composeFrame(c *Compose) outFrame {
	return outFrame{
		Type:     "compose",
		Text:     c.Text(),
		Rows:     c.VisibleRows(),
		Overflow: c.Overflow(),
	}
}
