// Package tariff provides the HTTP client for the remote Naurat import API.
// The API owns all business state: conversation storage, tariff computation
// and spreadsheet generation. This application only ever talks to it through
// this client and keeps nothing durable of its own.
package tariff

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

var (
	// ErrMissingMessage marks a 2xx importation response without the
	// expected message field. Callers treat it like a transport failure.
	ErrMissingMessage = errors.New("importation response missing message")
)

// Message is a conversation turn in the backend's shape.
type Message struct {
	Owner   string   `json:"owner"` // "ai" | "human"
	Message string   `json:"message"`
	Noms    []string `json:"noms,omitempty"`
	Lang    string   `json:"lang,omitempty"`
}

// Backend owner tags.
const (
	OwnerAI    = "ai"
	OwnerHuman = "human"
)

type conversationResponse struct {
	Conversation []Message `json:"conversation"`
}

// ImportationRequest is the payload for a tariff question. Exactly one of
// UserEmail and UserID must be set.
type ImportationRequest struct {
	Prompt    string `json:"prompt"`
	UserEmail string `json:"user_email,omitempty"`
	UserID    string `json:"user_id,omitempty"`
}

// ImportationResponse is the assistant's reply.
type ImportationResponse struct {
	Message string   `json:"message"`
	Noms    []string `json:"noms,omitempty"`
	Lang    string   `json:"lang,omitempty"`
}

// ClientConfig holds configuration for the API client.
type ClientConfig struct {
	BaseURL        string
	RequestTimeout time.Duration
}

// DefaultClientConfig returns default configuration.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		BaseURL:        "http://localhost:8000",
		RequestTimeout: 30 * time.Second,
	}
}

// Client talks to the Naurat import API.
type Client struct {
	base   *url.URL
	http   *http.Client
	logger *slog.Logger
}

// NewClient creates a client for the API at the given base URL.
func NewClient(cfg ClientConfig, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultClientConfig().BaseURL
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultClientConfig().RequestTimeout
	}

	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse backend URL %q: %w", cfg.BaseURL, err)
	}

	return &Client{
		base:   base,
		http:   &http.Client{Timeout: cfg.RequestTimeout},
		logger: logger,
	}, nil
}

func (c *Client) endpoint(path string) string {
	ref := &url.URL{Path: path}
	return c.base.ResolveReference(ref).String()
}

// Conversation fetches the stored conversation history for an email.
func (c *Client) Conversation(ctx context.Context, email string) ([]Message, error) {
	u := c.endpoint("/ai/bot_conversation/" + url.PathEscape(email))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build history request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch conversation history: %w", err)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch conversation history: unexpected status %d", resp.StatusCode)
	}

	var body conversationResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode conversation history: %w", err)
	}
	return body.Conversation, nil
}

// Importation submits one utterance for tariff analysis.
func (c *Client) Importation(ctx context.Context, in ImportationRequest) (*ImportationResponse, error) {
	payload, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("encode importation request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/ai/importation/"), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build importation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post importation: %w", err)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("post importation: unexpected status %d", resp.StatusCode)
	}

	var body ImportationResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode importation response: %w", err)
	}
	if body.Message == "" {
		return nil, ErrMissingMessage
	}
	return &body, nil
}

// Excel streams the spreadsheet export for an email. The caller owns the
// returned body and must close it.
func (c *Client) Excel(ctx context.Context, email string) (io.ReadCloser, string, error) {
	u := c.endpoint("/ai/get_excel/") + "?user_email=" + url.QueryEscape(email)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build excel request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetch excel: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		drainAndClose(resp.Body)
		return nil, "", fmt.Errorf("fetch excel: unexpected status %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return resp.Body, contentType, nil
}

// NotifyLogin tells the backend that a Google sign-in completed. This is a
// best-effort webhook: failures are logged and swallowed, never surfaced to
// the login flow.
func (c *Client) NotifyLogin(ctx context.Context, email string) {
	payload, err := json.Marshal(map[string]string{"email": email})
	if err != nil {
		c.logger.Warn("encode login notification", "error", err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/ai/google-login/"), bytes.NewReader(payload))
	if err != nil {
		c.logger.Warn("build login notification", "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("post login notification", "error", err)
		return
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("login notification rejected", "status", resp.StatusCode)
	}
}

func drainAndClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, body)
	_ = body.Close()
}
