// NaurBotMX - Import Tariff Assistant Server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/naurat/naurbotmx/internal/api"
	"github.com/naurat/naurbotmx/internal/auth"
	"github.com/naurat/naurbotmx/internal/chat"
	"github.com/naurat/naurbotmx/internal/config"
	"github.com/naurat/naurbotmx/internal/identity"
	"github.com/naurat/naurbotmx/internal/middleware"
	"github.com/naurat/naurbotmx/internal/sheet"
	"github.com/naurat/naurbotmx/internal/tariff"
	"github.com/naurat/naurbotmx/web"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "backend", cfg.BackendURL)

	// Initialize dependencies.
	backend, err := tariff.NewClient(tariff.ClientConfig{
		BaseURL:        cfg.BackendURL,
		RequestTimeout: cfg.BackendTimeout,
	}, logger)
	if err != nil {
		slog.Error("Failed to initialize backend client", "error", err)
		os.Exit(1)
	}

	convlog, err := chat.NewConversationLogger(chat.ConversationLogConfig{
		Enabled:   cfg.ConversationLog.Enabled,
		Dir:       cfg.ConversationLog.Dir,
		QueueSize: cfg.ConversationLog.QueueSize,
	}, logger)
	if err != nil {
		slog.Error("Failed to initialize conversation logger", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := convlog.Close(); closeErr != nil {
			slog.Error("Failed to close conversation logger", "error", closeErr)
		}
	}()

	resolver := identity.NewResolver(cfg.AnonIDMin, cfg.AnonIDMax)
	manager := chat.NewManager(resolver, backend, logger)
	defer manager.CloseAll()

	// Initialize handlers.
	chatHandler := chat.NewHandler(manager, convlog, chat.HandlerConfig{
		RateLimitRequests: cfg.RateLimit.RequestsPerWindow,
		RateLimitWindow:   cfg.RateLimit.WindowDuration,
		SSEKeepalive:      cfg.SSE.KeepaliveInterval,
		SSERetryDelay:     cfg.SSE.RetryDelay,
	})
	wsHandler := chat.NewWebSocketHandler(manager, cfg.FrontendURL, cfg.IsDevelopment())
	sheetHandler := sheet.NewHandler(backend, logger)
	healthHandler := api.NewHealthHandler(cfg.BackendURL, cfg.GoogleEnabled())

	// Sign-in is optional: without Google credentials the chat runs
	// anonymous-only and the auth routes are not mounted.
	var authLookup identity.AuthLookup
	var authHandler *auth.Handler
	if cfg.GoogleEnabled() {
		sessions := auth.NewSessionStore(auth.DefaultSessionTTL)
		authLookup = sessions
		authHandler = auth.NewHandler(cfg.Google, sessions, backend, cfg.IsDevelopment(), logger)
		slog.Info("Google sign-in enabled")
	} else {
		slog.Info("Google sign-in disabled (GOOGLE_CLIENT_ID not set)")
	}

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(corsOrigins(cfg)))
	r.Use(identity.Middleware(authLookup, cfg.IsDevelopment()))

	// Routes.
	healthHandler.RegisterHealth(r)
	chatHandler.RegisterRoutes(r)
	sheetHandler.RegisterRoutes(r)
	if authHandler != nil {
		authHandler.RegisterRoutes(r)
	} else {
		// The UI probes sign-in state either way.
		r.Get("/api/me", func(w http.ResponseWriter, req *http.Request) {
			api.JSON(w, http.StatusOK, map[string]bool{"authenticated": false})
		})
	}

	// WebSocket endpoint.
	r.Get("/ws/chat", wsHandler.ServeHTTP)

	// Serve embedded frontend (SPA catch-all).
	r.Handle("/*", web.SPAHandler())

	// Note: SSE connections require long timeouts (no WriteTimeout).
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chat.StartReaper(ctx, manager, cfg.SessionTTL)
	slog.Info("Session reaper started", "session_ttl", cfg.SessionTTL)

	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}

func corsOrigins(cfg *config.Config) []string {
	if cfg.FrontendURL != "" {
		return []string{cfg.FrontendURL}
	}
	return []string{"*"}
}
