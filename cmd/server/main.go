// Symbiote - multi-agent web testing session server
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
	"github.com/symbiote-ai/symbiote/internal/agent"
	"github.com/symbiote-ai/symbiote/internal/api"
	"github.com/symbiote-ai/symbiote/internal/config"
	"github.com/symbiote-ai/symbiote/internal/middleware"
	"github.com/symbiote-ai/symbiote/internal/session"
	"github.com/symbiote-ai/symbiote/internal/store"
	"github.com/symbiote-ai/symbiote/internal/stream"
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

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

	// Initialize dependencies.
	st, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("Failed to close store", "error", closeErr)
		}
	}()

	if err := st.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	auditLogger, err := session.NewAuditLogger(session.AuditConfig{
		Enabled:       cfg.AuditLog.Enabled,
		Dir:           cfg.AuditLog.Dir,
		GlobalEnabled: cfg.AuditLog.GlobalEnabled,
		GlobalPath:    cfg.AuditLog.GlobalPath,
		QueueSize:     cfg.AuditLog.QueueSize,
	}, logger)
	if err != nil {
		slog.Error("Failed to initialize audit logger", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := auditLogger.Close(); closeErr != nil {
			slog.Error("Failed to close audit logger", "error", closeErr)
		}
	}()

	hub := stream.NewHub()
	sessions := session.NewManager(st,
		session.WithAuditor(auditLogger),
		session.WithNotifier(hub),
	)
	slog.Info("Session manager initialized", "audit_enabled", cfg.AuditLog.Enabled)

	// The model endpoint client is wired here so operators can drive the
	// agents through the API later; the session core never calls it.
	modelClient := agent.NewClient(agent.ClientConfig{
		BaseURL:        cfg.AgentServerURL,
		RequestTimeout: cfg.ModelTimeout,
	}, logger)
	if models, err := modelClient.ListModels(context.Background()); err != nil {
		slog.Warn("Model endpoint not reachable, agents will fail until it is", "url", cfg.AgentServerURL, "error", err)
	} else {
		slog.Info("Model endpoint ready", "url", cfg.AgentServerURL, "models", len(models))
	}

	// Initialize handlers.
	baseHandler := api.NewHandler(sessions)
	healthHandler := api.NewHealthHandler(st)
	wsHandler := stream.NewWebSocketHandler(hub, sessions)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS([]string{"*"}))

	healthHandler.RegisterHealth(r)
	baseHandler.RegisterRoutes(r)

	// WebSocket endpoint: live per-session message feed.
	r.Get("/ws/sessions/{sessionID}", wsHandler.ServeHTTP)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // streaming endpoints manage their own deadlines
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
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
