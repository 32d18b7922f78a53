// ConsultDesk - Consultation Intake Chatbot Server
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

	"github.com/avdeyev/consultdesk/internal/api"
	"github.com/avdeyev/consultdesk/internal/chat"
	"github.com/avdeyev/consultdesk/internal/config"
	"github.com/avdeyev/consultdesk/internal/identity"
	"github.com/avdeyev/consultdesk/internal/middleware"
	"github.com/avdeyev/consultdesk/internal/store"
	"github.com/avdeyev/consultdesk/web"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
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
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	// Conversation state lives in SQLite unless Redis is configured.
	var conversations store.ConversationStore = repo
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			slog.Error("Invalid Redis URL", "error", err)
			os.Exit(1)
		}
		rdb := redis.NewClient(opt)
		defer func() {
			if closeErr := rdb.Close(); closeErr != nil {
				slog.Error("Failed to close Redis client", "error", closeErr)
			}
		}()
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			slog.Error("Redis health check failed", "error", err)
			os.Exit(1)
		}
		conversations = store.NewRedisConversationStore(rdb, cfg.ConversationTTL)
		slog.Info("Conversation store backed by Redis", "ttl", cfg.ConversationTTL)
	}

	// Completion client is optional: without a credential every free-chat
	// turn reports the assistant as unavailable while intake keeps working.
	var completer chat.Completer
	if cfg.Completion.Enabled() {
		completer = chat.NewOpenAIClient(cfg.Completion)
		slog.Info("Completion client initialized", "model", cfg.Completion.Model)
	} else {
		slog.Info("Assistant disabled (COMPLETION_API_KEY not set)")
	}

	conversationLogger, err := chat.NewConversationLogger(chat.ConversationLogConfig{
		Enabled:       cfg.ConversationLog.Enabled,
		Dir:           cfg.ConversationLog.Dir,
		GlobalEnabled: cfg.ConversationLog.GlobalEnabled,
		GlobalPath:    cfg.ConversationLog.GlobalPath,
		QueueSize:     cfg.ConversationLog.QueueSize,
	}, logger)
	if err != nil {
		slog.Error("Failed to initialize conversation logger", "error", err)
		os.Exit(1)
	}

	ctl := chat.NewController(conversations, repo, completer,
		chat.PolicyFromLimit(cfg.Completion.HistoryLimit), cfg.FallbackContact)

	sm := chat.NewSessionManager()

	chatHandler := chat.NewHandler(ctl, conversationLogger, cfg)
	defer chatHandler.Close()
	wsHandler := chat.NewWebSocketHandler(ctl, sm, conversationLogger, cfg.FrontendURL, cfg.IsDevelopment())
	healthHandler := api.NewHealthHandler(repo, cfg.Completion.Enabled(), sm.ActiveCount)
	adminHandler := api.NewAdminHandler(repo, cfg.AdminAccessKey)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS([]string{"*"}))
	r.Use(identity.Middleware(cfg.IsDevelopment()))

	healthHandler.RegisterHealth(r)
	chatHandler.RegisterRoutes(r)
	adminHandler.RegisterRoutes(r)

	// WebSocket endpoint.
	r.Get("/ws/chat", wsHandler.ServeHTTP)

	// Serve embedded frontend (SPA catch-all).
	r.Handle("/*", web.SPAHandler())

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // WebSocket connections stay open indefinitely
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Redis expires conversations on its own; SQLite needs a sweeper.
	if cfg.RedisURL == "" {
		store.StartCleanupWorker(ctx, repo, cfg.ConversationTTL)
	}

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

	sm.CloseAll()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}
