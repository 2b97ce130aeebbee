// Evalubot - Livestream Feedback Collection Server
package main

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/evalubot/evalubot/internal/api"
	"github.com/evalubot/evalubot/internal/config"
	"github.com/evalubot/evalubot/internal/conversation"
	"github.com/evalubot/evalubot/internal/identity"
	"github.com/evalubot/evalubot/internal/middleware"
	"github.com/evalubot/evalubot/internal/question"
	"github.com/evalubot/evalubot/internal/session"
	"github.com/evalubot/evalubot/internal/store"
	"github.com/evalubot/evalubot/internal/summary"
	"github.com/evalubot/evalubot/internal/textgen"
	"github.com/evalubot/evalubot/web"
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

	sessions, err := newSessionStore(cfg)
	if err != nil {
		slog.Error("Failed to initialize session store", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := sessions.Close(); closeErr != nil {
			slog.Error("Failed to close session store", "error", closeErr)
		}
	}()
	slog.Info("Session store ready", "driver", cfg.Session.Driver)

	backend := newTextBackend(cfg, logger)

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	machine := conversation.NewMachine(question.NewGenerator(rng))
	dispatcher := conversation.NewDispatcher(sessions, repo, backend, machine,
		rand.New(rand.NewSource(time.Now().UnixNano())), logger)

	summaries := summary.NewManager(repo, backend, cfg.Summary.MinViewers, logger)

	// Initialize handlers.
	baseHandler := api.NewHandler(repo, cfg.FrontendURL)
	limiter := api.NewRateLimiter(cfg.RateLimit.MaxMessages, cfg.RateLimit.Window)
	chatHandler := api.NewChatHandler(baseHandler, dispatcher, limiter, logger)
	transcriptHandler := api.NewTranscriptHandler(baseHandler)
	summaryHandler := api.NewSummaryHandler(baseHandler, summaries, logger)
	healthHandler := api.NewHealthHandler(baseHandler, cfg.AIEnabled())

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
	transcriptHandler.RegisterRoutes(r)
	summaryHandler.RegisterRoutes(r)

	// Serve embedded frontend (SPA catch-all).
	r.Handle("/*", web.SPAHandler())

	// Create server.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summaries.StartWorker(ctx, cfg.Summary.Interval)

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

func newSessionStore(cfg *config.Config) (session.Store, error) {
	if cfg.Session.Driver == "redis" {
		client := redis.NewClient(&redis.Options{Addr: cfg.Session.RedisAddr})
		if err := client.Ping(context.Background()).Err(); err != nil {
			return nil, err
		}
		return session.NewStore(session.StoreTypeRedis,
			session.WithRedisClient(client),
			session.WithRedisTTL(cfg.Session.RedisTTL))
	}
	return session.NewStore(session.StoreTypeMemory)
}

func newTextBackend(cfg *config.Config, logger *slog.Logger) textgen.Client {
	if !cfg.AIEnabled() {
		slog.Info("AI features disabled (OPENAI_API_KEY not set), using mock backend")
		return &textgen.Mock{
			Default: "Thanks for sharing! Could you tell me more about what " +
				"stands out to you and why?",
		}
	}

	backend, err := textgen.NewOpenAIClient(textgen.OpenAIConfig{
		APIKey:         cfg.OpenAI.APIKey,
		Model:          cfg.OpenAI.Model,
		BaseURL:        cfg.OpenAI.BaseURL,
		RequestTimeout: cfg.OpenAI.RequestTimeout,
	}, logger)
	if err != nil {
		slog.Error("Failed to initialize OpenAI backend", "error", err)
		os.Exit(1)
	}
	slog.Info("OpenAI backend ready", "model", cfg.OpenAI.Model)
	return backend
}
