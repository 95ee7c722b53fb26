// Mailsmith - email drafting assistant server
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/ashureev/mailsmith/internal/agent"
	"github.com/ashureev/mailsmith/internal/api"
	"github.com/ashureev/mailsmith/internal/config"
	"github.com/ashureev/mailsmith/internal/gateway"
	"github.com/ashureev/mailsmith/internal/grpchealth"
	"github.com/ashureev/mailsmith/internal/guard"
	"github.com/ashureev/mailsmith/internal/identity"
	"github.com/ashureev/mailsmith/internal/metrics"
	"github.com/ashureev/mailsmith/internal/middleware"
	"github.com/ashureev/mailsmith/internal/session"
	"github.com/ashureev/mailsmith/internal/store"
	"github.com/ashureev/mailsmith/web"
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

	logger = newLogger(cfg.Log)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Server stopped successfully")
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(),
		"provider", cfg.ModelProvider, "model", cfg.ModelName)

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(ctx); err != nil {
		return fmt.Errorf("database health check: %w", err)
	}
	slog.Info("Database connected")

	healthSrv := grpchealth.New(logger)

	provider, err := gateway.New(ctx, gateway.Options{
		Provider:          cfg.ModelProvider,
		OpenRouterAPIKey:  cfg.OpenRouterAPIKey,
		OpenRouterBaseURL: cfg.OpenRouterBaseURL,
		GeminiAPIKey:      cfg.GeminiAPIKey,
		Model:             cfg.ModelName,
	}, logger)
	if err != nil {
		return fmt.Errorf("initialize model gateway: %w", err)
	}
	gw := gateway.NewResilient(provider, gateway.ResilienceConfig{
		MaxFailures:   cfg.Breaker.MaxFailures,
		ResetInterval: cfg.Breaker.ResetInterval,
		RetryAttempts: cfg.RetryAttempts,
		OnStateChange: func(_, to gateway.BreakerState) {
			healthSrv.SetGatewayState(to)
		},
	}, logger)
	slog.Info("Model gateway initialized", "provider", cfg.ModelProvider)

	arena := session.NewArena()

	temperature := cfg.Temperature
	svc := agent.NewService(gw, arena, agent.Config{
		MaxSteps:        cfg.MaxSteps,
		MaxDuration:     cfg.MaxDuration,
		Temperature:     &temperature,
		MaxOutputTokens: cfg.MaxOutputTokens,
	}, logger)

	conversationLogger, err := agent.NewConversationLogger(agent.ConversationLogConfig{
		Enabled:       cfg.ConversationLog.Enabled,
		Dir:           cfg.ConversationLog.Dir,
		GlobalEnabled: cfg.ConversationLog.GlobalEnabled,
		GlobalPath:    cfg.ConversationLog.GlobalPath,
		QueueSize:     cfg.ConversationLog.QueueSize,
	}, logger)
	if err != nil {
		return fmt.Errorf("initialize conversation logger: %w", err)
	}

	emailGuard := guard.Default()

	allowedOrigin := cfg.FrontendURL
	if allowedOrigin == "" {
		allowedOrigin = "*"
	}

	chatHandler := agent.NewHandler(svc, emailGuard, conversationLogger, agent.HandlerConfig{
		RateLimitRequests:  cfg.RateLimit.Requests,
		RateLimitWindow:    cfg.RateLimit.Window,
		MaxRequestBodySize: cfg.MaxRequestBodySize,
		AllowedOrigin:      allowedOrigin,
		IsDev:              cfg.IsDevelopment(),
	}, logger)
	defer chatHandler.Close()

	apiHandler := api.NewHandler(api.Deps{
		Repo:    repo,
		Arena:   arena,
		Gateway: gw,
		Breaker: gw,
		Conns:   chatHandler.Conns(),
		Info: api.ServerInfo{
			Provider: cfg.ModelProvider,
			Model:    cfg.ModelName,
			MaxSteps: cfg.MaxSteps,
		},
	})

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS([]string{allowedOrigin}))

	// Public routes.
	r.Handle("/metrics", metrics.Handler())

	// API routes carry an anonymous identity.
	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(repo, cfg.IsDevelopment()))
		apiHandler.RegisterRoutes(r)
		apiHandler.RegisterEmailRoutes(r, emailGuard)
		chatHandler.RegisterRoutes(r)
	})

	// Serve embedded frontend (SPA catch-all).
	r.Handle("/*", web.SPAHandler())

	// Streaming chat responses need WriteTimeout disabled.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	sweeper := session.NewSweeper(repo, arena, cfg.Session.TTL, func(k session.Key) {
		chatHandler.Conns().CloseSession(k.UserID, k.SessionID)
	}, logger)
	if err := sweeper.Start(ctx, cfg.Session.SweepInterval); err != nil {
		return fmt.Errorf("start session sweeper: %w", err)
	}
	defer func() {
		if err := sweeper.Stop(); err != nil {
			slog.Error("Failed to stop session sweeper", "error", err)
		}
	}()
	slog.Info("Session sweeper started", "session_ttl", cfg.Session.TTL)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if cfg.GRPCHealthAddr != "" {
		g.Go(func() error {
			slog.Info("gRPC health listening", "addr", cfg.GRPCHealthAddr)
			return healthSrv.ListenAndServe(gctx, cfg.GRPCHealthAddr)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down gracefully...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		chatHandler.Conns().CloseAll()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}
