// MediAI - insurance broker quoting assistant server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/mediai-broker/internal/api"
	"github.com/ashureev/mediai-broker/internal/assistant"
	"github.com/ashureev/mediai-broker/internal/config"
	"github.com/ashureev/mediai-broker/internal/identity"
	"github.com/ashureev/mediai-broker/internal/middleware"
	"github.com/ashureev/mediai-broker/internal/quote"
	"github.com/ashureev/mediai-broker/internal/realtime"
	"github.com/ashureev/mediai-broker/internal/rpc"
	"github.com/ashureev/mediai-broker/internal/store"
	"github.com/ashureev/mediai-broker/web"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
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

	slog.Info("Starting server", "port", cfg.Port, "grpc_port", cfg.GRPCPort, "dev", cfg.IsDevelopment())

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath,
		store.WithRetry(cfg.Retry.DBMaxRetries, cfg.Retry.DBRetryBaseDelay),
		store.WithDemoData(cfg.DemoData),
	)
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
	slog.Info("Database connected", "path", cfg.DBPath, "demo_data", cfg.DemoData)

	conversationLogger, err := assistant.NewConversationLogger(assistant.ConversationLogConfig{
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

	// Initialize services.
	registry := assistant.NewRegistry(assistant.RegistryConfig{
		ReplyDelay: cfg.Assistant.ReplyDelay,
		Assembler:  quote.NewAssembler(cfg.Quote.Currency, cfg.Quote.Period),
		Recorder:   repo,
		Log:        conversationLogger,
		Logger:     logger,
	})
	sm := realtime.NewSessionManager()

	// Initialize handlers.
	baseHandler := api.NewHandler(repo, cfg)
	healthHandler := api.NewHealthHandler(baseHandler)
	brokerHandler := api.NewBrokerHandler(baseHandler)
	dashboardHandler := api.NewDashboardHandler(baseHandler)
	chatHandler := assistant.NewHandler(registry, repo, cfg)
	defer chatHandler.Close()

	allowedOrigin := cfg.AllowedOrigins()[0]
	wsHandler := realtime.NewWebSocketHandler(registry, sm, realtime.Options{
		AllowedOrigin: allowedOrigin,
		IsDev:         cfg.IsDevelopment(),
		WriteTimeout:  cfg.Assistant.SocketTimeout,
		EventBuffer:   cfg.Assistant.EventBuffer,
		Limiter:       chatHandler.RateLimiter(),
		LastSeen:      repo,
	})

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	r.Use(middleware.Metrics)
	r.Use(middleware.CORS(cfg.AllowedOrigins()))

	// Prometheus scraping does not need a broker identity.
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(repo, cfg.IsDevelopment()))

		// Public routes.
		healthHandler.RegisterHealth(r)

		// All routes use identity middleware (no auth needed).
		brokerHandler.RegisterRoutes(r)
		dashboardHandler.RegisterRoutes(r)
		chatHandler.RegisterRoutes(r)

		// WebSocket endpoint.
		r.Get("/ws/chat", wsHandler.ServeHTTP)

		// Serve embedded frontend (SPA catch-all).
		r.Handle("/*", web.SPAHandler())
	})

	// Create server.
	// Note: SSE connections require long timeouts (no WriteTimeout)
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,                 // 0 = no timeout for SSE support
		IdleTimeout:  120 * time.Second, // 2 minutes for idle connections
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start session reaper.
	assistant.StartReaper(ctx, registry, cfg.SessionTTL, cfg.Assistant.ReaperPeriod)
	slog.Info("Session reaper started", "session_ttl", cfg.SessionTTL)

	// Start gRPC health server.
	grpcServer := rpc.NewServer(repo, rpc.Config{PingTimeout: cfg.Timeout.HealthCheck}, logger)
	grpcLis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		slog.Error("Failed to listen for gRPC", "error", err, "port", cfg.GRPCPort)
		os.Exit(1)
	}
	go func() {
		if err := grpcServer.Serve(ctx, grpcLis); err != nil {
			slog.Error("gRPC server failed", "error", err)
			os.Exit(1)
		}
	}()

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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Timeout.Shutdown)
	defer cancel()

	// Hijacked sockets are not tracked by http.Server; closing the
	// controllers also ends open SSE streams.
	sm.CloseAll()
	registry.CloseAll(shutdownCtx)
	grpcServer.Shutdown(shutdownCtx)

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	if err := conversationLogger.Close(); err != nil {
		slog.Error("Failed to close conversation logger", "error", err)
	}

	slog.Info("Server stopped successfully")
}
