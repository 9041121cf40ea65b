package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"sales-dashboard/internal/auth"
	"sales-dashboard/internal/config"
	"sales-dashboard/internal/forecast"
	"sales-dashboard/internal/handlers"
	"sales-dashboard/internal/middleware"
	"sales-dashboard/internal/observability"
	"sales-dashboard/internal/server"
	"sales-dashboard/internal/services"
	"sales-dashboard/internal/storage"
)

// app is the wired dashboard: the HTTP handler plus what must be closed on exit.
type app struct {
	handler    http.Handler
	workspaces *services.Workspaces
	source     storage.Source
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	source, err := storage.Open(ctx, cfg.Source, logger)
	if err != nil {
		return nil, fmt.Errorf("open %s source: %w", cfg.Source.Driver, err)
	}

	client := forecast.NewClient(cfg.Forecast, logger)
	projector := forecast.NewProjector(client, logger)

	workspaces := services.NewWorkspaces(ctx, services.Deps{
		Source:         source,
		Forecasts:      projector,
		Values:         client,
		Debounce:       cfg.Dashboard.Debounce,
		DefaultHorizon: cfg.Forecast.DefaultHorizon,
		LoadTimeout:    cfg.Source.LoadTimeout,
		Logger:         logger,
	}, cfg.Dashboard.SessionTTL)

	authenticator := auth.NewAuthenticator(cfg.Auth)
	if !authenticator.Verifies() {
		logger.Warn("auth.insecure_skip_verify is set, session tokens are decoded without signature checks")
	}

	srv := server.NewServer(server.Handlers{
		API:            handlers.NewAPIHandlers(workspaces, projector, client, logger),
		SSE:            handlers.NewSSEHandlers(workspaces, logger),
		Pages:          handlers.NewPageHandlers(authenticator, workspaces, logger),
		RequireSession: auth.RequireSession(authenticator, logger, "/login"),
	}, logger)

	rateLimiter := middleware.NewRateLimiter(cfg.Security)

	middlewareChain := middleware.Chain(
		middleware.Recovery(logger),
		middleware.RequestID(),
		middleware.Logger(logger),
		middleware.Tracing(logger),
		middleware.SecurityHeaders(),
		middleware.CORS(cfg.Security),
		middleware.TrustedProxy(cfg.Security),
		middleware.SameOrigin(cfg.Security, logger),
		middleware.RateLimit(rateLimiter, logger),
	)

	return &app{
		handler:    middlewareChain(srv),
		workspaces: workspaces,
		source:     source,
	}, nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Logger)
	slog.SetDefault(logger)

	logger.Info("starting application",
		"version", handlers.Version,
		"addr", cfg.Address(),
		"source", cfg.Source.Driver,
		"forecast_api", cfg.Forecast.BaseURL,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to start", "error", err)
		os.Exit(1)
	}
	go a.workspaces.Run(ctx)

	httpServer := &http.Server{
		Addr:         cfg.Address(),
		Handler:      a.handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	gracefulServer := server.NewGracefulServer(httpServer, logger, cfg)

	gracefulServer.RegisterShutdownHook("workspaces", func(ctx context.Context) error {
		logger.Info("closing workspaces", "count", a.workspaces.Len())
		return a.workspaces.Close(ctx)
	})
	gracefulServer.RegisterShutdownHook("source", func(ctx context.Context) error {
		logger.Info("closing record source", "source", a.source.Name())
		return a.source.Close()
	})

	logger.Info("starting graceful server")
	if err := gracefulServer.ListenAndServe(ctx); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}

	logger.Info("application stopped gracefully")
}
