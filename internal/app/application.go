// Package app assembles and runs all components.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"relaychat/internal/api"
	"relaychat/internal/broadcast"
	"relaychat/internal/config"
	"relaychat/internal/intake"
	"relaychat/internal/registry"
	"relaychat/internal/responder"
	"relaychat/internal/store"
	"relaychat/internal/ws"
)

// Application coordinates all system components. Construction follows
// dependency order: store → registry → router → broadcaster → responder →
// intake → handler → API → HTTP.
type Application struct {
	config      *config.Config
	store       *store.Manager
	registry    *registry.Registry
	router      *ws.Router
	broadcaster *broadcast.Broadcaster
	httpServer  *http.Server
	logger      *zap.Logger
}

// NewApplication builds the application from validated configuration.
func NewApplication(cfg *config.Config, logger *zap.Logger) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	st, err := store.NewManager(store.Options{
		Path:            cfg.Database.Path,
		MaxConnections:  10,
		ConnMaxLifetime: cfg.Database.Timeout,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	reg := registry.NewRegistry(logger)
	router := ws.NewRouter(logger)
	broadcaster := broadcast.NewBroadcaster(router, reg, logger)

	gateway := responder.NewGateway(responder.Config{
		BaseURL: cfg.Responder.BaseURL,
		APIKey:  cfg.Responder.APIKey,
		Model:   cfg.Responder.Model,
		Timeout: cfg.Responder.Timeout,
	}, logger)

	pipeline := intake.NewPipeline(st, router, reg, gateway, broadcaster, logger)

	wsHandler := ws.NewHandler(router, reg, st, pipeline, broadcaster, ws.Timeouts{
		PingInterval: cfg.WebSocket.PingInterval,
		ReadTimeout:  cfg.WebSocket.ReadTimeout,
		BufferSize:   cfg.WebSocket.BufferSize,
	}, logger)

	apiServer := api.NewServer(st, router, reg, logger)

	mux := http.NewServeMux()
	mux.Handle("/api/", apiServer)
	mux.Handle("/health", apiServer)
	mux.HandleFunc("/ws", wsHandler.HandleWebSocket)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      mux,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:      cfg,
		store:       st,
		registry:    reg,
		router:      router,
		broadcaster: broadcaster,
		httpServer:  httpServer,
		logger:      logger.With(zap.String("component", "app")),
	}, nil
}

// Start launches the broadcaster and the HTTP server, returning once the
// server is accepting connections.
func (app *Application) Start(ctx context.Context) error {
	app.logger.Info("starting", zap.String("addr", app.httpServer.Addr))

	if err := app.broadcaster.Start(ctx); err != nil {
		return fmt.Errorf("failed to start broadcaster: %w", err)
	}

	serverErrCh := make(chan error, 1)
	go func() {
		if err := app.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	select {
	case err := <-serverErrCh:
		_ = app.broadcaster.Stop()
		return err
	case <-time.After(100 * time.Millisecond):
		app.logger.Info("started")
		return nil
	case <-ctx.Done():
		_ = app.broadcaster.Stop()
		return ctx.Err()
	}
}

// Stop shuts down in reverse dependency order: HTTP → broadcaster → store.
func (app *Application) Stop(ctx context.Context) error {
	app.logger.Info("shutting down")

	if err := app.httpServer.Shutdown(ctx); err != nil {
		app.logger.Warn("HTTP shutdown error", zap.Error(err))
	}

	if err := app.broadcaster.Stop(); err != nil {
		app.logger.Warn("broadcaster shutdown error", zap.Error(err))
	}

	if err := app.store.Close(); err != nil {
		app.logger.Warn("store shutdown error", zap.Error(err))
	}

	app.logger.Info("shutdown complete")
	return nil
}

// Addr returns the configured listen address.
func (app *Application) Addr() string {
	return app.httpServer.Addr
}
