// Package app assembles the configuration, logging, services and HTTP
// server into a runnable application.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"aptcast/internal/config"
	apierrors "aptcast/internal/errors"
	"aptcast/internal/infrastructure"
	"aptcast/internal/metrics"
	"aptcast/internal/middleware"
	"aptcast/internal/services"
	"aptcast/internal/session"
	transport "aptcast/internal/transport/http"
)

// Application holds the wired components
type Application struct {
	config   *config.Config
	logger   *slog.Logger
	deals    *services.DealService
	sessions *session.Store
	server   *http.Server
}

// NewApplication builds the application from configuration
func NewApplication(cfg *config.Config) (*Application, error) {
	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	app := &Application{
		config:   cfg,
		logger:   logger,
		deals:    services.NewDealService(cfg, logger),
		sessions: session.NewStore(),
	}
	app.server = app.createServer(app.setupRouter())
	return app, nil
}

func (a *Application) setupRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.StructuredLogger(a.logger))
	r.Use(middleware.Recoverer(a.logger))
	r.Use(middleware.Metrics)
	r.Use(middleware.RateLimit(a.config.Security.RateLimit))
	r.Use(render.SetContentType(render.ContentTypeJSON))

	handler := transport.NewHandler(a.deals, a.sessions, a.config.Ingest.MaxUploadBytes, a.logger)
	r.Mount("/api", handler.Routes())
	r.Handle("/metrics", metrics.Handler())

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		apierrors.Handle(w, r, apierrors.ErrNotFound)
	})

	return r
}

func (a *Application) createServer(handler http.Handler) *http.Server {
	return &http.Server{
		Addr:           fmt.Sprintf(":%d", a.config.Server.Port),
		Handler:        handler,
		ReadTimeout:    a.config.Server.ReadTimeout,
		WriteTimeout:   a.config.Server.WriteTimeout,
		IdleTimeout:    a.config.Server.IdleTimeout,
		MaxHeaderBytes: a.config.Server.MaxHeaderBytes,
	}
}

// Run starts the server and blocks until shutdown completes
func (a *Application) Run() error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("server starting", slog.String("addr", a.server.Addr))
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case sig := <-stop:
		a.logger.Info("shutdown signal received", slog.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.config.Server.ShutdownTimeout)
	defer cancel()

	if err := a.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	a.logger.Info("server stopped")
	return nil
}
