package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/ONEcampaign/toughest-places-index/internal/config"
	apperrors "github.com/ONEcampaign/toughest-places-index/internal/errors"
	"github.com/ONEcampaign/toughest-places-index/internal/infrastructure"
	"github.com/ONEcampaign/toughest-places-index/internal/middleware"
	"github.com/ONEcampaign/toughest-places-index/internal/services"
)

// RouterDeps wires the handlers. Metrics, PipelineMetrics and Diagnostics
// are optional.
type RouterDeps struct {
	Health          *services.HealthService
	Results         ResultsServiceInterface
	Diagnostics     DiagnosticsServiceInterface
	Metrics         http.Handler
	PipelineMetrics *infrastructure.PipelineMetrics
	RateLimit       config.RateLimitConfig
	Logger          *slog.Logger
}

// NewRouter builds the read-only results API.
func NewRouter(deps RouterDeps) chi.Router {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	errorHandler := apperrors.NewErrorHandler(logger, false)

	r := chi.NewRouter()

	// RequestID first so every later middleware can log it
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Tracing)
	r.Use(middleware.StructuredLogger(logger, deps.PipelineMetrics))
	r.Use(middleware.Recoverer(logger, errorHandler))
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.StripSlashes)
	if deps.RateLimit.Enabled {
		r.Use(middleware.NewRateLimiter(deps.RateLimit.RPS, deps.RateLimit.Burst, logger, errorHandler).Handler)
	}

	r.NotFound(errorHandler.NotFound)
	r.MethodNotAllowed(errorHandler.MethodNotAllowed)

	if deps.Health != nil {
		health := NewHealthHandler(deps.Health, logger)
		r.Group(func(r chi.Router) {
			r.Use(render.SetContentType(render.ContentTypeJSON))
			r.Get("/healthz", health.HealthCheck)
			r.Get("/healthz/ready", health.ReadinessCheck)
			r.Get("/healthz/live", health.LivenessCheck)
			r.Get("/version", health.Version)
		})
	}
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		if deps.Results != nil {
			results := NewResultsHandler(deps.Results, logger, errorHandler)
			r.With(render.SetContentType(render.ContentTypeJSON)).Get("/scores", results.GetScores)
			r.With(render.SetContentType(render.ContentTypeJSON)).Get("/indicators", results.GetIndicators)
		}
		if deps.Diagnostics != nil {
			r.Mount("/diagnostics", NewDiagnosticsHandler(deps.Diagnostics, logger, errorHandler).Routes())
		}
	})

	return r
}

const defaultShutdownTimeout = 30 * time.Second

// Server runs the router until its context is cancelled.
type Server struct {
	srv             *http.Server
	shutdownTimeout time.Duration
	logger          *slog.Logger
}

// NewServer creates the HTTP server from the server configuration.
func NewServer(cfg config.ServerConfig, handler http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	return &Server{
		srv: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
		shutdownTimeout: timeout,
		logger:          logger,
	}
}

// Addr returns the listen address.
func (s *Server) Addr() string { return s.srv.Addr }

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.InfoContext(ctx, "server listening", slog.String("addr", s.srv.Addr))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}
	return nil
}
