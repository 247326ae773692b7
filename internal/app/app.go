package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/ONEcampaign/toughest-places-index/internal/config"
	"github.com/ONEcampaign/toughest-places-index/internal/index"
	"github.com/ONEcampaign/toughest-places-index/internal/infrastructure"
	"github.com/ONEcampaign/toughest-places-index/internal/services"
	transport "github.com/ONEcampaign/toughest-places-index/internal/transport/http"
)

const AppName = "Toughest Places Index"

var (
	// Version and BuildTime are set at link time.
	Version   = infrastructure.ServiceVersion
	BuildTime = ""
)

// Application wires the configuration, observability and services for
// one process.
type Application struct {
	Config        *config.Config
	Paths         *config.Paths
	Logger        *slog.Logger
	OTelProviders *infrastructure.OTelProviders
	Metrics       *infrastructure.PipelineMetrics
	Registry      *promclient.Registry

	Index  *services.IndexService
	Health *services.HealthService

	Router http.Handler
	Server *transport.Server
}

// NewApplication creates a new application instance with dependency injection
func NewApplication(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		cfg = config.Default()
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.Info("Application starting",
		slog.String("name", AppName),
		slog.String("version", Version))

	paths, err := cfg.GetPaths()
	if err != nil {
		return nil, fmt.Errorf("failed to get paths: %w", err)
	}
	if err := paths.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to ensure directories: %w", err)
	}
	paths.LogPathResolution(logger)

	if !config.FileExists(paths.RegistryFile) {
		logger.Warn("Country registry not found",
			slog.String("path", paths.RegistryFile))
	}

	registry := promclient.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	otelProviders, err := infrastructure.InitializeOTel(cfg.Telemetry, registry, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}
	metrics, err := infrastructure.NewPipelineMetrics(otelProviders.Meter)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	a := &Application{
		Config:        cfg,
		Paths:         paths,
		Logger:        logger,
		OTelProviders: otelProviders,
		Metrics:       metrics,
		Registry:      registry,
	}
	if err := a.initializeServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}
	a.setupRouter()
	a.createServer()
	return a, nil
}

func (a *Application) initializeServices() error {
	indexService, err := services.NewIndexService(a.Config, a.Logger, a.Metrics)
	if err != nil {
		return err
	}
	a.Index = indexService
	a.Health = services.NewHealthService(Version, BuildTime, a.Paths, indexService, a.Logger)
	return nil
}

func (a *Application) setupRouter() {
	a.Router = transport.NewRouter(transport.RouterDeps{
		Health:          a.Health,
		Results:         a.Index,
		Diagnostics:     a.Index,
		Metrics:         a.OTelProviders.PrometheusHTTP,
		PipelineMetrics: a.Metrics,
		RateLimit:       a.Config.Server.RateLimit,
		Logger:          a.Logger,
	})
}

func (a *Application) createServer() {
	a.Server = transport.NewServer(a.Config.Server, a.Router, a.Logger)
}

// RunPipeline computes the index and writes the scores CSV and workbook.
func (a *Application) RunPipeline(ctx context.Context) (*services.RunResult, []string, error) {
	res, err := a.Index.Run(ctx)
	if err != nil {
		return nil, nil, err
	}
	if res.Scores == nil {
		a.Logger.InfoContext(ctx, "pipeline not summarized, nothing to export")
		return res, nil, nil
	}
	written, err := a.Index.Export(ctx, res, nil)
	if err != nil {
		return res, nil, err
	}
	return res, written, nil
}

// RunStability computes the index, tests its stability and exports both.
func (a *Application) RunStability(ctx context.Context) (*index.StabilityReport, []string, error) {
	res, err := a.Index.Run(ctx)
	if err != nil {
		return nil, nil, err
	}
	report, err := a.Index.Stability(ctx)
	if err != nil {
		return nil, nil, err
	}
	if res.Scores == nil {
		return report, nil, nil
	}
	written, err := a.Index.Export(ctx, res, report)
	if err != nil {
		return report, nil, err
	}
	return report, written, nil
}

// Serve computes the index once, then serves results until ctx is done.
// A failed first run leaves the server up and not ready.
func (a *Application) Serve(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "Starting application",
		slog.String("name", AppName),
		slog.String("version", Version),
		slog.String("addr", a.Server.Addr()),
		slog.String("level", a.Config.Logging.Level))

	if _, _, err := a.RunPipeline(ctx); err != nil {
		a.Logger.ErrorContext(ctx, "initial pipeline run failed", slog.String("error", err.Error()))
	}

	return a.Server.Run(ctx)
}

// Stop flushes telemetry and closes the log file.
func (a *Application) Stop(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout(a.Config.Server))
	defer cancel()

	var errs []error
	if a.OTelProviders != nil {
		if err := a.OTelProviders.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("shutting down OpenTelemetry: %w", err))
		}
	}
	if err := infrastructure.CloseLogFile(); err != nil {
		errs = append(errs, fmt.Errorf("closing log file: %w", err))
	}
	a.Logger.InfoContext(ctx, "Application shutdown complete")
	return errors.Join(errs...)
}

func shutdownTimeout(cfg config.ServerConfig) time.Duration {
	if cfg.ShutdownTimeout > 0 {
		return cfg.ShutdownTimeout
	}
	return 30 * time.Second
}
