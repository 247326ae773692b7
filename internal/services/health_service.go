package services

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/ONEcampaign/toughest-places-index/internal/config"
)

const (
	statusReady    = "ready"
	statusNotReady = "not_ready"
)

// ResultsSource is the part of IndexService readiness depends on.
type ResultsSource interface {
	Latest() (*RunResult, error)
}

// HealthStatus is the body of the health endpoints.
type HealthStatus struct {
	Status    string                   `json:"status"`
	Timestamp time.Time                `json:"timestamp"`
	Version   string                   `json:"version"`
	Runtime   map[string]any           `json:"runtime,omitempty"`
	Services  map[string]ServiceHealth `json:"services,omitempty"`
}

// ServiceHealth is one readiness probe's verdict.
type ServiceHealth struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

func ready(msg string) ServiceHealth    { return ServiceHealth{Status: statusReady, Message: msg} }
func notReady(msg string) ServiceHealth { return ServiceHealth{Status: statusNotReady, Message: msg} }

// HealthService answers liveness and readiness. The process is ready
// once the data directory and country registry exist and a pipeline run
// has completed.
type HealthService struct {
	version   string
	buildTime string
	paths     *config.Paths
	results   ResultsSource
	started   time.Time
	logger    *slog.Logger
}

// NewHealthService creates a health service. results may be nil when no
// pipeline results are served.
func NewHealthService(version, buildTime string, paths *config.Paths, results ResultsSource, logger *slog.Logger) *HealthService {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthService{
		version:   version,
		buildTime: buildTime,
		paths:     paths,
		results:   results,
		started:   time.Now(),
		logger:    logger.With("component", "health"),
	}
}

func (hs *HealthService) status(s string) HealthStatus {
	return HealthStatus{Status: s, Timestamp: time.Now(), Version: hs.version}
}

// HealthCheck always reports ok while the process serves requests.
func (hs *HealthService) HealthCheck(context.Context) HealthStatus {
	return hs.status("ok")
}

// ReadinessCheck runs every probe and reports not_ready if any fails.
func (hs *HealthService) ReadinessCheck(ctx context.Context) HealthStatus {
	probes := map[string]func() ServiceHealth{
		"data":     hs.probeData,
		"registry": hs.probeRegistry,
		"results":  hs.probeResults,
	}
	out := hs.status(statusReady)
	out.Services = make(map[string]ServiceHealth, len(probes))
	for name, probe := range probes {
		sh := probe()
		out.Services[name] = sh
		if sh.Status != statusReady {
			out.Status = statusNotReady
			hs.logger.DebugContext(ctx, "probe failed", "probe", name, "message", sh.Message)
		}
	}
	return out
}

// LivenessCheck adds runtime figures to the ok status.
func (hs *HealthService) LivenessCheck(context.Context) HealthStatus {
	out := hs.status("alive")
	out.Runtime = map[string]any{
		"uptime":     time.Since(hs.started).Seconds(),
		"go_version": runtime.Version(),
		"goroutines": runtime.NumGoroutine(),
	}
	return out
}

// Version describes the build and the platform.
func (hs *HealthService) Version() map[string]any {
	v := map[string]any{
		"version":    hs.version,
		"go_version": runtime.Version(),
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
		"uptime":     time.Since(hs.started).Seconds(),
		"start_time": hs.started.Format(time.RFC3339),
	}
	if hs.buildTime != "" {
		v["build_time"] = hs.buildTime
	}
	return v
}

func (hs *HealthService) probeData() ServiceHealth {
	if hs.paths == nil {
		return notReady("paths not configured")
	}
	if fi, err := os.Stat(hs.paths.DataDir); err != nil || !fi.IsDir() {
		return notReady("data directory missing: " + hs.paths.DataDir)
	}
	return ready("")
}

func (hs *HealthService) probeRegistry() ServiceHealth {
	if hs.paths == nil || !config.FileExists(hs.paths.RegistryFile) {
		return notReady("country registry missing")
	}
	return ready("")
}

func (hs *HealthService) probeResults() ServiceHealth {
	if hs.results == nil {
		return notReady("no results source")
	}
	res, err := hs.results.Latest()
	if err != nil {
		return notReady(err.Error())
	}
	return ready(fmt.Sprintf("run %s completed %s", res.ID, res.CompletedAt.Format(time.RFC3339)))
}
