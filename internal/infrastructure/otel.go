package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.28.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/ONEcampaign/toughest-places-index/internal/config"
)

const (
	ServiceVersion = "1.0.0"
	MeterName      = "github.com/ONEcampaign/toughest-places-index"
)

// OTelProviders are the tracing and metrics pipelines for one process.
// Disabled pipelines leave their provider nil and fall back to the global
// no-op tracer or meter.
type OTelProviders struct {
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *sdkmetric.MeterProvider
	Tracer         trace.Tracer
	Meter          metric.Meter
	// PrometheusHTTP serves the scrape endpoint when metrics are exported
	// to Prometheus.
	PrometheusHTTP http.Handler
	Logger         *slog.Logger
}

// InitializeOTel installs the tracer and meter providers cfg asks for.
// Metrics are registered on registry, or on the Prometheus default
// registerer when registry is nil.
func InitializeOTel(cfg config.TelemetryConfig, registry *promclient.Registry, logger *slog.Logger) (*OTelProviders, error) {
	if logger == nil {
		logger = slog.Default()
	}
	p := &OTelProviders{
		Tracer: otel.Tracer(MeterName),
		Meter:  otel.Meter(MeterName),
		Logger: logger.With("component", "telemetry"),
	}

	host, _ := os.Hostname()
	res := resource.NewWithAttributes(semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(ServiceVersion),
		semconv.DeploymentEnvironmentName(cfg.Environment),
		attribute.String("service.instance.id", host+"-"+strconv.Itoa(os.Getpid())),
	)

	if cfg.EnableTracing {
		if err := p.startTracing(cfg, res); err != nil {
			return nil, fmt.Errorf("tracing: %w", err)
		}
	}
	if cfg.EnableMetrics {
		if err := p.startMetrics(cfg, res, registry); err != nil {
			return nil, fmt.Errorf("metrics: %w", err)
		}
	}
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	p.Logger.Info("telemetry ready",
		slog.String("service", cfg.ServiceName),
		slog.String("environment", cfg.Environment),
		slog.Bool("tracing", p.TracerProvider != nil),
		slog.Bool("metrics", p.MeterProvider != nil))
	return p, nil
}

func (p *OTelProviders) startTracing(cfg config.TelemetryConfig, res *resource.Resource) error {
	var exp sdktrace.SpanExporter
	switch cfg.TraceExporter {
	case "none":
		return nil
	case "stdout":
		var err error
		if exp, err = stdouttrace.New(stdouttrace.WithPrettyPrint()); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unsupported trace exporter %q", cfg.TraceExporter)
	}

	p.TracerProvider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(cfg.SampleRatio)),
	)
	p.Tracer = p.TracerProvider.Tracer(MeterName, trace.WithInstrumentationVersion(ServiceVersion))
	otel.SetTracerProvider(p.TracerProvider)
	return nil
}

func (p *OTelProviders) startMetrics(cfg config.TelemetryConfig, res *resource.Resource, registry *promclient.Registry) error {
	switch cfg.MetricExporter {
	case "none":
		return nil
	case "prometheus":
	default:
		return fmt.Errorf("unsupported metric exporter %q", cfg.MetricExporter)
	}

	var opts []prometheus.Option
	p.PrometheusHTTP = promhttp.Handler()
	if registry != nil {
		opts = append(opts, prometheus.WithRegisterer(registry))
		p.PrometheusHTTP = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	}
	reader, err := prometheus.New(opts...)
	if err != nil {
		return err
	}

	p.MeterProvider = sdkmetric.NewMeterProvider(sdkmetric.WithResource(res), sdkmetric.WithReader(reader))
	p.Meter = p.MeterProvider.Meter(MeterName, metric.WithInstrumentationVersion(ServiceVersion))
	otel.SetMeterProvider(p.MeterProvider)
	return nil
}

// Shutdown flushes and stops whichever providers were started.
func (p *OTelProviders) Shutdown(ctx context.Context) error {
	var errs []error
	if p.TracerProvider != nil {
		errs = append(errs, p.TracerProvider.Shutdown(ctx))
	}
	if p.MeterProvider != nil {
		errs = append(errs, p.MeterProvider.Shutdown(ctx))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("telemetry shutdown: %w", err)
	}
	p.Logger.DebugContext(ctx, "telemetry stopped")
	return nil
}

// TraceIDFromContext returns the active span's trace id, or "".
func TraceIDFromContext(ctx context.Context) string {
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		return sc.TraceID().String()
	}
	return ""
}

// RecordError marks the active span as failed.
func RecordError(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
