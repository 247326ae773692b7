package infrastructure

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// PipelineMetrics are the instruments the index service and the HTTP
// middleware record on. A nil *PipelineMetrics records nothing.
type PipelineMetrics struct {
	RunsTotal      metric.Int64Counter
	RunDuration    metric.Float64Histogram
	RunErrors      metric.Int64Counter
	CountriesRated metric.Int64Gauge

	HTTPRequestsTotal   metric.Int64Counter
	HTTPRequestDuration metric.Float64Histogram
}

// NewPipelineMetrics creates the instruments on meter.
func NewPipelineMetrics(meter metric.Meter) (*PipelineMetrics, error) {
	m := &PipelineMetrics{}
	var err error
	counter := func(name, desc string) metric.Int64Counter {
		if err != nil {
			return nil
		}
		var c metric.Int64Counter
		c, err = meter.Int64Counter(name, metric.WithDescription(desc))
		return c
	}
	seconds := func(name, desc string) metric.Float64Histogram {
		if err != nil {
			return nil
		}
		var h metric.Float64Histogram
		h, err = meter.Float64Histogram(name, metric.WithDescription(desc), metric.WithUnit("s"))
		return h
	}

	m.RunsTotal = counter("index_runs_total", "Pipeline operations started")
	m.RunErrors = counter("index_run_errors_total", "Pipeline operations that failed")
	m.RunDuration = seconds("index_run_duration_seconds", "Pipeline operation duration")
	m.HTTPRequestsTotal = counter("http_requests_total", "HTTP requests served")
	m.HTTPRequestDuration = seconds("http_request_duration_seconds", "HTTP request duration")
	if err != nil {
		return nil, err
	}
	m.CountriesRated, err = meter.Int64Gauge("index_countries_scored",
		metric.WithDescription("Countries scored by the latest run"))
	if err != nil {
		return nil, err
	}
	return m, nil
}

// RecordRun counts one pipeline operation and its outcome.
func (m *PipelineMetrics) RecordRun(ctx context.Context, operation string, took time.Duration, err error) {
	if m == nil {
		return
	}
	op := attribute.String("operation", operation)
	status := "success"
	if err != nil {
		status = "failure"
		m.RunErrors.Add(ctx, 1, metric.WithAttributes(op, attribute.String("error.type", fmt.Sprintf("%T", err))))
	}
	m.RunsTotal.Add(ctx, 1, metric.WithAttributes(op))
	m.RunDuration.Record(ctx, took.Seconds(), metric.WithAttributes(op, attribute.String("status", status)))
}

// RecordHTTP counts one served request.
func (m *PipelineMetrics) RecordHTTP(ctx context.Context, route string, status int, took time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("http.route", route),
		attribute.Int("http.status_code", status),
	)
	m.HTTPRequestsTotal.Add(ctx, 1, attrs)
	m.HTTPRequestDuration.Record(ctx, took.Seconds(), attrs)
}
