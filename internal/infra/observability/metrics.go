package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// MetricsCollector records orchestrator metrics and exposes them for
// Prometheus scraping. A collector built with metrics disabled records
// nothing; every method is safe to call on it.
type MetricsCollector struct {
	meter    metric.Meter
	provider *sdkmetric.MeterProvider
	registry *prometheus.Registry

	// LLM metrics
	llmRequests metric.Int64Counter
	llmLatency  metric.Float64Histogram

	// Tool metrics
	toolExecutions metric.Int64Counter
	toolDuration   metric.Float64Histogram

	// Task metrics
	tasksCreated   metric.Int64Counter
	tasksFinished  metric.Int64Counter
	taskDuration   metric.Float64Histogram
	taskIterations metric.Int64Histogram

	// HTTP server metrics
	httpRequests metric.Int64Counter
	httpLatency  metric.Float64Histogram
}

// MetricsConfig configures the metrics collector
type MetricsConfig struct {
	Enabled bool
}

// NewMetricsCollector creates a collector backed by the OpenTelemetry
// Prometheus exporter and a private registry.
func NewMetricsCollector(config MetricsConfig) (*MetricsCollector, error) {
	if !config.Enabled {
		return &MetricsCollector{}, nil
	}

	registry := prometheus.NewRegistry()
	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := provider.Meter("counsel")

	m := &MetricsCollector{meter: meter, provider: provider, registry: registry}
	b := instrumentBuilder{meter: meter}

	m.llmRequests = b.counter("counsel.llm.requests", "Reasoning service calls", "{request}")
	m.llmLatency = b.histogram("counsel.llm.latency", "Reasoning call latency", "s")
	m.toolExecutions = b.counter("counsel.tool.executions", "Tool dispatches", "{call}")
	m.toolDuration = b.histogram("counsel.tool.duration", "Tool dispatch latency", "s")
	m.tasksCreated = b.counter("counsel.tasks.created", "Tasks submitted", "{task}")
	m.tasksFinished = b.counter("counsel.tasks.finished", "Loop executions that stopped, by status", "{task}")
	m.taskDuration = b.histogram("counsel.task.duration", "Loop execution wall time", "s")
	m.taskIterations = b.intHistogram("counsel.task.iterations", "Tool calls per finished loop", "{iteration}")
	m.httpRequests = b.counter("counsel.http.requests", "HTTP requests served", "{request}")
	m.httpLatency = b.histogram("counsel.http.latency", "HTTP request latency", "s")
	if b.err != nil {
		return nil, b.err
	}
	return m, nil
}

// instrumentBuilder creates instruments and keeps the first error.
type instrumentBuilder struct {
	meter metric.Meter
	err   error
}

func (b *instrumentBuilder) counter(name, description, unit string) metric.Int64Counter {
	c, err := b.meter.Int64Counter(name, metric.WithDescription(description), metric.WithUnit(unit))
	if err != nil && b.err == nil {
		b.err = fmt.Errorf("failed to create %s counter: %w", name, err)
	}
	return c
}

func (b *instrumentBuilder) histogram(name, description, unit string) metric.Float64Histogram {
	h, err := b.meter.Float64Histogram(name, metric.WithDescription(description), metric.WithUnit(unit))
	if err != nil && b.err == nil {
		b.err = fmt.Errorf("failed to create %s histogram: %w", name, err)
	}
	return h
}

func (b *instrumentBuilder) intHistogram(name, description, unit string) metric.Int64Histogram {
	h, err := b.meter.Int64Histogram(name, metric.WithDescription(description), metric.WithUnit(unit))
	if err != nil && b.err == nil {
		b.err = fmt.Errorf("failed to create %s histogram: %w", name, err)
	}
	return h
}

// Enabled reports whether the collector exports anything.
func (m *MetricsCollector) Enabled() bool {
	return m != nil && m.registry != nil
}

// Handler serves the Prometheus exposition format, or nil when disabled.
func (m *MetricsCollector) Handler() http.Handler {
	if !m.Enabled() {
		return nil
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Shutdown flushes and stops the meter provider.
func (m *MetricsCollector) Shutdown(ctx context.Context) error {
	if m == nil || m.provider == nil {
		return nil
	}
	return m.provider.Shutdown(ctx)
}

func statusLabel(failed bool) string {
	if failed {
		return "error"
	}
	return "success"
}

// ObserveLLMCall records one reasoning call.
func (m *MetricsCollector) ObserveLLMCall(ctx context.Context, model string, duration time.Duration, failed bool) {
	if m == nil || m.llmRequests == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("model", model),
		attribute.String("status", statusLabel(failed)),
	)
	m.llmRequests.Add(ctx, 1, attrs)
	m.llmLatency.Record(ctx, duration.Seconds(), attrs)
}

// ObserveToolCall records one tool dispatch.
func (m *MetricsCollector) ObserveToolCall(ctx context.Context, tool string, duration time.Duration, failed bool) {
	if m == nil || m.toolExecutions == nil {
		return
	}
	m.toolExecutions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tool_name", tool),
		attribute.String("status", statusLabel(failed)),
	))
	m.toolDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String("tool_name", tool)))
}

// ObserveTaskFinished records the end of one loop execution.
func (m *MetricsCollector) ObserveTaskFinished(ctx context.Context, status string, iterations int, duration time.Duration) {
	if m == nil || m.tasksFinished == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("status", status))
	m.tasksFinished.Add(ctx, 1, attrs)
	m.taskDuration.Record(ctx, duration.Seconds(), attrs)
	m.taskIterations.Record(ctx, int64(iterations), attrs)
}

// ObserveTaskCreated counts a submitted task.
func (m *MetricsCollector) ObserveTaskCreated(ctx context.Context) {
	if m == nil || m.tasksCreated == nil {
		return
	}
	m.tasksCreated.Add(ctx, 1)
}

// RecordHTTPServerRequest records metrics for an HTTP request lifecycle.
func (m *MetricsCollector) RecordHTTPServerRequest(ctx context.Context, method, route string, status int, duration time.Duration) {
	if m == nil || m.httpRequests == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.Int("status", status),
	)
	m.httpRequests.Add(ctx, 1, attrs)
	m.httpLatency.Record(ctx, duration.Seconds(), attrs)
}
