// Package observability owns the metrics collector and tracer provider of
// the service process.
package observability

import (
	"context"
	"errors"

	"counsel/internal/shared/config"
	"counsel/internal/shared/logging"
)

// Observability bundles the process-wide metrics and tracing components.
type Observability struct {
	Metrics *MetricsCollector
	Tracer  *TracerProvider
	logger  logging.Logger
}

// New initializes metrics and tracing from cfg. A component that fails to
// start is replaced by its no-op form so the service still runs.
func New(cfg config.ObservabilityConfig, version string, logger logging.Logger) *Observability {
	logger = logging.OrNop(logger)

	metrics, err := NewMetricsCollector(MetricsConfig{Enabled: cfg.MetricsEnabled})
	if err != nil {
		logger.Error("Failed to initialize metrics: %v", err)
		metrics = &MetricsCollector{}
	}

	tracing := cfg.Tracing
	tracer, err := NewTracerProvider(TracingConfig{
		Enabled:        tracing.Enabled,
		Exporter:       tracing.Exporter,
		OTLPEndpoint:   tracing.OTLPEndpoint,
		ZipkinEndpoint: tracing.ZipkinEndpoint,
		SampleRate:     tracing.SampleRate,
		ServiceName:    tracing.ServiceName,
		ServiceVersion: version,
	})
	if err != nil {
		logger.Error("Failed to initialize tracing: %v", err)
		tracer, _ = NewTracerProvider(TracingConfig{})
	}

	logger.Info("Observability initialized: metrics=%t tracing=%t", metrics.Enabled(), tracing.Enabled)
	return &Observability{Metrics: metrics, Tracer: tracer, logger: logger}
}

// Shutdown flushes metrics and spans.
func (o *Observability) Shutdown(ctx context.Context) error {
	if o == nil {
		return nil
	}
	return errors.Join(o.Metrics.Shutdown(ctx), o.Tracer.Shutdown(ctx))
}
