package events

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/jonwraymond/retain/events/exporters"
)

// TelemetryConfig configures the OpenTelemetry providers backing the
// metrics subscriber and the wrapped-call tracer.
type TelemetryConfig struct {
	ServiceName string
	Version     string
	Metrics     MetricsConfig
	Tracing     TracingConfig
}

// MetricsConfig configures the metrics subsystem.
type MetricsConfig struct {
	Enabled  bool
	Exporter string // otlp|prometheus|stdout|none
}

// TracingConfig configures the tracing subsystem.
type TracingConfig struct {
	Enabled   bool
	Exporter  string  // otlp|stdout|none
	SamplePct float64 // 0.0-1.0
}

var validMetricsExporters = map[string]bool{
	"otlp":       true,
	"prometheus": true,
	"stdout":     true,
	"none":       true,
	"":           true,
}

var validTracingExporters = map[string]bool{
	"otlp":   true,
	"stdout": true,
	"none":   true,
	"":       true,
}

// Validate validates the configuration.
func (c *TelemetryConfig) Validate() error {
	if c.ServiceName == "" {
		return errors.New("events: service name is required")
	}
	if c.Metrics.Enabled && !validMetricsExporters[c.Metrics.Exporter] {
		return fmt.Errorf("events: unknown metrics exporter: %q", c.Metrics.Exporter)
	}
	if c.Tracing.Enabled {
		if !validTracingExporters[c.Tracing.Exporter] {
			return fmt.Errorf("events: unknown tracing exporter: %q", c.Tracing.Exporter)
		}
		if c.Tracing.SamplePct < 0 || c.Tracing.SamplePct > 1.0 {
			return fmt.Errorf("events: sample percentage must be between 0.0 and 1.0, got: %f", c.Tracing.SamplePct)
		}
	}
	return nil
}

// Telemetry owns the configured providers.
//
// Contract:
// - Concurrency: safe for concurrent use.
// - Errors: Shutdown is idempotent and returns the joined errors.
type Telemetry struct {
	meter          metric.Meter
	tracer         trace.Tracer
	meterProvider  *sdkmetric.MeterProvider
	tracerProvider *sdktrace.TracerProvider
}

// NewTelemetry builds providers from cfg. Disabled subsystems get no-op
// implementations, so callers can wire the result unconditionally.
func NewTelemetry(ctx context.Context, cfg TelemetryConfig) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.Version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("events: failed to create resource: %w", err)
	}

	t := &Telemetry{}

	if cfg.Metrics.Enabled {
		reader, err := exporters.NewMetricsReader(ctx, cfg.Metrics.Exporter)
		if err != nil {
			return nil, fmt.Errorf("events: failed to create metrics reader: %w", err)
		}
		opts := []sdkmetric.Option{sdkmetric.WithResource(res)}
		if reader != nil {
			opts = append(opts, sdkmetric.WithReader(reader))
		}
		t.meterProvider = sdkmetric.NewMeterProvider(opts...)
		otel.SetMeterProvider(t.meterProvider)
		t.meter = t.meterProvider.Meter(cfg.ServiceName)
	} else {
		t.meter = metricnoop.NewMeterProvider().Meter("noop")
	}

	if cfg.Tracing.Enabled {
		exporter, err := exporters.NewTracingExporter(ctx, cfg.Tracing.Exporter)
		if err != nil {
			return nil, fmt.Errorf("events: failed to create trace exporter: %w", err)
		}

		var sampler sdktrace.Sampler
		switch {
		case cfg.Tracing.SamplePct >= 1.0:
			sampler = sdktrace.AlwaysSample()
		case cfg.Tracing.SamplePct <= 0:
			sampler = sdktrace.NeverSample()
		default:
			sampler = sdktrace.TraceIDRatioBased(cfg.Tracing.SamplePct)
		}

		opts := []sdktrace.TracerProviderOption{
			sdktrace.WithResource(res),
			sdktrace.WithSampler(sampler),
		}
		if exporter != nil {
			opts = append(opts, sdktrace.WithBatcher(exporter))
		}
		t.tracerProvider = sdktrace.NewTracerProvider(opts...)
		otel.SetTracerProvider(t.tracerProvider)
		t.tracer = t.tracerProvider.Tracer(cfg.ServiceName)
	} else {
		t.tracer = tracenoop.NewTracerProvider().Tracer("noop")
	}

	return t, nil
}

// Meter returns the configured meter.
func (t *Telemetry) Meter() metric.Meter { return t.meter }

// Tracer returns the configured tracer.
func (t *Telemetry) Tracer() trace.Tracer { return t.tracer }

// Shutdown gracefully shuts down the providers.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs []error
	if t.meterProvider != nil {
		if err := t.meterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter shutdown: %w", err))
		}
	}
	if t.tracerProvider != nil {
		if err := t.tracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer shutdown: %w", err))
		}
	}
	return errors.Join(errs...)
}
