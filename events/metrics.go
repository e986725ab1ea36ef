package events

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics translates cache events into OpenTelemetry instruments.
//
// Contract:
// - Concurrency: safe for concurrent use.
// - Errors: recording is best-effort and must not panic.
type Metrics struct {
	hits         metric.Int64Counter
	misses       metric.Int64Counter
	sets         metric.Int64Counter
	errors       metric.Int64Counter
	calls        metric.Int64Counter
	callErrors   metric.Int64Counter
	callDuration metric.Float64Histogram
}

// NewMetrics creates the cache instrument set on the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	if m.hits, err = meter.Int64Counter(
		"cache.hits",
		metric.WithDescription("Number of cache hits"),
		metric.WithUnit("{hit}"),
	); err != nil {
		return nil, err
	}

	if m.misses, err = meter.Int64Counter(
		"cache.misses",
		metric.WithDescription("Number of cache misses"),
		metric.WithUnit("{miss}"),
	); err != nil {
		return nil, err
	}

	if m.sets, err = meter.Int64Counter(
		"cache.sets",
		metric.WithDescription("Number of cache writes"),
		metric.WithUnit("{write}"),
	); err != nil {
		return nil, err
	}

	if m.errors, err = meter.Int64Counter(
		"cache.errors",
		metric.WithDescription("Number of cache backend errors"),
		metric.WithUnit("{error}"),
	); err != nil {
		return nil, err
	}

	if m.calls, err = meter.Int64Counter(
		"cache.calls",
		metric.WithDescription("Number of wrapped function invocations"),
		metric.WithUnit("{call}"),
	); err != nil {
		return nil, err
	}

	if m.callErrors, err = meter.Int64Counter(
		"cache.call.errors",
		metric.WithDescription("Number of wrapped function failures"),
		metric.WithUnit("{error}"),
	); err != nil {
		return nil, err
	}

	if m.callDuration, err = meter.Float64Histogram(
		"cache.call.duration_ms",
		metric.WithDescription("Wrapped function duration in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

// Handler returns an event handler that records each event on the
// matching instrument.
func (m *Metrics) Handler() Handler {
	return func(ev Event) {
		ctx := context.Background()
		attrs := []attribute.KeyValue{
			attribute.String("function", ev.Function),
			attribute.String("backend", ev.Backend),
		}
		opt := metric.WithAttributes(attrs...)

		switch ev.Type {
		case TypeHit:
			m.hits.Add(ctx, 1, opt)
		case TypeMiss:
			m.misses.Add(ctx, 1, opt)
		case TypeSet:
			m.sets.Add(ctx, 1, opt)
		case TypeError:
			m.errors.Add(ctx, 1, metric.WithAttributes(append(attrs,
				attribute.String("op", ev.Op),
				attribute.String("error_kind", ev.ErrKind),
			)...))
		case TypeCallStart:
			m.calls.Add(ctx, 1, opt)
		case TypeCallEnd:
			m.callDuration.Record(ctx, float64(ev.Duration.Milliseconds()), opt)
		case TypeCallError:
			m.callErrors.Add(ctx, 1, metric.WithAttributes(append(attrs,
				attribute.String("error_kind", ev.ErrKind),
			)...))
		}
	}
}

// Register subscribes the metrics handler to every event type and returns
// an unsubscribe function.
func (m *Metrics) Register(e *Emitter) (cancel func()) {
	return e.SubscribeAll(m.Handler())
}
