package middleware

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/go-concord/internal/domain"
	"github.com/ahrav/go-concord/internal/ports"
)

var _ SizeObserver = (*OTelSizeObserver)(nil)

// Fractions of the object cap at which span events are emitted.
const (
	sizeWarningThreshold  = 0.8
	sizeCriticalThreshold = 0.9
)

// OTelSizeObserver implements SizeObserver with an OpenTelemetry span per
// guarded execution and optional metrics.
type OTelSizeObserver struct {
	metrics ports.MetricsCollector
	tracer  trace.Tracer
}

// NewOTelSizeObserver creates an observer. Either argument may be nil: a
// nil tp uses the global provider and a nil collector disables metrics.
func NewOTelSizeObserver(tp trace.TracerProvider, metrics ports.MetricsCollector) *OTelSizeObserver {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &OTelSizeObserver{metrics: metrics, tracer: tp.Tracer(instrumentationName)}
}

// PreCheck starts the "SizeGuard.Execute" span and records how close the
// universe is to the cap.
func (o *OTelSizeObserver) PreCheck(ctx context.Context, size int, limits Limits) context.Context {
	ctx, span := o.tracer.Start(ctx, "SizeGuard.Execute", trace.WithAttributes(
		attribute.Int("universe.size", size),
	))

	if limits.MaxObjects > 0 {
		span.SetAttributes(
			attribute.Int("limit.max_objects", limits.MaxObjects),
			attribute.Int("limit.remaining", limits.MaxObjects-size),
		)

		usage := float64(size) / float64(limits.MaxObjects)
		switch {
		case usage >= sizeCriticalThreshold:
			span.AddEvent("limit.threshold.critical", trace.WithAttributes(
				attribute.Float64("usage_percentage", usage*100),
			))
		case usage >= sizeWarningThreshold:
			span.AddEvent("limit.threshold.warning", trace.WithAttributes(
				attribute.Float64("usage_percentage", usage*100),
			))
		}
	}

	if o.metrics != nil {
		o.metrics.RecordGauge(MetricUniverseSize, float64(size), nil)
	}
	return ctx
}

// PostCheck ends the span started by PreCheck.
func (o *OTelSizeObserver) PostCheck(
	ctx context.Context,
	size int,
	limits Limits,
	elapsed time.Duration,
	err error,
) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	if err == nil {
		span.SetStatus(codes.Ok, "")
		return
	}

	var sizeErr *domain.SizeLimitError
	if errors.As(err, &sizeErr) {
		span.AddEvent("limit.exceeded", trace.WithAttributes(
			attribute.Int("limit_value", sizeErr.Limit),
			attribute.Int("used_value", sizeErr.Size),
		))
		span.SetStatus(codes.Error, "object limit exceeded")
		if o.metrics != nil {
			o.metrics.RecordCounter(MetricLimitRejections, 1, nil)
		}
		return
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
