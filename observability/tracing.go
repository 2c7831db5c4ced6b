package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/Mister-Storm/slipnotify"

// Tracer provides OpenTelemetry tracing for webhook deliveries.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer creates a new tracer.
func NewTracer() *Tracer {
	return &Tracer{
		tracer: otel.Tracer(tracerName),
	}
}

// StartDeliverySpan starts a span covering one webhook delivery call chain.
func (t *Tracer) StartDeliverySpan(ctx context.Context, attemptID, subscriberID, eventType string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "slipnotify.delivery",
		trace.WithAttributes(
			attribute.String("slipnotify.attempt_id", attemptID),
			attribute.String("slipnotify.subscriber_id", subscriberID),
			attribute.String("slipnotify.event_type", eventType),
		),
	)
}

// EndDeliverySpan ends a delivery span with result attributes.
func (t *Tracer) EndDeliverySpan(span trace.Span, statusCode, attempts int, err string) {
	span.SetAttributes(
		attribute.Int("http.status_code", statusCode),
		attribute.Int("slipnotify.attempts", attempts),
	)
	if err != "" {
		span.SetAttributes(attribute.String("slipnotify.error", err))
	}
	span.End()
}
