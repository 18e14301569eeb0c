// Package tracing wraps the global OpenTelemetry provider. With no provider
// installed every span is a no-op.
package tracing

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const instrumentation = "settlement-engine"

// Start opens a span named name on the engine's tracer.
func Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(instrumentation).Start(ctx, name, trace.WithAttributes(attrs...))
}

// Fail marks span as failed. A nil err is ignored.
func Fail(span trace.Span, message string, err error) {
	if err == nil {
		return
	}
	span.SetStatus(codes.Error, message+": "+err.Error())
	span.RecordError(err)
}

// Inject writes the trace context of ctx into outgoing request headers.
func Inject(ctx context.Context, header http.Header) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(header))
}
