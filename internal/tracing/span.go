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

// StartRequestSpan starts a client span for one target request attempt.
func StartRequestSpan(ctx context.Context, tracer trace.Tracer, method, runID string) (context.Context, trace.Span) {
	spanName := "HTTP request"
	if method != "" {
		spanName = "HTTP " + method
	}
	ctx, span := tracer.Start(ctx, spanName,
		trace.WithSpanKind(trace.SpanKindClient),
	)
	if method != "" {
		span.SetAttributes(attribute.String("http.request.method", method))
	}
	if runID != "" {
		span.SetAttributes(attribute.String("volley.run_id", runID))
	}
	return ctx, span
}

// EndSpan finishes a span, recording error status if applicable.
func EndSpan(span trace.Span, err error, attrs ...attribute.KeyValue) {
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// StatusCode is the response status attribute attached when a span ends.
func StatusCode(code int) attribute.KeyValue {
	return attribute.Int("http.response.status_code", code)
}

// InjectHTTPHeaders injects W3C trace context into HTTP headers.
func InjectHTTPHeaders(ctx context.Context, headers http.Header) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(headers))
}
