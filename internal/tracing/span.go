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

// StartRequestSpan starts a server span for one profiled request. The span
// name follows the "METHOD route" convention so traces group by endpoint.
func StartRequestSpan(ctx context.Context, tracer trace.Tracer, method, route string) (context.Context, trace.Span) {
	spanName := method
	if route != "" {
		spanName = method + " " + route
	}
	ctx, span := tracer.Start(ctx, spanName,
		trace.WithSpanKind(trace.SpanKindServer),
	)
	span.SetAttributes(
		attribute.String("http.request.method", method),
	)
	if route != "" {
		span.SetAttributes(attribute.String("http.route", route))
	}
	return ctx, span
}

// StartQuerySpan starts a client span for one database statement.
func StartQuerySpan(ctx context.Context, tracer trace.Tracer, engine, queryText string) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, "db.query",
		trace.WithSpanKind(trace.SpanKindClient),
	)
	span.SetAttributes(
		attribute.String("db.system", engine),
		attribute.String("db.query.text", queryText),
	)
	return ctx, span
}

// EndRequestSpan finishes a request span, marking server errors.
func EndRequestSpan(span trace.Span, status int) {
	span.SetAttributes(attribute.Int("http.response.status_code", status))
	if status >= 500 {
		span.SetStatus(codes.Error, http.StatusText(status))
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
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

// InjectHTTPHeaders injects W3C trace context into outbound HTTP headers.
func InjectHTTPHeaders(ctx context.Context, headers http.Header) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(headers))
}
