package tracing

import (
	"context"
	"net/http"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// StartRequest opens a client span named "<action> <method>" for one
// request made by user. When the provider propagates, the span context is
// written into header.
func (p *Provider) StartRequest(ctx context.Context, action, user string, req *http.Request) (context.Context, trace.Span) {
	ctx, span := p.Tracer().Start(ctx, action+" "+req.Method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", req.Method),
			attribute.String("url.full", req.URL.String()),
			attribute.String("crowdbench.action", action),
			attribute.String("crowdbench.user", user),
		),
	)
	if p.Propagates() {
		otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))
	}
	return ctx, span
}

// Finish closes span with the outcome recorded in the ledger. Reserved
// codes (zero and below) and HTTP codes from 400 up mark the span failed.
func Finish(span trace.Span, code int, reason string) {
	span.SetAttributes(attribute.Int("http.response.status_code", code))
	switch {
	case code <= 0:
		span.SetStatus(codes.Error, reason)
		span.SetAttributes(attribute.String("error.type", strconv.Itoa(code)))
	case code >= 400:
		span.SetStatus(codes.Error, reason)
	default:
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
