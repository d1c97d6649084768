package middleware

import (
	"fmt"
	"net/http"

	"go.opentelemetry.io/otel/trace"

	"mercator-hq/turnstile/pkg/telemetry/logging"
	"mercator-hq/turnstile/pkg/telemetry/tracing"
)

// TraceIDHeader exposes the trace ID to clients for correlation.
const TraceIDHeader = "X-Trace-ID"

// Tracing starts a server span per request, continuing any W3C trace
// context the client sent. The trace ID is put in the logging context and
// in the X-Trace-ID response header when the span is valid.
func Tracing(tracer trace.Tracer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := tracing.Extract(r.Context(), r.Header)
			ctx, span := tracer.Start(ctx, fmt.Sprintf("HTTP %s %s", r.Method, r.URL.Path),
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					tracing.AttrHTTPMethod.String(r.Method),
					tracing.AttrHTTPRoute.String(r.URL.Path),
					tracing.AttrRequestID.String(GetRequestID(ctx)),
				),
			)
			defer span.End()

			if traceID := tracing.TraceID(ctx); traceID != "" {
				ctx = logging.WithTraceID(ctx, traceID)
				w.Header().Set(TraceIDHeader, traceID)
			}

			rw := newResponseWriter(w)
			next.ServeHTTP(rw, r.WithContext(ctx))

			span.SetAttributes(tracing.AttrHTTPStatus.Int(rw.statusCode))
			if rw.statusCode >= 500 {
				tracing.SetStatus(span, fmt.Errorf("HTTP %d", rw.statusCode))
			}
		})
	}
}
