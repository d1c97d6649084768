// Package telemetry groups the observability packages of turnstile.
//
// # Components
//
//   - logging: Structured slog logging with tenant key redaction
//   - metrics: Prometheus collectors for the HTTP surface and the journal
//   - tracing: OpenTelemetry tracing over OTLP gRPC
//   - health: Liveness, readiness and version endpoints
//
// Admission metrics (decisions, queue waits, tracked keys) live with the
// limits registry in package limits; this tree holds the service-wide
// pieces the run command assembles.
package telemetry
