// Package tracing wires OpenTelemetry tracing for turnstile.
//
// Spans are exported over OTLP gRPC when telemetry.tracing.enabled is set.
// Otherwise every span is a noop. W3C trace context is extracted from
// incoming requests by the server middleware and injected into outgoing
// requests by the simulate command.
//
//	tracer, err := tracing.New(&cfg.Telemetry.Tracing, version)
//	if err != nil {
//	    return err
//	}
//	defer tracer.Shutdown(context.Background())
package tracing
