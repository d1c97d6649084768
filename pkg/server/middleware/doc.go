// Package middleware provides the HTTP middleware of the decision service.
//
// # Chain
//
// The server applies, outermost first:
//
//  1. Recovery: panics become 500 responses
//  2. RequestID: X-Request-ID in, context, and out
//  3. Tracing: server span, W3C context extraction, X-Trace-ID
//  4. Logging: completion log line and HTTP metrics
//  5. InFlight: concurrency cap, 503 when exceeded
//  6. Timeout: per-request deadline, 503 when exceeded
//
// Recovery sits outside everything so a panic in any later middleware is
// still turned into a response.
package middleware
