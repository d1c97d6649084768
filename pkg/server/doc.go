// Package server provides the HTTP decision service of turnstile.
//
// A caller (an API gateway, a forward-auth proxy, or the application
// itself) asks the service whether one request for a tenant may proceed,
// and gets 200 or 429 back.
//
// # Routes
//
//   - GET|POST /v1/admit: one admission decision
//   - GET /v1/policies: configured policies with live key counts
//   - GET /metrics: Prometheus metrics (when enabled)
//   - GET /health, /ready, /version: probes (paths configurable)
//
// # Admission
//
// The tenant key is read from server.key_header (X-Tenant-ID by default),
// then the key query parameter, then server.default_key. A deployment that
// guards a single tenant sets default_key and sends no key at all.
//
//	GET /v1/admit?key=alice&policy=api
//
//	HTTP/1.1 429 Too Many Requests
//	X-RateLimit-Limit: 10
//	X-RateLimit-Remaining: 0
//	X-RateLimit-Policy: api
//	Retry-After: 1
//
//	{"status":"rejected","policy":"api","key":"alice","limit":10,"remaining":0,...}
//
// A shadow policy answers 200 with status "shadowed" where it would have
// rejected. A queue policy holds the response until the window has room or
// the queue timeout passes (503).
//
// # Graceful Shutdown
//
// Cancelling the context passed to Start puts the health checker into
// draining mode (readiness answers 503), then stops accepting connections
// and waits up to server.shutdown_timeout for in-flight requests.
package server
