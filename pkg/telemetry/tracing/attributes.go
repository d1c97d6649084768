package tracing

import (
	"go.opentelemetry.io/otel/attribute"
)

// Span attribute keys for admission spans. Tenant keys are never recorded
// raw; only their hash is.
const (
	AttrPolicy    = attribute.Key("turnstile.policy")
	AttrKeyHash   = attribute.Key("turnstile.key_hash")
	AttrAllowed   = attribute.Key("turnstile.allowed")
	AttrResult    = attribute.Key("turnstile.result")
	AttrRemaining = attribute.Key("turnstile.remaining")
	AttrAttempts  = attribute.Key("turnstile.attempts")
	AttrRequestID = attribute.Key("turnstile.request_id")
)

// HTTP attribute keys used by the tracing middleware.
const (
	AttrHTTPMethod = attribute.Key("http.method")
	AttrHTTPRoute  = attribute.Key("http.route")
	AttrHTTPStatus = attribute.Key("http.status_code")
)
