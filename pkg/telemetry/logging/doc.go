// Package logging provides structured logging for turnstile.
//
// The Logger wraps log/slog with:
//   - JSON, text and console formats
//   - context fields (request_id, tenant, policy, trace_id)
//   - optional tenant-key redaction
//
// # Usage
//
//	logger, err := logging.New(logging.Config{
//	    Level:      "info",
//	    Format:     "json",
//	    RedactKeys: true,
//	})
//
//	ctx = logging.WithTenant(ctx, "alice@example.com")
//	logger.InfoContext(ctx, "request rejected", "policy", "default")
//	// {"msg":"request rejected","tenant":"key:ff8d9819","policy":"default"}
//
// Tenant keys are often user identifiers. With RedactKeys on they are logged
// as a short SHA-256 digest, which still lets operators correlate a tenant's
// records without storing the raw key.
package logging
