package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"mercator-hq/turnstile/pkg/telemetry/logging"
)

const (
	// RequestIDHeader is the HTTP header for request ID.
	RequestIDHeader = "X-Request-ID"

	// maxRequestIDLength bounds client-supplied IDs before they reach logs
	// and the journal.
	maxRequestIDLength = 128
)

// RequestID assigns every request an ID, stores it in the context for the
// logger and the journal, and echoes it in the X-Request-ID response
// header. A client-supplied X-Request-ID is reused when present.
//
// Example usage:
//
//	handler = RequestID(handler)
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" || len(requestID) > maxRequestIDLength {
			requestID = uuid.NewString()
		}

		ctx := logging.WithRequestID(r.Context(), requestID)
		w.Header().Set(RequestIDHeader, requestID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID extracts the request ID from the context.
// Returns empty string if not found.
var GetRequestID = logging.GetRequestID
