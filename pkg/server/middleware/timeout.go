package middleware

import (
	"encoding/json"
	"net/http"
	"time"

	"mercator-hq/turnstile/pkg/server/api"
)

// Timeout bounds request handling, queueing included. The handler's context
// is cancelled at the deadline, and if it has not responded by then the
// client gets 503 with a JSON error body.
//
// A timeout of 0 or less disables the middleware.
//
// Example usage:
//
//	handler = Timeout(10 * time.Second)(handler)
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	body, _ := json.Marshal(api.NewError(http.StatusServiceUnavailable, "request timeout: the request took too long to complete"))

	return func(next http.Handler) http.Handler {
		if timeout <= 0 {
			return next
		}

		th := http.TimeoutHandler(next, timeout, string(body))
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Handlers that finish in time replace this with their own.
			w.Header().Set("Content-Type", "application/json")
			th.ServeHTTP(w, r)
		})
	}
}
