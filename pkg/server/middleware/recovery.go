package middleware

import (
	"net/http"
	"runtime/debug"

	"mercator-hq/turnstile/pkg/server/api"
	"mercator-hq/turnstile/pkg/telemetry/logging"
)

// Recovery recovers from panics in HTTP handlers and answers 500. The panic
// is logged with its stack trace; the client only sees a generic message.
//
// Example usage:
//
//	handler = Recovery(logger, shed)(handler)
func Recovery(logger *logging.Logger, shed ShedRecorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					if err == http.ErrAbortHandler {
						panic(err)
					}

					logger.ErrorContext(r.Context(), "panic in handler",
						"error", err,
						"method", r.Method,
						"path", r.URL.Path,
						"stack", string(debug.Stack()),
					)
					if shed != nil {
						shed.RecordShed("panic")
					}

					api.WriteError(w, http.StatusInternalServerError,
						api.NewError(http.StatusInternalServerError, "An internal error occurred.").
							WithRequestID(GetRequestID(r.Context())))
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
