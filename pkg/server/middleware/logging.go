package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"mercator-hq/turnstile/pkg/telemetry/logging"
)

// HTTPRecorder receives one observation per served request.
// *metrics.Collector implements it.
type HTTPRecorder interface {
	RecordHTTPRequest(route, method string, status int, duration time.Duration)
}

// Logging logs each request on completion and reports it to rec (which may
// be nil). Request ID and trace ID come from the context.
//
// Log format (JSON):
//
//	{
//	  "time": "2026-01-01T10:30:00Z",
//	  "level": "INFO",
//	  "msg": "request completed",
//	  "method": "GET",
//	  "path": "/v1/admit",
//	  "status": 429,
//	  "latency_ms": 1,
//	  "request_id": "0b7e2f0c-...",
//	  "remote_addr": "192.168.1.100:54321"
//	}
//
// 429 is logged at info: a rejection is the service working, not failing.
func Logging(logger *logging.Logger, rec HTTPRecorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := newResponseWriter(w)

			next.ServeHTTP(rw, r)

			latency := time.Since(start)
			if rec != nil {
				rec.RecordHTTPRequest(r.URL.Path, r.Method, rw.statusCode, latency)
			}

			level := slog.LevelInfo
			switch {
			case rw.statusCode >= 500:
				level = slog.LevelError
			case rw.statusCode >= 400 && rw.statusCode != http.StatusTooManyRequests:
				level = slog.LevelWarn
			}
			if !logger.Enabled(level) {
				return
			}

			args := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", rw.statusCode,
				"latency_ms", latency.Milliseconds(),
				"remote_addr", r.RemoteAddr,
			}
			switch level {
			case slog.LevelError:
				logger.ErrorContext(r.Context(), "request completed", args...)
			case slog.LevelWarn:
				logger.WarnContext(r.Context(), "request completed", args...)
			default:
				logger.InfoContext(r.Context(), "request completed", args...)
			}
		})
	}
}
