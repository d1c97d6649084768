package middleware

import (
	"net/http"

	"mercator-hq/turnstile/pkg/limits/ratelimit"
	"mercator-hq/turnstile/pkg/server/api"
)

// ShedRecorder counts requests refused before reaching a handler.
// *metrics.Collector implements it.
type ShedRecorder interface {
	RecordShed(reason string)
}

// InFlightGauge tracks requests currently being served.
// *metrics.Collector implements it.
type InFlightGauge interface {
	IncInFlight()
	DecInFlight()
}

// InFlight caps concurrently served requests at max and answers the excess
// with 503 and Retry-After: 1. A max of 0 or less disables the cap but
// still reports the in-flight gauge.
//
// This is load shedding for the service itself and is independent of the
// per-key windows enforced by /v1/admit.
func InFlight(max int, gauge InFlightGauge, shed ShedRecorder) func(http.Handler) http.Handler {
	var limiter *ratelimit.InFlightLimiter
	if max > 0 {
		limiter = ratelimit.NewInFlightLimiter(max)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter != nil {
				if !limiter.TryAcquire() {
					if shed != nil {
						shed.RecordShed("in_flight")
					}
					w.Header().Set("Retry-After", "1")
					api.WriteError(w, http.StatusServiceUnavailable,
						api.NewError(http.StatusServiceUnavailable, "server is at capacity").
							WithRequestID(GetRequestID(r.Context())))
					return
				}
				defer limiter.Release()
			}

			if gauge != nil {
				gauge.IncInFlight()
				defer gauge.DecInFlight()
			}

			next.ServeHTTP(w, r)
		})
	}
}
