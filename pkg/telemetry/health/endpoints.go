package health

import (
	"encoding/json"
	"net/http"
	"runtime"
	"time"

	"mercator-hq/turnstile/pkg/config"
	"mercator-hq/turnstile/pkg/limits/ratelimit"
)

// VersionInfo contains build and version information.
type VersionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
}

// NewVersionInfo fills GoVersion from the running binary.
func NewVersionInfo(version, commit, buildTime string) VersionInfo {
	return VersionInfo{
		Version:   version,
		Commit:    commit,
		BuildTime: buildTime,
		GoVersion: runtime.Version(),
	}
}

// LivenessHandler returns an HTTP handler for the liveness probe endpoint.
//
// Example response:
//
//	{"status": "ok", "timestamp": "2026-01-01T10:30:00Z"}
func (c *Checker) LivenessHandler() http.HandlerFunc {
	return getOnly(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, r, http.StatusOK, c.CheckLiveness(r.Context()))
	})
}

// ReadinessHandler returns an HTTP handler for the readiness probe endpoint.
//
// Returns:
//   - 200 OK: ready to serve traffic
//   - 503 Service Unavailable: degraded or draining
//
// Example response (degraded):
//
//	{
//	    "status": "degraded",
//	    "checks": {
//	        "limits": {"status": "ok", "duration_ms": 0.01},
//	        "journal": {"status": "unhealthy", "message": "dial tcp: connection refused", "duration_ms": 1.2}
//	    },
//	    "timestamp": "2026-01-01T10:30:00Z"
//	}
func (c *Checker) ReadinessHandler() http.HandlerFunc {
	return getOnly(func(w http.ResponseWriter, r *http.Request) {
		status := c.CheckReadiness(r.Context())

		code := http.StatusOK
		if !status.Ready() {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, r, code, status)
	})
}

// VersionHandler returns an HTTP handler for the version information endpoint.
func VersionHandler(info VersionInfo) http.HandlerFunc {
	return getOnly(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, r, http.StatusOK, info)
	})
}

// Mount registers the liveness, readiness and version endpoints on mux at
// the paths configured in cfg. Probes are limited to probesPerSecond
// requests per second (0 disables the limit).
func Mount(mux *http.ServeMux, checker *Checker, cfg config.HealthConfig, info VersionInfo, probesPerSecond int) {
	mux.Handle(cfg.LivenessPath, RateLimitedHandler(checker.LivenessHandler(), probesPerSecond))
	mux.Handle(cfg.ReadinessPath, RateLimitedHandler(checker.ReadinessHandler(), probesPerSecond))
	mux.Handle("/version", VersionHandler(info))
}

// RateLimitedHandler admits at most requestsPerSecond requests in any
// trailing second and answers the rest with 429.
//
// Usage:
//
//	handler := RateLimitedHandler(checker.LivenessHandler(), 10) // 10 req/s
//	mux.Handle("/health", handler)
func RateLimitedHandler(handler http.HandlerFunc, requestsPerSecond int) http.HandlerFunc {
	if requestsPerSecond <= 0 {
		return handler
	}

	gate, err := ratelimit.NewSingle(requestsPerSecond, time.Second)
	if err != nil {
		return handler
	}

	return func(w http.ResponseWriter, r *http.Request) {
		if !gate.TryAdmit().Admitted() {
			http.Error(w, "Too many requests", http.StatusTooManyRequests)
			return
		}
		handler(w, r)
	}
}

func getOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		next(w, r)
	}
}

func writeJSON(w http.ResponseWriter, r *http.Request, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if r.Method != http.MethodHead {
		_ = json.NewEncoder(w).Encode(v)
	}
}
