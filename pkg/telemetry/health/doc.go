// Package health provides health check endpoints for turnstile.
//
// # Endpoints
//
//   - /health: Liveness probe, the process is running
//   - /ready: Readiness probe, every registered component check passes and
//     the service is not draining
//   - /version: Build information
//
// Probe paths come from config.HealthConfig. Probes are themselves
// throttled by a ratelimit.Single so a misconfigured prober cannot hammer
// the journal backend through readiness checks.
//
// # Usage
//
//	checker := health.New(cfg.Telemetry.Health.CheckTimeout)
//	checker.RegisterCheck("journal", backend.Ping)
//	health.Mount(mux, checker, cfg.Telemetry.Health, health.NewVersionInfo(version, commit, date), 20)
//
//	// on shutdown
//	checker.SetDraining(true)
package health
