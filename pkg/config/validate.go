package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/robfig/cron/v3"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "server.listen_address").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. All validation errors are collected and
// returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateLimits(&cfg.Limits)...)
	errs = append(errs, validateJournal(&cfg.Journal)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

// validateServer validates server configuration.
func validateServer(cfg *ServerConfig) []FieldError {
	var errs []FieldError

	if cfg.ListenAddress == "" {
		errs = append(errs, FieldError{
			Field:   "server.listen_address",
			Message: "listen address is required",
		})
	}

	durations := []struct {
		field string
		value int64
	}{
		{"server.read_timeout", int64(cfg.ReadTimeout)},
		{"server.write_timeout", int64(cfg.WriteTimeout)},
		{"server.idle_timeout", int64(cfg.IdleTimeout)},
		{"server.shutdown_timeout", int64(cfg.ShutdownTimeout)},
		{"server.request_timeout", int64(cfg.RequestTimeout)},
		{"server.simulated_delay", int64(cfg.SimulatedDelay)},
	}
	for _, d := range durations {
		if d.value < 0 {
			errs = append(errs, FieldError{
				Field:   d.field,
				Message: "must not be negative",
			})
		}
	}

	if cfg.MaxInFlight < 0 {
		errs = append(errs, FieldError{
			Field:   "server.max_in_flight",
			Message: "must be non-negative (0 disables the cap)",
		})
	}

	if strings.TrimSpace(cfg.KeyHeader) == "" {
		errs = append(errs, FieldError{
			Field:   "server.key_header",
			Message: "key header is required",
		})
	}

	errs = append(errs, validateTLS(&cfg.TLS)...)
	errs = append(errs, validateAuth(&cfg.Auth)...)

	return errs
}

// validateTLS validates HTTPS settings. Files are checked when loaded, not here.
func validateTLS(cfg *TLSConfig) []FieldError {
	if !cfg.Enabled {
		return nil
	}
	var errs []FieldError

	if cfg.CertFile == "" || cfg.KeyFile == "" {
		errs = append(errs, FieldError{
			Field:   "server.tls",
			Message: "cert_file and key_file are required when TLS is enabled",
		})
	}
	if cfg.MinVersion != "1.2" && cfg.MinVersion != "1.3" {
		errs = append(errs, FieldError{
			Field:   "server.tls.min_version",
			Message: fmt.Sprintf("must be 1.2 or 1.3, got %q", cfg.MinVersion),
		})
	}
	if cfg.ReloadInterval < 0 {
		errs = append(errs, FieldError{
			Field:   "server.tls.reload_interval",
			Message: "must not be negative",
		})
	}
	switch cfg.ClientAuth {
	case "require", "request", "verify_if_given":
	default:
		errs = append(errs, FieldError{
			Field:   "server.tls.client_auth",
			Message: fmt.Sprintf("must be require, request or verify_if_given, got %q", cfg.ClientAuth),
		})
	}
	switch cfg.IdentitySource {
	case "", "subject.CN", "subject.OU", "subject.O", "SAN":
	default:
		errs = append(errs, FieldError{
			Field:   "server.tls.identity_source",
			Message: fmt.Sprintf("unknown identity source %q", cfg.IdentitySource),
		})
	}
	if cfg.IdentitySource != "" && cfg.ClientCAFile == "" {
		errs = append(errs, FieldError{
			Field:   "server.tls.identity_source",
			Message: "requires client_ca_file",
		})
	}

	return errs
}

// validateAuth validates API key settings.
func validateAuth(cfg *AuthConfig) []FieldError {
	if !cfg.Enabled {
		return nil
	}
	var errs []FieldError

	if strings.TrimSpace(cfg.Header) == "" {
		errs = append(errs, FieldError{
			Field:   "server.auth.header",
			Message: "header is required when auth is enabled",
		})
	}
	if len(cfg.Keys) == 0 {
		errs = append(errs, FieldError{
			Field:   "server.auth.keys",
			Message: "at least one key is required when auth is enabled",
		})
	}
	seen := make(map[string]bool, len(cfg.Keys))
	for i, k := range cfg.Keys {
		field := fmt.Sprintf("server.auth.keys[%d]", i)
		if k.Key == "" {
			errs = append(errs, FieldError{Field: field, Message: "key must not be empty"})
			continue
		}
		if seen[k.Key] {
			errs = append(errs, FieldError{Field: field, Message: "duplicate key"})
		}
		seen[k.Key] = true
	}

	return errs
}

// validateLimits validates policies, their routes and the sweep schedule.
func validateLimits(cfg *LimitsConfig) []FieldError {
	var errs []FieldError

	if len(cfg.Policies) == 0 {
		errs = append(errs, FieldError{
			Field:   "limits.policies",
			Message: "at least one policy is required",
		})
	}

	if _, ok := cfg.Policies[cfg.DefaultPolicy]; !ok {
		errs = append(errs, FieldError{
			Field:   "limits.default_policy",
			Message: fmt.Sprintf("policy %q is not defined", cfg.DefaultPolicy),
		})
	}

	if cfg.SweepSchedule != "" {
		if _, err := cron.ParseStandard(cfg.SweepSchedule); err != nil {
			errs = append(errs, FieldError{
				Field:   "limits.sweep_schedule",
				Message: fmt.Sprintf("invalid cron expression: %v", err),
			})
		}
	}

	// Sorted so errors come out in a stable order.
	names := make([]string, 0, len(cfg.Policies))
	for name := range cfg.Policies {
		names = append(names, name)
	}
	sort.Strings(names)

	routeOwners := make(map[string]string)
	for _, name := range names {
		p := cfg.Policies[name]
		prefix := "limits.policies." + name

		if strings.TrimSpace(name) == "" {
			errs = append(errs, FieldError{Field: "limits.policies", Message: "policy name must not be empty"})
		}
		if p.Limit <= 0 {
			errs = append(errs, FieldError{Field: prefix + ".limit", Message: "limit must be positive"})
		}
		if p.Window <= 0 {
			errs = append(errs, FieldError{Field: prefix + ".window", Message: "window must be positive"})
		}

		switch p.Stamp {
		case "completion", "submission":
		default:
			errs = append(errs, FieldError{
				Field:   prefix + ".stamp",
				Message: fmt.Sprintf("stamp must be completion or submission, got %q", p.Stamp),
			})
		}

		switch p.Action {
		case "block", "shadow":
		case "queue":
			if p.QueueTimeout <= 0 {
				errs = append(errs, FieldError{Field: prefix + ".queue_timeout", Message: "queue timeout must be positive"})
			}
			if p.QueueDepth <= 0 {
				errs = append(errs, FieldError{Field: prefix + ".queue_depth", Message: "queue depth must be positive"})
			}
		default:
			errs = append(errs, FieldError{
				Field:   prefix + ".action",
				Message: fmt.Sprintf("action must be block, queue or shadow, got %q", p.Action),
			})
		}

		for i, route := range p.Routes {
			field := fmt.Sprintf("%s.routes[%d]", prefix, i)
			if !strings.HasPrefix(route, "/") {
				errs = append(errs, FieldError{Field: field, Message: "route must start with /"})
				continue
			}
			if owner, taken := routeOwners[route]; taken {
				errs = append(errs, FieldError{
					Field:   field,
					Message: fmt.Sprintf("route %q already belongs to policy %q", route, owner),
				})
				continue
			}
			routeOwners[route] = name
		}
	}

	return errs
}

// validateJournal validates journal configuration.
func validateJournal(cfg *JournalConfig) []FieldError {
	var errs []FieldError

	switch cfg.Backend {
	case "memory", "redis":
	case "sqlite":
		if cfg.SQLite.Path == "" {
			errs = append(errs, FieldError{Field: "journal.sqlite.path", Message: "path is required for sqlite backend"})
		}
		if cfg.SQLite.Driver != "sqlite" && cfg.SQLite.Driver != "sqlite3" {
			errs = append(errs, FieldError{
				Field:   "journal.sqlite.driver",
				Message: fmt.Sprintf("driver must be sqlite or sqlite3, got %q", cfg.SQLite.Driver),
			})
		}
	default:
		errs = append(errs, FieldError{
			Field:   "journal.backend",
			Message: fmt.Sprintf("backend must be memory, sqlite or redis, got %q", cfg.Backend),
		})
	}

	if cfg.Backend == "redis" && cfg.Redis.Address == "" {
		errs = append(errs, FieldError{Field: "journal.redis.address", Message: "address is required for redis backend"})
	}
	if cfg.Redis.DB < 0 {
		errs = append(errs, FieldError{Field: "journal.redis.db", Message: "db must be non-negative"})
	}
	if cfg.AsyncBuffer <= 0 {
		errs = append(errs, FieldError{Field: "journal.async_buffer", Message: "async buffer must be positive"})
	}
	if cfg.Retention <= 0 {
		errs = append(errs, FieldError{Field: "journal.retention", Message: "retention must be positive"})
	}
	if _, err := cron.ParseStandard(cfg.CleanupSchedule); err != nil {
		errs = append(errs, FieldError{
			Field:   "journal.cleanup_schedule",
			Message: fmt.Sprintf("invalid cron expression: %v", err),
		})
	}

	return errs
}

// validateTelemetry validates logging, metrics, tracing and health settings.
func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	switch strings.ToLower(cfg.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("invalid log level %q (must be debug, info, warn or error)", cfg.Logging.Level),
		})
	}

	switch strings.ToLower(cfg.Logging.Format) {
	case "json", "text", "console":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("invalid log format %q (must be json, text or console)", cfg.Logging.Format),
		})
	}

	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, FieldError{Field: "telemetry.metrics.path", Message: "path must start with /"})
	}

	switch cfg.Tracing.Sampler {
	case "always", "never", "ratio":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.sampler",
			Message: fmt.Sprintf("invalid sampler %q (must be always, never or ratio)", cfg.Tracing.Sampler),
		})
	}
	if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1 {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.sample_ratio",
			Message: "sample ratio must be between 0.0 and 1.0",
		})
	}
	if cfg.Tracing.Enabled && cfg.Tracing.Endpoint == "" {
		errs = append(errs, FieldError{Field: "telemetry.tracing.endpoint", Message: "endpoint is required when tracing is enabled"})
	}

	for field, path := range map[string]string{
		"telemetry.health.liveness_path":  cfg.Health.LivenessPath,
		"telemetry.health.readiness_path": cfg.Health.ReadinessPath,
	} {
		if !strings.HasPrefix(path, "/") {
			errs = append(errs, FieldError{Field: field, Message: "path must start with /"})
		}
	}
	if cfg.Health.CheckTimeout <= 0 {
		errs = append(errs, FieldError{Field: "telemetry.health.check_timeout", Message: "check timeout must be positive"})
	}

	return errs
}
