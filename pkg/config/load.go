package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of every environment override.
const EnvPrefix = "TURNSTILE_"

// LoadConfig loads configuration from a YAML file at the specified path.
// It applies default values, validates the configuration, and returns any errors.
// Environment variables are ignored; use LoadConfigWithEnvOverrides for that.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	cfg, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. Environment variables follow the naming
// convention TURNSTILE_SECTION_FIELD (e.g., TURNSTILE_SERVER_LISTEN_ADDRESS)
// and always take precedence over the file.
//
// The loading sequence is:
// 1. Load YAML from file
// 2. Apply default values
// 3. Apply environment variable overrides
// 4. Validate final configuration
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	cfg, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	applyEnvOverrides(cfg, os.Getenv)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Parse parses YAML configuration and applies defaults. It does not validate.
func Parse(data []byte) (*Config, error) {
	return parse(data)
}

func parse(data []byte) (*Config, error) {
	// Metrics are on unless the file turns them off.
	cfg := &Config{
		Telemetry: TelemetryConfig{
			Metrics: MetricsConfig{Enabled: true},
		},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	ApplyDefaults(cfg)
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Values that fail to parse are ignored.
func applyEnvOverrides(cfg *Config, getenv func(string) string) {
	env := func(name string) string {
		return getenv(EnvPrefix + name)
	}

	// Server overrides
	setString(&cfg.Server.ListenAddress, env("SERVER_LISTEN_ADDRESS"))
	setDuration(&cfg.Server.ReadTimeout, env("SERVER_READ_TIMEOUT"))
	setDuration(&cfg.Server.WriteTimeout, env("SERVER_WRITE_TIMEOUT"))
	setDuration(&cfg.Server.IdleTimeout, env("SERVER_IDLE_TIMEOUT"))
	setDuration(&cfg.Server.ShutdownTimeout, env("SERVER_SHUTDOWN_TIMEOUT"))
	setDuration(&cfg.Server.RequestTimeout, env("SERVER_REQUEST_TIMEOUT"))
	setInt(&cfg.Server.MaxInFlight, env("SERVER_MAX_IN_FLIGHT"))
	setString(&cfg.Server.KeyHeader, env("SERVER_KEY_HEADER"))
	setString(&cfg.Server.DefaultKey, env("SERVER_DEFAULT_KEY"))
	setDuration(&cfg.Server.SimulatedDelay, env("SERVER_SIMULATED_DELAY"))
	setBool(&cfg.Server.TLS.Enabled, env("SERVER_TLS_ENABLED"))
	setString(&cfg.Server.TLS.CertFile, env("SERVER_TLS_CERT_FILE"))
	setString(&cfg.Server.TLS.KeyFile, env("SERVER_TLS_KEY_FILE"))
	setString(&cfg.Server.TLS.ClientCAFile, env("SERVER_TLS_CLIENT_CA_FILE"))
	setBool(&cfg.Server.Auth.Enabled, env("SERVER_AUTH_ENABLED"))

	// Limits overrides
	setString(&cfg.Limits.DefaultPolicy, env("LIMITS_DEFAULT_POLICY"))
	setString(&cfg.Limits.SweepSchedule, env("LIMITS_SWEEP_SCHEDULE"))

	// Per-policy overrides: TURNSTILE_LIMITS_POLICIES_<NAME>_LIMIT etc.
	// Dashes in policy names become underscores.
	for name, p := range cfg.Limits.Policies {
		key := "LIMITS_POLICIES_" + strings.ToUpper(strings.ReplaceAll(name, "-", "_")) + "_"
		setInt(&p.Limit, env(key+"LIMIT"))
		setDuration(&p.Window, env(key+"WINDOW"))
		setString(&p.Stamp, env(key+"STAMP"))
		setString(&p.Action, env(key+"ACTION"))
		setDuration(&p.QueueTimeout, env(key+"QUEUE_TIMEOUT"))
		cfg.Limits.Policies[name] = p
	}

	// Journal overrides
	setBool(&cfg.Journal.Enabled, env("JOURNAL_ENABLED"))
	setString(&cfg.Journal.Backend, env("JOURNAL_BACKEND"))
	setDuration(&cfg.Journal.Retention, env("JOURNAL_RETENTION"))
	setString(&cfg.Journal.CleanupSchedule, env("JOURNAL_CLEANUP_SCHEDULE"))
	setString(&cfg.Journal.SQLite.Path, env("JOURNAL_SQLITE_PATH"))
	setString(&cfg.Journal.SQLite.Driver, env("JOURNAL_SQLITE_DRIVER"))
	setString(&cfg.Journal.Redis.Address, env("JOURNAL_REDIS_ADDRESS"))
	setString(&cfg.Journal.Redis.Password, env("JOURNAL_REDIS_PASSWORD"))
	setInt(&cfg.Journal.Redis.DB, env("JOURNAL_REDIS_DB"))
	setString(&cfg.Journal.Redis.Prefix, env("JOURNAL_REDIS_PREFIX"))

	// Telemetry overrides
	setString(&cfg.Telemetry.Logging.Level, env("TELEMETRY_LOGGING_LEVEL"))
	setString(&cfg.Telemetry.Logging.Format, env("TELEMETRY_LOGGING_FORMAT"))
	setBool(&cfg.Telemetry.Logging.RedactKeys, env("TELEMETRY_LOGGING_REDACT_KEYS"))
	setBool(&cfg.Telemetry.Metrics.Enabled, env("TELEMETRY_METRICS_ENABLED"))
	setString(&cfg.Telemetry.Metrics.Path, env("TELEMETRY_METRICS_PATH"))
	setBool(&cfg.Telemetry.Tracing.Enabled, env("TELEMETRY_TRACING_ENABLED"))
	setString(&cfg.Telemetry.Tracing.Endpoint, env("TELEMETRY_TRACING_ENDPOINT"))
	setString(&cfg.Telemetry.Tracing.Sampler, env("TELEMETRY_TRACING_SAMPLER"))
	if val := env("TELEMETRY_TRACING_SAMPLE_RATIO"); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.Telemetry.Tracing.SampleRatio = f
		}
	}
}

func setString(dst *string, val string) {
	if val != "" {
		*dst = val
	}
}

func setInt(dst *int, val string) {
	if val == "" {
		return
	}
	if i, err := strconv.Atoi(val); err == nil {
		*dst = i
	}
}

func setBool(dst *bool, val string) {
	if val == "" {
		return
	}
	if b, err := strconv.ParseBool(val); err == nil {
		*dst = b
	}
}

func setDuration(dst *time.Duration, val string) {
	if val == "" {
		return
	}
	if d, err := time.ParseDuration(val); err == nil {
		*dst = d
	}
}
