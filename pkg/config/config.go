package config

import "time"

// Config is the root configuration of turnstile.
type Config struct {
	// Server configures the HTTP decision service.
	Server ServerConfig `yaml:"server"`

	// Limits defines the admission policies.
	Limits LimitsConfig `yaml:"limits"`

	// Journal configures the decision journal.
	Journal JournalConfig `yaml:"journal"`

	// Telemetry configures logging, metrics, tracing and health checks.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	// ListenAddress is the address the server binds to (e.g., "127.0.0.1:8080").
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes of the response.
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the maximum time to wait for the next request on keep-alive connections.
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// RequestTimeout bounds a single request, including any queueing.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// MaxInFlight caps concurrently handled requests. 0 disables the cap.
	MaxInFlight int `yaml:"max_in_flight"`

	// KeyHeader is the request header carrying the tenant key.
	KeyHeader string `yaml:"key_header"`

	// DefaultKey is used when a request carries no key. Empty means such
	// requests are refused with 400.
	DefaultKey string `yaml:"default_key"`

	// SimulatedDelay is slept before every admission check.
	SimulatedDelay time.Duration `yaml:"simulated_delay"`

	// TLS configures HTTPS and client certificates.
	TLS TLSConfig `yaml:"tls"`

	// Auth configures API key authentication of callers.
	Auth AuthConfig `yaml:"auth"`
}

// TLSConfig configures HTTPS for the decision service.
type TLSConfig struct {
	Enabled bool `yaml:"enabled"`

	// CertFile and KeyFile are PEM files. They are re-read when they change.
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`

	// MinVersion is "1.2" or "1.3".
	MinVersion string `yaml:"min_version"`

	// ReloadInterval is how often the certificate files are checked.
	ReloadInterval time.Duration `yaml:"reload_interval"`

	// ClientCAFile enables client certificates, verified against this CA.
	ClientCAFile string `yaml:"client_ca_file"`

	// ClientAuth is "require", "request" or "verify_if_given".
	ClientAuth string `yaml:"client_auth"`

	// IdentitySource picks the tenant key out of a client certificate:
	// "subject.CN", "subject.OU", "subject.O" or "SAN". Empty means client
	// certificates do not name the tenant.
	IdentitySource string `yaml:"identity_source"`
}

// AuthConfig configures API key authentication.
type AuthConfig struct {
	Enabled bool `yaml:"enabled"`

	// Header carries the API key. "Authorization" expects a Bearer token.
	Header string `yaml:"header"`

	// Keys are the accepted API keys.
	Keys []APIKeyConfig `yaml:"keys"`
}

// APIKeyConfig is one accepted API key.
type APIKeyConfig struct {
	Key string `yaml:"key"`

	// Tenant is the key admitted against. Empty leaves the tenant to the
	// request (key header, query or default).
	Tenant string `yaml:"tenant"`

	// Disabled keys are rejected.
	Disabled bool `yaml:"disabled"`
}

// LimitsConfig contains the admission policies.
type LimitsConfig struct {
	// DefaultPolicy is used when a request matches no route and names no policy.
	DefaultPolicy string `yaml:"default_policy"`

	// SweepSchedule is a cron expression for dropping idle keys.
	// Empty disables sweeping.
	SweepSchedule string `yaml:"sweep_schedule"`

	// Policies maps policy names to their settings.
	Policies map[string]PolicyConfig `yaml:"policies"`
}

// PolicyConfig describes one sliding-window policy.
type PolicyConfig struct {
	// Limit is the number of admissions per key per window.
	Limit int `yaml:"limit"`

	// Window is the trailing window length.
	Window time.Duration `yaml:"window"`

	// Stamp selects "completion" (default) or "submission" time stamping.
	Stamp string `yaml:"stamp"`

	// Action is what happens to rejected requests: "block", "queue" or "shadow".
	Action string `yaml:"action"`

	// QueueTimeout bounds how long a queued request waits for room.
	QueueTimeout time.Duration `yaml:"queue_timeout"`

	// QueueDepth caps how many requests may wait at once.
	QueueDepth int `yaml:"queue_depth"`

	// Routes are URL path prefixes handled by this policy.
	Routes []string `yaml:"routes"`
}

// JournalConfig configures the decision journal.
type JournalConfig struct {
	// Enabled turns decision recording on.
	Enabled bool `yaml:"enabled"`

	// Backend is "memory", "sqlite" or "redis".
	Backend string `yaml:"backend"`

	// AsyncBuffer is the size of the write queue.
	AsyncBuffer int `yaml:"async_buffer"`

	// Retention is how long events are kept.
	Retention time.Duration `yaml:"retention"`

	// CleanupSchedule is a cron expression for retention cleanup.
	CleanupSchedule string `yaml:"cleanup_schedule"`

	// SQLite configures the sqlite backend.
	SQLite SQLiteConfig `yaml:"sqlite"`

	// Redis configures the redis backend.
	Redis RedisConfig `yaml:"redis"`
}

// SQLiteConfig configures the sqlite journal backend.
type SQLiteConfig struct {
	// Path is the database file.
	Path string `yaml:"path"`

	// Driver is "sqlite" (pure Go) or "sqlite3" (cgo).
	Driver string `yaml:"driver"`

	// BusyTimeout is how long to wait for the database lock.
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// RedisConfig configures the redis journal backend.
type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`

	// Prefix namespaces every key written.
	Prefix string `yaml:"prefix"`

	// TTL expires per-minute and per-key hashes.
	TTL time.Duration `yaml:"ttl"`

	// TrackKeys keeps a hash per tenant key.
	TrackKeys bool `yaml:"track_keys"`
}

// TelemetryConfig groups observability settings.
type TelemetryConfig struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
	Health  HealthConfig  `yaml:"health"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level"`

	// Format is json, text or console.
	Format string `yaml:"format"`

	// AddSource includes file:line in log records.
	AddSource bool `yaml:"add_source"`

	// RedactKeys hashes tenant keys in log output.
	RedactKeys bool `yaml:"redact_keys"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Path      string `yaml:"path"`
	Namespace string `yaml:"namespace"`
	Subsystem string `yaml:"subsystem"`
}

// TracingConfig configures OpenTelemetry tracing.
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`

	// Endpoint is the OTLP gRPC collector address.
	Endpoint string `yaml:"endpoint"`

	// Insecure disables TLS to the collector.
	Insecure bool `yaml:"insecure"`

	// Timeout bounds exporter calls.
	Timeout time.Duration `yaml:"timeout"`

	// Sampler is always, never or ratio.
	Sampler string `yaml:"sampler"`

	// SampleRatio is used by the ratio sampler (0.0 to 1.0).
	SampleRatio float64 `yaml:"sample_ratio"`

	// ServiceName is reported as service.name.
	ServiceName string `yaml:"service_name"`
}

// HealthConfig configures the health endpoints.
type HealthConfig struct {
	LivenessPath  string        `yaml:"liveness_path"`
	ReadinessPath string        `yaml:"readiness_path"`
	CheckTimeout  time.Duration `yaml:"check_timeout"`
}
