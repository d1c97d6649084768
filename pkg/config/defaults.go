package config

import "time"

// Default values for configuration fields.
const (
	// Server defaults
	DefaultListenAddress   = "127.0.0.1:8080"
	DefaultReadTimeout     = 10 * time.Second
	DefaultWriteTimeout    = 10 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 15 * time.Second
	DefaultRequestTimeout  = 30 * time.Second
	DefaultKeyHeader       = "X-Tenant-ID"
	DefaultTLSMinVersion   = "1.3"
	DefaultTLSReload       = 5 * time.Minute
	DefaultTLSClientAuth   = "require"
	DefaultAuthHeader      = "Authorization"

	// Limits defaults: 10 requests per second per key.
	DefaultPolicyName   = "default"
	DefaultPolicyLimit  = 10
	DefaultPolicyWindow = time.Second
	DefaultPolicyStamp  = "completion"
	DefaultPolicyAction = "block"
	DefaultQueueTimeout = 5 * time.Second
	DefaultQueueDepth   = 100

	// Journal defaults
	DefaultJournalBackend         = "memory"
	DefaultJournalAsyncBuffer     = 1000
	DefaultJournalRetention       = 24 * time.Hour
	DefaultJournalCleanupSchedule = "@hourly"
	DefaultSQLitePath             = "data/turnstile.db"
	DefaultSQLiteDriver           = "sqlite"
	DefaultSQLiteBusyTimeout      = 5 * time.Second
	DefaultRedisAddress           = "localhost:6379"
	DefaultRedisPrefix            = "turnstile:journal"
	DefaultRedisTTL               = 24 * time.Hour

	// Telemetry defaults
	DefaultLogLevel           = "info"
	DefaultLogFormat          = "json"
	DefaultMetricsPath        = "/metrics"
	DefaultMetricsNamespace   = "turnstile"
	DefaultTracingEndpoint    = "localhost:4317"
	DefaultTracingTimeout     = 10 * time.Second
	DefaultTracingSampler     = "ratio"
	DefaultTracingSampleRatio = 1.0
	DefaultServiceName        = "turnstile"
	DefaultLivenessPath       = "/health"
	DefaultReadinessPath      = "/ready"
	DefaultHealthCheckTimeout = 2 * time.Second
)

// NewDefaultConfig returns a configuration with every default applied.
func NewDefaultConfig() *Config {
	cfg := &Config{
		Telemetry: TelemetryConfig{
			Metrics: MetricsConfig{Enabled: true},
		},
	}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills every zero-valued field with its default.
// Fields set explicitly in the file are left alone.
func ApplyDefaults(cfg *Config) {
	applyServerDefaults(&cfg.Server)
	applyLimitsDefaults(&cfg.Limits)
	applyJournalDefaults(&cfg.Journal)
	applyTelemetryDefaults(&cfg.Telemetry)
}

func applyServerDefaults(s *ServerConfig) {
	if s.ListenAddress == "" {
		s.ListenAddress = DefaultListenAddress
	}
	if s.ReadTimeout == 0 {
		s.ReadTimeout = DefaultReadTimeout
	}
	if s.WriteTimeout == 0 {
		s.WriteTimeout = DefaultWriteTimeout
	}
	if s.IdleTimeout == 0 {
		s.IdleTimeout = DefaultIdleTimeout
	}
	if s.ShutdownTimeout == 0 {
		s.ShutdownTimeout = DefaultShutdownTimeout
	}
	if s.RequestTimeout == 0 {
		s.RequestTimeout = DefaultRequestTimeout
	}
	if s.KeyHeader == "" {
		s.KeyHeader = DefaultKeyHeader
	}
	if s.TLS.MinVersion == "" {
		s.TLS.MinVersion = DefaultTLSMinVersion
	}
	if s.TLS.ReloadInterval == 0 {
		s.TLS.ReloadInterval = DefaultTLSReload
	}
	if s.TLS.ClientAuth == "" {
		s.TLS.ClientAuth = DefaultTLSClientAuth
	}
	if s.Auth.Header == "" {
		s.Auth.Header = DefaultAuthHeader
	}
}

func applyLimitsDefaults(l *LimitsConfig) {
	if len(l.Policies) == 0 {
		l.Policies = map[string]PolicyConfig{
			DefaultPolicyName: {},
		}
	}

	for name, p := range l.Policies {
		if p.Limit == 0 {
			p.Limit = DefaultPolicyLimit
		}
		if p.Window == 0 {
			p.Window = DefaultPolicyWindow
		}
		if p.Stamp == "" {
			p.Stamp = DefaultPolicyStamp
		}
		if p.Action == "" {
			p.Action = DefaultPolicyAction
		}
		if p.QueueTimeout == 0 {
			p.QueueTimeout = DefaultQueueTimeout
		}
		if p.QueueDepth == 0 {
			p.QueueDepth = DefaultQueueDepth
		}
		l.Policies[name] = p
	}

	if l.DefaultPolicy == "" {
		if _, ok := l.Policies[DefaultPolicyName]; ok || len(l.Policies) != 1 {
			l.DefaultPolicy = DefaultPolicyName
		} else {
			for name := range l.Policies {
				l.DefaultPolicy = name
			}
		}
	}
}

func applyJournalDefaults(j *JournalConfig) {
	if j.Backend == "" {
		j.Backend = DefaultJournalBackend
	}
	if j.AsyncBuffer == 0 {
		j.AsyncBuffer = DefaultJournalAsyncBuffer
	}
	if j.Retention == 0 {
		j.Retention = DefaultJournalRetention
	}
	if j.CleanupSchedule == "" {
		j.CleanupSchedule = DefaultJournalCleanupSchedule
	}
	if j.SQLite.Path == "" {
		j.SQLite.Path = DefaultSQLitePath
	}
	if j.SQLite.Driver == "" {
		j.SQLite.Driver = DefaultSQLiteDriver
	}
	if j.SQLite.BusyTimeout == 0 {
		j.SQLite.BusyTimeout = DefaultSQLiteBusyTimeout
	}
	if j.Redis.Address == "" {
		j.Redis.Address = DefaultRedisAddress
	}
	if j.Redis.Prefix == "" {
		j.Redis.Prefix = DefaultRedisPrefix
	}
	if j.Redis.TTL == 0 {
		j.Redis.TTL = DefaultRedisTTL
	}
}

func applyTelemetryDefaults(t *TelemetryConfig) {
	if t.Logging.Level == "" {
		t.Logging.Level = DefaultLogLevel
	}
	if t.Logging.Format == "" {
		t.Logging.Format = DefaultLogFormat
	}

	if t.Metrics.Path == "" {
		t.Metrics.Path = DefaultMetricsPath
	}
	if t.Metrics.Namespace == "" {
		t.Metrics.Namespace = DefaultMetricsNamespace
	}

	if t.Tracing.Endpoint == "" {
		t.Tracing.Endpoint = DefaultTracingEndpoint
	}
	if t.Tracing.Timeout == 0 {
		t.Tracing.Timeout = DefaultTracingTimeout
	}
	if t.Tracing.Sampler == "" {
		t.Tracing.Sampler = DefaultTracingSampler
	}
	if t.Tracing.SampleRatio == 0 {
		t.Tracing.SampleRatio = DefaultTracingSampleRatio
	}
	if t.Tracing.ServiceName == "" {
		t.Tracing.ServiceName = DefaultServiceName
	}

	if t.Health.LivenessPath == "" {
		t.Health.LivenessPath = DefaultLivenessPath
	}
	if t.Health.ReadinessPath == "" {
		t.Health.ReadinessPath = DefaultReadinessPath
	}
	if t.Health.CheckTimeout == 0 {
		t.Health.CheckTimeout = DefaultHealthCheckTimeout
	}
}
