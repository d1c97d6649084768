package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleYAML = `
server:
  listen_address: 0.0.0.0:9090
  simulated_delay: 200ms
  max_in_flight: 64
limits:
  default_policy: users
  sweep_schedule: "@every 5m"
  policies:
    users:
      limit: 10
      window: 1s
    search:
      limit: 100
      window: 1m
      stamp: submission
      action: queue
      queue_timeout: 2s
      routes: ["/v1/search"]
journal:
  enabled: true
  backend: sqlite
  sqlite:
    path: /tmp/journal.db
telemetry:
  logging:
    level: debug
    format: text
  metrics:
    enabled: false
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "turnstile.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Server.ListenAddress != "0.0.0.0:9090" {
		t.Errorf("Expected listen address 0.0.0.0:9090, got %s", cfg.Server.ListenAddress)
	}
	if cfg.Server.SimulatedDelay != 200*time.Millisecond {
		t.Errorf("Expected simulated delay 200ms, got %v", cfg.Server.SimulatedDelay)
	}
	if cfg.Server.ReadTimeout != DefaultReadTimeout {
		t.Errorf("Expected default read timeout, got %v", cfg.Server.ReadTimeout)
	}

	search := cfg.Limits.Policies["search"]
	if search.Limit != 100 || search.Window != time.Minute {
		t.Errorf("Unexpected search policy %+v", search)
	}
	if search.Stamp != "submission" || search.Action != "queue" || search.QueueTimeout != 2*time.Second {
		t.Errorf("Unexpected search policy %+v", search)
	}
	if search.QueueDepth != DefaultQueueDepth {
		t.Errorf("Expected default queue depth, got %d", search.QueueDepth)
	}

	users := cfg.Limits.Policies["users"]
	if users.Stamp != DefaultPolicyStamp || users.Action != DefaultPolicyAction {
		t.Errorf("Expected policy defaults, got %+v", users)
	}

	if cfg.Journal.SQLite.Driver != DefaultSQLiteDriver {
		t.Errorf("Expected default sqlite driver, got %s", cfg.Journal.SQLite.Driver)
	}
	if cfg.Telemetry.Metrics.Enabled {
		t.Error("Expected metrics disabled by file")
	}
	if cfg.Telemetry.Metrics.Path != DefaultMetricsPath {
		t.Errorf("Expected default metrics path, got %s", cfg.Telemetry.Metrics.Path)
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantMsg string
	}{
		{name: "invalid yaml", content: "server: [", wantMsg: "failed to parse"},
		{name: "invalid policy", content: "limits:\n  policies:\n    p:\n      limit: -1\n", wantMsg: "limits.policies.p.limit"},
		{name: "unknown default policy", content: "limits:\n  default_policy: nope\n", wantMsg: "limits.default_policy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("Expected error")
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("Expected error containing %q, got %v", tt.wantMsg, err)
			}
		})
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestLoadConfig_ExampleFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join("..", "..", "examples", "config.yaml"))
	if err != nil {
		t.Fatalf("examples/config.yaml does not load: %v", err)
	}

	if cfg.Limits.DefaultPolicy != "api" {
		t.Errorf("DefaultPolicy = %q, want api", cfg.Limits.DefaultPolicy)
	}
	if got := cfg.Limits.Policies["canary"].Stamp; got != DefaultPolicyStamp {
		t.Errorf("canary stamp = %q, want default %q", got, DefaultPolicyStamp)
	}
	if cfg.Journal.Backend != "sqlite" {
		t.Errorf("Journal.Backend = %q, want sqlite", cfg.Journal.Backend)
	}
}

func TestParse_EmptyUsesReferencePolicy(t *testing.T) {
	cfg, err := Parse([]byte(""))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	if cfg.Limits.DefaultPolicy != DefaultPolicyName {
		t.Errorf("Expected default policy %q, got %q", DefaultPolicyName, cfg.Limits.DefaultPolicy)
	}
	p := cfg.Limits.Policies[DefaultPolicyName]
	if p.Limit != 10 || p.Window != time.Second {
		t.Errorf("Expected 10 per second, got %d per %v", p.Limit, p.Window)
	}
	if !cfg.Telemetry.Metrics.Enabled {
		t.Error("Expected metrics enabled by default")
	}
}

func TestParse_SinglePolicyBecomesDefault(t *testing.T) {
	cfg, err := Parse([]byte("limits:\n  policies:\n    only:\n      limit: 3\n"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.Limits.DefaultPolicy != "only" {
		t.Errorf("Expected sole policy to be default, got %q", cfg.Limits.DefaultPolicy)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg, _ := Parse([]byte(sampleYAML))

	env := map[string]string{
		"TURNSTILE_SERVER_LISTEN_ADDRESS":          ":7000",
		"TURNSTILE_SERVER_MAX_IN_FLIGHT":           "8",
		"TURNSTILE_SERVER_SIMULATED_DELAY":         "50ms",
		"TURNSTILE_LIMITS_POLICIES_USERS_LIMIT":    "25",
		"TURNSTILE_LIMITS_POLICIES_SEARCH_WINDOW":  "30s",
		"TURNSTILE_JOURNAL_BACKEND":                "redis",
		"TURNSTILE_JOURNAL_REDIS_DB":               "2",
		"TURNSTILE_TELEMETRY_LOGGING_LEVEL":        "error",
		"TURNSTILE_TELEMETRY_METRICS_ENABLED":      "true",
		"TURNSTILE_TELEMETRY_TRACING_SAMPLE_RATIO": "0.25",
		"TURNSTILE_SERVER_READ_TIMEOUT":            "not-a-duration",
	}
	applyEnvOverrides(cfg, func(k string) string { return env[k] })

	if cfg.Server.ListenAddress != ":7000" {
		t.Errorf("Expected :7000, got %s", cfg.Server.ListenAddress)
	}
	if cfg.Server.MaxInFlight != 8 {
		t.Errorf("Expected max in flight 8, got %d", cfg.Server.MaxInFlight)
	}
	if cfg.Server.SimulatedDelay != 50*time.Millisecond {
		t.Errorf("Expected 50ms delay, got %v", cfg.Server.SimulatedDelay)
	}
	if cfg.Limits.Policies["users"].Limit != 25 {
		t.Errorf("Expected users limit 25, got %d", cfg.Limits.Policies["users"].Limit)
	}
	if cfg.Limits.Policies["search"].Window != 30*time.Second {
		t.Errorf("Expected search window 30s, got %v", cfg.Limits.Policies["search"].Window)
	}
	if cfg.Journal.Backend != "redis" || cfg.Journal.Redis.DB != 2 {
		t.Errorf("Unexpected journal %+v", cfg.Journal)
	}
	if cfg.Telemetry.Logging.Level != "error" || !cfg.Telemetry.Metrics.Enabled {
		t.Errorf("Unexpected telemetry %+v", cfg.Telemetry)
	}
	if cfg.Telemetry.Tracing.SampleRatio != 0.25 {
		t.Errorf("Expected sample ratio 0.25, got %v", cfg.Telemetry.Tracing.SampleRatio)
	}
	if cfg.Server.ReadTimeout != DefaultReadTimeout {
		t.Errorf("Expected unparsable override to be ignored, got %v", cfg.Server.ReadTimeout)
	}
}

func TestLoadConfigWithEnvOverrides(t *testing.T) {
	t.Setenv("TURNSTILE_LIMITS_POLICIES_USERS_LIMIT", "0")

	_, err := LoadConfigWithEnvOverrides(writeConfig(t, sampleYAML))
	if err == nil {
		t.Fatal("Expected override to be validated")
	}
	if !strings.Contains(err.Error(), "limits.policies.users.limit") {
		t.Errorf("Expected users limit error, got %v", err)
	}
}
