package config

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func validConfig() *Config {
	return NewDefaultConfig()
}

func TestValidate_Default(t *testing.T) {
	if err := Validate(validConfig()); err != nil {
		t.Errorf("Expected default config to be valid, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantField string
	}{
		{
			name:      "empty listen address",
			mutate:    func(c *Config) { c.Server.ListenAddress = "" },
			wantField: "server.listen_address",
		},
		{
			name:      "negative delay",
			mutate:    func(c *Config) { c.Server.SimulatedDelay = -time.Second },
			wantField: "server.simulated_delay",
		},
		{
			name:      "negative max in flight",
			mutate:    func(c *Config) { c.Server.MaxInFlight = -1 },
			wantField: "server.max_in_flight",
		},
		{
			name: "tls without files",
			mutate: func(c *Config) {
				c.Server.TLS.Enabled = true
			},
			wantField: "server.tls",
		},
		{
			name: "tls 1.1",
			mutate: func(c *Config) {
				c.Server.TLS = TLSConfig{Enabled: true, CertFile: "a", KeyFile: "b", MinVersion: "1.1", ClientAuth: "require"}
			},
			wantField: "server.tls.min_version",
		},
		{
			name: "identity without client ca",
			mutate: func(c *Config) {
				c.Server.TLS = TLSConfig{Enabled: true, CertFile: "a", KeyFile: "b", MinVersion: "1.3", ClientAuth: "require", IdentitySource: "subject.CN"}
			},
			wantField: "server.tls.identity_source",
		},
		{
			name: "auth without keys",
			mutate: func(c *Config) {
				c.Server.Auth.Enabled = true
			},
			wantField: "server.auth.keys",
		},
		{
			name: "duplicate api key",
			mutate: func(c *Config) {
				c.Server.Auth.Enabled = true
				c.Server.Auth.Keys = []APIKeyConfig{{Key: "k1"}, {Key: "k1"}}
			},
			wantField: "server.auth.keys[1]",
		},
		{
			name:      "zero limit",
			mutate:    func(c *Config) { setPolicy(c, "default", func(p *PolicyConfig) { p.Limit = 0 }) },
			wantField: "limits.policies.default.limit",
		},
		{
			name:      "zero window",
			mutate:    func(c *Config) { setPolicy(c, "default", func(p *PolicyConfig) { p.Window = 0 }) },
			wantField: "limits.policies.default.window",
		},
		{
			name:      "unknown stamp",
			mutate:    func(c *Config) { setPolicy(c, "default", func(p *PolicyConfig) { p.Stamp = "arrival" }) },
			wantField: "limits.policies.default.stamp",
		},
		{
			name:      "unknown action",
			mutate:    func(c *Config) { setPolicy(c, "default", func(p *PolicyConfig) { p.Action = "drop" }) },
			wantField: "limits.policies.default.action",
		},
		{
			name: "queue without timeout",
			mutate: func(c *Config) {
				setPolicy(c, "default", func(p *PolicyConfig) { p.Action = "queue"; p.QueueTimeout = 0 })
			},
			wantField: "limits.policies.default.queue_timeout",
		},
		{
			name:      "relative route",
			mutate:    func(c *Config) { setPolicy(c, "default", func(p *PolicyConfig) { p.Routes = []string{"v1"} }) },
			wantField: "limits.policies.default.routes[0]",
		},
		{
			name: "shared route",
			mutate: func(c *Config) {
				setPolicy(c, "default", func(p *PolicyConfig) { p.Routes = []string{"/v1"} })
				c.Limits.Policies["other"] = PolicyConfig{
					Limit: 1, Window: time.Second, Stamp: "completion", Action: "block", Routes: []string{"/v1"},
				}
			},
			wantField: "limits.policies.other.routes[0]",
		},
		{
			name:      "missing default policy",
			mutate:    func(c *Config) { c.Limits.DefaultPolicy = "ghost" },
			wantField: "limits.default_policy",
		},
		{
			name:      "bad sweep schedule",
			mutate:    func(c *Config) { c.Limits.SweepSchedule = "every minute" },
			wantField: "limits.sweep_schedule",
		},
		{
			name:      "unknown backend",
			mutate:    func(c *Config) { c.Journal.Backend = "postgres" },
			wantField: "journal.backend",
		},
		{
			name:      "unknown sqlite driver",
			mutate:    func(c *Config) { c.Journal.Backend = "sqlite"; c.Journal.SQLite.Driver = "pgx" },
			wantField: "journal.sqlite.driver",
		},
		{
			name:      "bad cleanup schedule",
			mutate:    func(c *Config) { c.Journal.CleanupSchedule = "@sometimes" },
			wantField: "journal.cleanup_schedule",
		},
		{
			name:      "bad log level",
			mutate:    func(c *Config) { c.Telemetry.Logging.Level = "trace" },
			wantField: "telemetry.logging.level",
		},
		{
			name:      "bad sample ratio",
			mutate:    func(c *Config) { c.Telemetry.Tracing.SampleRatio = 1.5 },
			wantField: "telemetry.tracing.sample_ratio",
		},
		{
			name:      "bad metrics path",
			mutate:    func(c *Config) { c.Telemetry.Metrics.Path = "metrics" },
			wantField: "telemetry.metrics.path",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := Validate(cfg)
			if err == nil {
				t.Fatal("Expected validation error")
			}

			var verr ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Expected ValidationError, got %T", err)
			}
			found := false
			for _, fe := range verr.Errors {
				if fe.Field == tt.wantField {
					found = true
				}
			}
			if !found {
				t.Errorf("Expected error on %s, got %v", tt.wantField, err)
			}
		})
	}
}

func TestValidationError_Format(t *testing.T) {
	single := ValidationError{Errors: []FieldError{{Field: "a", Message: "bad"}}}
	if single.Error() != "configuration validation failed: a: bad" {
		t.Errorf("Unexpected single error %q", single.Error())
	}

	multi := ValidationError{Errors: []FieldError{{Field: "a", Message: "bad"}, {Field: "b", Message: "worse"}}}
	if !strings.Contains(multi.Error(), "with 2 errors") || !strings.Contains(multi.Error(), "  - b: worse") {
		t.Errorf("Unexpected multi error %q", multi.Error())
	}
}

func setPolicy(c *Config, name string, fn func(*PolicyConfig)) {
	p := c.Limits.Policies[name]
	fn(&p)
	c.Limits.Policies[name] = p
}
