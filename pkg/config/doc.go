// Package config provides configuration management for turnstile.
//
// Configuration is read from a YAML file, completed with defaults, optionally
// overridden from the environment and validated before use.
//
// # Configuration Loading
//
//  1. From a YAML file only:
//     cfg, err := config.LoadConfig("turnstile.yaml")
//
//  2. From a YAML file with environment variable overrides:
//     cfg, err := config.LoadConfigWithEnvOverrides("turnstile.yaml")
//
// # Environment Variable Overrides
//
// Environment variables follow the naming convention TURNSTILE_SECTION_FIELD:
//
//   - TURNSTILE_SERVER_LISTEN_ADDRESS overrides server.listen_address
//   - TURNSTILE_LIMITS_POLICIES_DEFAULT_LIMIT overrides limits.policies.default.limit
//   - TURNSTILE_TELEMETRY_LOGGING_LEVEL overrides telemetry.logging.level
//
// # Configuration Precedence
//
//  1. Default values (defaults.go)
//  2. Values from the YAML file
//  3. Environment variable overrides
//  4. Validation (fails fast if invalid)
//
// With no policies configured, a single "default" policy of 10 requests per
// second per key is used.
//
// # Example
//
//	server:
//	  listen_address: 127.0.0.1:8080
//	  key_header: X-Tenant-ID
//	limits:
//	  default_policy: default
//	  sweep_schedule: "@every 5m"
//	  policies:
//	    default:
//	      limit: 10
//	      window: 1s
//	    search:
//	      limit: 100
//	      window: 1m
//	      stamp: submission
//	      action: queue
//	      queue_timeout: 2s
//	      routes: ["/v1/search"]
//
// # Singleton Pattern
//
//	if err := config.Initialize("turnstile.yaml"); err != nil {
//	    log.Fatal(err)
//	}
//	cfg := config.GetConfig()
//
// # Hot Reload
//
// Watcher observes the file with fsnotify and passes each configuration that
// loads and validates to a callback; invalid edits are logged and ignored.
package config
