package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{name: "valid JSON config", config: Config{Level: "info", Format: "json"}},
		{name: "valid text config", config: Config{Level: "debug", Format: "text"}},
		{name: "valid console config", config: Config{Level: "WARN", Format: "console", RedactKeys: true}},
		{name: "defaults", config: Config{}},
		{name: "invalid log level", config: Config{Level: "verbose"}, wantErr: true},
		{name: "invalid format", config: Config{Format: "xml"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.config.Writer = &bytes.Buffer{}
			logger, err := New(tt.config)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && logger == nil {
				t.Fatal("New() returned nil logger")
			}
		})
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	buf := &bytes.Buffer{}
	logger, _ := New(Config{Level: "warn", Format: "json", Writer: buf})

	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message")
	logger.Error("error message")

	output := buf.String()
	if strings.Contains(output, "debug message") || strings.Contains(output, "info message") {
		t.Errorf("Expected debug/info to be filtered, got %s", output)
	}
	if !strings.Contains(output, "warn message") || !strings.Contains(output, "error message") {
		t.Errorf("Expected warn/error in output, got %s", output)
	}
	if logger.Enabled(slog.LevelInfo) {
		t.Error("Expected info to be disabled")
	}
}

func TestLogger_ContextFields(t *testing.T) {
	buf := &bytes.Buffer{}
	logger, _ := New(Config{Level: "info", Format: "json", Writer: buf})

	ctx := WithRequestID(context.Background(), "req-123")
	ctx = WithTenant(ctx, "bob")
	ctx = WithPolicy(ctx, "default")

	logger.InfoContext(ctx, "admitted", "remaining", 9)

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("Failed to parse log output: %v", err)
	}
	if record["request_id"] != "req-123" {
		t.Errorf("Expected request_id req-123, got %v", record["request_id"])
	}
	if record["tenant"] != "bob" {
		t.Errorf("Expected tenant bob, got %v", record["tenant"])
	}
	if record["policy"] != "default" {
		t.Errorf("Expected policy default, got %v", record["policy"])
	}
	if record["remaining"] != float64(9) {
		t.Errorf("Expected remaining 9, got %v", record["remaining"])
	}
}

func TestLogger_RedactKeys(t *testing.T) {
	buf := &bytes.Buffer{}
	logger, _ := New(Config{Level: "info", Format: "json", RedactKeys: true, Writer: buf})

	ctx := WithTenant(context.Background(), "alice@example.com")
	logger.InfoContext(ctx, "rejected", "detail", "client 10.1.2.3 sent Bearer abc.def")

	output := buf.String()
	if strings.Contains(output, "alice@example.com") {
		t.Errorf("Expected tenant key to be hashed, got %s", output)
	}
	if !strings.Contains(output, HashKey("alice@example.com")) {
		t.Errorf("Expected hashed tenant key in output, got %s", output)
	}
	if strings.Contains(output, "10.1.2.3") || strings.Contains(output, "abc.def") {
		t.Errorf("Expected IP and token to be masked, got %s", output)
	}
}

func TestLogger_With(t *testing.T) {
	buf := &bytes.Buffer{}
	logger, _ := New(Config{Level: "info", Format: "text", Writer: buf})

	logger.WithComponent("gate").With("policy", "search").Info("ready")

	output := buf.String()
	if !strings.Contains(output, "component=gate") || !strings.Contains(output, "policy=search") {
		t.Errorf("Expected component and policy fields, got %s", output)
	}
}

func TestLogger_WithContextEmpty(t *testing.T) {
	logger, _ := New(Config{Writer: &bytes.Buffer{}})
	if logger.WithContext(context.Background()) != logger {
		t.Error("Expected WithContext without fields to return the same logger")
	}
}

func TestNewNop(t *testing.T) {
	logger := NewNop()
	logger.Error("dropped")
	if logger.Enabled(slog.LevelError) {
		t.Error("Expected nop logger to be disabled at every level")
	}
}

func TestHashKey_Stable(t *testing.T) {
	if HashKey("bob") != HashKey("bob") {
		t.Error("Expected HashKey to be deterministic")
	}
	if HashKey("bob") == HashKey("alice") {
		t.Error("Expected different keys to hash differently")
	}
	if !strings.HasPrefix(HashKey("bob"), "key:") || len(HashKey("bob")) != len("key:")+8 {
		t.Errorf("Unexpected hash format %q", HashKey("bob"))
	}
}

func TestRedactor_RedactArgs(t *testing.T) {
	r := NewRedactor()

	args := r.RedactArgs("tenant", "bob", "count", 3, "note", "mail me at bob@example.com", "odd")

	if args[1] != HashKey("bob") {
		t.Errorf("Expected tenant hashed, got %v", args[1])
	}
	if args[3] != 3 {
		t.Errorf("Expected non-string value untouched, got %v", args[3])
	}
	if strings.Contains(args[5].(string), "bob@example.com") {
		t.Errorf("Expected email masked, got %v", args[5])
	}
	if args[6] != "odd" {
		t.Errorf("Expected trailing key untouched, got %v", args[6])
	}
}

func BenchmarkLogger_InfoDisabled(b *testing.B) {
	logger, _ := New(Config{Level: "error", Writer: &bytes.Buffer{}})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		logger.Info("admitted", "tenant", "bob")
	}
}
