package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"syscall"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

type testTable struct{}

func (testTable) Header() []string { return []string{"KEY", "ADMITTED", "REJECTED"} }
func (testTable) Rows() [][]string {
	return [][]string{
		{"alice", "10", "5"},
		{"bob", "10", "5"},
	}
}

// ============================================================================
// Output
// ============================================================================

func TestParseOutputFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    OutputFormat
		wantErr bool
	}{
		{"", FormatText, false},
		{"text", FormatText, false},
		{"JSON", FormatJSON, false},
		{"yaml", FormatYAML, false},
		{"csv", FormatCSV, false},
		{"xml", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseOutputFormat(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseOutputFormat(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseOutputFormat(%q) = %q, want %q", tt.in, got, tt.want)
			}
			if tt.wantErr && ExitCode(err) != ExitConfig {
				t.Errorf("expected config exit code, got %d", ExitCode(err))
			}
		})
	}
}

func TestTextFormatter(t *testing.T) {
	var buf bytes.Buffer
	if err := (&TextFormatter{}).FormatTo(&buf, "test message"); err != nil {
		t.Fatalf("FormatTo() error = %v", err)
	}
	if buf.String() != "test message\n" {
		t.Errorf("FormatTo() = %q", buf.String())
	}
}

func TestTextFormatterTable(t *testing.T) {
	var buf bytes.Buffer
	if err := (&TextFormatter{}).FormatTo(&buf, testTable{}); err != nil {
		t.Fatalf("FormatTo() error = %v", err)
	}

	want := "KEY    ADMITTED  REJECTED\n" +
		"alice  10        5\n" +
		"bob    10        5\n"
	if buf.String() != want {
		t.Errorf("FormatTo() =\n%s\nwant\n%s", buf.String(), want)
	}
}

func TestJSONFormatter(t *testing.T) {
	data := map[string]int{"admitted": 10, "rejected": 5}

	for _, indent := range []bool{false, true} {
		t.Run(fmt.Sprintf("indent=%v", indent), func(t *testing.T) {
			var buf bytes.Buffer
			if err := (&JSONFormatter{Indent: indent}).FormatTo(&buf, data); err != nil {
				t.Fatalf("FormatTo() error = %v", err)
			}

			var got map[string]int
			if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
				t.Fatalf("invalid JSON %q: %v", buf.String(), err)
			}
			if got["admitted"] != 10 || got["rejected"] != 5 {
				t.Errorf("round trip = %v", got)
			}
			if indent != strings.Contains(buf.String(), "\n  ") {
				t.Errorf("indentation mismatch in %q", buf.String())
			}
		})
	}
}

func TestYAMLFormatter(t *testing.T) {
	type summary struct {
		Key      string `yaml:"key"`
		Admitted int    `yaml:"admitted"`
	}

	var buf bytes.Buffer
	if err := NewFormatter(FormatYAML).FormatTo(&buf, []summary{{"alice", 10}}); err != nil {
		t.Fatalf("FormatTo() error = %v", err)
	}

	var got []summary
	if err := yaml.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("invalid YAML %q: %v", buf.String(), err)
	}
	if len(got) != 1 || got[0].Key != "alice" || got[0].Admitted != 10 {
		t.Errorf("round trip = %+v", got)
	}
}

func TestCSVFormatter(t *testing.T) {
	var buf bytes.Buffer
	if err := NewFormatter(FormatCSV).FormatTo(&buf, testTable{}); err != nil {
		t.Fatalf("FormatTo() error = %v", err)
	}

	want := "KEY,ADMITTED,REJECTED\nalice,10,5\nbob,10,5\n"
	if buf.String() != want {
		t.Errorf("FormatTo() = %q, want %q", buf.String(), want)
	}

	if err := NewFormatter(FormatCSV).FormatTo(&buf, "not a table"); err == nil {
		t.Error("expected error for non-tabular data")
	}
}

func TestNewFormatter(t *testing.T) {
	tests := []struct {
		format OutputFormat
		want   string
	}{
		{FormatText, "*cli.TextFormatter"},
		{FormatJSON, "*cli.JSONFormatter"},
		{FormatYAML, "*cli.YAMLFormatter"},
		{FormatCSV, "*cli.CSVFormatter"},
		{"unknown", "*cli.TextFormatter"},
	}
	for _, tt := range tests {
		if got := fmt.Sprintf("%T", NewFormatter(tt.format)); got != tt.want {
			t.Errorf("NewFormatter(%q) = %s, want %s", tt.format, got, tt.want)
		}
	}
}

// ============================================================================
// Errors
// ============================================================================

func TestExitCode(t *testing.T) {
	base := errors.New("boom")

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"plain", base, ExitFailure},
		{"config", NewConfigError("limits.policies.api.limit", "must be positive"), ExitConfig},
		{"wrapped config", fmt.Errorf("load: %w", NewConfigError("x", "y")), ExitConfig},
		{"command default", NewCommandError("run", base), ExitFailure},
		{"command with code", NewCommandError("simulate", base).WithCode(ExitMismatch), ExitMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestCommandErrorUnwrap(t *testing.T) {
	base := errors.New("boom")
	err := NewCommandError("run", base)
	if !errors.Is(err, base) {
		t.Error("expected CommandError to unwrap to its cause")
	}
	if err.Error() != "command run failed: boom" {
		t.Errorf("Error() = %q", err.Error())
	}
}

// ============================================================================
// Progress
// ============================================================================

func TestSimpleProgress(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgressReporter(&buf)

	p.Start(4)
	p.Observe(true)
	p.Observe(true)
	p.Observe(false)
	p.Observe(true)
	p.Finish()

	out := buf.String()
	if !strings.Contains(out, "4/4 admitted=3 rejected=1") {
		t.Errorf("unexpected progress output %q", out)
	}
	if !strings.HasSuffix(out, "\n") {
		t.Error("Finish should end the line")
	}
}

func TestSimpleProgressZeroTotal(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgressReporter(&buf)
	p.Start(0)
	p.Observe(true)
	if buf.Len() != 0 {
		t.Errorf("expected no output for zero total, got %q", buf.String())
	}
}

// ============================================================================
// Signals
// ============================================================================

func TestSetupSignalHandler(t *testing.T) {
	ctx, stop := SetupSignalHandler(context.Background())
	defer stop()

	if err := syscall.Kill(syscall.Getpid(), syscall.SIGTERM); err != nil {
		t.Fatalf("kill: %v", err)
	}

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("context not cancelled by SIGTERM")
	}
}

func TestSetupSignalHandlerParentCancel(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	ctx, stop := SetupSignalHandler(parent)
	defer stop()

	cancel()
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("context not cancelled with its parent")
	}
}

func TestReloadSignals(t *testing.T) {
	ch, stop := ReloadSignals()
	defer stop()

	if err := syscall.Kill(syscall.Getpid(), syscall.SIGHUP); err != nil {
		t.Fatalf("kill: %v", err)
	}

	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("SIGHUP not delivered")
	}
}
