package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"mercator-hq/turnstile/pkg/cli"
	"mercator-hq/turnstile/pkg/config"
	"mercator-hq/turnstile/pkg/limits/storage"
)

// execute runs the root command with args and returns its stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	defer rootCmd.SetArgs(nil)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	origVersion, origCommit := Version, GitCommit
	Version, GitCommit = "0.1.0-test", "abc123"
	defer func() { Version, GitCommit = origVersion, origCommit }()

	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	for _, want := range []string{"Turnstile 0.1.0-test", "Git Commit: abc123", "Go Version:"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestCommandsRegistered(t *testing.T) {
	want := map[string]bool{
		"run": false, "simulate": false, "validate": false,
		"journal": false, "version": false, "completion": false,
	}
	for _, c := range rootCmd.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("command %q not registered", name)
		}
	}
}

func TestSimulateCommand(t *testing.T) {
	out, err := execute(t, "simulate",
		"--keys", "bob,alice",
		"--requests", "15",
		"--delay", "50ms",
		"--limit", "10",
		"--window", "1s",
		"--expect", "10",
		"--output", "csv",
	)
	if err != nil {
		t.Fatalf("simulate failed: %v", err)
	}
	if want := "KEY,ADMITTED,REJECTED,ERRORS\nalice,10,5,0\nbob,10,5,0\n"; out != want {
		t.Errorf("output = %q, want %q", out, want)
	}
}

func TestSimulateCommandExpectMismatch(t *testing.T) {
	_, err := execute(t, "simulate",
		"--requests", "15",
		"--delay", "10ms",
		"--limit", "10",
		"--window", "1s",
		"--expect", "9",
		"--output", "csv",
	)
	if err == nil {
		t.Fatal("expected a mismatch error")
	}
	if code := cli.ExitCode(err); code != cli.ExitMismatch {
		t.Errorf("exit code = %d, want %d", code, cli.ExitMismatch)
	}
}

func TestSimulateCommandInvalidGate(t *testing.T) {
	_, err := execute(t, "simulate", "--limit", "0", "--expect", "-1", "--output", "csv")
	if code := cli.ExitCode(err); code != cli.ExitConfig {
		t.Errorf("exit code = %d (%v), want %d", code, err, cli.ExitConfig)
	}
	// Leave the gate usable for later tests.
	simulateFlags.limit = config.DefaultPolicyLimit
}

func TestPolicyTable(t *testing.T) {
	table := policyTable{config.LimitsConfig{
		DefaultPolicy: "default",
		Policies: map[string]config.PolicyConfig{
			"api":     {Limit: 5, Window: time.Minute, Stamp: "submission", Action: "queue", Routes: []string{"/api", "/v2"}},
			"default": {Limit: 10, Window: time.Second, Stamp: "completion", Action: "block"},
		},
	}}

	rows := table.Rows()
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0][0] != "default" || rows[0][6] != "true" {
		t.Errorf("default policy should come first: %v", rows[0])
	}
	if got := strings.Join(rows[1], "|"); got != "api|5|1m0s|submission|queue|/api,/v2|false" {
		t.Errorf("api row = %q", got)
	}
}

func TestSummaryTable(t *testing.T) {
	s := storage.NewSummary()
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, e := range []*storage.Event{
		{At: at, Policy: "default", Key: "bob", Admitted: true},
		{At: at, Policy: "default", Key: "bob", Admitted: false},
		{At: at, Policy: "api", Key: "alice", Admitted: true},
	} {
		s.Add(e)
	}

	var buf bytes.Buffer
	if err := cli.NewFormatter(cli.FormatCSV).FormatTo(&buf, summaryTable{s}); err != nil {
		t.Fatalf("FormatTo failed: %v", err)
	}
	want := "SCOPE,NAME,ADMITTED,REJECTED\n" +
		"total,-,2,1\n" +
		"policy,api,1,0\n" +
		"policy,default,1,1\n" +
		"key,alice,1,0\n" +
		"key,bob,1,1\n"
	if buf.String() != want {
		t.Errorf("csv =\n%s\nwant\n%s", buf.String(), want)
	}
}

func TestEventTable(t *testing.T) {
	rows := eventTable{{
		At:       time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
		Policy:   "default",
		Key:      "bob",
		Admitted: false,
		Allowed:  true,
		Action:   "shadow",
	}}.Rows()

	if got := strings.Join(rows[0], "|"); got != "2026-01-01T12:00:00Z|default|bob|false|true|shadow|-" {
		t.Errorf("row = %q", got)
	}
}

func TestJournalFilter(t *testing.T) {
	defer func() { journalFlags.since, journalFlags.until = 0, "" }()

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	journalFlags.since = time.Hour
	journalFlags.until = "2026-01-01T11:30:00Z"

	f, err := journalFilter(now)
	if err != nil {
		t.Fatalf("journalFilter failed: %v", err)
	}
	if !f.Since.Equal(now.Add(-time.Hour)) {
		t.Errorf("Since = %v", f.Since)
	}
	if f.Until.Format(time.RFC3339) != "2026-01-01T11:30:00Z" {
		t.Errorf("Until = %v", f.Until)
	}

	journalFlags.until = "yesterday"
	if _, err := journalFilter(now); cli.ExitCode(err) != cli.ExitConfig {
		t.Errorf("expected config error for bad --until, got %v", err)
	}
}
