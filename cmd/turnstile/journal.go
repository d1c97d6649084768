package main

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/turnstile/pkg/cli"
	"mercator-hq/turnstile/pkg/limits/storage"
)

var journalFlags struct {
	backend   string
	policy    string
	key       string
	since     time.Duration
	until     string
	limit     int
	format    string
	olderThan time.Duration
}

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Inspect the decision journal",
	Long: `Query, summarise and prune recorded admission decisions.

The journal backend and its settings come from the configuration file; use
--backend to override the backend name.

Subcommands:
  query    - List recorded decisions, newest first
  summary  - Admitted and rejected totals per policy and key
  cleanup  - Delete decisions older than a cutoff`,
}

var journalQueryCmd = &cobra.Command{
	Use:   "query",
	Short: "List recorded decisions",
	Long: `List recorded decisions, newest first.

Examples:
  # Last hour for one tenant
  turnstile journal query --since 1h --key bob

  # Export as CSV
  turnstile journal query --policy api --limit 1000 --output csv`,
	RunE: queryJournal,
}

var journalSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Summarise recorded decisions",
	Long: `Aggregate admitted and rejected totals per policy and per key.

Examples:
  turnstile journal summary --since 24h
  turnstile journal summary --policy api --output json`,
	RunE: summarizeJournal,
}

var journalCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete old decisions",
	Long: `Delete decisions recorded before now minus --older-than.

Without --older-than the configured journal retention is used.`,
	RunE: cleanupJournal,
}

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.AddCommand(journalQueryCmd, journalSummaryCmd, journalCleanupCmd)

	journalCmd.PersistentFlags().StringVar(&journalFlags.backend, "backend", "", "backend: memory, sqlite, redis (uses config if not specified)")

	for _, c := range []*cobra.Command{journalQueryCmd, journalSummaryCmd} {
		c.Flags().StringVar(&journalFlags.policy, "policy", "", "filter by policy")
		c.Flags().StringVar(&journalFlags.key, "key", "", "filter by tenant key")
		c.Flags().DurationVar(&journalFlags.since, "since", 0, "only decisions newer than this (e.g. 1h)")
		c.Flags().StringVar(&journalFlags.until, "until", "", "only decisions before this RFC3339 time")
		c.Flags().StringVarP(&journalFlags.format, "output", "o", "text", "output format: text, json, yaml, csv")
	}
	journalQueryCmd.Flags().IntVar(&journalFlags.limit, "limit", storage.DefaultQueryLimit, "maximum number of decisions")

	journalCleanupCmd.Flags().DurationVar(&journalFlags.olderThan, "older-than", 0, "age cutoff (default: configured retention)")
}

// openJournal opens the configured journal backend.
func openJournal(ctx context.Context) (storage.Backend, time.Duration, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, 0, err
	}

	jc := cfg.Journal
	if journalFlags.backend != "" {
		jc.Backend = journalFlags.backend
	}
	if jc.Backend == storage.BackendMemory {
		return nil, 0, cli.NewConfigError("journal.backend", "the memory journal lives inside the server process and cannot be inspected")
	}

	backend, err := storage.Open(ctx, jc)
	if err != nil {
		return nil, 0, cli.NewCommandError("journal", err)
	}
	return backend, jc.Retention, nil
}

func journalFilter(now time.Time) (storage.Filter, error) {
	filter := storage.Filter{
		Policy: journalFlags.policy,
		Key:    journalFlags.key,
		Limit:  journalFlags.limit,
	}
	if journalFlags.since > 0 {
		filter.Since = now.Add(-journalFlags.since)
	}
	if journalFlags.until != "" {
		until, err := time.Parse(time.RFC3339, journalFlags.until)
		if err != nil {
			return storage.Filter{}, cli.NewConfigError("until", fmt.Sprintf("invalid RFC3339 time %q", journalFlags.until))
		}
		filter.Until = until
	}
	return filter, nil
}

func queryJournal(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseOutputFormat(journalFlags.format)
	if err != nil {
		return err
	}
	filter, err := journalFilter(time.Now())
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	backend, _, err := openJournal(ctx)
	if err != nil {
		return err
	}
	defer backend.Close()

	events, err := backend.Query(ctx, filter)
	if err != nil {
		return cli.NewCommandError("journal query", err)
	}

	if format == cli.FormatJSON || format == cli.FormatYAML {
		return cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), events)
	}
	return cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), eventTable(events))
}

func summarizeJournal(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseOutputFormat(journalFlags.format)
	if err != nil {
		return err
	}
	filter, err := journalFilter(time.Now())
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	backend, _, err := openJournal(ctx)
	if err != nil {
		return err
	}
	defer backend.Close()

	summary, err := backend.Summary(ctx, filter)
	if err != nil {
		return cli.NewCommandError("journal summary", err)
	}

	if format == cli.FormatJSON || format == cli.FormatYAML {
		return cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), summary)
	}
	return cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), summaryTable{summary})
}

func cleanupJournal(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	backend, retention, err := openJournal(ctx)
	if err != nil {
		return err
	}
	defer backend.Close()

	age := journalFlags.olderThan
	if age <= 0 {
		age = retention
	}
	if age <= 0 {
		return cli.NewConfigError("older-than", "no cutoff given and no retention configured")
	}

	removed, err := backend.Cleanup(ctx, time.Now().Add(-age))
	if err != nil {
		return cli.NewCommandError("journal cleanup", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Removed %d decisions older than %s\n", removed, age)
	return nil
}

type eventTable []*storage.Event

func (t eventTable) Header() []string {
	return []string{"AT", "POLICY", "KEY", "ADMITTED", "ALLOWED", "ACTION", "REQUEST ID"}
}

func (t eventTable) Rows() [][]string {
	rows := make([][]string, 0, len(t))
	for _, e := range t {
		rows = append(rows, []string{
			e.At.UTC().Format(time.RFC3339Nano),
			e.Policy,
			e.Key,
			strconv.FormatBool(e.Admitted),
			strconv.FormatBool(e.Allowed),
			orDash(e.Action),
			orDash(e.RequestID),
		})
	}
	return rows
}

// summaryTable renders the totals, then one row per policy and per key.
type summaryTable struct {
	s *storage.Summary
}

func (t summaryTable) Header() []string {
	return []string{"SCOPE", "NAME", "ADMITTED", "REJECTED"}
}

func (t summaryTable) Rows() [][]string {
	rows := [][]string{countsRow("total", "-", &t.s.Counts)}
	for _, name := range sortedKeys(t.s.ByPolicy) {
		rows = append(rows, countsRow("policy", name, t.s.ByPolicy[name]))
	}
	for _, name := range sortedKeys(t.s.ByKey) {
		rows = append(rows, countsRow("key", name, t.s.ByKey[name]))
	}
	return rows
}

func countsRow(scope, name string, c *storage.Counts) []string {
	return []string{
		scope,
		name,
		strconv.FormatInt(c.Admitted, 10),
		strconv.FormatInt(c.Rejected, 10),
	}
}

func sortedKeys(m map[string]*storage.Counts) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
