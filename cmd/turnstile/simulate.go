package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/turnstile/pkg/cli"
	"mercator-hq/turnstile/pkg/config"
	"mercator-hq/turnstile/pkg/limits/ratelimit"
	"mercator-hq/turnstile/pkg/simulate"
)

var simulateFlags struct {
	target    string
	policy    string
	keyHeader string
	keys      []string
	requests  int
	delay     time.Duration
	rate      float64
	burst     int
	limit     int
	window    time.Duration
	format    string
	expect    int
	progress  bool
	results   bool
}

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Fire concurrent bursts at a gate",
	Long: `Fire a concurrent burst of requests per key and report how many were
admitted and rejected.

Without --target the burst hits an in-process gate built from --limit and
--window. With --target it hits a running decision service over HTTP.

Every request sleeps --delay before asking for admission, so all requests of a
burst arrive at the gate at roughly the same time.

Examples:
  # Fifteen requests against ten per second: ten admitted, five rejected
  turnstile simulate --requests 15 --limit 10 --window 1s --expect 10

  # Two tenants are limited independently
  turnstile simulate --keys bob,alice --requests 15 --expect 10

  # Against a running service, paced at 100 requests per second
  turnstile simulate --target http://127.0.0.1:8080 --keys bob --rate 100

  # Machine-readable output
  turnstile simulate --keys bob,alice --output json`,
	RunE: runSimulate,
}

func init() {
	rootCmd.AddCommand(simulateCmd)

	f := simulateCmd.Flags()
	f.StringVar(&simulateFlags.target, "target", "", "decision service base URL (default: in-process gate)")
	f.StringVar(&simulateFlags.policy, "policy", "", "policy to ask the decision service for")
	f.StringVar(&simulateFlags.keyHeader, "key-header", config.DefaultKeyHeader, "header carrying the tenant key")
	f.StringSliceVar(&simulateFlags.keys, "keys", nil, "tenant keys, comma separated (default: one anonymous key)")
	f.IntVarP(&simulateFlags.requests, "requests", "n", 15, "requests per key")
	f.DurationVar(&simulateFlags.delay, "delay", 200*time.Millisecond, "delay every request sleeps before asking")
	f.Float64Var(&simulateFlags.rate, "rate", 0, "pace requests to this many per second (0: unpaced)")
	f.IntVar(&simulateFlags.burst, "burst", 1, "pacing burst")
	f.IntVar(&simulateFlags.limit, "limit", config.DefaultPolicyLimit, "in-process gate limit")
	f.DurationVar(&simulateFlags.window, "window", config.DefaultPolicyWindow, "in-process gate window")
	f.StringVarP(&simulateFlags.format, "output", "o", "text", "output format: text, json, yaml, csv")
	f.IntVar(&simulateFlags.expect, "expect", -1, "exit non-zero unless every key is admitted exactly this many times")
	f.BoolVar(&simulateFlags.progress, "progress", false, "show a progress bar on stderr")
	f.BoolVar(&simulateFlags.results, "results", false, "print every request's outcome (text output)")
}

func runSimulate(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseOutputFormat(simulateFlags.format)
	if err != nil {
		return err
	}

	target, err := simulateTarget()
	if err != nil {
		return err
	}

	var progress cli.ProgressReporter = cli.NopProgress{}
	if simulateFlags.progress {
		progress = cli.NewProgressReporter(os.Stderr)
	}

	ctx, stop := cli.SetupSignalHandler(cmd.Context())
	defer stop()

	report, err := simulate.Run(ctx, simulate.Config{
		Keys:     simulateFlags.keys,
		Requests: simulateFlags.requests,
		Delay:    simulateFlags.delay,
		Rate:     simulateFlags.rate,
		Burst:    simulateFlags.burst,
	}, target, progress)
	if err != nil {
		if errors.Is(err, simulate.ErrInvalidConfig) {
			return cli.NewConfigError("simulate", err.Error())
		}
		return cli.NewCommandError("simulate", err)
	}

	out := cmd.OutOrStdout()
	if err := writeReport(out, format, report); err != nil {
		return cli.NewCommandError("simulate", err)
	}

	if simulateFlags.expect >= 0 {
		if err := report.Expect(simulateFlags.expect); err != nil {
			return cli.NewCommandError("simulate", err).WithCode(cli.ExitMismatch)
		}
	}
	return nil
}

func simulateTarget() (simulate.Target, error) {
	if simulateFlags.target != "" {
		target, err := simulate.NewHTTPTarget(simulateFlags.target, simulateFlags.policy,
			simulate.WithKeyHeader(simulateFlags.keyHeader))
		if err != nil {
			return nil, cli.NewConfigError("target", err.Error())
		}
		return target, nil
	}

	gate, err := ratelimit.NewGate[string](simulateFlags.limit, simulateFlags.window)
	if err != nil {
		return nil, cli.NewConfigError("limit", err.Error())
	}
	return simulate.NewGateTarget(gate), nil
}

// writeReport prints the report. Text output lists the per-request lines
// (with --results) followed by the summary table; csv prints the summary
// table; json and yaml print the whole report.
func writeReport(w io.Writer, format cli.OutputFormat, report *simulate.Report) error {
	formatter := cli.NewFormatter(format)

	if format != cli.FormatText {
		return formatter.FormatTo(w, report)
	}

	if simulateFlags.results {
		for _, r := range report.Results {
			outcome := "rejected"
			switch {
			case r.Error != "":
				outcome = "error: " + r.Error
			case r.Admitted():
				outcome = "admitted"
			}
			fmt.Fprintf(w, "%-12s #%-4d %3d %-8s %s\n", displayKey(r.Key), r.Seq, r.Status, r.Latency.Round(time.Millisecond), outcome)
		}
		fmt.Fprintln(w)
	}

	if err := formatter.FormatTo(w, report); err != nil {
		return err
	}
	fmt.Fprintf(w, "\n%d requests in %s\n", len(report.Results), report.Duration.Round(time.Millisecond))
	return nil
}

func displayKey(key string) string {
	if key == "" {
		return "(none)"
	}
	return key
}
