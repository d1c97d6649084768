/*
Package cli provides command-line helpers for the turnstile command.

Output Formatting:

Command results can be printed as text, JSON, YAML or CSV. Results that
implement Table render as aligned columns in text and as rows in CSV:

	formatter := cli.NewFormatter(cli.FormatJSON)
	if err := formatter.FormatTo(os.Stdout, report); err != nil {
		return err
	}

Progress Reporting:

The simulate command shows a progress line on stderr while requests are in
flight:

	progress := cli.NewProgressReporter(os.Stderr)
	progress.Start(total)
	progress.Observe(admitted)
	progress.Finish()

Signal Handling:

	ctx, stop := cli.SetupSignalHandler(context.Background())
	defer stop()

SIGHUP triggers a configuration reload in the run command (ReloadSignals).

Exit Codes:

ExitCode maps command errors to 0 (ok), 1 (failure), 2 (configuration) and
3 (simulation mismatch).
*/
package cli
