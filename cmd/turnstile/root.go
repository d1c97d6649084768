package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mercator-hq/turnstile/pkg/cli"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "turnstile",
	Short: "Turnstile - sliding-window admission control",
	Long: `Turnstile decides whether a request may proceed, per tenant key, under a
sliding-window limit: at most N admissions for a key within any trailing window.

It runs as an HTTP decision service (for example behind a proxy's auth_request
hook), and ships a simulator for firing concurrent bursts at it.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits with the code the error maps to.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.ExitCode(err))
	}
}

func init() {
	// Global persistent flags (available to all subcommands)
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}
