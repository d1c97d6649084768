package main

import (
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"mercator-hq/turnstile/pkg/cli"
	"mercator-hq/turnstile/pkg/config"
)

var validateFlags struct {
	format string
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long: `Load a configuration file, apply defaults and environment overrides,
and report every validation error.

On success the effective policies are printed; with --output yaml or json the
whole effective configuration is printed instead.

Examples:
  # Check the default config file
  turnstile validate

  # Show the effective configuration
  turnstile validate --config prod.yaml --output yaml`,
	RunE: validateConfig,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringVarP(&validateFlags.format, "output", "o", "text", "output format: text, json, yaml, csv")
}

func validateConfig(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseOutputFormat(validateFlags.format)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch format {
	case cli.FormatJSON, cli.FormatYAML:
		return cli.NewFormatter(format).FormatTo(out, cfg)
	default:
		return cli.NewFormatter(format).FormatTo(out, policyTable{cfg.Limits})
	}
}

// policyTable lists configured policies, default first then by name.
type policyTable struct {
	limits config.LimitsConfig
}

func (t policyTable) Header() []string {
	return []string{"POLICY", "LIMIT", "WINDOW", "STAMP", "ACTION", "ROUTES", "DEFAULT"}
}

func (t policyTable) Rows() [][]string {
	names := make([]string, 0, len(t.limits.Policies))
	for name := range t.limits.Policies {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		di, dj := names[i] == t.limits.DefaultPolicy, names[j] == t.limits.DefaultPolicy
		if di != dj {
			return di
		}
		return names[i] < names[j]
	})

	rows := make([][]string, 0, len(names))
	for _, name := range names {
		p := t.limits.Policies[name]
		routes := strings.Join(p.Routes, ",")
		if routes == "" {
			routes = "-"
		}
		rows = append(rows, []string{
			name,
			strconv.Itoa(p.Limit),
			p.Window.String(),
			p.Stamp,
			p.Action,
			routes,
			strconv.FormatBool(name == t.limits.DefaultPolicy),
		})
	}
	return rows
}
