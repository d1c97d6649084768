package main

import (
	"errors"
	"fmt"
	"os"

	"mercator-hq/turnstile/pkg/cli"
	"mercator-hq/turnstile/pkg/config"
	"mercator-hq/turnstile/pkg/telemetry/logging"
)

// loadConfig loads --config with environment overrides into the global
// configuration. Validation failures map to the config exit code.
func loadConfig() (*config.Config, error) {
	if err := config.Initialize(cfgFile); err != nil {
		var verr config.ValidationError
		if errors.As(err, &verr) && len(verr.Errors) > 0 {
			first := verr.Errors[0]
			return nil, cli.NewConfigError(first.Field, verr.Error())
		}
		return nil, cli.NewConfigError(cfgFile, err.Error())
	}
	return config.GetConfig(), nil
}

// newLogger builds the process logger. --verbose forces debug level.
func newLogger(cfg config.LoggingConfig) (*logging.Logger, error) {
	level := cfg.Level
	if verbose {
		level = "debug"
	}
	logger, err := logging.New(logging.Config{
		Level:      level,
		Format:     cfg.Format,
		AddSource:  cfg.AddSource,
		RedactKeys: cfg.RedactKeys,
		Writer:     os.Stderr,
	})
	if err != nil {
		return nil, cli.NewConfigError("telemetry.logging", fmt.Sprintf("invalid logging config: %v", err))
	}
	return logger, nil
}
