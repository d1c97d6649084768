package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/turnstile/pkg/cli"
	"mercator-hq/turnstile/pkg/config"
	"mercator-hq/turnstile/pkg/limits"
	"mercator-hq/turnstile/pkg/limits/maintenance"
	"mercator-hq/turnstile/pkg/limits/storage"
	"mercator-hq/turnstile/pkg/security/auth"
	sectls "mercator-hq/turnstile/pkg/security/tls"
	"mercator-hq/turnstile/pkg/server"
	"mercator-hq/turnstile/pkg/telemetry/health"
	"mercator-hq/turnstile/pkg/telemetry/logging"
	"mercator-hq/turnstile/pkg/telemetry/metrics"
	"mercator-hq/turnstile/pkg/telemetry/tracing"
)

var runFlags struct {
	listenAddress string
	logLevel      string
	dryRun        bool
	watch         bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the decision service",
	Long: `Start the turnstile decision service with the specified configuration.

The server answers GET /v1/admit with 200 when the request's key is admitted
and 429 when it is rejected, and exposes metrics and health probes.

The limits section and the API keys are reloaded on SIGHUP and, with --watch,
whenever the configuration file changes. Policies whose window is unchanged
keep their live counts across a reload, even when their limit or stamp changes.

Examples:
  # Start with default config
  turnstile run

  # Start with custom config
  turnstile run --config /etc/turnstile/config.yaml

  # Override listen address
  turnstile run --listen 0.0.0.0:8080

  # Validate config without starting server
  turnstile run --dry-run`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting server")
	runCmd.Flags().BoolVar(&runFlags.watch, "watch", true, "reload limits when the config file changes")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if runFlags.listenAddress != "" {
		cfg.Server.ListenAddress = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}

	logger, err := newLogger(cfg.Telemetry.Logging)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Turnstile v%s\n", Version)
	fmt.Fprintf(out, "Loading configuration from: %s\n", cfgFile)
	fmt.Fprintln(out, "✓ Configuration loaded")

	if runFlags.dryRun {
		fmt.Fprintf(out, "✓ %d policies valid, default %q\n", len(cfg.Limits.Policies), cfg.Limits.DefaultPolicy)
		return nil
	}

	ctx, stop := cli.SetupSignalHandler(cmd.Context())
	defer stop()

	svc, err := newService(ctx, cfg, logger)
	if err != nil {
		return cli.NewCommandError("run", err)
	}
	defer svc.close()

	fmt.Fprintf(out, "✓ Listening on %s\n", cfg.Server.ListenAddress)

	go svc.reloadOnSignal(ctx)
	if runFlags.watch {
		go svc.watchConfig(ctx, cfgFile)
	}

	if err := svc.server.Start(ctx); err != nil {
		return cli.NewCommandError("run", err)
	}

	fmt.Fprintln(out, "✓ Server stopped")
	return nil
}

// service holds every component the run command wires together.
type service struct {
	logger    *logging.Logger
	tracer    *tracing.Tracer
	collector *metrics.Collector
	journal   storage.Backend
	recorder  *storage.Recorder
	registry  *limits.Registry
	scheduler *maintenance.Scheduler
	checker   *health.Checker
	apiKeys   *auth.APIKeyValidator
	server    *server.Server
}

func newService(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*service, error) {
	svc := &service{logger: logger}
	built := false
	defer func() {
		if !built {
			svc.close()
		}
	}()

	var err error
	svc.tracer, err = tracing.New(&cfg.Telemetry.Tracing, Version)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}

	svc.collector = metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
	svc.collector.SetBuildInfo(Version, GitCommit)

	registryOpts := []limits.RegistryOption{
		limits.WithLogger(logger),
		limits.WithMetrics(limits.NewMetrics(svc.collector.Registerer(), svc.collector.Namespace())),
		limits.WithTracer(svc.tracer.Tracer()),
	}

	if cfg.Journal.Enabled {
		svc.journal, err = storage.Open(ctx, cfg.Journal)
		if err != nil {
			return nil, fmt.Errorf("failed to open journal: %w", err)
		}
		svc.recorder = storage.NewRecorder(svc.journal, storage.RecorderConfig{
			AsyncBuffer: cfg.Journal.AsyncBuffer,
		}, logger)
		svc.collector.RegisterJournal(svc.recorder.Written, svc.recorder.Dropped, svc.recorder.Failed)
		registryOpts = append(registryOpts, limits.WithRecorder(svc.recorder))
		logger.Info("journal enabled", "backend", cfg.Journal.Backend)
	}

	svc.registry, err = limits.NewRegistry(&cfg.Limits, registryOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build limits: %w", err)
	}

	svc.scheduler = maintenance.NewScheduler(maintenance.Config{
		SweepSchedule:   cfg.Limits.SweepSchedule,
		CleanupSchedule: cfg.Journal.CleanupSchedule,
		Retention:       cfg.Journal.Retention,
	}, svc.registry, svc.journal, logger)
	if err := svc.scheduler.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start maintenance: %w", err)
	}

	svc.checker = health.New(cfg.Telemetry.Health.CheckTimeout)
	svc.checker.RegisterCheck("limits", func(context.Context) error {
		if len(svc.registry.Policies()) == 0 {
			return errors.New("no policies loaded")
		}
		return nil
	})
	if svc.journal != nil {
		svc.checker.RegisterCheck("journal", svc.journal.Ping)
	}

	opts := []server.Option{
		server.WithLogger(logger),
		server.WithHealth(svc.checker, cfg.Telemetry.Health, health.NewVersionInfo(Version, GitCommit, BuildDate)),
		server.WithTracer(svc.tracer.Tracer()),
	}
	if cfg.Telemetry.Metrics.Enabled {
		opts = append(opts, server.WithMetrics(svc.collector, cfg.Telemetry.Metrics.Path))
	}
	if tc := cfg.Server.TLS; tc.Enabled {
		reloader := sectls.NewCertificateReloader(tc.CertFile, tc.KeyFile, tc.ReloadInterval, logger)
		if err := reloader.Start(ctx); err != nil {
			return nil, fmt.Errorf("failed to load TLS certificate: %w", err)
		}
		tlsConfig, err := sectls.NewServerConfig(tc, reloader)
		if err != nil {
			return nil, err
		}
		opts = append(opts, server.WithTLS(tlsConfig))
	}
	if cfg.Server.Auth.Enabled {
		svc.apiKeys = auth.NewAPIKeyValidator(cfg.Server.Auth.Keys)
		opts = append(opts, server.WithAPIKeys(svc.apiKeys))
		logger.Info("API key authentication enabled", "keys", svc.apiKeys.Len())
	}
	svc.server = server.NewServer(&cfg.Server, svc.registry, opts...)

	built = true
	return svc, nil
}

// reload applies the limits section and the API keys of cfg. Everything
// else takes a restart.
func (s *service) reload(cfg *config.Config) error {
	if s.apiKeys != nil && cfg.Server.Auth.Enabled {
		s.apiKeys.Update(cfg.Server.Auth.Keys)
	}
	return s.registry.Reload(&cfg.Limits)
}

// reloadOnSignal re-reads the config file on every SIGHUP.
func (s *service) reloadOnSignal(ctx context.Context) {
	hup, stop := cli.ReloadSignals()
	defer stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			s.logger.Info("SIGHUP received, reloading configuration", "path", config.Path())
			cfg, err := config.ReloadConfig(config.Path())
			if err != nil {
				s.logger.Error("config reload failed, keeping previous configuration", "error", err)
				continue
			}
			if err := s.reload(cfg); err != nil {
				s.logger.Error("applying reloaded config failed", "error", err)
			}
		}
	}
}

// watchConfig reloads on file changes until ctx ends.
func (s *service) watchConfig(ctx context.Context, path string) {
	w, err := config.NewWatcher(path, 0, s.logger)
	if err != nil {
		s.logger.Warn("config watching disabled", "error", err)
		return
	}
	if err := w.Watch(ctx, s.reload); err != nil {
		s.logger.Warn("config watcher stopped", "error", err)
	}
}

// close releases components in reverse start order. Nil components are
// skipped, so close is safe on a partially built service.
func (s *service) close() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
	if s.registry != nil {
		s.registry.Close()
	}
	if s.recorder != nil {
		s.recorder.Close()
	}
	if s.journal != nil {
		if err := s.journal.Close(); err != nil {
			s.logger.Error("failed to close journal", "error", err)
		}
	}
	if s.tracer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.tracer.Shutdown(ctx); err != nil {
			s.logger.Error("failed to flush traces", "error", err)
		}
	}
}
