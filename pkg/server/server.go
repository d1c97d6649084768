package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"mercator-hq/turnstile/pkg/config"
	"mercator-hq/turnstile/pkg/limits"
	"mercator-hq/turnstile/pkg/security/auth"
	sectls "mercator-hq/turnstile/pkg/security/tls"
	"mercator-hq/turnstile/pkg/server/middleware"
	"mercator-hq/turnstile/pkg/telemetry/health"
	"mercator-hq/turnstile/pkg/telemetry/logging"
	"mercator-hq/turnstile/pkg/telemetry/metrics"
	"mercator-hq/turnstile/pkg/telemetry/tracing"
)

// Admitter decides admission. *limits.Registry implements it.
type Admitter interface {
	Admit(ctx context.Context, req limits.Request) (*limits.Decision, error)
	Policies() []limits.PolicyInfo
}

// Server is the HTTP decision service.
type Server struct {
	config   *config.ServerConfig
	admitter Admitter
	logger   *logging.Logger

	collector   *metrics.Collector
	metricsPath string
	checker     *health.Checker
	healthCfg   config.HealthConfig
	version     health.VersionInfo
	tracer      trace.Tracer
	tlsConfig   *tls.Config
	apiKeys     *auth.APIKeyValidator

	httpServer   *http.Server
	shutdownOnce sync.Once
	mu           sync.RWMutex
	isRunning    bool
	addr         net.Addr
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger. Default: a no-op logger.
func WithLogger(logger *logging.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics mounts the collector's handler at path and feeds the HTTP
// middleware metrics into it.
func WithMetrics(collector *metrics.Collector, path string) Option {
	return func(s *Server) {
		s.collector = collector
		s.metricsPath = path
	}
}

// WithHealth mounts the probe and version endpoints. The checker is put in
// draining mode when the server shuts down.
func WithHealth(checker *health.Checker, cfg config.HealthConfig, version health.VersionInfo) Option {
	return func(s *Server) {
		s.checker = checker
		s.healthCfg = cfg
		s.version = version
	}
}

// WithTracer sets the tracer used for server spans. Default: the global
// otel tracer provider.
func WithTracer(tracer trace.Tracer) Option {
	return func(s *Server) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// WithTLS serves HTTPS with tlsConfig. Client certificates name the tenant
// when the server config sets an identity source.
func WithTLS(tlsConfig *tls.Config) Option {
	return func(s *Server) {
		s.tlsConfig = tlsConfig
	}
}

// WithAPIKeys requires a valid API key on the /v1 endpoints. The key is read
// from the server config's auth header.
func WithAPIKeys(validator *auth.APIKeyValidator) Option {
	return func(s *Server) {
		s.apiKeys = validator
	}
}

// NewServer creates the decision service.
func NewServer(cfg *config.ServerConfig, admitter Admitter, opts ...Option) *Server {
	s := &Server{
		config:   cfg,
		admitter: admitter,
		logger:   logging.NewNop(),
		tracer:   otel.Tracer(tracing.InstrumentationName),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithComponent("server")
	return s
}

// Start listens on the configured address and serves until ctx is done,
// then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.ListenAddress)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.ListenAddress, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return errors.New("server is already running")
	}
	s.isRunning = true
	s.addr = ln.Addr()
	if s.tlsConfig != nil {
		ln = tls.NewListener(ln, s.tlsConfig)
	}
	s.httpServer = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
	s.mu.Unlock()

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting decision server", "address", ln.Addr().String(), "tls", s.tlsConfig != nil)
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("server error: %w", err)
		}
		close(errChan)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, initiating shutdown")
		return s.Shutdown(context.Background())
	case err, ok := <-errChan:
		if ok {
			return err
		}
		return nil
	}
}

// Shutdown marks the service as draining, then gracefully stops the HTTP
// server within the configured shutdown timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.mu.RLock()
		running := s.isRunning
		s.mu.RUnlock()
		if !running {
			return
		}

		if s.checker != nil {
			s.checker.SetDraining(true)
		}

		s.logger.Info("initiating graceful shutdown", "timeout", s.config.ShutdownTimeout.String())

		shutdownCtx := ctx
		if s.config.ShutdownTimeout > 0 {
			var cancel context.CancelFunc
			shutdownCtx, cancel = context.WithTimeout(ctx, s.config.ShutdownTimeout)
			defer cancel()
		}

		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("error during server shutdown", "error", err)
			shutdownErr = fmt.Errorf("server shutdown error: %w", err)
		}

		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()

		s.logger.Info("decision server stopped")
	})

	return shutdownErr
}

// Handler returns the routed handler with the full middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/v1/admit", s.protect(s.admitHandler()))
	mux.Handle("/v1/policies", s.protect(s.policiesHandler()))

	if s.collector != nil && s.metricsPath != "" {
		mux.Handle(s.metricsPath, s.collector.Handler())
	}
	if s.checker != nil {
		health.Mount(mux, s.checker, s.healthCfg, s.version, 0)
	}

	var rec middleware.HTTPRecorder
	var gauge middleware.InFlightGauge
	var shed middleware.ShedRecorder
	if s.collector != nil {
		rec, gauge, shed = s.collector, s.collector, s.collector
	}

	return middleware.Chain(mux,
		middleware.Recovery(s.logger, shed),
		middleware.RequestID,
		middleware.Tracing(s.tracer),
		middleware.Logging(s.logger, rec),
		middleware.InFlight(s.config.MaxInFlight, gauge, shed),
		middleware.Timeout(s.config.RequestTimeout),
	)
}

// protect authenticates the caller of a /v1 endpoint and resolves the
// tenant its credentials name. Probes and metrics stay open.
func (s *Server) protect(h http.Handler) http.Handler {
	if source := s.config.TLS.IdentitySource; s.tlsConfig != nil && source != "" {
		h = sectls.IdentityMiddleware(source)(h)
	}
	if s.apiKeys != nil {
		h = auth.Middleware(s.apiKeys, s.config.Auth.Header, s.logger)(h)
	}
	return h
}

// IsRunning returns true if the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Addr returns the listening address once serving, nil before.
func (s *Server) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.addr
}
