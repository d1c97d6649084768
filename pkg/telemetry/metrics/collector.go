package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"mercator-hq/turnstile/pkg/config"
)

// Collector owns the Prometheus registry of a turnstile process and the
// HTTP-level metrics of the decision service.
//
// Admission metrics live in pkg/limits and register themselves on
// Registerer(); the collector only serves them.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	httpMetrics *HTTPMetrics

	// Route labels are capped to keep cardinality bounded.
	cardinalityLimiter *CardinalityLimiter
}

// NewCollector creates a collector with the specified configuration and
// Prometheus registry. If registry is nil, a fresh one is created.
// Go runtime and process collectors are registered alongside.
//
// Example:
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	http.Handle(cfg.Telemetry.Metrics.Path, collector.Handler())
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	if cfg.Namespace == "" {
		cfg.Namespace = config.DefaultMetricsNamespace
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Collector{
		config:             cfg,
		registry:           registry,
		httpMetrics:        NewHTTPMetrics(cfg, registry),
		cardinalityLimiter: NewCardinalityLimiter(1000),
	}
}

// RecordHTTPRequest records a completed HTTP request.
//
// Parameters:
//   - route: Request path; routes past the cardinality cap become "other"
//   - method: HTTP method
//   - status: Response status code
//   - duration: Time spent serving the request
func (c *Collector) RecordHTTPRequest(route, method string, status int, duration time.Duration) {
	if !c.config.Enabled {
		return
	}

	if !c.cardinalityLimiter.Allow(route) {
		route = "other"
	}
	c.httpMetrics.RecordRequest(route, method, status, duration)
}

// IncInFlight increments the in-flight request gauge.
func (c *Collector) IncInFlight() {
	if !c.config.Enabled {
		return
	}
	c.httpMetrics.inFlight.Inc()
}

// DecInFlight decrements the in-flight request gauge.
func (c *Collector) DecInFlight() {
	if !c.config.Enabled {
		return
	}
	c.httpMetrics.inFlight.Dec()
}

// RecordShed records a request refused before admission (in-flight cap,
// timeout, panic).
func (c *Collector) RecordShed(reason string) {
	if !c.config.Enabled {
		return
	}
	c.httpMetrics.shed.WithLabelValues(reason).Inc()
}

// SetBuildInfo publishes the running version as a constant gauge.
func (c *Collector) SetBuildInfo(version, commit string) {
	c.httpMetrics.buildInfo.WithLabelValues(version, commit).Set(1)
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Registerer returns the registerer other packages add their collectors to.
// It is nil when metrics are disabled, which those packages treat as "do
// not register".
func (c *Collector) Registerer() prometheus.Registerer {
	if !c.config.Enabled {
		return nil
	}
	return c.registry
}

// Namespace returns the metric namespace.
func (c *Collector) Namespace() string {
	return c.config.Namespace
}

// RegisterJournal exposes journal recorder counters. The functions are
// read at scrape time.
func (c *Collector) RegisterJournal(written, dropped, failed func() int64) {
	if !c.config.Enabled {
		return
	}

	counter := func(name, help string, fn func() int64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: c.config.Namespace,
			Subsystem: "journal",
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(fn()) })
	}

	c.registry.MustRegister(
		counter("events_written_total", "Journal events written to the backend", written),
		counter("events_dropped_total", "Journal events dropped because the buffer was full", dropped),
		counter("events_failed_total", "Journal events the backend failed to store", failed),
	)
}

// CardinalityLimiter prevents metric cardinality explosion by limiting
// the number of unique label values.
type CardinalityLimiter struct {
	maxCardinality int
	current        map[string]struct{}
	mu             sync.RWMutex
}

// NewCardinalityLimiter creates a new cardinality limiter with the specified
// maximum cardinality.
func NewCardinalityLimiter(maxCardinality int) *CardinalityLimiter {
	return &CardinalityLimiter{
		maxCardinality: maxCardinality,
		current:        make(map[string]struct{}),
	}
}

// Allow checks if a label set is allowed. Returns true if the label set
// already exists or if we haven't reached the cardinality limit yet.
// Returns false if adding this label set would exceed the limit.
func (cl *CardinalityLimiter) Allow(labelSet string) bool {
	cl.mu.RLock()
	if _, exists := cl.current[labelSet]; exists {
		cl.mu.RUnlock()
		return true
	}
	cl.mu.RUnlock()

	cl.mu.Lock()
	defer cl.mu.Unlock()

	if _, exists := cl.current[labelSet]; exists {
		return true
	}

	if len(cl.current) >= cl.maxCardinality {
		return false
	}

	cl.current[labelSet] = struct{}{}
	return true
}

// Count returns the current cardinality.
func (cl *CardinalityLimiter) Count() int {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return len(cl.current)
}
