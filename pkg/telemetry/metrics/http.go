package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/turnstile/pkg/config"
)

// HTTPMetrics tracks the decision service's HTTP traffic.
//
// Metrics:
//   - <ns>_http_requests_total: Request count by route, method, code
//   - <ns>_http_request_duration_seconds: Request duration histogram
//   - <ns>_http_requests_in_flight: Requests currently being served
//   - <ns>_http_requests_shed_total: Requests refused before admission
//   - <ns>_build_info: Version of the running binary
type HTTPMetrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	inFlight        prometheus.Gauge
	shed            *prometheus.CounterVec
	buildInfo       *prometheus.GaugeVec
}

// NewHTTPMetrics creates and registers HTTP metrics with the provided registry.
func NewHTTPMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *HTTPMetrics {
	subsystem := "http"
	if cfg.Subsystem != "" {
		subsystem = cfg.Subsystem + "_http"
	}

	hm := &HTTPMetrics{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: subsystem,
				Name:      "requests_total",
				Help:      "Total number of HTTP requests served",
			},
			[]string{"route", "method", "code"},
		),

		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: subsystem,
				Name:      "request_duration_seconds",
				Help:      "Duration of HTTP requests in seconds",
				// Admission checks are sub-millisecond; queued ones can take seconds.
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
			},
			[]string{"route", "method"},
		),

		inFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: subsystem,
				Name:      "requests_in_flight",
				Help:      "Number of HTTP requests currently being served",
			},
		),

		shed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: subsystem,
				Name:      "requests_shed_total",
				Help:      "Total number of requests refused before admission",
			},
			[]string{"reason"},
		),

		buildInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Name:      "build_info",
				Help:      "Build information of the running binary",
			},
			[]string{"version", "commit"},
		),
	}

	registry.MustRegister(
		hm.requestsTotal,
		hm.requestDuration,
		hm.inFlight,
		hm.shed,
		hm.buildInfo,
	)

	return hm
}

// RecordRequest records metrics for a completed request.
func (hm *HTTPMetrics) RecordRequest(route, method string, status int, duration time.Duration) {
	hm.requestsTotal.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	hm.requestDuration.WithLabelValues(route, method).Observe(duration.Seconds())
}
