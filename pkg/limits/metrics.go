package limits

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains Prometheus metrics for admission decisions.
//
// Tenant keys are never used as label values; per-key detail lives in the
// decision journal.
type Metrics struct {
	decisions    *prometheus.CounterVec
	checkLatency *prometheus.HistogramVec
	queueWait    *prometheus.HistogramVec
	trackedKeys  *prometheus.GaugeVec
	sweptKeys    *prometheus.CounterVec
	reloads      *prometheus.CounterVec
}

// NewMetrics creates the admission collectors and registers them with reg.
// A nil reg leaves them unregistered, which is what tests want.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	m := &Metrics{
		decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "admission",
				Name:      "decisions_total",
				Help:      "Total number of admission decisions",
			},
			[]string{"policy", "result", "action"},
		),

		checkLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "admission",
				Name:      "check_duration_seconds",
				Help:      "Duration of admission checks in seconds, queueing included",
				Buckets:   prometheus.ExponentialBuckets(0.000001, 4, 12), // 1µs to ~4s
			},
			[]string{"policy"},
		),

		queueWait: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "admission",
				Name:      "queue_wait_seconds",
				Help:      "Time queued requests spent waiting for room",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"policy", "outcome"},
		),

		trackedKeys: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "admission",
				Name:      "tracked_keys",
				Help:      "Number of keys with a live counter",
			},
			[]string{"policy"},
		),

		sweptKeys: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "admission",
				Name:      "swept_keys_total",
				Help:      "Total number of idle keys dropped by sweeps",
			},
			[]string{"policy"},
		),

		reloads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "admission",
				Name:      "reloads_total",
				Help:      "Total number of policy reloads",
			},
			[]string{"result"},
		),
	}

	if reg != nil {
		reg.MustRegister(m.decisions, m.checkLatency, m.queueWait, m.trackedKeys, m.sweptKeys, m.reloads)
	}
	return m
}

// RecordDecision records one admission decision.
func (m *Metrics) RecordDecision(d *Decision, duration time.Duration) {
	if m == nil {
		return
	}

	result := "admitted"
	switch {
	case d.Shadowed():
		result = "shadowed"
	case !d.Allowed:
		result = "rejected"
	}
	m.decisions.WithLabelValues(d.Policy, result, string(d.Action)).Inc()
	m.checkLatency.WithLabelValues(d.Policy).Observe(duration.Seconds())

	if d.Attempts > 1 || d.Queued > 0 {
		outcome := "admitted"
		if !d.Allowed {
			outcome = "rejected"
		}
		m.queueWait.WithLabelValues(d.Policy, outcome).Observe(d.Queued.Seconds())
	}
}

// SetTrackedKeys updates the tracked key gauge of a policy.
func (m *Metrics) SetTrackedKeys(policy string, n int) {
	if m == nil {
		return
	}
	m.trackedKeys.WithLabelValues(policy).Set(float64(n))
}

// RecordSweep records keys dropped from a policy.
func (m *Metrics) RecordSweep(policy string, removed int) {
	if m == nil {
		return
	}
	m.sweptKeys.WithLabelValues(policy).Add(float64(removed))
}

// RecordReload records a reload attempt.
func (m *Metrics) RecordReload(err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.reloads.WithLabelValues(result).Inc()
}

// ForgetPolicy drops the per-policy series of a removed policy.
func (m *Metrics) ForgetPolicy(policy string) {
	if m == nil {
		return
	}
	m.trackedKeys.DeleteLabelValues(policy)
}
