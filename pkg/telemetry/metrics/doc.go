// Package metrics provides Prometheus metrics collection for turnstile.
//
// # Overview
//
// The Collector owns one prometheus.Registry per process. It records the
// HTTP traffic of the decision service itself and hands its registerer to
// pkg/limits, whose admission metrics (decisions, check latency, queue
// wait, tracked keys) then appear on the same endpoint.
//
// Tenant keys are never metric labels. Route labels are capped by a
// CardinalityLimiter and overflow into "other".
//
// # Usage
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	registry, err := limits.NewRegistry(&cfg.Limits,
//	    limits.WithMetrics(limits.NewMetrics(collector.Registerer(), collector.Namespace())),
//	)
//	mux.Handle(cfg.Telemetry.Metrics.Path, collector.Handler())
package metrics
