package limits

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"mercator-hq/turnstile/pkg/config"
	"mercator-hq/turnstile/pkg/limits/enforcement"
	"mercator-hq/turnstile/pkg/limits/ratelimit"
	"mercator-hq/turnstile/pkg/limits/storage"
	"mercator-hq/turnstile/pkg/telemetry/logging"
	"mercator-hq/turnstile/pkg/telemetry/tracing"
)

// Registry holds one sliding-window gate per configured policy and routes
// each request to the right one.
//
// The Registry is the primary interface for admission. It orchestrates the
// gates, the enforcement of rejections, metrics, the decision journal, and
// tracing.
//
// # Example
//
//	registry, err := limits.NewRegistry(&cfg.Limits,
//	    limits.WithLogger(logger),
//	    limits.WithMetrics(limits.NewMetrics(reg, "turnstile")),
//	)
//	if err != nil {
//	    return err
//	}
//
//	decision, err := registry.Admit(ctx, limits.Request{Route: r.URL.Path, Key: tenant})
//	if err != nil {
//	    return err
//	}
//	if !decision.Allowed {
//	    // 429
//	}
type Registry struct {
	mu            sync.RWMutex
	policies      map[string]*policy
	routes        []route
	defaultPolicy string
	closed        bool

	clock    ratelimit.Clock
	logger   *logging.Logger
	metrics  *Metrics
	recorder *storage.Recorder
	tracer   trace.Tracer
}

// policy is one configured policy with its gate and enforcer.
type policy struct {
	name     string
	cfg      config.PolicyConfig
	stamp    ratelimit.StampPolicy
	gate     *ratelimit.Gate[string]
	enforcer *enforcement.Enforcer
}

// route maps a path prefix to a policy name.
type route struct {
	prefix string
	policy string
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithLogger sets the logger. Default: discard.
func WithLogger(logger *logging.Logger) RegistryOption {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetrics enables Prometheus metrics.
func WithMetrics(m *Metrics) RegistryOption {
	return func(r *Registry) { r.metrics = m }
}

// WithRecorder writes every decision to the journal.
func WithRecorder(rec *storage.Recorder) RegistryOption {
	return func(r *Registry) { r.recorder = rec }
}

// WithTracer sets the tracer. Default: the global otel tracer provider.
func WithTracer(tracer trace.Tracer) RegistryOption {
	return func(r *Registry) {
		if tracer != nil {
			r.tracer = tracer
		}
	}
}

// WithRegistryClock sets the time source of every gate.
func WithRegistryClock(clock ratelimit.Clock) RegistryOption {
	return func(r *Registry) {
		if clock != nil {
			r.clock = clock
		}
	}
}

// NewRegistry builds a gate and an enforcer for every policy in cfg.
// cfg is expected to have passed config.Validate; construction errors from
// the gates are still reported.
func NewRegistry(cfg *config.LimitsConfig, opts ...RegistryOption) (*Registry, error) {
	r := &Registry{
		clock:  ratelimit.SystemClock(),
		logger: logging.NewNop(),
		tracer: otel.Tracer(tracing.InstrumentationName),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.WithComponent("limits")

	policies, routes, err := r.build(cfg, nil)
	if err != nil {
		return nil, err
	}

	r.policies = policies
	r.routes = routes
	r.defaultPolicy = cfg.DefaultPolicy
	r.updateKeyGauges()

	r.logger.Info("limits registry initialized",
		"policies", len(policies),
		"default_policy", cfg.DefaultPolicy,
		"routes", len(routes),
	)
	return r, nil
}

// build creates the policies of cfg. Policies of prev with an unchanged
// window keep their gate, so live counts survive a reload; their limit and
// stamp policy are applied in place when the new set is installed.
func (r *Registry) build(cfg *config.LimitsConfig, prev map[string]*policy) (map[string]*policy, []route, error) {
	if cfg == nil || len(cfg.Policies) == 0 {
		return nil, nil, fmt.Errorf("%w: no policies configured", ratelimit.ErrInvalidConfig)
	}
	if _, ok := cfg.Policies[cfg.DefaultPolicy]; !ok {
		return nil, nil, fmt.Errorf("%w: default policy %q", ErrUnknownPolicy, cfg.DefaultPolicy)
	}

	policies := make(map[string]*policy, len(cfg.Policies))
	var routes []route

	for name, pc := range cfg.Policies {
		stamp, err := ratelimit.ParseStampPolicy(pc.Stamp)
		if err != nil {
			return nil, nil, fmt.Errorf("policy %s: %w", name, err)
		}
		action, err := enforcement.ParseAction(pc.Action)
		if err != nil {
			return nil, nil, fmt.Errorf("policy %s: %w", name, err)
		}

		p := &policy{name: name, cfg: pc, stamp: stamp}

		if old, ok := prev[name]; ok && old.cfg.Window == pc.Window {
			if pc.Limit <= 0 {
				return nil, nil, fmt.Errorf("policy %s: %w: got %d", name, ratelimit.ErrInvalidLimit, pc.Limit)
			}
			p.gate = old.gate
		} else {
			p.gate, err = ratelimit.NewGate[string](pc.Limit, pc.Window,
				ratelimit.WithClock(r.clock),
				ratelimit.WithStampPolicy(stamp),
			)
			if err != nil {
				return nil, nil, fmt.Errorf("policy %s: %w", name, err)
			}
		}

		if old, ok := prev[name]; ok && sameEnforcement(old.cfg, pc) {
			p.enforcer = old.enforcer
		} else {
			p.enforcer = enforcement.NewEnforcer(enforcement.Config{
				Action:       action,
				QueueDepth:   pc.QueueDepth,
				QueueTimeout: pc.QueueTimeout,
			})
		}

		policies[name] = p
		for _, prefix := range pc.Routes {
			routes = append(routes, route{prefix: prefix, policy: name})
		}
	}

	// Longest prefix first; ties broken by name for a stable order.
	sort.Slice(routes, func(i, j int) bool {
		if len(routes[i].prefix) != len(routes[j].prefix) {
			return len(routes[i].prefix) > len(routes[j].prefix)
		}
		return routes[i].prefix < routes[j].prefix
	})

	return policies, routes, nil
}

func sameEnforcement(a, b config.PolicyConfig) bool {
	return a.Action == b.Action && a.QueueDepth == b.QueueDepth && a.QueueTimeout == b.QueueTimeout
}

// Admit decides whether req may proceed.
//
// The policy is req.Policy when set, else the policy owning the longest
// route prefix of req.Route, else the default policy. A rejection is
// handled by the policy's enforcement action before Admit returns, so a
// queued request may block up to the policy's queue timeout.
//
// The error is non-nil only when no decision could be made: an unknown
// policy, a closed registry, or ctx ending while queued. Rejection is
// reported through Decision.Allowed (and Decision.Err).
func (r *Registry) Admit(ctx context.Context, req Request) (*Decision, error) {
	start := time.Now()

	p, err := r.resolve(req)
	if err != nil {
		return nil, err
	}

	ctx, span := r.tracer.Start(ctx, "limits.Admit",
		trace.WithAttributes(
			tracing.AttrPolicy.String(p.name),
			tracing.AttrKeyHash.String(logging.HashKey(req.Key)),
			tracing.AttrRequestID.String(req.RequestID),
		),
	)
	defer span.End()

	first := p.check(req.Key, req.SubmittedAt)
	retry := func() ratelimit.Decision { return p.gate.TryAdmit(req.Key) }

	result, enforceErr := p.enforcer.Enforce(ctx, first, retry)

	d := &Decision{
		Allowed:    result.Allowed,
		Policy:     p.name,
		Key:        req.Key,
		Result:     result.Decision.Result,
		Action:     p.enforcer.GetConfig().Action,
		Limit:      result.Decision.Limit,
		Remaining:  result.Decision.Remaining,
		RetryAfter: result.RetryAfter,
		Window:     p.gate.TTL(),
		Attempts:   result.Attempts,
		Queued:     result.Waited,
		Reason:     result.Reason,
	}
	if d.Shadowed() {
		d.RetryAfter = result.Decision.RetryAfter
	}

	duration := time.Since(start)
	r.metrics.RecordDecision(d, duration)
	r.journal(ctx, d, req)

	span.SetAttributes(
		tracing.AttrAllowed.Bool(d.Allowed),
		tracing.AttrResult.String(d.Result.String()),
		tracing.AttrRemaining.Int(d.Remaining),
		tracing.AttrAttempts.Int(d.Attempts),
	)

	if enforceErr != nil {
		tracing.SetStatus(span, enforceErr)
		r.logger.WarnContext(ctx, "admission abandoned while queued",
			"policy", p.name,
			"key", req.Key,
			"waited", d.Queued,
			"error", enforceErr,
		)
		return d, fmt.Errorf("admission for policy %s: %w", p.name, enforceErr)
	}

	switch {
	case d.Shadowed():
		r.logger.InfoContext(ctx, "request would be rejected (shadow)",
			"policy", p.name,
			"key", req.Key,
			"limit", d.Limit,
		)
	case !d.Allowed:
		r.logger.DebugContext(ctx, "request rejected",
			"policy", p.name,
			"key", req.Key,
			"limit", d.Limit,
			"retry_after", d.RetryAfter,
			"reason", d.Reason,
		)
	default:
		r.logger.DebugContext(ctx, "request admitted",
			"policy", p.name,
			"key", req.Key,
			"remaining", d.Remaining,
			"attempts", d.Attempts,
		)
	}

	return d, nil
}

// check makes the first admission attempt of a request.
func (p *policy) check(key string, submittedAt time.Time) ratelimit.Decision {
	if submittedAt.IsZero() {
		return p.gate.TryAdmit(key)
	}
	return p.gate.TryAdmitSubmitted(key, submittedAt)
}

// resolve picks the policy for req.
func (r *Registry) resolve(req Request) (*policy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, ErrClosed
	}

	if req.Policy != "" {
		p, ok := r.policies[req.Policy]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownPolicy, req.Policy)
		}
		return p, nil
	}

	if req.Route != "" {
		for _, rt := range r.routes {
			if matchRoute(rt.prefix, req.Route) {
				return r.policies[rt.policy], nil
			}
		}
	}

	return r.policies[r.defaultPolicy], nil
}

// matchRoute reports whether path falls under prefix on a segment boundary:
// "/api" matches "/api" and "/api/v1" but not "/apis".
func matchRoute(prefix, path string) bool {
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	if len(path) == len(prefix) || strings.HasSuffix(prefix, "/") {
		return true
	}
	return path[len(prefix)] == '/'
}

// journal hands the decision to the recorder, if any.
func (r *Registry) journal(ctx context.Context, d *Decision, req Request) {
	if r.recorder == nil {
		return
	}

	requestID := req.RequestID
	if requestID == "" {
		requestID = logging.GetRequestID(ctx)
	}

	event := &storage.Event{
		At:        r.clock.Now(),
		Policy:    d.Policy,
		Key:       d.Key,
		Admitted:  d.Result == ratelimit.Admitted,
		Allowed:   d.Allowed,
		RequestID: requestID,
	}
	if !event.Admitted || d.Attempts > 1 {
		event.Action = string(d.Action)
	}
	r.recorder.Record(event)
}

// Reload swaps in a new policy set. Policies whose window is unchanged keep
// their gates and therefore their live counts, taking the new limit and
// stamp in place; policies with a new window start empty. On error the
// current policies stay in place.
func (r *Registry) Reload(cfg *config.LimitsConfig) error {
	r.mu.RLock()
	prev := r.policies
	r.mu.RUnlock()

	policies, routes, err := r.build(cfg, prev)
	r.metrics.RecordReload(err)
	if err != nil {
		r.logger.Error("limits reload failed", "error", err)
		return err
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	old := r.policies
	r.policies = policies
	r.routes = routes
	r.defaultPolicy = cfg.DefaultPolicy
	r.mu.Unlock()

	kept := 0
	for name, p := range policies {
		if o, ok := old[name]; ok && o.gate == p.gate {
			// Validated in build.
			_ = p.gate.SetLimit(p.cfg.Limit)
			p.gate.SetStampPolicy(p.stamp)
			kept++
		}
	}
	for name := range old {
		if _, ok := policies[name]; !ok {
			r.metrics.ForgetPolicy(name)
		}
	}
	r.updateKeyGauges()

	r.logger.Info("limits reloaded",
		"policies", len(policies),
		"gates_kept", kept,
		"default_policy", cfg.DefaultPolicy,
	)
	return nil
}

// Sweep drops idle keys from every gate and returns how many were dropped.
func (r *Registry) Sweep() int {
	r.mu.RLock()
	policies := r.snapshot()
	r.mu.RUnlock()

	total := 0
	for _, p := range policies {
		removed := p.gate.Sweep()
		total += removed
		if removed > 0 {
			r.metrics.RecordSweep(p.name, removed)
		}
		r.metrics.SetTrackedKeys(p.name, p.gate.Len())
	}

	r.logger.Debug("swept idle keys", "removed", total)
	return total
}

// Policies describes the configured policies, sorted by name.
func (r *Registry) Policies() []PolicyInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]PolicyInfo, 0, len(r.policies))
	for _, p := range r.snapshot() {
		infos = append(infos, PolicyInfo{
			Name:    p.name,
			Limit:   p.gate.Limit(),
			Window:  p.gate.TTL(),
			Stamp:   p.gate.Policy().String(),
			Action:  string(p.enforcer.GetConfig().Action),
			Routes:  append([]string(nil), p.cfg.Routes...),
			Default: p.name == r.defaultPolicy,
			Keys:    p.gate.Len(),
			Queued:  p.enforcer.Queued(),
		})
	}
	return infos
}

// Count returns the live count of key under the named policy without
// admitting anything.
func (r *Registry) Count(policyName, key string) (int, error) {
	r.mu.RLock()
	p, ok := r.policies[policyName]
	r.mu.RUnlock()
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownPolicy, policyName)
	}
	return p.gate.Count(key), nil
}

// DefaultPolicy returns the name of the default policy.
func (r *Registry) DefaultPolicy() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaultPolicy
}

// Close stops admitting requests. The journal recorder, if any, is owned by
// the caller and left open.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	r.logger.Info("limits registry closed")
	return nil
}

// snapshot returns the policies sorted by name. Caller must hold r.mu.
func (r *Registry) snapshot() []*policy {
	out := make([]*policy, 0, len(r.policies))
	for _, p := range r.policies {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

func (r *Registry) updateKeyGauges() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.policies {
		r.metrics.SetTrackedKeys(p.name, p.gate.Len())
	}
}
