package enforcement

import (
	"context"
	"time"

	"mercator-hq/turnstile/pkg/limits/ratelimit"
)

// minRetryWait bounds how fast a queued request polls the gate when the gate
// reports no RetryAfter.
const minRetryWait = time.Millisecond

// Enforcer executes the configured action for gate rejections.
//
// One Enforcer serves one policy; its queue depth is shared by every request
// of that policy.
type Enforcer struct {
	config Config
	slots  chan struct{}
}

// NewEnforcer creates a new enforcer.
//
// Example:
//
//	enforcer := NewEnforcer(Config{
//	    Action:       ActionQueue,
//	    QueueDepth:   100,
//	    QueueTimeout: 5 * time.Second,
//	})
func NewEnforcer(config Config) *Enforcer {
	if config.Action == "" {
		config.Action = ActionBlock
	}
	if config.QueueDepth <= 0 {
		config.QueueDepth = 100
	}
	if config.QueueTimeout <= 0 {
		config.QueueTimeout = 5 * time.Second
	}

	return &Enforcer{
		config: config,
		slots:  make(chan struct{}, config.QueueDepth),
	}
}

// Enforce turns a gate decision into an outcome.
//
// Admitted decisions pass through untouched. For a rejection the configured
// action runs; ActionQueue calls admit again until it admits, the queue
// timeout passes, or ctx ends. The returned error is ctx.Err() when ctx
// ended while queued.
func (e *Enforcer) Enforce(ctx context.Context, first ratelimit.Decision, admit AdmitFunc) (*Result, error) {
	if first.Admitted() {
		return &Result{Allowed: true, Action: e.config.Action, Decision: first, Attempts: 1}, nil
	}

	switch e.config.Action {
	case ActionShadow:
		return e.enforceShadow(first), nil

	case ActionQueue:
		return e.enforceQueue(ctx, first, admit)

	default:
		return e.enforceBlock(first, "rate limit exceeded", nil), nil
	}
}

// enforceBlock rejects the request.
func (e *Enforcer) enforceBlock(d ratelimit.Decision, reason string, err error) *Result {
	return &Result{
		Allowed:    false,
		Action:     ActionBlock,
		Decision:   d,
		Reason:     reason,
		Err:        err,
		RetryAfter: d.RetryAfter,
		Attempts:   1,
	}
}

// enforceShadow lets the request through.
func (e *Enforcer) enforceShadow(d ratelimit.Decision) *Result {
	return &Result{
		Allowed:  true,
		Action:   ActionShadow,
		Decision: d,
		Reason:   "rate limit exceeded (shadow)",
		Attempts: 1,
	}
}

// enforceQueue waits for capacity, sleeping RetryAfter between attempts.
func (e *Enforcer) enforceQueue(ctx context.Context, first ratelimit.Decision, admit AdmitFunc) (*Result, error) {
	select {
	case e.slots <- struct{}{}:
	default:
		return e.enforceBlock(first, "rate limit exceeded, queue full", ErrQueueFull), nil
	}
	defer func() { <-e.slots }()

	start := time.Now()
	deadline := start.Add(e.config.QueueTimeout)
	result := &Result{Action: ActionQueue, Decision: first, Attempts: 1}

	timer := time.NewTimer(0)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		wait := result.Decision.RetryAfter
		if wait < minRetryWait {
			wait = minRetryWait
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			result.Reason = "rate limit exceeded, queue timeout"
			result.Err = ErrQueueTimeout
			result.RetryAfter = result.Decision.RetryAfter
			result.Waited = time.Since(start)
			return result, nil
		}
		if wait > remaining {
			wait = remaining
		}

		timer.Reset(wait)
		select {
		case <-ctx.Done():
			result.Reason = "request cancelled while queued"
			result.RetryAfter = result.Decision.RetryAfter
			result.Waited = time.Since(start)
			return result, ctx.Err()
		case <-timer.C:
		}

		result.Decision = admit()
		result.Attempts++
		if result.Decision.Admitted() {
			result.Allowed = true
			result.Waited = time.Since(start)
			return result, nil
		}
	}
}

// Queued returns the number of requests currently waiting.
func (e *Enforcer) Queued() int {
	return len(e.slots)
}

// GetConfig returns the current enforcer configuration.
func (e *Enforcer) GetConfig() Config {
	return e.config
}
