package limits

import (
	"errors"
	"fmt"
	"time"

	"mercator-hq/turnstile/pkg/limits/enforcement"
	"mercator-hq/turnstile/pkg/limits/ratelimit"
)

// Error types returned by the registry.
var (
	// ErrRateLimited is wrapped by the LimitError of a rejected decision.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrUnknownPolicy is returned when a request names a policy that is
	// not configured.
	ErrUnknownPolicy = errors.New("unknown policy")

	// ErrClosed is returned by Admit after Close.
	ErrClosed = errors.New("registry closed")
)

// Request describes one request asking for admission.
type Request struct {
	// Policy names the policy explicitly. Empty selects by Route.
	Policy string

	// Route is the request path, matched against policy route prefixes.
	Route string

	// Key identifies the tenant. Empty is a valid key and is how
	// single-tenant deployments call the registry.
	Key string

	// SubmittedAt is when the caller received the request. Only policies
	// with stamp "submission" use it.
	SubmittedAt time.Time

	// RequestID is copied into the journal.
	RequestID string
}

// Decision is the outcome of Registry.Admit.
type Decision struct {
	// Allowed indicates if the request may proceed.
	Allowed bool

	// Policy is the name of the policy that decided.
	Policy string

	// Key is the tenant key.
	Key string

	// Result is the gate's final result. It is Rejected for a shadowed
	// request even though Allowed is true.
	Result ratelimit.Result

	// Action is the enforcement action configured for the policy.
	Action enforcement.Action

	// Limit is the policy's admissions per window.
	Limit int

	// Remaining is how many admissions the key's window still holds.
	Remaining int

	// RetryAfter is when the key's window next has room (if rejected).
	RetryAfter time.Duration

	// Window is the policy's window length.
	Window time.Duration

	// Attempts counts gate checks, more than one when queued.
	Attempts int

	// Queued is how long the request waited in the queue.
	Queued time.Duration

	// Reason explains a rejection or a shadowed rejection.
	Reason string
}

// Shadowed reports whether the request was let through only because the
// policy runs in shadow mode.
func (d *Decision) Shadowed() bool {
	return d.Allowed && d.Result == ratelimit.Rejected
}

// Err returns a *LimitError when the request is not allowed, nil otherwise.
func (d *Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return &LimitError{
		Policy:     d.Policy,
		Key:        d.Key,
		Limit:      d.Limit,
		RetryAfter: d.RetryAfter,
		Err:        ErrRateLimited,
	}
}

// LimitError provides detailed context about a rejection.
type LimitError struct {
	// Policy is the policy that rejected.
	Policy string

	// Key is the tenant key.
	Key string

	// Limit is the configured ceiling.
	Limit int

	// RetryAfter is when the window next has room.
	RetryAfter time.Duration

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *LimitError) Error() string {
	return fmt.Sprintf("%v: policy=%s limit=%d retry_after=%v",
		e.Err, e.Policy, e.Limit, e.RetryAfter)
}

// Unwrap returns the underlying error for error wrapping.
func (e *LimitError) Unwrap() error {
	return e.Err
}

// PolicyInfo describes a configured policy.
type PolicyInfo struct {
	Name    string        `json:"name" yaml:"name"`
	Limit   int           `json:"limit" yaml:"limit"`
	Window  time.Duration `json:"window" yaml:"window"`
	Stamp   string        `json:"stamp" yaml:"stamp"`
	Action  string        `json:"action" yaml:"action"`
	Routes  []string      `json:"routes,omitempty" yaml:"routes,omitempty"`
	Default bool          `json:"default" yaml:"default"`

	// Keys is the number of keys the policy's gate currently tracks.
	Keys int `json:"keys" yaml:"keys"`

	// Queued is the number of requests waiting in the policy's queue.
	Queued int `json:"queued" yaml:"queued"`
}
