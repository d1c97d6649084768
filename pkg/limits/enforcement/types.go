package enforcement

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"mercator-hq/turnstile/pkg/limits/ratelimit"
)

// Action defines what to do when a gate rejects a request.
type Action string

const (
	// ActionBlock rejects the request with 429 Too Many Requests.
	ActionBlock Action = "block"

	// ActionQueue holds the request and retries until the gate admits it or
	// the queue timeout passes.
	ActionQueue Action = "queue"

	// ActionShadow lets the request through and only reports that it would
	// have been rejected.
	ActionShadow Action = "shadow"
)

// ParseAction parses an action name. An empty string selects ActionBlock.
func ParseAction(s string) (Action, error) {
	switch a := Action(strings.ToLower(strings.TrimSpace(s))); a {
	case "":
		return ActionBlock, nil
	case ActionBlock, ActionQueue, ActionShadow:
		return a, nil
	default:
		return "", fmt.Errorf("unknown enforcement action %q (want block, queue or shadow)", s)
	}
}

var (
	// ErrQueueFull is reported when ActionQueue finds QueueDepth requests
	// already waiting. The request is blocked.
	ErrQueueFull = errors.New("admission queue full")

	// ErrQueueTimeout is reported when a queued request was not admitted
	// within QueueTimeout.
	ErrQueueTimeout = errors.New("admission queue timeout")
)

// Config contains configuration for the enforcer.
type Config struct {
	// Action applied to rejections.
	// Default: ActionBlock
	Action Action

	// QueueDepth is the maximum number of requests waiting at once
	// (when action=queue).
	// Default: 100
	QueueDepth int

	// QueueTimeout is how long a queued request waits before giving up.
	// Default: 5 seconds
	QueueTimeout time.Duration
}

// AdmitFunc makes one admission attempt.
type AdmitFunc func() ratelimit.Decision

// Result contains the result of an enforcement action.
type Result struct {
	// Allowed indicates if the request should proceed.
	Allowed bool

	// Action is the enforcement action that was taken.
	Action Action

	// Decision is the last gate decision.
	Decision ratelimit.Decision

	// Reason explains the outcome when the gate rejected at least once.
	Reason string

	// Err is ErrQueueFull or ErrQueueTimeout when queueing failed.
	Err error

	// RetryAfter suggests how long to wait before retrying (if not allowed).
	RetryAfter time.Duration

	// Attempts is the number of admission attempts made, including the first.
	Attempts int

	// Waited is the time spent queued.
	Waited time.Duration
}

// Throttled reports whether the gate rejected the request on its final
// attempt, including shadowed rejections.
func (r *Result) Throttled() bool {
	return !r.Decision.Admitted()
}
