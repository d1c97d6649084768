package ratelimit

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sentinel errors returned by constructors.
var (
	// ErrInvalidConfig is the parent of every construction error.
	ErrInvalidConfig = errors.New("invalid rate limit configuration")

	// ErrInvalidLimit is returned when limit <= 0.
	ErrInvalidLimit = fmt.Errorf("%w: limit must be positive", ErrInvalidConfig)

	// ErrInvalidTTL is returned when ttl <= 0.
	ErrInvalidTTL = fmt.Errorf("%w: ttl must be positive", ErrInvalidConfig)

	// ErrInvalidStampPolicy is returned for an unknown stamp policy name.
	ErrInvalidStampPolicy = fmt.Errorf("%w: unknown stamp policy", ErrInvalidConfig)
)

// Result is the outcome of an admission check.
type Result int

const (
	// Rejected means the window is full; nothing was recorded.
	Rejected Result = iota

	// Admitted means the request was counted and may proceed.
	Admitted
)

// String returns "admitted" or "rejected".
func (r Result) String() string {
	if r == Admitted {
		return "admitted"
	}
	return "rejected"
}

// Decision contains the result of a TryAdmit call.
type Decision struct {
	// Result is Admitted or Rejected.
	Result Result

	// Limit is the configured ceiling per window.
	Limit int

	// Remaining is how many more admissions the window holds right now.
	Remaining int

	// RetryAfter is how long until the oldest live event expires.
	// Only set on rejection.
	RetryAfter time.Duration
}

// Admitted reports whether the request was admitted.
func (d Decision) Admitted() bool {
	return d.Result == Admitted
}

// StampPolicy selects which instant a submitted request is recorded at.
type StampPolicy int

const (
	// StampCompletion records the instant the admission check runs.
	// Any delay a request suffered before reaching the gate is not visible
	// to the window.
	StampCompletion StampPolicy = iota

	// StampSubmission records the instant the caller says the request was
	// submitted. Requests delayed before the check expire earlier.
	StampSubmission
)

// String returns the config name of the policy.
func (p StampPolicy) String() string {
	if p == StampSubmission {
		return "submission"
	}
	return "completion"
}

// ParseStampPolicy parses "completion" or "submission".
// An empty string selects StampCompletion.
func ParseStampPolicy(s string) (StampPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "completion":
		return StampCompletion, nil
	case "submission":
		return StampSubmission, nil
	default:
		return StampCompletion, fmt.Errorf("%w: %q", ErrInvalidStampPolicy, s)
	}
}
