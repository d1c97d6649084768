package storage

import (
	"context"
	"errors"
	"time"
)

// Backend stores the decision journal: one Event per admission decision.
//
// The journal is an audit trail. Nothing in it is ever read back into a
// gate, so losing it never changes an admission outcome.
// Implementations must be safe for concurrent use.
type Backend interface {
	// Record appends one event.
	Record(ctx context.Context, event *Event) error

	// Query returns events matching filter, newest first.
	Query(ctx context.Context, filter Filter) ([]*Event, error)

	// Summary aggregates admitted/rejected counts matching filter.
	Summary(ctx context.Context, filter Filter) (*Summary, error)

	// Cleanup removes events recorded before olderThan and returns how many.
	Cleanup(ctx context.Context, olderThan time.Time) (int, error)

	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases any resources held by the backend.
	Close() error
}

// ErrClosed is returned by operations on a closed backend or recorder.
var ErrClosed = errors.New("journal closed")

// Event is one admission decision.
type Event struct {
	// ID uniquely identifies the event.
	ID string `json:"id"`

	// At is when the decision was made.
	At time.Time `json:"at"`

	// Policy is the name of the policy that decided.
	Policy string `json:"policy"`

	// Key is the tenant key.
	Key string `json:"key"`

	// Admitted is the gate's result.
	Admitted bool `json:"admitted"`

	// Allowed is the final outcome after enforcement (shadow mode lets a
	// rejected request through, queueing may admit it later).
	Allowed bool `json:"allowed"`

	// Action is the enforcement action applied to a rejection.
	Action string `json:"action,omitempty"`

	// RequestID correlates the event with request logs.
	RequestID string `json:"request_id,omitempty"`
}

// Filter selects events. Zero fields match everything.
type Filter struct {
	Policy string
	Key    string
	Since  time.Time
	Until  time.Time

	// Limit caps Query results. 0 means the backend default.
	Limit int
}

// Match reports whether e passes the filter.
func (f Filter) Match(e *Event) bool {
	if f.Policy != "" && e.Policy != f.Policy {
		return false
	}
	if f.Key != "" && e.Key != f.Key {
		return false
	}
	if !f.Since.IsZero() && e.At.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && !e.At.Before(f.Until) {
		return false
	}
	return true
}

// DefaultQueryLimit caps Query results when Filter.Limit is 0.
const DefaultQueryLimit = 100

func (f Filter) limit() int {
	if f.Limit <= 0 {
		return DefaultQueryLimit
	}
	return f.Limit
}

// Counts holds admitted and rejected totals.
type Counts struct {
	Admitted int64 `json:"admitted"`
	Rejected int64 `json:"rejected"`
}

// Add counts one event.
func (c *Counts) Add(admitted bool) {
	if admitted {
		c.Admitted++
	} else {
		c.Rejected++
	}
}

// Summary aggregates journal events.
type Summary struct {
	Counts

	// ByPolicy breaks the totals down per policy.
	ByPolicy map[string]*Counts `json:"by_policy"`

	// ByKey breaks the totals down per tenant key.
	ByKey map[string]*Counts `json:"by_key"`
}

// NewSummary creates an empty summary.
func NewSummary() *Summary {
	return &Summary{
		ByPolicy: make(map[string]*Counts),
		ByKey:    make(map[string]*Counts),
	}
}

// Add folds one event into the summary.
func (s *Summary) Add(e *Event) {
	s.Counts.Add(e.Admitted)
	s.bucket(s.ByPolicy, e.Policy).Add(e.Admitted)
	s.bucket(s.ByKey, e.Key).Add(e.Admitted)
}

func (s *Summary) bucket(m map[string]*Counts, name string) *Counts {
	c, ok := m[name]
	if !ok {
		c = &Counts{}
		m[name] = c
	}
	return c
}
