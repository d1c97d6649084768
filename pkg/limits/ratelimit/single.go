package ratelimit

import "time"

// Single is a Gate with exactly one implicit key, for callers that limit a
// single tenant or a whole process.
type Single struct {
	gate *Gate[struct{}]
}

// NewSingle creates a single-key gate allowing limit admissions per ttl.
func NewSingle(limit int, ttl time.Duration, opts ...Option) (*Single, error) {
	gate, err := NewGate[struct{}](limit, ttl, opts...)
	if err != nil {
		return nil, err
	}
	return &Single{gate: gate}, nil
}

// TryAdmit decides whether one more request may proceed.
func (s *Single) TryAdmit() Decision {
	return s.gate.TryAdmit(struct{}{})
}

// TryAdmitSubmitted is TryAdmit for a request submitted at submittedAt.
func (s *Single) TryAdmitSubmitted(submittedAt time.Time) Decision {
	return s.gate.TryAdmitSubmitted(struct{}{}, submittedAt)
}

// Count returns the live count.
func (s *Single) Count() int {
	return s.gate.Count(struct{}{})
}

// Limit returns the admissions allowed per window.
func (s *Single) Limit() int {
	return s.gate.Limit()
}

// TTL returns the window length.
func (s *Single) TTL() time.Duration {
	return s.gate.TTL()
}
