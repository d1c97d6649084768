package ratelimit

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Gate admits at most limit requests per key within any trailing window of
// length ttl.
//
// Each key gets its own TTLCounter, created the first time the key is seen.
//
// # Algorithm
//
//  1. Look up the key's entry, creating it if needed
//  2. Lock the entry
//  3. Read the live count (this purges expired stamps)
//  4. If count >= limit: reject, nothing recorded
//  5. Otherwise: record one event and admit
//
// # Thread Safety
//
// Steps 3 to 5 run under the entry's mutex, so two concurrent calls for the
// same key can never both see room for one more. The key map is guarded by
// a separate RWMutex that is only held for lookup and insertion, so
// decisions for different keys never wait on each other.
type Gate[K comparable] struct {
	limit  atomic.Int64
	ttl    time.Duration
	clock  Clock
	policy atomic.Int32

	mu      sync.RWMutex
	entries map[K]*entry
}

// entry owns the counter of a single key.
type entry struct {
	mu      sync.Mutex
	counter *TTLCounter

	// retired is set by Sweep when the entry leaves the map. A caller that
	// finds it set after locking must look the key up again.
	retired bool
}

type gateSettings struct {
	clock  Clock
	policy StampPolicy
}

// Option configures a Gate or a Single.
type Option func(*gateSettings)

// WithClock sets the time source. Defaults to SystemClock.
func WithClock(clock Clock) Option {
	return func(s *gateSettings) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithStampPolicy sets which instant TryAdmitSubmitted records.
// Defaults to StampCompletion.
func WithStampPolicy(policy StampPolicy) Option {
	return func(s *gateSettings) {
		s.policy = policy
	}
}

// NewGate creates a gate allowing limit admissions per key per ttl.
//
// Example:
//
//	gate, err := ratelimit.NewGate[string](10, time.Second)
//	if err != nil {
//	    return err
//	}
//	if gate.TryAdmit("alice").Admitted() {
//	    // handle request
//	}
func NewGate[K comparable](limit int, ttl time.Duration, opts ...Option) (*Gate[K], error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidLimit, limit)
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidTTL, ttl)
	}

	settings := gateSettings{
		clock:  SystemClock(),
		policy: StampCompletion,
	}
	for _, opt := range opts {
		opt(&settings)
	}

	g := &Gate[K]{
		ttl:     ttl,
		clock:   settings.clock,
		entries: make(map[K]*entry),
	}
	g.limit.Store(int64(limit))
	g.policy.Store(int32(settings.policy))
	return g, nil
}

// TryAdmit decides whether a request for key may proceed, recording it at
// the current instant when admitted.
func (g *Gate[K]) TryAdmit(key K) Decision {
	return g.admit(key, time.Time{})
}

// TryAdmitSubmitted is TryAdmit for a request the caller saw at submittedAt.
// Under StampSubmission the admitted request is recorded at submittedAt;
// under StampCompletion submittedAt is ignored.
func (g *Gate[K]) TryAdmitSubmitted(key K, submittedAt time.Time) Decision {
	if g.Policy() != StampSubmission {
		submittedAt = time.Time{}
	}
	return g.admit(key, submittedAt)
}

// Count returns the live count for key without admitting anything.
// Unknown keys report 0 and are not added to the gate.
func (g *Gate[K]) Count(key K) int {
	g.mu.RLock()
	e, ok := g.entries[key]
	g.mu.RUnlock()
	if !ok {
		return 0
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.retired {
		return 0
	}
	return e.counter.Count()
}

// Len returns the number of keys currently tracked.
func (g *Gate[K]) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.entries)
}

// Keys returns a snapshot of the tracked keys in no particular order.
func (g *Gate[K]) Keys() []K {
	g.mu.RLock()
	defer g.mu.RUnlock()

	keys := make([]K, 0, len(g.entries))
	for k := range g.entries {
		keys = append(keys, k)
	}
	return keys
}

// Sweep drops the entries of keys with no live events and returns how many
// were dropped. A dropped key behaves exactly like a key never seen before.
func (g *Gate[K]) Sweep() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	removed := 0
	for key, e := range g.entries {
		e.mu.Lock()
		if e.counter.Count() == 0 {
			e.retired = true
			delete(g.entries, key)
			removed++
		}
		e.mu.Unlock()
	}
	return removed
}

// Limit returns the admissions allowed per window.
func (g *Gate[K]) Limit() int {
	return int(g.limit.Load())
}

// SetLimit changes the admissions allowed per window. Live windows are kept:
// a key that already used more than the new limit is rejected until enough
// of its events expire.
func (g *Gate[K]) SetLimit(limit int) error {
	if limit <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidLimit, limit)
	}
	g.limit.Store(int64(limit))
	return nil
}

// SetStampPolicy changes which instant TryAdmitSubmitted records from now on.
func (g *Gate[K]) SetStampPolicy(policy StampPolicy) {
	g.policy.Store(int32(policy))
}

// TTL returns the window length.
func (g *Gate[K]) TTL() time.Duration {
	return g.ttl
}

// Policy returns the stamp policy.
func (g *Gate[K]) Policy() StampPolicy {
	return StampPolicy(g.policy.Load())
}

// admit runs the per-key critical section. A zero at means "now".
func (g *Gate[K]) admit(key K, at time.Time) Decision {
	for {
		e := g.getOrCreate(key)

		e.mu.Lock()
		if e.retired {
			e.mu.Unlock()
			continue
		}
		d := g.decideLocked(e, at)
		e.mu.Unlock()
		return d
	}
}

// decideLocked compares the live count with the limit and records the
// request when there is room. Caller must hold e.mu.
func (g *Gate[K]) decideLocked(e *entry, at time.Time) Decision {
	now := g.clock.Now()
	limit := g.Limit()

	count := e.counter.Count()
	if count >= limit {
		d := Decision{Result: Rejected, Limit: limit}
		if oldest, ok := e.counter.Oldest(); ok {
			if wait := oldest.Add(g.ttl).Sub(now); wait > 0 {
				d.RetryAfter = wait
			}
		}
		return d
	}

	if at.IsZero() {
		e.counter.Increment()
	} else {
		e.counter.IncrementAt(g.clampStamp(e, at, now))
	}

	return Decision{
		Result:    Admitted,
		Limit:     limit,
		Remaining: limit - e.counter.Count(),
	}
}

// clampStamp bounds a submission stamp to [newest live stamp, now] and
// keeps it live at now, so an admitted request always occupies a slot until
// at least every earlier admission has expired. Caller must hold e.mu.
func (g *Gate[K]) clampStamp(e *entry, at, now time.Time) time.Time {
	if at.After(now) {
		return now
	}
	if floor := now.Add(-g.ttl + time.Nanosecond); at.Before(floor) {
		at = floor
	}
	if newest, ok := e.counter.newest(); ok && at.Before(newest) {
		at = newest
	}
	return at
}

// getOrCreate returns the entry for key, creating it on first use.
// Double-checked so that concurrent first requests share one entry.
func (g *Gate[K]) getOrCreate(key K) *entry {
	g.mu.RLock()
	e, ok := g.entries[key]
	g.mu.RUnlock()
	if ok {
		return e
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if e, ok := g.entries[key]; ok {
		return e
	}
	e = &entry{counter: newCounter(g.ttl, g.clock)}
	g.entries[key] = e
	return e
}
