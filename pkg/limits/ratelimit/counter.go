package ratelimit

import (
	"fmt"
	"sort"
	"time"
)

// TTLCounter counts events that stop counting once they are older than a
// fixed time-to-live.
//
// # Algorithm
//
//  1. Increment appends the current instant to a chronological log
//  2. Count pops every stamp with now >= stamp+ttl from the front of the log
//  3. The remaining length is the live count
//
// Because stamps are kept in chronological order, expired stamps always form
// a contiguous prefix and a read only touches the entries it discards.
// A stamp whose age is exactly ttl is expired.
//
// # Thread Safety
//
// TTLCounter is not safe for concurrent use. Count mutates the log, so every
// call (reads included) must be serialized by the owner. Gate serializes
// access with a per-key mutex.
type TTLCounter struct {
	ttl    time.Duration
	clock  Clock
	stamps []time.Time
}

// CounterOption configures a TTLCounter.
type CounterOption func(*TTLCounter)

// WithCounterClock sets the time source of a counter.
func WithCounterClock(clock Clock) CounterOption {
	return func(c *TTLCounter) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// NewTTLCounter creates a counter whose events expire after ttl.
//
// Example:
//
//	counter, err := ratelimit.NewTTLCounter(30 * time.Millisecond)
//	if err != nil {
//	    return err
//	}
//	counter.Increment()
//	live := counter.Count()
func NewTTLCounter(ttl time.Duration, opts ...CounterOption) (*TTLCounter, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidTTL, ttl)
	}

	c := &TTLCounter{
		ttl:   ttl,
		clock: SystemClock(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// newCounter builds a counter for a gate entry; ttl was validated by the gate.
func newCounter(ttl time.Duration, clock Clock) *TTLCounter {
	return &TTLCounter{ttl: ttl, clock: clock}
}

// Increment records one event at the current instant.
func (c *TTLCounter) Increment() {
	c.stamps = append(c.stamps, c.clock.Now())
}

// IncrementAt records one event at the given instant.
// Stamps older than the newest one are inserted in order so the log stays
// chronological.
func (c *TTLCounter) IncrementAt(at time.Time) {
	n := len(c.stamps)
	if n == 0 || !at.Before(c.stamps[n-1]) {
		c.stamps = append(c.stamps, at)
		return
	}

	i := sort.Search(n, func(i int) bool { return c.stamps[i].After(at) })
	c.stamps = append(c.stamps, time.Time{})
	copy(c.stamps[i+1:], c.stamps[i:])
	c.stamps[i] = at
}

// Count purges expired events and returns the number still live.
func (c *TTLCounter) Count() int {
	c.purge(c.clock.Now())
	return len(c.stamps)
}

// Oldest returns the oldest live stamp.
// The boolean is false when the counter holds no live events.
func (c *TTLCounter) Oldest() (time.Time, bool) {
	c.purge(c.clock.Now())
	if len(c.stamps) == 0 {
		return time.Time{}, false
	}
	return c.stamps[0], true
}

// newest returns the most recent stamp, live or not.
func (c *TTLCounter) newest() (time.Time, bool) {
	if len(c.stamps) == 0 {
		return time.Time{}, false
	}
	return c.stamps[len(c.stamps)-1], true
}

// TTL returns the time-to-live of counted events.
func (c *TTLCounter) TTL() time.Duration {
	return c.ttl
}

// purge drops the expired prefix of the log.
func (c *TTLCounter) purge(now time.Time) {
	expired := 0
	for expired < len(c.stamps) && !now.Before(c.stamps[expired].Add(c.ttl)) {
		expired++
	}
	if expired == 0 {
		return
	}

	// Copy live stamps down once the dead prefix dominates the backing array.
	if expired == len(c.stamps) {
		c.stamps = c.stamps[:0]
		return
	}
	if expired > cap(c.stamps)/2 {
		live := make([]time.Time, len(c.stamps)-expired, cap(c.stamps)/2+1)
		copy(live, c.stamps[expired:])
		c.stamps = live
		return
	}
	c.stamps = c.stamps[expired:]
}
