package ratelimit

import "sync/atomic"

// InFlightLimiter caps how many requests may execute at the same time.
//
// It is a counting semaphore built on atomics:
//
//  1. Atomically increment the in-flight count
//  2. If the count now exceeds max: decrement and refuse
//  3. Otherwise: the caller holds a slot until Release
//
// A max of zero or less disables the cap.
type InFlightLimiter struct {
	max     int64
	current atomic.Int64
}

// NewInFlightLimiter creates a limiter allowing max concurrent holders.
//
// Example:
//
//	inflight := ratelimit.NewInFlightLimiter(256)
//	if !inflight.TryAcquire() {
//	    // busy
//	}
//	defer inflight.Release()
func NewInFlightLimiter(max int) *InFlightLimiter {
	return &InFlightLimiter{max: int64(max)}
}

// TryAcquire takes a slot if one is free.
// Callers that get true MUST call Release.
func (l *InFlightLimiter) TryAcquire() bool {
	if l.max <= 0 {
		l.current.Add(1)
		return true
	}
	if l.current.Add(1) > l.max {
		l.current.Add(-1)
		return false
	}
	return true
}

// Release gives back a slot taken by TryAcquire.
func (l *InFlightLimiter) Release() {
	l.current.Add(-1)
}

// InFlight returns the number of slots currently held.
func (l *InFlightLimiter) InFlight() int64 {
	return l.current.Load()
}

// Max returns the configured cap (<= 0 means unlimited).
func (l *InFlightLimiter) Max() int64 {
	return l.max
}
