// Package ratelimit implements sliding-window admission control.
//
// # Overview
//
// The package has two layers:
//
//   - TTLCounter: a log of event timestamps where each event stops counting
//     once it is ttl old. Expired events are purged lazily when the counter
//     is read.
//   - Gate: one TTLCounter per key, created on first use. TryAdmit admits a
//     request when the key's live count is below the limit and records it.
//
// Single is a Gate with one implicit key. InFlightLimiter is an unrelated
// concurrency cap used by the HTTP service.
//
// # Sliding Window
//
// The window is exact: an event recorded at t0 counts for every read at
// t < t0+ttl and for none at t >= t0+ttl.
//
//	gate, _ := ratelimit.NewGate[string](10, time.Second)
//	switch gate.TryAdmit(userID).Result {
//	case ratelimit.Admitted:
//	    // serve
//	case ratelimit.Rejected:
//	    // 429
//	}
//
// # Stamp Policy
//
// A request may wait (network, queueing) between being submitted and reaching
// the gate. StampCompletion, the default, records the instant of the check.
// StampSubmission records the instant passed to TryAdmitSubmitted.
//
// # Thread Safety
//
// Gate and Single are safe for concurrent use. The read-then-increment of a
// key is atomic with respect to other calls for the same key; calls for
// different keys do not block each other. A bare TTLCounter must be guarded
// by its owner.
package ratelimit
