// Package limits admits or rejects requests against named sliding-window
// policies.
//
// # Overview
//
// A policy caps how many requests one tenant key may make within any
// trailing window. The Registry keeps one ratelimit.Gate per policy and
// picks the policy for each request:
//
//   - the policy the request names explicitly, else
//   - the policy owning the longest matching route prefix, else
//   - the default policy
//
// # Architecture
//
// The package is organized into sub-packages:
//
//   - ratelimit: TTL counters and the per-key admission gate
//   - enforcement: what a rejection turns into (block, queue, shadow)
//   - storage: the decision journal (memory, SQLite, Redis)
//   - maintenance: cron jobs sweeping idle keys and pruning the journal
//
// # Usage
//
//	registry, err := limits.NewRegistry(&cfg.Limits, limits.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	defer registry.Close()
//
//	decision, err := registry.Admit(ctx, limits.Request{Route: "/v1/chat", Key: "alice"})
//	if err != nil {
//	    return err
//	}
//	if !decision.Allowed {
//	    return decision.Err() // wraps limits.ErrRateLimited
//	}
//
// # Reload
//
// Registry.Reload swaps the policy set atomically. A policy whose limit,
// window and stamp are unchanged keeps its gate, so tenants do not get a
// fresh window just because an unrelated policy was edited.
//
// # Thread Safety
//
// All Registry methods are safe for concurrent use.
package limits
