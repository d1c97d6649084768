// Package enforcement decides what happens to a request its gate rejected.
//
// # Overview
//
// Each policy names one action:
//
//   - Block: reject the request with 429 Too Many Requests
//   - Queue: hold the request and retry until the window has room
//   - Shadow: let the request through, reporting the would-be rejection
//
// Shadow mode is how a new policy is tried against live traffic before it
// is switched to block.
//
// # Usage
//
//	enforcer := enforcement.NewEnforcer(enforcement.Config{
//	    Action:       enforcement.ActionQueue,
//	    QueueDepth:   100,
//	    QueueTimeout: 5 * time.Second,
//	})
//
//	admit := func() ratelimit.Decision { return gate.TryAdmit(key) }
//	result, err := enforcer.Enforce(ctx, admit(), admit)
//
// # Thread Safety
//
// The Enforcer is thread-safe and can be used concurrently from multiple goroutines.
package enforcement
