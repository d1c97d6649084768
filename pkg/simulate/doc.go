// Package simulate fires bursts of concurrent requests at an admission
// gate and reports what was admitted.
//
// Each simulated request waits a fixed delay (the time a real request
// spends before reaching the limiter), is optionally paced by a
// golang.org/x/time/rate limiter, and then asks for admission. The target
// is either an in-process gate or a running decision service over HTTP.
//
//	gate, _ := ratelimit.NewGate[string](10, time.Second)
//	report, err := simulate.Run(ctx, simulate.Config{
//	    Keys:     []string{"bob", "alice"},
//	    Requests: 15,
//	    Delay:    200 * time.Millisecond,
//	}, simulate.NewGateTarget(gate), nil)
//
//	// report.Summary: bob 10/5, alice 10/5
package simulate
