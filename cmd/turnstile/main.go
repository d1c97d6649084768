// Turnstile is a sliding-window admission service.
//
// Every request names a tenant key. A key may be admitted at most limit
// times within any trailing window; further requests are rejected (or
// queued, or merely logged in shadow mode) until older admissions age out.
//
// Usage:
//
//	# Start the decision service
//	turnstile run --config config.yaml
//
//	# Fire a burst at an in-process gate and check the outcome
//	turnstile simulate --keys bob,alice --requests 15 --expect 10
//
//	# Fire the same burst at a running service
//	turnstile simulate --target http://127.0.0.1:8080 --keys bob,alice --requests 15
//
//	# Check a configuration file
//	turnstile validate --config config.yaml
//
//	# Summarise recorded decisions
//	turnstile journal summary --since 1h
package main

func main() {
	Execute()
}
