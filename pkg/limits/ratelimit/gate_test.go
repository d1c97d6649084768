package ratelimit

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// admitConcurrently issues n TryAdmit calls for key at once, each after
// delay, and returns how many were admitted and rejected.
func admitConcurrently(gate *Gate[string], key string, n int, delay time.Duration) (admitted, rejected int) {
	var wg sync.WaitGroup
	var a, r atomic.Int64
	start := make(chan struct{})

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if delay > 0 {
				time.Sleep(delay)
			}
			if gate.TryAdmit(key).Admitted() {
				a.Add(1)
			} else {
				r.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	return int(a.Load()), int(r.Load())
}

// ============================================================================
// Construction Tests
// ============================================================================

func TestNewGate_InvalidConfig(t *testing.T) {
	tests := []struct {
		name    string
		limit   int
		ttl     time.Duration
		wantErr error
	}{
		{name: "zero limit", limit: 0, ttl: time.Second, wantErr: ErrInvalidLimit},
		{name: "negative limit", limit: -3, ttl: time.Second, wantErr: ErrInvalidLimit},
		{name: "zero ttl", limit: 10, ttl: 0, wantErr: ErrInvalidTTL},
		{name: "negative ttl", limit: 10, ttl: -time.Millisecond, wantErr: ErrInvalidTTL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gate, err := NewGate[string](tt.limit, tt.ttl)
			if gate != nil {
				t.Error("Expected nil gate on error")
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Expected %v, got %v", tt.wantErr, err)
			}
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Expected error to wrap ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestNewGate_Accessors(t *testing.T) {
	gate, err := NewGate[int](7, 3*time.Second, WithStampPolicy(StampSubmission))
	if err != nil {
		t.Fatalf("NewGate() error = %v", err)
	}
	if gate.Limit() != 7 {
		t.Errorf("Expected limit 7, got %d", gate.Limit())
	}
	if gate.TTL() != 3*time.Second {
		t.Errorf("Expected ttl 3s, got %v", gate.TTL())
	}
	if gate.Policy() != StampSubmission {
		t.Errorf("Expected submission policy, got %v", gate.Policy())
	}
}

// ============================================================================
// Admission Tests
// ============================================================================

func TestGate_Ceiling(t *testing.T) {
	clock := NewManualClock(epoch)
	gate, _ := NewGate[string](3, time.Second, WithClock(clock))

	for i := 0; i < 3; i++ {
		d := gate.TryAdmit("k")
		if !d.Admitted() {
			t.Fatalf("request %d: Expected admitted", i)
		}
		if d.Remaining != 2-i {
			t.Errorf("request %d: Expected remaining %d, got %d", i, 2-i, d.Remaining)
		}
		clock.Advance(100 * time.Millisecond)
	}

	d := gate.TryAdmit("k")
	if d.Admitted() {
		t.Fatal("Expected fourth request to be rejected")
	}
	if d.Remaining != 0 || d.Limit != 3 {
		t.Errorf("Expected remaining 0 limit 3, got %d/%d", d.Remaining, d.Limit)
	}
	// First event at +0, now at +300ms.
	if d.RetryAfter != 700*time.Millisecond {
		t.Errorf("Expected RetryAfter 700ms, got %v", d.RetryAfter)
	}

	// Rejection must not be recorded.
	if got := gate.Count("k"); got != 3 {
		t.Errorf("Expected count 3 after rejection, got %d", got)
	}

	clock.Advance(700 * time.Millisecond)
	if !gate.TryAdmit("k").Admitted() {
		t.Error("Expected admission once the oldest event expired")
	}
}

func TestGate_CeilingOverTrailingWindows(t *testing.T) {
	clock := NewManualClock(epoch)
	ttl := time.Second
	limit := 5
	gate, _ := NewGate[string](limit, ttl, WithClock(clock))

	var admittedAt []time.Time
	for i := 0; i < 400; i++ {
		if gate.TryAdmit("k").Admitted() {
			admittedAt = append(admittedAt, clock.Now())
		}
		clock.Advance(37 * time.Millisecond)
	}

	for i := range admittedAt {
		inWindow := 0
		for j := i; j < len(admittedAt) && admittedAt[j].Sub(admittedAt[i]) < ttl; j++ {
			inWindow++
		}
		if inWindow > limit {
			t.Fatalf("Window starting at %v admitted %d > %d", admittedAt[i].Sub(epoch), inWindow, limit)
		}
	}
}

func TestGate_PerKeyIsolation(t *testing.T) {
	clock := NewManualClock(epoch)
	gate, _ := NewGate[string](2, time.Minute, WithClock(clock))

	gate.TryAdmit("alice")
	gate.TryAdmit("alice")
	if gate.TryAdmit("alice").Admitted() {
		t.Error("Expected alice to be limited")
	}

	for i := 0; i < 2; i++ {
		if !gate.TryAdmit("bob").Admitted() {
			t.Errorf("Expected bob request %d to be admitted", i)
		}
	}
	if gate.Count("alice") != 2 || gate.Count("bob") != 2 {
		t.Errorf("Expected 2/2, got %d/%d", gate.Count("alice"), gate.Count("bob"))
	}
}

func TestGate_NewKeyIndependentOfPopulation(t *testing.T) {
	clock := NewManualClock(epoch)
	busy, _ := NewGate[string](3, time.Second, WithClock(clock))
	empty, _ := NewGate[string](3, time.Second, WithClock(clock))

	for i := 0; i < 1000; i++ {
		busy.TryAdmit(fmt.Sprintf("tenant-%d", i))
	}

	for i := 0; i < 5; i++ {
		got := busy.TryAdmit("fresh")
		want := empty.TryAdmit("fresh")
		if got != want {
			t.Errorf("request %d: populated gate %+v, empty gate %+v", i, got, want)
		}
	}
}

func TestGate_CountDoesNotCreateKeys(t *testing.T) {
	gate, _ := NewGate[string](1, time.Second)

	if got := gate.Count("ghost"); got != 0 {
		t.Errorf("Expected 0 for unknown key, got %d", got)
	}
	if gate.Len() != 0 {
		t.Errorf("Expected no tracked keys, got %d", gate.Len())
	}

	gate.TryAdmit("a")
	gate.TryAdmit("b")
	if gate.Len() != 2 || len(gate.Keys()) != 2 {
		t.Errorf("Expected 2 tracked keys, got %d", gate.Len())
	}
}

// ============================================================================
// Concurrency Tests
// ============================================================================

func TestGate_DelayedBurstSingleKey(t *testing.T) {
	gate, _ := NewGate[string](10, time.Second)

	admitted, rejected := admitConcurrently(gate, "user", 15, 200*time.Millisecond)

	if admitted != 10 {
		t.Errorf("Expected 10 admitted, got %d", admitted)
	}
	if rejected != 5 {
		t.Errorf("Expected 5 rejected, got %d", rejected)
	}
}

func TestGate_DelayedBurstTwoKeys(t *testing.T) {
	gate, _ := NewGate[string](10, time.Second)

	type tally struct{ admitted, rejected int }
	results := make(map[string]tally)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, key := range []string{"bob", "alice"} {
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			a, r := admitConcurrently(gate, key, 15, 200*time.Millisecond)
			mu.Lock()
			results[key] = tally{a, r}
			mu.Unlock()
		}(key)
	}
	wg.Wait()

	total := tally{}
	for _, key := range []string{"bob", "alice"} {
		got := results[key]
		if got.admitted != 10 || got.rejected != 5 {
			t.Errorf("%s: Expected 10 admitted / 5 rejected, got %d / %d", key, got.admitted, got.rejected)
		}
		total.admitted += got.admitted
		total.rejected += got.rejected
	}
	if total.admitted != 20 || total.rejected != 10 {
		t.Errorf("Expected 20 admitted / 10 rejected in total, got %d / %d", total.admitted, total.rejected)
	}
}

func TestGate_RaceForLastSlot(t *testing.T) {
	for i := 0; i < 100; i++ {
		gate, _ := NewGate[string](1, time.Second)

		admitted, rejected := admitConcurrently(gate, "k", 2, 0)
		if admitted != 1 || rejected != 1 {
			t.Fatalf("iteration %d: Expected 1 admitted / 1 rejected, got %d / %d", i, admitted, rejected)
		}
	}
}

func TestGate_ConcurrentFirstRequestsShareCounter(t *testing.T) {
	gate, _ := NewGate[string](50, time.Minute)

	admitted, _ := admitConcurrently(gate, "new-key", 200, 0)

	if admitted != 50 {
		t.Errorf("Expected 50 admitted, got %d", admitted)
	}
	if gate.Len() != 1 {
		t.Errorf("Expected exactly one entry, got %d", gate.Len())
	}
}

func TestGate_SweepDuringAdmission(t *testing.T) {
	for i := 0; i < 20; i++ {
		gate, _ := NewGate[string](5, time.Hour)

		stop := make(chan struct{})
		var sweeps sync.WaitGroup
		sweeps.Add(1)
		go func() {
			defer sweeps.Done()
			for {
				select {
				case <-stop:
					return
				default:
					gate.Sweep()
				}
			}
		}()

		admitted, _ := admitConcurrently(gate, "k", 100, 0)
		close(stop)
		sweeps.Wait()

		if admitted != 5 {
			t.Fatalf("iteration %d: Expected 5 admitted while sweeping, got %d", i, admitted)
		}
	}
}

// ============================================================================
// Sweep Tests
// ============================================================================

func TestGate_SweepDropsIdleKeys(t *testing.T) {
	clock := NewManualClock(epoch)
	gate, _ := NewGate[string](2, time.Second, WithClock(clock))

	gate.TryAdmit("idle")
	clock.Advance(600 * time.Millisecond)
	gate.TryAdmit("active")
	clock.Advance(600 * time.Millisecond)

	if removed := gate.Sweep(); removed != 1 {
		t.Errorf("Expected 1 removed, got %d", removed)
	}
	if gate.Len() != 1 {
		t.Errorf("Expected 1 tracked key, got %d", gate.Len())
	}
	if gate.Count("active") != 1 {
		t.Errorf("Expected active key to keep its event, got %d", gate.Count("active"))
	}

	d := gate.TryAdmit("idle")
	if !d.Admitted() || d.Remaining != 1 {
		t.Errorf("Expected swept key to start fresh, got %+v", d)
	}
}

// ============================================================================
// Stamp Policy Tests
// ============================================================================

func TestGate_StampPolicy(t *testing.T) {
	tests := []struct {
		name        string
		policy      StampPolicy
		wantAfterTT bool
	}{
		{name: "completion ignores submission time", policy: StampCompletion, wantAfterTT: false},
		{name: "submission expires relative to submission", policy: StampSubmission, wantAfterTT: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := NewManualClock(epoch)
			gate, _ := NewGate[string](1, time.Second, WithClock(clock), WithStampPolicy(tt.policy))

			submitted := clock.Now()
			clock.Advance(400 * time.Millisecond)
			if !gate.TryAdmitSubmitted("k", submitted).Admitted() {
				t.Fatal("Expected first request to be admitted")
			}

			// One second after submission, 600ms after the check.
			clock.Advance(600 * time.Millisecond)
			got := gate.TryAdmit("k").Admitted()
			if got != tt.wantAfterTT {
				t.Errorf("Expected admitted=%v, got %v", tt.wantAfterTT, got)
			}
		})
	}
}

func TestGate_SubmissionInFutureIsClamped(t *testing.T) {
	clock := NewManualClock(epoch)
	gate, _ := NewGate[string](1, time.Second, WithClock(clock), WithStampPolicy(StampSubmission))

	gate.TryAdmitSubmitted("k", epoch.Add(time.Hour))

	clock.Advance(time.Second)
	if got := gate.Count("k"); got != 0 {
		t.Errorf("Expected future stamp clamped to now and expired, got %d", got)
	}
}

func TestGate_StaleSubmissionsKeepCeiling(t *testing.T) {
	clock := NewManualClock(epoch)
	gate, _ := NewGate[string](1, time.Second, WithClock(clock), WithStampPolicy(StampSubmission))

	admitted := 0
	for i := 0; i < 5; i++ {
		if gate.TryAdmitSubmitted("k", epoch.Add(-2*time.Second)).Admitted() {
			admitted++
		}
	}
	if admitted != 1 {
		t.Fatalf("Expected 1 admitted with limit 1, got %d", admitted)
	}
	if got := gate.Count("k"); got != 1 {
		t.Errorf("Expected the stale admission to occupy the window, got count %d", got)
	}

	clock.Advance(time.Millisecond)
	if got := gate.Count("k"); got != 0 {
		t.Errorf("Expected the stale admission to expire 1ms later, got count %d", got)
	}
}

func TestGate_OutOfOrderSubmissionsKeepCeiling(t *testing.T) {
	clock := NewManualClock(epoch)
	gate, _ := NewGate[string](3, time.Second, WithClock(clock), WithStampPolicy(StampSubmission))

	for _, ago := range []time.Duration{100, 900, 500} {
		if !gate.TryAdmitSubmitted("k", epoch.Add(-ago*time.Millisecond)).Admitted() {
			t.Fatalf("Expected submission %dms ago to be admitted", ago)
		}
	}
	if gate.TryAdmitSubmitted("k", epoch).Admitted() {
		t.Fatal("Expected fourth request rejected")
	}

	// Earlier submissions are recorded no earlier than the newest stamp, so
	// none of them frees capacity before it.
	clock.Advance(899 * time.Millisecond)
	if got := gate.Count("k"); got != 3 {
		t.Errorf("Expected all 3 still live, got %d", got)
	}
	clock.Advance(time.Millisecond)
	if got := gate.Count("k"); got != 0 {
		t.Errorf("Expected all 3 expired together, got %d", got)
	}
}

func TestGate_SetLimitKeepsWindows(t *testing.T) {
	clock := NewManualClock(epoch)
	gate, _ := NewGate[string](10, time.Second, WithClock(clock))

	for i := 0; i < 8; i++ {
		gate.TryAdmit("k")
	}
	if err := gate.SetLimit(5); err != nil {
		t.Fatalf("SetLimit failed: %v", err)
	}

	d := gate.TryAdmit("k")
	if d.Admitted() || d.Limit != 5 {
		t.Errorf("Expected rejection against the lowered limit, got %+v", d)
	}
	if got := gate.Count("k"); got != 8 {
		t.Errorf("Expected live count 8 kept, got %d", got)
	}

	if err := gate.SetLimit(0); !errors.Is(err, ErrInvalidLimit) {
		t.Errorf("Expected ErrInvalidLimit, got %v", err)
	}
	if gate.Limit() != 5 {
		t.Errorf("Expected limit unchanged after invalid SetLimit, got %d", gate.Limit())
	}
}

func TestParseStampPolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    StampPolicy
		wantErr bool
	}{
		{in: "", want: StampCompletion},
		{in: "completion", want: StampCompletion},
		{in: " Submission ", want: StampSubmission},
		{in: "arrival", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseStampPolicy(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseStampPolicy(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if err != nil {
				if !errors.Is(err, ErrInvalidConfig) {
					t.Errorf("Expected ErrInvalidConfig, got %v", err)
				}
				return
			}
			if got != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
			if got.String() != "completion" && got.String() != "submission" {
				t.Errorf("Unexpected String() %q", got.String())
			}
		})
	}
}

// ============================================================================
// Single Tests
// ============================================================================

func TestSingle_RaceForLastSlot(t *testing.T) {
	single, err := NewSingle(1, time.Second)
	if err != nil {
		t.Fatalf("NewSingle() error = %v", err)
	}

	var wg sync.WaitGroup
	var admitted atomic.Int64
	start := make(chan struct{})
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if single.TryAdmit().Admitted() {
				admitted.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	if admitted.Load() != 1 {
		t.Errorf("Expected exactly 1 admitted, got %d", admitted.Load())
	}
	if single.Count() != 1 {
		t.Errorf("Expected count 1, got %d", single.Count())
	}
}

func TestSingle_Window(t *testing.T) {
	clock := NewManualClock(epoch)
	single, _ := NewSingle(2, time.Second, WithClock(clock))

	single.TryAdmit()
	single.TryAdmitSubmitted(clock.Now())
	if single.TryAdmit().Admitted() {
		t.Error("Expected third request to be rejected")
	}

	clock.Advance(time.Second)
	if !single.TryAdmit().Admitted() {
		t.Error("Expected admission after the window passed")
	}
	if single.Limit() != 2 || single.TTL() != time.Second {
		t.Errorf("Unexpected accessors %d / %v", single.Limit(), single.TTL())
	}
}

func TestNewSingle_InvalidConfig(t *testing.T) {
	if _, err := NewSingle(0, time.Second); !errors.Is(err, ErrInvalidLimit) {
		t.Errorf("Expected ErrInvalidLimit, got %v", err)
	}
}

// ============================================================================
// InFlightLimiter Tests
// ============================================================================

func TestInFlightLimiter_Basic(t *testing.T) {
	limiter := NewInFlightLimiter(2)

	if !limiter.TryAcquire() || !limiter.TryAcquire() {
		t.Fatal("Expected two slots")
	}
	if limiter.TryAcquire() {
		t.Error("Expected third acquire to fail")
	}
	if limiter.InFlight() != 2 {
		t.Errorf("Expected 2 in flight, got %d", limiter.InFlight())
	}

	limiter.Release()
	if !limiter.TryAcquire() {
		t.Error("Expected acquire after release")
	}
}

func TestInFlightLimiter_Unlimited(t *testing.T) {
	limiter := NewInFlightLimiter(0)

	for i := 0; i < 1000; i++ {
		if !limiter.TryAcquire() {
			t.Fatal("Expected unlimited limiter to always acquire")
		}
	}
	if limiter.Max() != 0 {
		t.Errorf("Expected max 0, got %d", limiter.Max())
	}
}

func TestInFlightLimiter_Concurrent(t *testing.T) {
	limiter := NewInFlightLimiter(10)

	var wg sync.WaitGroup
	var peak, current atomic.Int64
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !limiter.TryAcquire() {
				return
			}
			defer limiter.Release()
			n := current.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			current.Add(-1)
		}()
	}
	wg.Wait()

	if peak.Load() > 10 {
		t.Errorf("Expected at most 10 concurrent holders, saw %d", peak.Load())
	}
	if limiter.InFlight() != 0 {
		t.Errorf("Expected 0 in flight after all released, got %d", limiter.InFlight())
	}
}

// ============================================================================
// Benchmarks
// ============================================================================

func BenchmarkGate_TryAdmit(b *testing.B) {
	gate, _ := NewGate[string](1<<30, time.Second)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		gate.TryAdmit("k")
	}
}

func BenchmarkGate_TryAdmitManyKeys(b *testing.B) {
	gate, _ := NewGate[int](100, time.Second)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			gate.TryAdmit(i % 1024)
			i++
		}
	})
}
