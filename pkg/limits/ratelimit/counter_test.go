package ratelimit

import (
	"errors"
	"testing"
	"time"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// ============================================================================
// TTLCounter Tests
// ============================================================================

func TestNewTTLCounter_InvalidTTL(t *testing.T) {
	tests := []struct {
		name string
		ttl  time.Duration
	}{
		{name: "zero", ttl: 0},
		{name: "negative", ttl: -time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			counter, err := NewTTLCounter(tt.ttl)
			if err == nil {
				t.Fatal("Expected error for invalid ttl")
			}
			if counter != nil {
				t.Error("Expected nil counter on error")
			}
			if !errors.Is(err, ErrInvalidTTL) {
				t.Errorf("Expected ErrInvalidTTL, got %v", err)
			}
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Expected error to wrap ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestTTLCounter_Scenario(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping real-clock test in short mode")
	}

	counter, err := NewTTLCounter(30 * time.Millisecond)
	if err != nil {
		t.Fatalf("NewTTLCounter() error = %v", err)
	}

	counter.Increment()
	counter.Increment()
	if got := counter.Count(); got != 2 {
		t.Errorf("Expected count 2, got %d", got)
	}

	time.Sleep(20 * time.Millisecond)
	if got := counter.Count(); got != 2 {
		t.Errorf("Expected count 2 after 20ms, got %d", got)
	}

	counter.Increment()
	if got := counter.Count(); got != 3 {
		t.Errorf("Expected count 3, got %d", got)
	}

	time.Sleep(20 * time.Millisecond)
	if got := counter.Count(); got != 1 {
		t.Errorf("Expected count 1 after 40ms, got %d", got)
	}

	time.Sleep(20 * time.Millisecond)
	if got := counter.Count(); got != 0 {
		t.Errorf("Expected count 0 after 60ms, got %d", got)
	}
}

func TestTTLCounter_ScenarioManualClock(t *testing.T) {
	clock := NewManualClock(epoch)
	counter, err := NewTTLCounter(30*time.Millisecond, WithCounterClock(clock))
	if err != nil {
		t.Fatalf("NewTTLCounter() error = %v", err)
	}

	counter.Increment()
	counter.Increment()
	steps := []struct {
		advance   time.Duration
		increment bool
		want      int
	}{
		{advance: 0, want: 2},
		{advance: 20 * time.Millisecond, want: 2},
		{advance: 0, increment: true, want: 3},
		{advance: 20 * time.Millisecond, want: 1},
		{advance: 20 * time.Millisecond, want: 0},
	}

	for i, step := range steps {
		clock.Advance(step.advance)
		if step.increment {
			counter.Increment()
		}
		if got := counter.Count(); got != step.want {
			t.Errorf("step %d: Expected count %d, got %d", i, step.want, got)
		}
	}
}

func TestTTLCounter_Boundary(t *testing.T) {
	clock := NewManualClock(epoch)
	counter, _ := NewTTLCounter(time.Second, WithCounterClock(clock))

	counter.Increment()

	clock.Advance(time.Second - time.Nanosecond)
	if got := counter.Count(); got != 1 {
		t.Errorf("Expected event to count just before ttl, got %d", got)
	}

	clock.Advance(time.Nanosecond)
	if got := counter.Count(); got != 0 {
		t.Errorf("Expected event aged exactly ttl to be expired, got %d", got)
	}
}

func TestTTLCounter_MonotonicPurge(t *testing.T) {
	clock := NewManualClock(epoch)
	counter, _ := NewTTLCounter(100*time.Millisecond, WithCounterClock(clock))

	for i := 0; i < 10; i++ {
		counter.Increment()
		clock.Advance(10 * time.Millisecond)
	}

	last := counter.Count()
	for i := 0; i < 20; i++ {
		clock.Advance(7 * time.Millisecond)
		got := counter.Count()
		if got > last {
			t.Fatalf("Count grew without increments: %d -> %d", last, got)
		}
		last = got
	}
	if last != 0 {
		t.Errorf("Expected all events expired, got %d", last)
	}
}

func TestTTLCounter_IncrementAtKeepsOrder(t *testing.T) {
	clock := NewManualClock(epoch.Add(time.Second))
	counter, _ := NewTTLCounter(time.Second, WithCounterClock(clock))

	counter.IncrementAt(epoch.Add(900 * time.Millisecond))
	counter.IncrementAt(epoch.Add(300 * time.Millisecond))
	counter.IncrementAt(epoch.Add(600 * time.Millisecond))

	oldest, ok := counter.Oldest()
	if !ok {
		t.Fatal("Expected an oldest stamp")
	}
	if !oldest.Equal(epoch.Add(300 * time.Millisecond)) {
		t.Errorf("Expected oldest at +300ms, got %v", oldest.Sub(epoch))
	}

	clock.Set(epoch.Add(1400 * time.Millisecond))
	if got := counter.Count(); got != 2 {
		t.Errorf("Expected 2 live events, got %d", got)
	}

	clock.Set(epoch.Add(1700 * time.Millisecond))
	if got := counter.Count(); got != 1 {
		t.Errorf("Expected 1 live event, got %d", got)
	}
}

func TestTTLCounter_ReuseAfterDrain(t *testing.T) {
	clock := NewManualClock(epoch)
	counter, _ := NewTTLCounter(time.Second, WithCounterClock(clock))

	for round := 0; round < 5; round++ {
		for i := 0; i < 100; i++ {
			counter.Increment()
			clock.Advance(time.Millisecond)
		}
		if got := counter.Count(); got != 100 {
			t.Fatalf("round %d: Expected 100, got %d", round, got)
		}
		clock.Advance(950 * time.Millisecond)
		if got := counter.Count(); got != 49 {
			t.Fatalf("round %d: Expected 49 after partial expiry, got %d", round, got)
		}
		clock.Advance(time.Second)
		if got := counter.Count(); got != 0 {
			t.Fatalf("round %d: Expected 0, got %d", round, got)
		}
	}
}

func TestTTLCounter_OldestEmpty(t *testing.T) {
	counter, _ := NewTTLCounter(time.Second)
	if _, ok := counter.Oldest(); ok {
		t.Error("Expected no oldest stamp for empty counter")
	}
	if counter.TTL() != time.Second {
		t.Errorf("Expected ttl 1s, got %v", counter.TTL())
	}
}

// ============================================================================
// Benchmarks
// ============================================================================

func BenchmarkTTLCounter_IncrementCount(b *testing.B) {
	counter, _ := NewTTLCounter(time.Second)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		counter.Increment()
		counter.Count()
	}
}
