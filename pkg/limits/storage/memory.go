package storage

import (
	"context"
	"sync"
	"time"
)

// DefaultMemoryCapacity is the number of events MemoryBackend keeps.
const DefaultMemoryCapacity = 100000

// MemoryBackend keeps the most recent events in a fixed-size ring.
// All data is lost when the process exits.
//
// MemoryBackend is thread-safe and supports concurrent access using sync.RWMutex.
type MemoryBackend struct {
	mu     sync.RWMutex
	events []*Event
	next   int
	full   bool
	closed bool
}

// NewMemoryBackend creates a memory backend holding up to capacity events.
// capacity <= 0 selects DefaultMemoryCapacity.
func NewMemoryBackend(capacity int) *MemoryBackend {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	return &MemoryBackend{events: make([]*Event, capacity)}
}

// Record stores the event, overwriting the oldest when full.
func (m *MemoryBackend) Record(ctx context.Context, event *Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	copied := *event
	m.events[m.next] = &copied
	m.next++
	if m.next == len(m.events) {
		m.next = 0
		m.full = true
	}
	return nil
}

// Query returns matching events, newest first.
func (m *MemoryBackend) Query(ctx context.Context, filter Filter) ([]*Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}

	limit := filter.limit()
	var out []*Event
	m.eachNewestFirst(func(e *Event) bool {
		if filter.Match(e) {
			copied := *e
			out = append(out, &copied)
		}
		return len(out) < limit
	})
	return out, nil
}

// Summary aggregates every matching event.
func (m *MemoryBackend) Summary(ctx context.Context, filter Filter) (*Summary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}

	summary := NewSummary()
	m.eachNewestFirst(func(e *Event) bool {
		if filter.Match(e) {
			summary.Add(e)
		}
		return true
	})
	return summary, nil
}

// Cleanup drops events older than olderThan.
func (m *MemoryBackend) Cleanup(ctx context.Context, olderThan time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, ErrClosed
	}

	kept := make([]*Event, 0, m.lenLocked())
	removed := 0
	m.eachOldestFirst(func(e *Event) {
		if e.At.Before(olderThan) {
			removed++
			return
		}
		kept = append(kept, e)
	})

	capacity := len(m.events)
	m.events = make([]*Event, capacity)
	copy(m.events, kept)
	m.next = len(kept) % capacity
	m.full = len(kept) == capacity
	return removed, nil
}

// Len returns the number of stored events.
func (m *MemoryBackend) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lenLocked()
}

// Ping reports ErrClosed after Close.
func (m *MemoryBackend) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}
	return nil
}

// Close releases the stored events.
func (m *MemoryBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.events = make([]*Event, 1)
	m.next, m.full = 0, false
	return nil
}

func (m *MemoryBackend) lenLocked() int {
	if m.full {
		return len(m.events)
	}
	return m.next
}

// eachNewestFirst walks events from newest to oldest until fn returns false.
func (m *MemoryBackend) eachNewestFirst(fn func(*Event) bool) {
	n := m.lenLocked()
	for i := 0; i < n; i++ {
		idx := (m.next - 1 - i + len(m.events)) % len(m.events)
		if !fn(m.events[idx]) {
			return
		}
	}
}

// eachOldestFirst walks events from oldest to newest.
func (m *MemoryBackend) eachOldestFirst(fn func(*Event)) {
	n := m.lenLocked()
	start := 0
	if m.full {
		start = m.next
	}
	for i := 0; i < n; i++ {
		fn(m.events[(start+i)%len(m.events)])
	}
}
