package storage

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"mercator-hq/turnstile/pkg/telemetry/logging"
)

// RecorderConfig contains configuration for the journal recorder.
type RecorderConfig struct {
	// AsyncBuffer is the size of the async write channel buffer.
	// Default: 1000
	AsyncBuffer int

	// WriteTimeout bounds a single backend write.
	// Default: 5 seconds
	WriteTimeout time.Duration
}

// DefaultRecorderConfig returns the default recorder configuration.
func DefaultRecorderConfig() RecorderConfig {
	return RecorderConfig{
		AsyncBuffer:  1000,
		WriteTimeout: 5 * time.Second,
	}
}

// Recorder writes journal events to a Backend from a background goroutine so
// that admission never waits on storage.
//
// When the buffer is full the event is dropped and counted; the admission
// decision it describes has already been made.
type Recorder struct {
	backend    Backend
	config     RecorderConfig
	recordChan chan *Event
	wg         sync.WaitGroup
	done       chan struct{}
	closeOnce  sync.Once
	logger     *logging.Logger

	// mu orders Record's enqueue before Close, so nothing lands in the
	// buffer after the worker's final drain.
	mu     sync.RWMutex
	closed bool

	written atomic.Int64
	dropped atomic.Int64
	failed  atomic.Int64
}

// NewRecorder starts a recorder in front of backend. A nil logger discards logs.
func NewRecorder(backend Backend, config RecorderConfig, logger *logging.Logger) *Recorder {
	defaults := DefaultRecorderConfig()
	if config.AsyncBuffer <= 0 {
		config.AsyncBuffer = defaults.AsyncBuffer
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = defaults.WriteTimeout
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	r := &Recorder{
		backend:    backend,
		config:     config,
		recordChan: make(chan *Event, config.AsyncBuffer),
		done:       make(chan struct{}),
		logger:     logger.WithComponent("journal.recorder"),
	}

	r.wg.Add(1)
	go r.worker()

	r.logger.Debug("journal recorder initialized",
		"async_buffer", config.AsyncBuffer,
		"write_timeout", config.WriteTimeout,
	)

	return r
}

// Record enqueues event. It assigns an ID and timestamp when missing and
// never blocks. It returns false when the event was dropped.
func (r *Recorder) Record(event *Event) bool {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.At.IsZero() {
		event.At = time.Now()
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.dropped.Add(1)
		return false
	}

	select {
	case r.recordChan <- event:
		return true
	default:
		r.dropped.Add(1)
		r.logger.Warn("journal buffer full, dropping event",
			"policy", event.Policy,
			"capacity", r.config.AsyncBuffer,
		)
		return false
	}
}

// Backend returns the backend events are written to.
func (r *Recorder) Backend() Backend {
	return r.backend
}

// Written returns how many events reached the backend.
func (r *Recorder) Written() int64 { return r.written.Load() }

// Dropped returns how many events were discarded because the buffer was full
// or the recorder was closed.
func (r *Recorder) Dropped() int64 { return r.dropped.Load() }

// Failed returns how many backend writes returned an error.
func (r *Recorder) Failed() int64 { return r.failed.Load() }

// Pending returns the number of buffered events.
func (r *Recorder) Pending() int { return len(r.recordChan) }

// Close drains the buffer and waits for pending writes. It does not close
// the backend.
func (r *Recorder) Close() error {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		r.closed = true
		r.mu.Unlock()

		close(r.done)
		r.wg.Wait()
		r.logger.Debug("journal recorder shut down",
			"written", r.written.Load(),
			"dropped", r.dropped.Load(),
		)
	})
	return nil
}

// worker drains the channel until Close, then flushes what is left.
func (r *Recorder) worker() {
	defer r.wg.Done()

	for {
		select {
		case event := <-r.recordChan:
			r.write(event)

		case <-r.done:
			for {
				select {
				case event := <-r.recordChan:
					r.write(event)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) write(event *Event) {
	ctx, cancel := context.WithTimeout(context.Background(), r.config.WriteTimeout)
	defer cancel()

	start := time.Now()
	if err := r.backend.Record(ctx, event); err != nil {
		r.failed.Add(1)
		r.logger.Error("failed to record journal event",
			"event_id", event.ID,
			"policy", event.Policy,
			"error", err,
		)
		return
	}
	r.written.Add(1)

	if d := time.Since(start); d > r.config.WriteTimeout/2 {
		r.logger.Warn("slow journal write",
			"event_id", event.ID,
			"duration_ms", d.Milliseconds(),
		)
	}
}
