package maintenance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"mercator-hq/turnstile/pkg/limits/storage"
	"mercator-hq/turnstile/pkg/telemetry/logging"
)

// Sweeper drops idle keys and reports how many it dropped.
// *limits.Registry implements it.
type Sweeper interface {
	Sweep() int
}

// Config selects when each job runs. An empty schedule disables its job.
type Config struct {
	// SweepSchedule is a cron expression for dropping idle keys.
	SweepSchedule string

	// CleanupSchedule is a cron expression for journal retention.
	CleanupSchedule string

	// Retention is how long journal events are kept.
	Retention time.Duration
}

// Scheduler runs key sweeps and journal cleanup on cron schedules.
//
// Common cron expressions:
//   - "*/5 * * * *"  - Every 5 minutes
//   - "@hourly"      - Every hour
//   - "0 3 * * *"    - Daily at 3 AM
type Scheduler struct {
	config  Config
	sweeper Sweeper
	journal storage.Backend
	now     func() time.Time

	cron    *cron.Cron
	mu      sync.Mutex
	logger  *logging.Logger
	running bool

	sweepEntry   cron.EntryID
	cleanupEntry cron.EntryID
}

// NewScheduler creates a maintenance scheduler. sweeper or journal may be nil
// to skip the corresponding job.
func NewScheduler(config Config, sweeper Sweeper, journal storage.Backend, logger *logging.Logger) *Scheduler {
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logger.WithComponent("limits.maintenance")

	cronLogger := cronLogger{logger: logger}
	return &Scheduler{
		config:  config,
		sweeper: sweeper,
		journal: journal,
		now:     time.Now,
		cron: cron.New(
			cron.WithLogger(cronLogger),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		logger: logger,
	}
}

// Start schedules the configured jobs and starts the cron runner. The
// scheduler stops when ctx ends.
//
// If both schedules are empty (or their targets are nil), Start does nothing.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	if s.sweeper != nil && s.config.SweepSchedule != "" {
		id, err := s.cron.AddFunc(s.config.SweepSchedule, func() { s.RunSweep() })
		if err != nil {
			return fmt.Errorf("invalid sweep schedule %q: %w", s.config.SweepSchedule, err)
		}
		s.sweepEntry = id
	}

	if s.journal != nil && s.config.CleanupSchedule != "" && s.config.Retention > 0 {
		id, err := s.cron.AddFunc(s.config.CleanupSchedule, func() {
			_, _ = s.RunCleanup(ctx)
		})
		if err != nil {
			return fmt.Errorf("invalid cleanup schedule %q: %w", s.config.CleanupSchedule, err)
		}
		s.cleanupEntry = id
	}

	if s.sweepEntry == 0 && s.cleanupEntry == 0 {
		s.logger.Info("no maintenance schedule configured, skipping scheduler")
		return nil
	}

	s.cron.Start()
	s.running = true

	s.logger.Info("maintenance scheduler started",
		"sweep_schedule", s.config.SweepSchedule,
		"cleanup_schedule", s.config.CleanupSchedule,
		"retention", s.config.Retention,
	)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

// RunSweep drops idle keys now.
func (s *Scheduler) RunSweep() int {
	if s.sweeper == nil {
		return 0
	}

	removed := s.sweeper.Sweep()
	if removed > 0 {
		s.logger.Info("sweep completed", "removed_keys", removed)
	} else {
		s.logger.Debug("sweep completed, no idle keys")
	}
	return removed
}

// RunCleanup deletes journal events older than the retention period now.
func (s *Scheduler) RunCleanup(ctx context.Context) (int, error) {
	if s.journal == nil || s.config.Retention <= 0 {
		return 0, nil
	}

	cutoff := s.now().Add(-s.config.Retention)
	deleted, err := s.journal.Cleanup(ctx, cutoff)
	if err != nil {
		s.logger.Error("journal cleanup failed", "cutoff", cutoff, "error", err)
		return 0, err
	}

	if deleted > 0 {
		s.logger.Info("journal cleanup completed", "deleted_count", deleted, "cutoff", cutoff)
	} else {
		s.logger.Debug("journal cleanup completed, no events deleted")
	}
	return deleted, nil
}

// Stop stops the scheduler and waits for any running jobs to complete.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		ctx := s.cron.Stop()
		<-ctx.Done()
		s.running = false
		s.logger.Info("maintenance scheduler stopped")
	}
}

// IsRunning returns true if the scheduler is running.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.running
}

// NextSweep returns the next scheduled sweep, or nil if none is scheduled.
func (s *Scheduler) NextSweep() *time.Time {
	return s.next(s.sweepEntry)
}

// NextCleanup returns the next scheduled cleanup, or nil if none is scheduled.
func (s *Scheduler) NextCleanup() *time.Time {
	return s.next(s.cleanupEntry)
}

func (s *Scheduler) next(id cron.EntryID) *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id == 0 || !s.running {
		return nil
	}
	entry := s.cron.Entry(id)
	if !entry.Valid() {
		return nil
	}
	next := entry.Next
	return &next
}

// cronLogger adapts logging.Logger to cron.Logger.
type cronLogger struct {
	logger *logging.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
