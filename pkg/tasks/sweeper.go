package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Pruner removes entries that no longer match the running version.
type Pruner interface {
	Prune(ctx context.Context) (int, error)
}

// Sweeper prunes stale cache versions on a cron schedule.
type Sweeper struct {
	pruner   Pruner
	schedule string
	cron     *cron.Cron
	logger   *slog.Logger

	// OnPrune, if set, receives the number of entries each pass deleted.
	OnPrune func(deleted int)

	mu      sync.Mutex
	running bool
}

// NewSweeper creates a sweeper running pruner on schedule, a standard
// five-field cron expression such as "0 4 * * *". An empty schedule
// disables sweeping.
func NewSweeper(pruner Pruner, schedule string, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		pruner:   pruner,
		schedule: schedule,
		cron:     cron.New(),
		logger:   logger.With("component", "tasks.sweeper"),
	}
}

// Start schedules pruning until ctx is cancelled or Stop is called.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.schedule == "" {
		s.logger.Info("cache prune schedule not configured")
		return nil
	}
	if _, err := cron.ParseStandard(s.schedule); err != nil {
		return fmt.Errorf("invalid cache prune schedule %q: %w", s.schedule, err)
	}
	if _, err := s.cron.AddFunc(s.schedule, func() { s.Sweep(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule cache pruning: %w", err)
	}

	s.cron.Start()
	s.running = true
	s.logger.Info("cache sweeper started", "schedule", s.schedule)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// Sweep runs one pruning pass.
func (s *Sweeper) Sweep(ctx context.Context) {
	start := time.Now()
	deleted, err := s.pruner.Prune(ctx)
	if err != nil {
		s.logger.Error("cache pruning failed", "error", err)
		return
	}
	s.logger.Info("cache pruning completed", "deleted", deleted, "duration_ms", time.Since(start).Milliseconds())
	if s.OnPrune != nil {
		s.OnPrune(deleted)
	}
}

// Stop halts the schedule and waits for a running pass to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.running = false
	s.logger.Info("cache sweeper stopped")
}

// IsRunning reports whether the schedule is active.
func (s *Sweeper) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// NextRun returns the next scheduled pass, or nil when not scheduled.
func (s *Sweeper) NextRun() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.cron.Entries()
	if len(entries) == 0 {
		return nil
	}
	next := entries[0].Next
	return &next
}
