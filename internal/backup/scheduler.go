package backup

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/Aman-CERP/docmemory/internal/config"
)

// Default schedules.
const (
	DefaultSchedule         = "@every 1h"
	DefaultAutosaveSchedule = "@every 5m"
)

// Counter reports the number of stored records.
type Counter interface {
	Count(ctx context.Context) (int, error)
}

// Scheduler runs periodic backups and the auto-save confirmation pass.
// Failures are logged and never stop the schedule.
type Scheduler struct {
	manager  *Manager
	counter  Counter
	schedule string
	autosave string

	mu      sync.Mutex
	cron    *cron.Cron
	cancel  context.CancelFunc
	running bool
}

// NewScheduler creates a scheduler. counter may be nil, which disables
// the auto-save pass.
func NewScheduler(manager *Manager, counter Counter, cfg config.BackupConfig) *Scheduler {
	s := &Scheduler{
		manager:  manager,
		counter:  counter,
		schedule: cfg.Schedule,
		autosave: cfg.AutosaveSchedule,
	}
	if s.schedule == "" {
		s.schedule = DefaultSchedule
	}
	if s.autosave == "" {
		s.autosave = DefaultAutosaveSchedule
	}
	return s
}

// Start registers the jobs and starts the cron goroutine. Jobs run with
// a context derived from ctx that Stop cancels.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	c := cron.New()
	jobCtx, cancel := context.WithCancel(ctx)

	if _, err := c.AddFunc(s.schedule, func() { s.RunBackup(jobCtx) }); err != nil {
		cancel()
		return fmt.Errorf("invalid backup schedule %q: %w", s.schedule, err)
	}
	if s.counter != nil {
		if _, err := c.AddFunc(s.autosave, func() { s.AutoSave(jobCtx) }); err != nil {
			cancel()
			return fmt.Errorf("invalid autosave schedule %q: %w", s.autosave, err)
		}
	}

	c.Start()
	s.cron, s.cancel, s.running = c, cancel, true

	slog.Info("backup_scheduler_started",
		slog.String("schedule", s.schedule),
		slog.String("autosave_schedule", s.autosave),
		slog.String("dir", s.manager.BackupDir()))
	return nil
}

// Stop halts the schedule and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	c, cancel := s.cron, s.cancel
	s.running = false
	s.mu.Unlock()

	<-c.Stop().Done()
	cancel()
	slog.Info("backup_scheduler_stopped")
}

// RunBackup creates one backup and prunes old ones.
func (s *Scheduler) RunBackup(ctx context.Context) {
	info, err := s.manager.Create(ctx)
	if err != nil {
		slog.Error("backup_failed", slog.String("error", err.Error()))
		return
	}
	removed, err := s.manager.Prune()
	if err != nil {
		slog.Warn("backup_prune_failed", slog.String("error", err.Error()))
		return
	}
	slog.Info("backup_completed", slog.String("name", info.Name), slog.Int("pruned", removed))
}

// AutoSave confirms the store is readable. Every write is already durable,
// so there is nothing to flush.
func (s *Scheduler) AutoSave(ctx context.Context) {
	if s.counter == nil {
		return
	}
	n, err := s.counter.Count(ctx)
	if err != nil {
		slog.Warn("autosave_check_failed", slog.String("error", err.Error()))
		return
	}
	slog.Info("autosave_completed", slog.Int("documents", n))
}
