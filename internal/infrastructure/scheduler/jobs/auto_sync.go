// Package jobs contains the worker's scheduled jobs.
package jobs

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alem-hub/attendance-hub/internal/application"
	"github.com/alem-hub/attendance-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// AUTO SYNC JOB
// ══════════════════════════════════════════════════════════════════════════════

// SyncService is the part of application.Service the sync job needs.
type SyncService interface {
	StudentsForAutoSync(ctx context.Context) ([]string, error)
	AutoSync(ctx context.Context, studentID string) application.SyncResult
}

// AutoSyncConfig contains configuration for the sync job.
type AutoSyncConfig struct {
	// Concurrency is the number of students synced in parallel.
	Concurrency int
}

// RunStats summarizes one job run.
type RunStats struct {
	StartedAt     time.Time
	Duration      time.Duration
	TotalStudents int
	SyncedCount   int
	FailedCount   int
}

// AutoSyncJob re-syncs the current term of every student with a stored token.
type AutoSyncJob struct {
	service SyncService
	log     *logger.Logger
	config  AutoSyncConfig

	lastStats atomic.Pointer[RunStats]
}

// NewAutoSyncJob creates a new sync job.
func NewAutoSyncJob(service SyncService, log *logger.Logger, config AutoSyncConfig) *AutoSyncJob {
	if log == nil {
		log = logger.Nop()
	}
	if config.Concurrency <= 0 {
		config.Concurrency = 3
	}
	return &AutoSyncJob{
		service: service,
		log:     log.With(logger.Component("auto_sync_job")),
		config:  config,
	}
}

func (j *AutoSyncJob) Name() string { return "auto_sync_students" }

func (j *AutoSyncJob) Description() string {
	return "Syncs schedule and attendance for every student with a stored token"
}

// Run syncs students with bounded concurrency. Per-student failures are
// counted and logged; the run fails only if the student list cannot be read
// or the context ends.
func (j *AutoSyncJob) Run(ctx context.Context) error {
	stats := &RunStats{StartedAt: time.Now()}
	defer func() {
		stats.Duration = time.Since(stats.StartedAt)
		j.lastStats.Store(stats)
	}()

	ids, err := j.service.StudentsForAutoSync(ctx)
	if err != nil {
		return fmt.Errorf("auto sync: %w", err)
	}
	stats.TotalStudents = len(ids)
	if len(ids) == 0 {
		j.log.Info("no students to sync")
		return nil
	}

	var synced, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.config.Concurrency)

	for _, id := range ids {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			res := j.service.AutoSync(gctx, id)
			if !res.Success {
				failed.Add(1)
				j.log.Warn("student sync failed", logger.StudentID(id), logger.String("error", res.Error))
				return nil
			}
			synced.Add(1)
			return nil
		})
	}
	err = g.Wait()

	stats.SyncedCount = int(synced.Load())
	stats.FailedCount = int(failed.Load())
	j.log.Info("auto sync finished",
		logger.Int("total", stats.TotalStudents),
		logger.Int("synced", stats.SyncedCount),
		logger.Int("failed", stats.FailedCount),
	)
	if err != nil {
		return fmt.Errorf("auto sync interrupted: %w", err)
	}
	return nil
}

// LastStats returns the statistics of the most recent run, or nil.
func (j *AutoSyncJob) LastStats() *RunStats {
	return j.lastStats.Load()
}
