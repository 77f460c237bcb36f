package jobs

import (
	"context"
	"fmt"

	"github.com/alem-hub/attendance-hub/internal/application"
	"github.com/alem-hub/attendance-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// DEDUPE SWEEP JOB
// ══════════════════════════════════════════════════════════════════════════════

// DedupeService is the part of application.Service the sweep needs.
type DedupeService interface {
	StudentsForAutoSync(ctx context.Context) ([]string, error)
	Dedupe(ctx context.Context, studentID string) application.DedupeResult
}

// DedupeSweepJob removes duplicate events and rollups of background-synced
// students, one student at a time.
type DedupeSweepJob struct {
	service DedupeService
	log     *logger.Logger
}

// NewDedupeSweepJob creates the sweep job.
func NewDedupeSweepJob(service DedupeService, log *logger.Logger) *DedupeSweepJob {
	if log == nil {
		log = logger.Nop()
	}
	return &DedupeSweepJob{service: service, log: log.With(logger.Component("dedupe_job"))}
}

func (j *DedupeSweepJob) Name() string { return "dedupe_sweep" }

func (j *DedupeSweepJob) Description() string {
	return "Deletes duplicate calendar events and attendance rollups"
}

func (j *DedupeSweepJob) Run(ctx context.Context) error {
	ids, err := j.service.StudentsForAutoSync(ctx)
	if err != nil {
		return fmt.Errorf("dedupe sweep: %w", err)
	}

	var events, rollups, failed int
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("dedupe sweep interrupted: %w", err)
		}
		res := j.service.Dedupe(ctx, id)
		if !res.Success {
			failed++
			j.log.Warn("dedupe failed", logger.StudentID(id), logger.String("error", res.Error))
		}
		events += res.EventsDeleted
		rollups += res.RollupsDeleted
	}

	j.log.Info("dedupe sweep finished",
		logger.Int("students", len(ids)),
		logger.Int("events_deleted", events),
		logger.Int("rollups_deleted", rollups),
		logger.Int("failed", failed),
	)
	return nil
}
