package command

import (
	"context"
	"fmt"

	"github.com/alem-hub/attendance-hub/internal/domain/attendance"
	"github.com/alem-hub/attendance-hub/internal/domain/schedule"
	"github.com/alem-hub/attendance-hub/internal/domain/shared"
	"github.com/alem-hub/attendance-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// DEDUPE COMMAND
// Collapses persisted rows sharing a natural key, keeping the latest modified.
// ══════════════════════════════════════════════════════════════════════════════

// DedupeCommand targets one student.
type DedupeCommand struct {
	StudentID string
}

func (c DedupeCommand) Validate() error {
	if c.StudentID == "" {
		return shared.ErrInvalidStudentID
	}
	return nil
}

// DedupeResult reports deleted rows per collection.
type DedupeResult struct {
	EventsDeleted  int
	RollupsDeleted int
}

// DedupeHandler handles the DedupeCommand.
type DedupeHandler struct {
	events   schedule.Repository
	rollups  attendance.Repository
	log      *logger.Logger
	recorder Recorder
}

// NewDedupeHandler creates a new DedupeHandler.
func NewDedupeHandler(events schedule.Repository, rollups attendance.Repository, log *logger.Logger, recorder Recorder) *DedupeHandler {
	if log == nil {
		log = logger.Nop()
	}
	if recorder == nil {
		recorder = NopRecorder{}
	}
	return &DedupeHandler{
		events:   events,
		rollups:  rollups,
		log:      log.With(logger.Component("dedupe")),
		recorder: recorder,
	}
}

// Handle deletes duplicate events, then duplicate rollups.
func (h *DedupeHandler) Handle(ctx context.Context, cmd DedupeCommand) (*DedupeResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("dedupe: validation failed: %w", err)
	}

	result := &DedupeResult{}

	n, err := h.events.DeleteDuplicates(ctx, cmd.StudentID)
	if err != nil {
		return result, fmt.Errorf("dedupe: events: %w", err)
	}
	result.EventsDeleted = n
	h.recorder.DuplicatesDeleted("events", n)

	n, err = h.rollups.DeleteDuplicates(ctx, cmd.StudentID)
	if err != nil {
		return result, fmt.Errorf("dedupe: rollups: %w", err)
	}
	result.RollupsDeleted = n
	h.recorder.DuplicatesDeleted("rollups", n)

	if result.EventsDeleted+result.RollupsDeleted > 0 {
		h.log.Info("duplicates removed",
			logger.StudentID(cmd.StudentID),
			logger.Int("events", result.EventsDeleted),
			logger.Int("rollups", result.RollupsDeleted),
		)
	}
	return result, nil
}
