package command

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/alem-hub/attendance-hub/internal/domain/attendance"
	"github.com/alem-hub/attendance-hub/internal/domain/schedule"
	"github.com/alem-hub/attendance-hub/internal/domain/shared"
	"github.com/alem-hub/attendance-hub/pkg/logger"
	"github.com/alem-hub/attendance-hub/pkg/retry"
	"github.com/alem-hub/attendance-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// SET MANUAL ATTENDANCE COMMAND
// Marks a calendar event UPCOMING or ABSENT. For follow-up courses the mark is
// also written into the course rollup as a MANUAL class record.
// ══════════════════════════════════════════════════════════════════════════════

// SetManualAttendanceCommand contains the data needed to toggle attendance.
type SetManualAttendanceCommand struct {
	EventID int64
	Status  schedule.Status

	// StudentID, when set, must own the event.
	StudentID string
}

// Validate validates the command.
func (c SetManualAttendanceCommand) Validate() error {
	if c.EventID <= 0 {
		return shared.NewDomainError("schedule", "SetManualAttendance", shared.ErrInvalidID, "event id must be positive")
	}
	if !c.Status.IsManual() {
		return shared.ErrInvalidEventStatus
	}
	return nil
}

// SetManualAttendanceResult contains the updated event and, for follow-up
// courses, the updated rollup.
type SetManualAttendanceResult struct {
	Event  *schedule.ScheduledEvent
	Rollup *attendance.Rollup
}

// SetManualAttendanceHandler handles the SetManualAttendanceCommand.
type SetManualAttendanceHandler struct {
	events   schedule.Repository
	rollups  attendance.Repository
	clock    shared.Clock
	location *time.Location
	log      *logger.Logger
	retrier  *retry.Retrier
}

// NewSetManualAttendanceHandler creates a new SetManualAttendanceHandler.
func NewSetManualAttendanceHandler(
	events schedule.Repository,
	rollups attendance.Repository,
	clock shared.Clock,
	location *time.Location,
	log *logger.Logger,
) *SetManualAttendanceHandler {
	if location == nil {
		location = timeutil.DefaultZone
	}
	if log == nil {
		log = logger.Nop()
	}
	return &SetManualAttendanceHandler{
		events:   events,
		rollups:  rollups,
		clock:    clock,
		location: location,
		log:      log.With(logger.Component("manual_attendance")),
		retrier:  retry.VersionConflictRetrier(isVersionConflict),
	}
}

// Handle executes the toggle. The rollup write is a compare-and-swap on its
// version; after the retry budget the error wraps ErrOptimisticLock.
func (h *SetManualAttendanceHandler) Handle(ctx context.Context, cmd SetManualAttendanceCommand) (*SetManualAttendanceResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("set_manual_attendance: validation failed: %w", err)
	}

	ev, err := loadOwnedEvent(ctx, h.events, cmd.StudentID, cmd.EventID)
	if err != nil {
		return nil, fmt.Errorf("set_manual_attendance: %w", err)
	}

	now := h.clock.Now()
	if err := ev.SetManualStatus(cmd.Status, now); err != nil {
		return nil, fmt.Errorf("set_manual_attendance: %w", err)
	}
	if err := h.events.Update(ctx, ev); err != nil {
		return nil, fmt.Errorf("set_manual_attendance: update event: %w", err)
	}

	result := &SetManualAttendanceResult{Event: ev}
	if _, followUp := attendance.SplitFollowUp(ev.CourseCode); !followUp {
		return result, nil
	}

	record := attendance.ClassRecord{
		ID:        strconv.FormatInt(ev.ID, 10),
		Date:      timeutil.FormatDate(ev.Start, h.location),
		TimeRange: timeutil.FormatTimeRange(ev.Start, ev.End, h.location),
		Room:      ev.Location,
		Status:    manualClassStatus(cmd.Status),
	}

	err = h.retrier.Do(ctx, func(ctx context.Context) error {
		rollup, err := loadOrNewRollup(ctx, h.rollups, ev.StudentID, ev.CourseCode, ev.CourseTitle, ev.Term, now)
		if err != nil {
			return err
		}
		rollup.UpsertManualRecord(record, now)
		if err := h.rollups.Save(ctx, rollup); err != nil {
			return err
		}
		result.Rollup = rollup
		return nil
	})
	if err != nil {
		h.log.Warn("manual record not saved",
			logger.EventID(ev.ID),
			logger.CourseCode(ev.CourseCode),
			logger.Err(err),
		)
		return result, fmt.Errorf("set_manual_attendance: save rollup: %w", err)
	}

	return result, nil
}

func manualClassStatus(s schedule.Status) attendance.ClassStatus {
	if s == schedule.StatusAbsent {
		return attendance.ClassAbsent
	}
	return attendance.ClassAttended
}

// loadOwnedEvent hides events of other students behind ErrEventNotFound.
func loadOwnedEvent(ctx context.Context, repo schedule.Repository, studentID string, id int64) (*schedule.ScheduledEvent, error) {
	ev, err := repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if studentID != "" && ev.StudentID != studentID {
		return nil, shared.ErrEventNotFound
	}
	return ev, nil
}
