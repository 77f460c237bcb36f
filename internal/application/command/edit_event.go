package command

import (
	"context"
	"fmt"
	"time"

	"github.com/alem-hub/attendance-hub/internal/domain/schedule"
	"github.com/alem-hub/attendance-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CANCEL / RESCHEDULE EVENT COMMANDS
// User edits of a calendar event. The natural key never changes.
// ══════════════════════════════════════════════════════════════════════════════

// CancelEventCommand cancels one event.
type CancelEventCommand struct {
	StudentID string
	EventID   int64
}

func (c CancelEventCommand) Validate() error {
	if c.StudentID == "" {
		return shared.ErrInvalidStudentID
	}
	if c.EventID <= 0 {
		return shared.NewDomainError("schedule", "Cancel", shared.ErrInvalidID, "event id must be positive")
	}
	return nil
}

// RescheduleEventCommand moves one event.
type RescheduleEventCommand struct {
	StudentID string
	EventID   int64
	Start     time.Time
	End       time.Time
}

func (c RescheduleEventCommand) Validate() error {
	if c.StudentID == "" {
		return shared.ErrInvalidStudentID
	}
	if c.EventID <= 0 {
		return shared.NewDomainError("schedule", "Reschedule", shared.ErrInvalidID, "event id must be positive")
	}
	if c.Start.IsZero() || c.End.IsZero() {
		return shared.NewDomainError("schedule", "Reschedule", shared.ErrEmptyValue, "start and end are required")
	}
	return nil
}

// EditEventHandler handles CancelEventCommand and RescheduleEventCommand.
type EditEventHandler struct {
	events schedule.Repository
	clock  shared.Clock
}

// NewEditEventHandler creates a new EditEventHandler.
func NewEditEventHandler(events schedule.Repository, clock shared.Clock) *EditEventHandler {
	return &EditEventHandler{events: events, clock: clock}
}

// Cancel marks the event CANCELED.
func (h *EditEventHandler) Cancel(ctx context.Context, cmd CancelEventCommand) (*schedule.ScheduledEvent, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("cancel_event: validation failed: %w", err)
	}
	ev, err := loadOwnedEvent(ctx, h.events, cmd.StudentID, cmd.EventID)
	if err != nil {
		return nil, fmt.Errorf("cancel_event: %w", err)
	}
	ev.Cancel(h.clock.Now())
	if err := h.events.Update(ctx, ev); err != nil {
		return nil, fmt.Errorf("cancel_event: update: %w", err)
	}
	return ev, nil
}

// Reschedule moves the event and marks it RESCHEDULED.
func (h *EditEventHandler) Reschedule(ctx context.Context, cmd RescheduleEventCommand) (*schedule.ScheduledEvent, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("reschedule_event: validation failed: %w", err)
	}
	ev, err := loadOwnedEvent(ctx, h.events, cmd.StudentID, cmd.EventID)
	if err != nil {
		return nil, fmt.Errorf("reschedule_event: %w", err)
	}
	if err := ev.Reschedule(cmd.Start, cmd.End, h.clock.Now()); err != nil {
		return nil, fmt.Errorf("reschedule_event: %w", err)
	}
	if err := h.events.Update(ctx, ev); err != nil {
		return nil, fmt.Errorf("reschedule_event: update: %w", err)
	}
	return ev, nil
}
