package command

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/attendance-hub/internal/domain/schedule"
	"github.com/alem-hub/attendance-hub/internal/domain/shared"
)

func TestEditEvent_Cancel(t *testing.T) {
	now := time.Date(2024, 10, 15, 12, 0, 0, 0, testLoc)
	events := newMemEvents()
	ev := seedEvent(events, "COMP101", schedule.TermFall, time.Date(2024, 10, 20, 9, 0, 0, 0, testLoc))
	h := NewEditEventHandler(events, shared.NewFixedClock(now))

	got, err := h.Cancel(context.Background(), CancelEventCommand{StudentID: "st-1", EventID: ev.ID})
	require.NoError(t, err)
	assert.Equal(t, schedule.StatusCanceled, got.Status)
	assert.Equal(t, ev.NaturalKey, got.NaturalKey)

	_, err = h.Cancel(context.Background(), CancelEventCommand{StudentID: "st-2", EventID: ev.ID})
	assert.ErrorIs(t, err, shared.ErrEventNotFound)
}

func TestEditEvent_Reschedule(t *testing.T) {
	now := time.Date(2024, 10, 15, 12, 0, 0, 0, testLoc)
	events := newMemEvents()
	ev := seedEvent(events, "COMP101", schedule.TermFall, time.Date(2024, 10, 20, 9, 0, 0, 0, testLoc))
	h := NewEditEventHandler(events, shared.NewFixedClock(now))

	start := time.Date(2024, 10, 22, 14, 0, 0, 0, testLoc)
	got, err := h.Reschedule(context.Background(), RescheduleEventCommand{
		StudentID: "st-1", EventID: ev.ID, Start: start, End: start.Add(time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, schedule.StatusRescheduled, got.Status)
	assert.True(t, got.Start.Equal(start))
	assert.Equal(t, ev.NaturalKey, got.NaturalKey)

	_, err = h.Reschedule(context.Background(), RescheduleEventCommand{
		StudentID: "st-1", EventID: ev.ID, Start: start, End: start.Add(-time.Hour),
	})
	assert.ErrorIs(t, err, shared.ErrInvalidTimeRange)

	_, err = h.Cancel(context.Background(), CancelEventCommand{StudentID: "st-1", EventID: ev.ID})
	require.NoError(t, err)
	_, err = h.Reschedule(context.Background(), RescheduleEventCommand{
		StudentID: "st-1", EventID: ev.ID, Start: start, End: start.Add(time.Hour),
	})
	assert.ErrorIs(t, err, shared.ErrEventCanceled)
}
