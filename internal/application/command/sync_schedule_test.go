package command

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/attendance-hub/internal/domain/schedule"
	"github.com/alem-hub/attendance-hub/internal/domain/shared"
	"github.com/alem-hub/attendance-hub/pkg/logger"
)

type syncFixture struct {
	client   *fakeClient
	events   *memEvents
	clock    *shared.FixedClock
	recorder *countingRecorder
	handler  *SyncScheduleHandler
}

func newSyncFixture(now time.Time) *syncFixture {
	f := &syncFixture{
		client:   newFakeClient(),
		events:   newMemEvents(),
		clock:    shared.NewFixedClock(now),
		recorder: newCountingRecorder(),
	}
	f.handler = NewSyncScheduleHandler(f.events, f.client, f.clock, logger.Nop(), f.recorder,
		SyncScheduleConfig{Concurrency: 3, Location: testLoc})
	return f
}

func TestSyncSchedule_InsertsAndClassifies(t *testing.T) {
	now := time.Date(2024, 10, 15, 12, 0, 0, 0, testLoc)
	f := newSyncFixture(now)
	f.client.months[monthKey(2024, time.October)] = []schedule.RawEvent{
		raw("COMP101", 6, time.Date(2024, 10, 14, 9, 0, 0, 0, testLoc), 90),
		raw("COMP101", 7, time.Date(2024, 10, 21, 9, 0, 0, 0, testLoc), 90),
	}

	res, err := f.handler.Handle(context.Background(), SyncScheduleCommand{Token: "tok", Term: schedule.TermFall})
	require.NoError(t, err)

	assert.Equal(t, "st-1", res.StudentID)
	assert.Equal(t, 2, res.InsertedCount)
	assert.Equal(t, 4, res.MonthsFetched)

	rows, _ := f.events.ListByStudent(context.Background(), "st-1")
	require.Len(t, rows, 2)
	statuses := map[int]schedule.Status{}
	for _, r := range rows {
		statuses[r.Start.Day()] = r.Status
		assert.Equal(t, schedule.TermFall, r.Term)
	}
	assert.Equal(t, schedule.StatusFinished, statuses[14])
	assert.Equal(t, schedule.StatusUpcoming, statuses[21])
	assert.Equal(t, 2, f.recorder.inserted)
}

func TestSyncSchedule_Idempotent(t *testing.T) {
	now := time.Date(2024, 10, 15, 12, 0, 0, 0, testLoc)
	f := newSyncFixture(now)
	f.client.months[monthKey(2024, time.September)] = []schedule.RawEvent{
		raw("COMP101", 1, time.Date(2024, 9, 2, 9, 0, 0, 0, testLoc), 90),
		raw("MATH200", 1, time.Date(2024, 9, 3, 11, 0, 0, 0, testLoc), 50),
	}
	cmd := SyncScheduleCommand{Token: "tok", Term: schedule.TermFall}

	first, err := f.handler.Handle(context.Background(), cmd)
	require.NoError(t, err)
	second, err := f.handler.Handle(context.Background(), cmd)
	require.NoError(t, err)

	assert.Equal(t, 2, first.InsertedCount)
	assert.Equal(t, 0, second.InsertedCount)
	assert.Equal(t, 2, f.events.count())
}

func TestSyncSchedule_InvalidTokenShortCircuits(t *testing.T) {
	f := newSyncFixture(time.Date(2024, 10, 15, 12, 0, 0, 0, testLoc))

	res, err := f.handler.Handle(context.Background(), SyncScheduleCommand{Token: "bad", Term: schedule.TermFall})
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrUnauthorized)
	assert.Nil(t, res)
	assert.Empty(t, f.client.monthCalls)
	assert.Equal(t, 0, f.events.count())
}

func TestSyncSchedule_FailedMonthIsSkipped(t *testing.T) {
	f := newSyncFixture(time.Date(2024, 10, 15, 12, 0, 0, 0, testLoc))
	f.client.monthErrs[monthKey(2024, time.September)] = errBoom
	f.client.months[monthKey(2024, time.November)] = []schedule.RawEvent{
		raw("COMP101", 10, time.Date(2024, 11, 4, 9, 0, 0, 0, testLoc), 90),
	}

	res, err := f.handler.Handle(context.Background(), SyncScheduleCommand{Token: "tok", Term: schedule.TermFall})
	require.NoError(t, err)
	assert.Equal(t, 1, res.InsertedCount)
	assert.Equal(t, 1, res.MonthsFailed)
	assert.Equal(t, 3, res.MonthsFetched)
	assert.Equal(t, 1, f.recorder.failures[OpFetchMonth])
}

func TestSyncSchedule_RejectsMalformedAndDedupesBatch(t *testing.T) {
	f := newSyncFixture(time.Date(2024, 10, 15, 12, 0, 0, 0, testLoc))
	good := raw("COMP101", 1, time.Date(2024, 9, 2, 9, 0, 0, 0, testLoc), 90)
	repeat := good
	repeat.UpstreamID = strp("other-id")
	noWeek := raw("COMP101", 1, time.Date(2024, 9, 9, 9, 0, 0, 0, testLoc), 90)
	noWeek.WeekNumber = nil
	emptyCode := raw("", 1, time.Date(2024, 9, 10, 9, 0, 0, 0, testLoc), 90)
	badTime := raw("COMP101", 2, time.Date(2024, 9, 11, 9, 0, 0, 0, testLoc), 90)
	badTime.StartTime = strp("soon")

	f.client.months[monthKey(2024, time.September)] = []schedule.RawEvent{good, repeat, noWeek, emptyCode, badTime}

	res, err := f.handler.Handle(context.Background(), SyncScheduleCommand{Token: "tok", Term: schedule.TermFall})
	require.NoError(t, err)
	assert.Equal(t, 1, res.InsertedCount)
	assert.Equal(t, 3, res.RejectedCount)
	assert.Equal(t, 1, f.events.count())
}

func TestSyncSchedule_SpringBackfillsPriorFall(t *testing.T) {
	f := newSyncFixture(time.Date(2025, 2, 10, 12, 0, 0, 0, testLoc))
	f.client.months[monthKey(2024, time.November)] = []schedule.RawEvent{
		raw("COMP101", 10, time.Date(2024, 11, 4, 9, 0, 0, 0, testLoc), 90),
	}
	f.client.months[monthKey(2025, time.February)] = []schedule.RawEvent{
		raw("COMP101A", 2, time.Date(2025, 2, 12, 9, 0, 0, 0, testLoc), 90),
	}

	res, err := f.handler.Handle(context.Background(), SyncScheduleCommand{Token: "tok", Term: schedule.TermSpring})
	require.NoError(t, err)
	assert.Equal(t, 2, res.InsertedCount)
	assert.Len(t, f.client.monthCalls, 9)

	fall, _ := f.events.ListByStudentAndTerm(context.Background(), "st-1", schedule.TermFall)
	spring, _ := f.events.ListByStudentAndTerm(context.Background(), "st-1", schedule.TermSpring)
	require.Len(t, fall, 1)
	require.Len(t, spring, 1)
	assert.Equal(t, "COMP101", fall[0].CourseCode)
	assert.Equal(t, "COMP101A", spring[0].CourseCode)
}

func TestSyncSchedule_StoreErrorSurfaces(t *testing.T) {
	f := newSyncFixture(time.Date(2024, 10, 15, 12, 0, 0, 0, testLoc))
	f.events.insertErr = errBoom
	f.client.months[monthKey(2024, time.September)] = []schedule.RawEvent{
		raw("COMP101", 1, time.Date(2024, 9, 2, 9, 0, 0, 0, testLoc), 90),
	}

	res, err := f.handler.Handle(context.Background(), SyncScheduleCommand{Token: "tok", Term: schedule.TermFall})
	require.Error(t, err)
	assert.ErrorIs(t, err, errBoom)
	require.NotNil(t, res)
	assert.Equal(t, 0, res.InsertedCount)
}

func TestSyncScheduleCommand_Validate(t *testing.T) {
	assert.Error(t, SyncScheduleCommand{Term: schedule.TermFall}.Validate())
	assert.Error(t, SyncScheduleCommand{Token: "t", Term: 7}.Validate())
	assert.NoError(t, SyncScheduleCommand{Token: "t", Term: schedule.TermSummer}.Validate())
}
