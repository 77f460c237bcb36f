package command

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/attendance-hub/internal/domain/attendance"
	"github.com/alem-hub/attendance-hub/internal/domain/schedule"
	"github.com/alem-hub/attendance-hub/internal/domain/shared"
	"github.com/alem-hub/attendance-hub/pkg/logger"
)

func newReconcileHandler(client *fakeClient, rollups *memRollups, events *memEvents, now time.Time, rec Recorder) *ReconcileAttendanceHandler {
	return NewReconcileAttendanceHandler(rollups, events, client, shared.NewFixedClock(now), logger.Nop(), rec, 2)
}

func classes(statuses ...string) []attendance.RawClass {
	out := make([]attendance.RawClass, 0, len(statuses))
	for i, s := range statuses {
		c := attendance.RawClass{
			ID:        string(rune('a' + i)),
			Date:      "2024-09-0" + string(rune('1'+i)),
			TimeRange: "09:00-10:30",
		}
		switch s {
		case "attended":
			c.AttendTime = "09:01"
		case "late":
			c.AttendTime = "09:20"
			c.StatusCode = attendance.LateStatusCode
		case "absent":
			c.AttendTime = attendance.NotAttendedMarker
		}
		out = append(out, c)
	}
	return out
}

func TestReconcile_BuildsRollups(t *testing.T) {
	now := time.Date(2024, 10, 15, 12, 0, 0, 0, testLoc)
	client := newFakeClient()
	client.courses = []attendance.CourseRef{{Code: "COMP101", Name: "Intro"}}
	client.details["COMP101"] = &attendance.CourseDetail{
		Classes:        classes("attended", "late", "absent", "attended"),
		TotalScheduled: 14,
	}
	rollups := newMemRollups()
	rec := newCountingRecorder()

	res, err := newReconcileHandler(client, rollups, newMemEvents(), now, rec).
		Handle(context.Background(), ReconcileAttendanceCommand{Token: "tok"})
	require.NoError(t, err)
	assert.Equal(t, "st-1", res.StudentID)
	assert.Equal(t, 1, res.RollupsWritten)
	assert.Equal(t, 1, rec.rollups)

	r := rollups.only()
	assert.Equal(t, "Intro", r.CourseName)
	assert.Equal(t, schedule.TermFall, r.Term)
	assert.Equal(t, 4, r.Conducted)
	assert.Equal(t, 3, r.Attended)
	assert.Equal(t, 1, r.Late)
	assert.Equal(t, 1, r.Absent)
	assert.Equal(t, 14, r.TotalScheduled)
	assert.InDelta(t, 75.0, r.AttendanceRate, 0.001)
	assert.Equal(t, attendance.LifecycleActive, r.Status)
}

func TestReconcile_ListFailureYieldsNothing(t *testing.T) {
	client := newFakeClient()
	client.listErr = errBoom
	rollups := newMemRollups()
	rec := newCountingRecorder()

	res, err := newReconcileHandler(client, rollups, newMemEvents(), time.Date(2024, 10, 15, 12, 0, 0, 0, testLoc), rec).
		Handle(context.Background(), ReconcileAttendanceCommand{Token: "tok"})
	require.NoError(t, err)
	assert.Equal(t, 0, res.RollupsWritten)
	assert.Equal(t, 0, rollups.saves)
	assert.Equal(t, 1, rec.failures[OpFetchCourseList])
}

func TestReconcile_SkipsFailedCourse(t *testing.T) {
	client := newFakeClient()
	client.courses = []attendance.CourseRef{{Code: "COMP101"}, {Code: "MATH200"}}
	client.detailErr["MATH200"] = errBoom
	client.details["COMP101"] = &attendance.CourseDetail{Classes: classes("attended")}
	rollups := newMemRollups()

	res, err := newReconcileHandler(client, rollups, newMemEvents(), time.Date(2024, 10, 15, 12, 0, 0, 0, testLoc), nil).
		Handle(context.Background(), ReconcileAttendanceCommand{Token: "tok"})
	require.NoError(t, err)
	assert.Equal(t, 2, res.CoursesSeen)
	assert.Equal(t, 1, res.RollupsWritten)
	assert.Equal(t, 1, res.CoursesFailed)
	assert.Equal(t, "COMP101", rollups.only().CourseCode)
}

func TestReconcile_TermFromStoredEvents(t *testing.T) {
	now := time.Date(2025, 2, 10, 12, 0, 0, 0, testLoc)
	events := newMemEvents()
	events.add(&schedule.ScheduledEvent{
		NaturalKey: "COMP101-10-x-y",
		StudentID:  "st-1",
		CourseCode: "COMP101",
		Term:       schedule.TermFall,
		Start:      time.Date(2024, 11, 4, 9, 0, 0, 0, testLoc),
		UpdatedAt:  now.Add(-time.Hour),
	})

	client := newFakeClient()
	client.courses = []attendance.CourseRef{{Code: "COMP101"}, {Code: "COMP101A"}}
	rollups := newMemRollups()

	_, err := newReconcileHandler(client, rollups, events, now, nil).
		Handle(context.Background(), ReconcileAttendanceCommand{Token: "tok"})
	require.NoError(t, err)

	fall, err := rollups.Get(context.Background(), "st-1", "COMP101", schedule.TermFall)
	require.NoError(t, err)
	assert.False(t, fall.IsFollowUp)

	spring, err := rollups.Get(context.Background(), "st-1", "COMP101A", schedule.TermSpring)
	require.NoError(t, err)
	assert.True(t, spring.IsFollowUp)
	assert.Equal(t, "COMP101", spring.BaseCourseCode)
}

func TestReconcile_PreservesManualRecords(t *testing.T) {
	now := time.Date(2025, 2, 10, 12, 0, 0, 0, testLoc)
	rollups := newMemRollups()
	seed := attendance.NewRollup("st-1", "COMP101A", "Intro II", schedule.TermSpring, now)
	seed.UpsertManualRecord(attendance.ClassRecord{ID: "77", Date: "2025-02-03", TimeRange: "09:00-10:30", Status: attendance.ClassAbsent}, now)
	require.NoError(t, rollups.Save(context.Background(), seed))

	client := newFakeClient()
	client.courses = []attendance.CourseRef{{Code: "COMP101A", Name: "Intro II"}}
	client.details["COMP101A"] = &attendance.CourseDetail{Classes: classes("attended", "attended")}

	_, err := newReconcileHandler(client, rollups, newMemEvents(), now, nil).
		Handle(context.Background(), ReconcileAttendanceCommand{Token: "tok"})
	require.NoError(t, err)

	r := rollups.only()
	assert.Len(t, r.Records, 3)
	assert.Equal(t, 3, r.Conducted)
	assert.Equal(t, 1, r.Absent)
	assert.Equal(t, int64(2), r.Version)
}

func TestReconcile_RetriesVersionConflict(t *testing.T) {
	client := newFakeClient()
	client.courses = []attendance.CourseRef{{Code: "COMP101"}}
	rollups := newMemRollups()
	rollups.conflicts = 1

	res, err := newReconcileHandler(client, rollups, newMemEvents(), time.Date(2024, 10, 15, 12, 0, 0, 0, testLoc), nil).
		Handle(context.Background(), ReconcileAttendanceCommand{Token: "tok"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.RollupsWritten)
	assert.Equal(t, 2, rollups.saves)
}

func TestReconcile_StoreErrorSurfaces(t *testing.T) {
	client := newFakeClient()
	client.courses = []attendance.CourseRef{{Code: "COMP101"}}
	rollups := newMemRollups()
	rollups.getErr = errBoom

	res, err := newReconcileHandler(client, rollups, newMemEvents(), time.Date(2024, 10, 15, 12, 0, 0, 0, testLoc), nil).
		Handle(context.Background(), ReconcileAttendanceCommand{Token: "tok"})
	require.Error(t, err)
	assert.ErrorIs(t, err, errBoom)
	require.NotNil(t, res)
	assert.Equal(t, 0, res.RollupsWritten)
}

func TestReconcile_InvalidToken(t *testing.T) {
	client := newFakeClient()
	res, err := newReconcileHandler(client, newMemRollups(), newMemEvents(), time.Now(), nil).
		Handle(context.Background(), ReconcileAttendanceCommand{Token: "nope"})
	require.Error(t, err)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, shared.ErrUnauthorized)
}
