package attendance

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/attendance-hub/internal/domain/schedule"
	"github.com/alem-hub/attendance-hub/pkg/timeutil"
)

var loc = timeutil.DefaultZone

func classes(n int, attendTime string, code int) []RawClass {
	out := make([]RawClass, n)
	for i := range out {
		out[i] = RawClass{
			ID:         fmt.Sprintf("c%02d", i),
			Date:       fmt.Sprintf("2024-09-%02d", i+1),
			TimeRange:  "09:00-10:30",
			AttendTime: attendTime,
			StatusCode: code,
		}
	}
	return out
}

func TestSplitFollowUp(t *testing.T) {
	base, follow := SplitFollowUp("COMP101A")
	assert.Equal(t, "COMP101", base)
	assert.True(t, follow)

	base, follow = SplitFollowUp("COMP101")
	assert.Equal(t, "COMP101", base)
	assert.False(t, follow)

	base, follow = SplitFollowUp("A")
	assert.Equal(t, "A", base)
	assert.False(t, follow)
}

func TestClassifyClass(t *testing.T) {
	assert.Equal(t, ClassAbsent, ClassifyClass("", 0))
	assert.Equal(t, ClassAbsent, ClassifyClass(NotAttendedMarker, LateStatusCode))
	assert.Equal(t, ClassLate, ClassifyClass("09:05", LateStatusCode))
	assert.Equal(t, ClassAttended, ClassifyClass("08:58", 1))
}

func TestLifecycleFor(t *testing.T) {
	afterFall := time.Date(2025, 1, 5, 12, 0, 0, 0, loc)
	duringFall := time.Date(2024, 11, 5, 12, 0, 0, 0, loc)

	assert.Equal(t, LifecycleFinished, LifecycleFor(schedule.TermFall, 2024, 12, afterFall))
	assert.Equal(t, LifecycleActive, LifecycleFor(schedule.TermFall, 2024, 5, afterFall))
	assert.Equal(t, LifecycleActive, LifecycleFor(schedule.TermFall, 2024, 10, afterFall))
	assert.Equal(t, LifecycleActive, LifecycleFor(schedule.TermFall, 2024, 30, duringFall))

	feb := time.Date(2026, 2, 10, 12, 0, 0, 0, loc)
	assert.Equal(t, LifecycleFinished, LifecycleFor(schedule.TermSummer, 2025, 12, feb))
	assert.Equal(t, LifecycleActive, LifecycleFor(schedule.TermSpring, 2026, 12, feb))
}

func TestRecompute_LastYearsTermsFinishAfterNewYear(t *testing.T) {
	dated := func(n int, month string) []RawClass {
		out := classes(n, "09:00", 1)
		for i := range out {
			out[i].Date = fmt.Sprintf("%s-%02d", month, i+1)
		}
		return out
	}

	t.Run("summer checked in february", func(t *testing.T) {
		now := time.Date(2026, 2, 10, 12, 0, 0, 0, loc)
		r := NewRollup("s1", "COMP201", "", schedule.TermSummer, now)
		r.ApplyUpstream("", CourseDetail{Classes: dated(12, "2025-07")}, now)

		assert.Equal(t, 2025, r.TermYear(now))
		assert.Equal(t, LifecycleFinished, r.Status)
	})

	t.Run("previous spring checked in march", func(t *testing.T) {
		now := time.Date(2026, 3, 10, 12, 0, 0, 0, loc)
		r := NewRollup("s1", "COMP202", "", schedule.TermSpring, now)
		r.ApplyUpstream("", CourseDetail{Classes: dated(15, "2025-04")}, now)

		assert.Equal(t, LifecycleFinished, r.Status)
	})

	t.Run("current spring stays active", func(t *testing.T) {
		now := time.Date(2026, 3, 10, 12, 0, 0, 0, loc)
		r := NewRollup("s1", "COMP203", "", schedule.TermSpring, now)
		r.ApplyUpstream("", CourseDetail{Classes: dated(15, "2026-02")}, now)

		assert.Equal(t, LifecycleActive, r.Status)
	})

	t.Run("undated records fall back to the latest started term", func(t *testing.T) {
		now := time.Date(2026, 2, 10, 12, 0, 0, 0, loc)
		r := NewRollup("s1", "COMP204", "", schedule.TermSummer, now)
		for i := 0; i < 12; i++ {
			r.UpsertManualRecord(ClassRecord{ID: fmt.Sprint(i), Status: ClassAttended}, now)
		}

		assert.Equal(t, 2025, r.TermYear(now))
		assert.Equal(t, LifecycleFinished, r.Status)
	})
}

func TestApplyUpstream_CountsAndInvariants(t *testing.T) {
	now := time.Date(2024, 10, 1, 12, 0, 0, 0, loc)
	r := NewRollup("s1", "COMP101", "", schedule.TermFall, now)

	detail := CourseDetail{TotalScheduled: 30}
	detail.Classes = append(detail.Classes, classes(6, "09:00", 1)...)
	late := classes(2, "09:10", LateStatusCode)
	late[0].ID, late[1].ID = "l0", "l1"
	absent := classes(2, NotAttendedMarker, 0)
	absent[0].ID, absent[1].ID = "a0", "a1"
	detail.Classes = append(detail.Classes, late...)
	detail.Classes = append(detail.Classes, absent...)

	r.ApplyUpstream("Programming", detail, now)

	assert.Equal(t, "Programming", r.CourseName)
	assert.Equal(t, 10, r.Conducted)
	assert.Equal(t, 8, r.Attended)
	assert.Equal(t, 2, r.Late)
	assert.Equal(t, 2, r.Absent)
	assert.Equal(t, 30, r.TotalScheduled)
	assert.Equal(t, 80.0, r.AttendanceRate)
	assert.Equal(t, r.Attended+r.Absent, r.Conducted)
	assert.GreaterOrEqual(t, r.Attended, r.Late)
	assert.Equal(t, LifecycleActive, r.Status)
}

func TestApplyUpstream_PreservesManualRecords(t *testing.T) {
	now := time.Date(2024, 10, 1, 12, 0, 0, 0, loc)
	r := NewRollup("s1", "COMP101A", "", schedule.TermFall, now)
	r.UpsertManualRecord(ClassRecord{ID: "77", Date: "2024-09-20", Status: ClassAbsent}, now)
	r.Records = append(r.Records, ClassRecord{ID: "old", AttendTime: "09:00", Status: ClassAttended})

	r.ApplyUpstream("", CourseDetail{Classes: classes(3, "09:00", 1)}, now)

	require.Len(t, r.Records, 4)
	var manual int
	for _, rec := range r.Records {
		assert.NotEqual(t, "old", rec.ID)
		if rec.IsManual() {
			manual++
			assert.Equal(t, "77", rec.ID)
		}
	}
	assert.Equal(t, 1, manual)
	assert.Equal(t, 4, r.Conducted)
	assert.Equal(t, 1, r.Absent)
	assert.True(t, r.IsFollowUp)
	assert.Equal(t, "COMP101", r.BaseCourseCode)
}

func TestUpsertManualRecord_ReplacesByID(t *testing.T) {
	now := time.Date(2024, 10, 1, 12, 0, 0, 0, loc)
	r := NewRollup("s1", "COMP101A", "", schedule.TermFall, now)

	r.UpsertManualRecord(ClassRecord{ID: "5", Status: ClassAbsent}, now)
	assert.Equal(t, 0.0, r.AttendanceRate)
	assert.Equal(t, 1, r.Absent)

	r.UpsertManualRecord(ClassRecord{ID: "5", Status: ClassAttended}, now)
	require.Len(t, r.Records, 1)
	assert.Equal(t, ManualSentinel, r.Records[0].AttendTime)
	assert.Equal(t, 1, r.Attended)
	assert.Equal(t, 0, r.Absent)
	assert.Equal(t, 100.0, r.AttendanceRate)
}

func TestRecompute_FinishedAfterTermEnd(t *testing.T) {
	now := time.Date(2025, 1, 10, 12, 0, 0, 0, loc)
	r := NewRollup("s1", "COMP101", "", schedule.TermFall, now)
	r.ApplyUpstream("", CourseDetail{Classes: classes(12, "09:00", 1)}, now)

	assert.Equal(t, LifecycleFinished, r.Status)
	assert.True(t, r.Finished)
}

func TestRound1(t *testing.T) {
	assert.Equal(t, 66.7, Round1(200.0/3))
	assert.Equal(t, 0.0, Round1(0))
}
