package export

import (
	"bytes"
	"testing"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/attendance-hub/internal/domain/schedule"
)

func TestICSEncoder_Encode(t *testing.T) {
	loc := time.FixedZone("ALMT", 5*3600)
	start := time.Date(2024, time.October, 14, 9, 0, 0, 0, loc)

	enc := NewICSEncoder("", "Asia/Almaty")
	enc.now = func() time.Time { return time.Date(2024, time.October, 1, 0, 0, 0, 0, time.UTC) }

	events := []*schedule.ScheduledEvent{
		{
			ID: 7, StudentID: "st-1", CourseCode: "COMP101", CourseTitle: "Intro",
			LessonType: "Lecture", Lecturer: "Dr. K", Location: "A1",
			Status: schedule.StatusRescheduled, Start: start, End: start.Add(90 * time.Minute),
		},
		{
			ID: 8, StudentID: "st-1", CourseCode: "MATH200",
			Status: schedule.StatusUpcoming, Start: start.Add(24 * time.Hour), End: start.Add(25 * time.Hour),
		},
	}

	body, err := enc.Encode("Schedule st-1", events)
	require.NoError(t, err)
	assert.Contains(t, string(body), "X-WR-CALNAME:Schedule st-1")

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	require.NoError(t, err)
	parsed := cal.Events()
	require.Len(t, parsed, 2)

	first := parsed[0]
	assert.Equal(t, "7-st-1@attendance-hub", first.Id())
	assert.Equal(t, "COMP101 Intro", first.GetProperty(ical.ComponentPropertySummary).Value)
	assert.Equal(t, "A1", first.GetProperty(ical.ComponentPropertyLocation).Value)
	assert.Equal(t, "20241014T040000Z", first.GetProperty(ical.ComponentPropertyDtStart).Value)
	assert.Equal(t, "20241014T053000Z", first.GetProperty(ical.ComponentPropertyDtEnd).Value)
	assert.Equal(t, "CONFIRMED", first.GetProperty(ical.ComponentPropertyStatus).Value)

	second := parsed[1]
	assert.Equal(t, "MATH200", second.GetProperty(ical.ComponentPropertySummary).Value)
	assert.Nil(t, second.GetProperty(ical.ComponentPropertyLocation))
}

func TestICSEncoder_RejectsInvertedRange(t *testing.T) {
	now := time.Now()
	_, err := NewICSEncoder("", "").Encode("x", []*schedule.ScheduledEvent{{ID: 1, Start: now, End: now.Add(-time.Minute)}})
	assert.Error(t, err)
}

func TestICSEncoder_ContentType(t *testing.T) {
	assert.Equal(t, "text/calendar; charset=utf-8", NewICSEncoder("", "").ContentType())
}
