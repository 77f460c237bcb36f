package query

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/attendance-hub/internal/domain/attendance"
	"github.com/alem-hub/attendance-hub/internal/domain/schedule"
	"github.com/alem-hub/attendance-hub/internal/domain/shared"
	"github.com/alem-hub/attendance-hub/internal/domain/stats"
	"github.com/alem-hub/attendance-hub/pkg/logger"
	"github.com/alem-hub/attendance-hub/pkg/timeutil"
)

var loc = timeutil.DefaultZone

// stubEvents implements only the reads used here.
type stubEvents struct {
	schedule.Repository
	rows  []*schedule.ScheduledEvent
	calls int
}

func (s *stubEvents) ListByStudent(_ context.Context, studentID string) ([]*schedule.ScheduledEvent, error) {
	s.calls++
	var out []*schedule.ScheduledEvent
	for _, r := range s.rows {
		if r.StudentID == studentID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *stubEvents) ListByStudentAndTerm(ctx context.Context, studentID string, term schedule.Term) ([]*schedule.ScheduledEvent, error) {
	all, _ := s.ListByStudent(ctx, studentID)
	var out []*schedule.ScheduledEvent
	for _, r := range all {
		if r.Term == term {
			out = append(out, r)
		}
	}
	return out, nil
}

type stubRollups struct {
	attendance.Repository
	rows []*attendance.Rollup
}

func (s *stubRollups) ListByStudent(context.Context, string) ([]*attendance.Rollup, error) {
	return s.rows, nil
}

type mapCache struct {
	data    map[string][]stats.HybridAttendanceStats
	getErr  error
	sets    int
	lastAge time.Duration
}

func (c *mapCache) Get(_ context.Context, id string) ([]stats.HybridAttendanceStats, bool, error) {
	if c.getErr != nil {
		return nil, false, c.getErr
	}
	v, ok := c.data[id]
	return v, ok, nil
}

func (c *mapCache) Set(_ context.Context, id string, v []stats.HybridAttendanceStats, maxAge time.Duration) error {
	c.sets++
	c.lastAge = maxAge
	c.data[id] = v
	return nil
}

func (c *mapCache) Invalidate(_ context.Context, id string) error {
	delete(c.data, id)
	return nil
}

func event(id int64, code string, term schedule.Term, start time.Time, status schedule.Status) *schedule.ScheduledEvent {
	return &schedule.ScheduledEvent{
		ID:         id,
		StudentID:  "st-1",
		CourseCode: code,
		Term:       term,
		Status:     status,
		Start:      start,
		End:        start.Add(90 * time.Minute),
	}
}

func TestGetHybridStats_ReadsThroughCache(t *testing.T) {
	now := time.Date(2024, 10, 15, 12, 0, 0, 0, loc)
	rollup := attendance.NewRollup("st-1", "COMP101", "Intro", schedule.TermFall, now)
	rollup.ApplyUpstream("Intro", attendance.CourseDetail{Classes: []attendance.RawClass{
		{ID: "1", Date: "2024-10-01", AttendTime: "09:00"},
	}}, now)

	events := &stubEvents{rows: []*schedule.ScheduledEvent{
		event(1, "COMP101", schedule.TermFall, time.Date(2024, 10, 1, 9, 0, 0, 0, loc), schedule.StatusFinished),
		event(2, "COMP101", schedule.TermFall, time.Date(2024, 10, 22, 9, 0, 0, 0, loc), schedule.StatusUpcoming),
	}}
	cache := &mapCache{data: map[string][]stats.HybridAttendanceStats{}}
	h := NewGetHybridStatsHandler(&stubRollups{rows: []*attendance.Rollup{rollup}}, events,
		shared.NewFixedClock(now), cache, logger.Nop())

	first, err := h.Handle(context.Background(), GetHybridStatsQuery{StudentID: "st-1"})
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, 90, first[0].ConductedMinutes)
	assert.Equal(t, 180, first[0].TotalMinutes)
	assert.Equal(t, 1, cache.sets)
	assert.Equal(t, 7*24*time.Hour-90*time.Minute, cache.lastAge)

	second, err := h.Handle(context.Background(), GetHybridStatsQuery{StudentID: "st-1"})
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, events.calls)

	_, err = h.Handle(context.Background(), GetHybridStatsQuery{StudentID: "st-1", SkipCache: true})
	require.NoError(t, err)
	assert.Equal(t, 2, events.calls)
}

func TestUntilNextClassEnd(t *testing.T) {
	now := time.Date(2024, 10, 15, 12, 0, 0, 0, loc)
	past := event(1, "COMP101", schedule.TermFall, now.Add(-3*time.Hour), schedule.StatusFinished)
	running := event(2, "COMP101", schedule.TermFall, now.Add(-30*time.Minute), schedule.StatusUpcoming)
	later := event(3, "COMP101", schedule.TermFall, now.Add(24*time.Hour), schedule.StatusUpcoming)
	canceled := event(4, "COMP101", schedule.TermFall, now.Add(-80*time.Minute), schedule.StatusCanceled)

	assert.Equal(t, time.Hour, UntilNextClassEnd([]*schedule.ScheduledEvent{past, later, running, canceled}, now))
	assert.Equal(t, 24*time.Hour+90*time.Minute, UntilNextClassEnd([]*schedule.ScheduledEvent{later}, now))
	assert.Zero(t, UntilNextClassEnd([]*schedule.ScheduledEvent{past, canceled}, now))
	assert.Zero(t, UntilNextClassEnd(nil, now))
}

func TestGetHybridStats_CacheErrorFallsBack(t *testing.T) {
	now := time.Date(2024, 10, 15, 12, 0, 0, 0, loc)
	cache := &mapCache{data: map[string][]stats.HybridAttendanceStats{}, getErr: errors.New("redis down")}
	h := NewGetHybridStatsHandler(&stubRollups{}, &stubEvents{}, shared.NewFixedClock(now), cache, nil)

	out, err := h.Handle(context.Background(), GetHybridStatsQuery{StudentID: "st-1"})
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestGetHybridStats_NoCache(t *testing.T) {
	h := NewGetHybridStatsHandler(&stubRollups{}, &stubEvents{}, shared.NewFixedClock(time.Now()), nil, nil)
	_, err := h.Handle(context.Background(), GetHybridStatsQuery{})
	assert.ErrorIs(t, err, shared.ErrInvalidStudentID)
}

func TestListEventsForTerm_FiltersAndSorts(t *testing.T) {
	day := time.Date(2024, 10, 1, 9, 0, 0, 0, loc)
	events := &stubEvents{rows: []*schedule.ScheduledEvent{
		event(1, "MATH200", schedule.TermFall, day, schedule.StatusFinished),
		event(2, "COMP101", schedule.TermFall, day, schedule.StatusFinished),
		event(3, "COMP101", schedule.TermFall, day.Add(-24*time.Hour), schedule.StatusAbsent),
		event(4, "COMP101", schedule.TermFall, day.Add(48*time.Hour), schedule.StatusCanceled),
		event(5, "COMP101", schedule.TermSpring, day, schedule.StatusUpcoming),
	}}

	out, err := NewListEventsForTermHandler(events).Handle(context.Background(),
		ListEventsForTermQuery{StudentID: "st-1", Term: schedule.TermFall})
	require.NoError(t, err)

	ids := make([]int64, 0, len(out))
	for _, e := range out {
		ids = append(ids, e.ID)
	}
	assert.Equal(t, []int64{3, 2, 1}, ids)
}

func TestListEventsForTerm_Validate(t *testing.T) {
	h := NewListEventsForTermHandler(&stubEvents{})
	_, err := h.Handle(context.Background(), ListEventsForTermQuery{StudentID: "st-1", Term: 9})
	assert.ErrorIs(t, err, shared.ErrInvalidTerm)
}

type captureEncoder struct {
	name   string
	events []*schedule.ScheduledEvent
}

func (e *captureEncoder) Encode(name string, events []*schedule.ScheduledEvent) ([]byte, error) {
	e.name, e.events = name, events
	return []byte("BEGIN:VCALENDAR"), nil
}

func (e *captureEncoder) ContentType() string { return "text/calendar" }

func TestExportCalendar(t *testing.T) {
	day := time.Date(2024, 10, 1, 9, 0, 0, 0, loc)
	events := &stubEvents{rows: []*schedule.ScheduledEvent{
		event(1, "COMP101", schedule.TermFall, day, schedule.StatusFinished),
		event(2, "COMP101", schedule.TermFall, day.Add(time.Hour*24), schedule.StatusCanceled),
	}}
	enc := &captureEncoder{}

	file, err := NewExportCalendarHandler(NewListEventsForTermHandler(events), enc).
		Handle(context.Background(), ExportCalendarQuery{StudentID: "st-1", Term: schedule.TermFall})
	require.NoError(t, err)
	assert.Equal(t, 1, file.EventCount)
	assert.Equal(t, "schedule-st-1-fall.ics", file.Filename)
	assert.Equal(t, "text/calendar", file.ContentType)
	assert.Len(t, enc.events, 1)
}

func TestToEventDTO(t *testing.T) {
	e := event(7, "COMP101", schedule.TermFall, time.Date(2024, 10, 1, 9, 0, 0, 0, loc), schedule.StatusFinished)
	e.ColorIndex = 3
	dto := ToEventDTO(e)
	assert.Equal(t, int64(7), dto.ID)
	assert.Equal(t, 3, dto.ColorIndex)
	assert.Equal(t, schedule.StatusFinished, dto.Status)
}
