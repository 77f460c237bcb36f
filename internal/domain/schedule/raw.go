package schedule

import (
	"fmt"
	"time"

	"github.com/alem-hub/attendance-hub/internal/domain/shared"
	"github.com/alem-hub/attendance-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// RAW EVENT
// Занятие в том виде, в котором его отдаёт API школы. Все поля опциональны,
// проверка происходит при приёме (теги validate читает слой приложения).
// ══════════════════════════════════════════════════════════════════════════════

// RawEvent - сырое событие месячного расписания.
type RawEvent struct {
	// UpstreamID не стабилен между запросами и не используется для идентичности.
	UpstreamID *string

	CourseCode  *string `validate:"required,min=1"`
	CourseTitle *string
	LessonType  *string
	WeekNumber  *int    `validate:"required"`
	StartTime   *string `validate:"required,min=1"`
	EndTime     *string `validate:"required,min=1"`
	Location    *string
	Lecturer    *string
}

// ParsedEvent - событие, прошедшее проверку, с вычисленным ключом.
type ParsedEvent struct {
	NaturalKey  string
	CourseCode  string
	CourseTitle string
	LessonType  string
	Start       time.Time
	End         time.Time
	Location    string
	Lecturer    string
}

// NaturalKey выводит ключ "{courseCode}-{weekNum}-{startTime}-{endTime}" из
// исходного текста полей. Событие без любого из четырёх полей отклоняется.
func (r RawEvent) NaturalKey() (string, error) {
	if r.CourseCode == nil || *r.CourseCode == "" {
		return "", missingField("course code")
	}
	if r.WeekNumber == nil {
		return "", missingField("week number")
	}
	if r.StartTime == nil || *r.StartTime == "" {
		return "", missingField("start time")
	}
	if r.EndTime == nil || *r.EndTime == "" {
		return "", missingField("end time")
	}
	return fmt.Sprintf("%s-%d-%s-%s", *r.CourseCode, *r.WeekNumber, *r.StartTime, *r.EndTime), nil
}

// Parse выводит ключ и разбирает время начала и конца в зоне loc.
func (r RawEvent) Parse(loc *time.Location) (ParsedEvent, error) {
	key, err := r.NaturalKey()
	if err != nil {
		return ParsedEvent{}, err
	}

	start, err := timeutil.ParseUpstream(*r.StartTime, loc)
	if err != nil {
		return ParsedEvent{}, shared.WrapError("schedule", "Parse", shared.ErrInvalidFormat, "bad start time", err)
	}
	end, err := timeutil.ParseUpstream(*r.EndTime, loc)
	if err != nil {
		return ParsedEvent{}, shared.WrapError("schedule", "Parse", shared.ErrInvalidFormat, "bad end time", err)
	}
	if end.Before(start) {
		return ParsedEvent{}, shared.ErrInvalidTimeRange
	}

	return ParsedEvent{
		NaturalKey:  key,
		CourseCode:  *r.CourseCode,
		CourseTitle: deref(r.CourseTitle),
		LessonType:  deref(r.LessonType),
		Start:       start,
		End:         end,
		Location:    deref(r.Location),
		Lecturer:    deref(r.Lecturer),
	}, nil
}

// ToEvent создаёт новое занятие календаря для студента.
func (p ParsedEvent) ToEvent(studentID string, term Term, now time.Time) *ScheduledEvent {
	return &ScheduledEvent{
		NaturalKey:  p.NaturalKey,
		StudentID:   studentID,
		Term:        term,
		Status:      ClassifyStatus(p.End, now),
		CourseCode:  p.CourseCode,
		CourseTitle: p.CourseTitle,
		LessonType:  p.LessonType,
		Start:       p.Start,
		End:         p.End,
		Location:    p.Location,
		Lecturer:    p.Lecturer,
		ColorIndex:  ColorIndexFor(p.CourseCode),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func missingField(name string) error {
	return shared.NewDomainError("schedule", "NaturalKey", shared.ErrEmptyValue, "missing "+name)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
