package schedule

import (
	"hash/fnv"
	"time"

	"github.com/alem-hub/attendance-hub/internal/domain/shared"
	"github.com/alem-hub/attendance-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENUMS
// ══════════════════════════════════════════════════════════════════════════════

// Status - состояние занятия в календаре.
type Status string

const (
	StatusUpcoming    Status = "UPCOMING"
	StatusFinished    Status = "FINISHED"
	StatusCanceled    Status = "CANCELED"
	StatusRescheduled Status = "RESCHEDULED"
	StatusAbsent      Status = "ABSENT"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusUpcoming, StatusFinished, StatusCanceled, StatusRescheduled, StatusAbsent:
		return true
	default:
		return false
	}
}

// IsManual возвращает true для статусов, которые студент может выставить сам.
func (s Status) IsManual() bool {
	return s == StatusUpcoming || s == StatusAbsent
}

// PaletteSize - число цветов календаря.
const PaletteSize = 12

// ColorIndexFor детерминированно выбирает цвет курса по его коду.
func ColorIndexFor(courseCode string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(courseCode))
	return int(h.Sum32() % PaletteSize)
}

// ══════════════════════════════════════════════════════════════════════════════
// ENTITY
// ══════════════════════════════════════════════════════════════════════════════

// ScheduledEvent - одно занятие из календаря студента.
// Уникальность: (NaturalKey, StudentID, Term).
type ScheduledEvent struct {
	ID         int64
	NaturalKey string
	StudentID  string
	Term       Term
	Status     Status

	CourseCode  string
	CourseTitle string
	LessonType  string

	Start time.Time
	End   time.Time

	Location   string
	Lecturer   string
	ColorIndex int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasEnded возвращает true, если занятие уже закончилось к моменту now.
func (e *ScheduledEvent) HasEnded(now time.Time) bool {
	return e.End.Before(now)
}

// DurationMinutes - длительность занятия в минутах.
func (e *ScheduledEvent) DurationMinutes() float64 {
	return timeutil.MinutesBetween(e.Start, e.End)
}

func (e *ScheduledEvent) IsCanceled() bool {
	return e.Status == StatusCanceled
}

// Cancel отменяет занятие. Повторная отмена ничего не меняет.
func (e *ScheduledEvent) Cancel(now time.Time) {
	if e.Status == StatusCanceled {
		return
	}
	e.Status = StatusCanceled
	e.UpdatedAt = now
}

// Reschedule переносит занятие. Естественный ключ не меняется.
func (e *ScheduledEvent) Reschedule(start, end, now time.Time) error {
	if e.IsCanceled() {
		return shared.ErrEventCanceled
	}
	if end.Before(start) {
		return shared.ErrInvalidTimeRange
	}
	e.Start = start
	e.End = end
	e.Status = StatusRescheduled
	e.UpdatedAt = now
	return nil
}

// SetManualStatus выставляет статус вручную: допустимы только UPCOMING и ABSENT.
func (e *ScheduledEvent) SetManualStatus(status Status, now time.Time) error {
	if !status.IsManual() {
		return shared.ErrInvalidEventStatus
	}
	e.Status = status
	e.UpdatedAt = now
	return nil
}

// ClassifyStatus - статус нового занятия при синхронизации.
func ClassifyStatus(end, now time.Time) Status {
	if end.Before(now) {
		return StatusFinished
	}
	return StatusUpcoming
}
