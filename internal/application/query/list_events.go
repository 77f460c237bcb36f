package query

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/alem-hub/attendance-hub/internal/domain/schedule"
	"github.com/alem-hub/attendance-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LIST EVENTS FOR TERM QUERY
// Выборка занятий семестра для календаря и экспорта.
// ══════════════════════════════════════════════════════════════════════════════

// ListEventsForTermQuery содержит параметры выборки.
type ListEventsForTermQuery struct {
	StudentID string
	Term      schedule.Term
}

// Validate проверяет корректность параметров запроса.
func (q ListEventsForTermQuery) Validate() error {
	if q.StudentID == "" {
		return shared.ErrInvalidStudentID
	}
	if !q.Term.IsValid() {
		return shared.ErrInvalidTerm
	}
	return nil
}

// EventDTO - занятие в ответе API.
type EventDTO struct {
	ID          int64           `json:"id"`
	CourseCode  string          `json:"courseCode"`
	CourseTitle string          `json:"courseTitle"`
	LessonType  string          `json:"lessonType,omitempty"`
	Start       time.Time       `json:"start"`
	End         time.Time       `json:"end"`
	Location    string          `json:"location,omitempty"`
	Lecturer    string          `json:"lecturer,omitempty"`
	Status      schedule.Status `json:"status"`
	Term        schedule.Term   `json:"term"`
	ColorIndex  int             `json:"colorIndex"`
}

// ToEventDTO конвертирует доменное занятие в DTO.
func ToEventDTO(e *schedule.ScheduledEvent) EventDTO {
	return EventDTO{
		ID:          e.ID,
		CourseCode:  e.CourseCode,
		CourseTitle: e.CourseTitle,
		LessonType:  e.LessonType,
		Start:       e.Start,
		End:         e.End,
		Location:    e.Location,
		Lecturer:    e.Lecturer,
		Status:      e.Status,
		Term:        e.Term,
		ColorIndex:  e.ColorIndex,
	}
}

// ListEventsForTermHandler обрабатывает ListEventsForTermQuery.
type ListEventsForTermHandler struct {
	events schedule.Repository
}

// NewListEventsForTermHandler создаёт обработчик.
func NewListEventsForTermHandler(events schedule.Repository) *ListEventsForTermHandler {
	return &ListEventsForTermHandler{events: events}
}

// Handle возвращает неотменённые занятия семестра, упорядоченные по началу,
// затем по коду курса.
func (h *ListEventsForTermHandler) Handle(ctx context.Context, q ListEventsForTermQuery) ([]*schedule.ScheduledEvent, error) {
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("list_events: validation failed: %w", err)
	}

	all, err := h.events.ListByStudentAndTerm(ctx, q.StudentID, q.Term)
	if err != nil {
		return nil, fmt.Errorf("list_events: %w", err)
	}

	out := make([]*schedule.ScheduledEvent, 0, len(all))
	for _, e := range all {
		if e.IsCanceled() {
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].CourseCode < out[j].CourseCode
	})
	return out, nil
}
