package query

import (
	"context"
	"fmt"

	"github.com/alem-hub/attendance-hub/internal/domain/schedule"
)

// ══════════════════════════════════════════════════════════════════════════════
// EXPORT CALENDAR QUERY
// Календарный файл семестра. Формат определяет CalendarEncoder.
// ══════════════════════════════════════════════════════════════════════════════

// CalendarEncoder кодирует выборку занятий в файл календаря.
type CalendarEncoder interface {
	Encode(calendarName string, events []*schedule.ScheduledEvent) ([]byte, error)
	ContentType() string
}

// ExportCalendarQuery совпадает по параметрам с ListEventsForTermQuery.
type ExportCalendarQuery = ListEventsForTermQuery

// CalendarFile - готовый файл.
type CalendarFile struct {
	Filename    string
	ContentType string
	Body        []byte
	EventCount  int
}

// ExportCalendarHandler обрабатывает ExportCalendarQuery.
type ExportCalendarHandler struct {
	list    *ListEventsForTermHandler
	encoder CalendarEncoder
}

// NewExportCalendarHandler создаёт обработчик.
func NewExportCalendarHandler(list *ListEventsForTermHandler, encoder CalendarEncoder) *ExportCalendarHandler {
	return &ExportCalendarHandler{list: list, encoder: encoder}
}

// Handle выбирает занятия и кодирует их.
func (h *ExportCalendarHandler) Handle(ctx context.Context, q ExportCalendarQuery) (*CalendarFile, error) {
	events, err := h.list.Handle(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("export_calendar: %w", err)
	}

	name := fmt.Sprintf("%s %s", q.StudentID, q.Term)
	body, err := h.encoder.Encode(name, events)
	if err != nil {
		return nil, fmt.Errorf("export_calendar: encode: %w", err)
	}

	return &CalendarFile{
		Filename:    fmt.Sprintf("schedule-%s-%s.ics", q.StudentID, q.Term),
		ContentType: h.encoder.ContentType(),
		Body:        body,
		EventCount:  len(events),
	}, nil
}
