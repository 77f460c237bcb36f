package school

import (
	"strings"

	"github.com/alem-hub/attendance-hub/internal/domain/attendance"
	"github.com/alem-hub/attendance-hub/internal/domain/schedule"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAPPER
// Converts API DTOs into domain upstream types. Validation happens at ingestion,
// so the mapper keeps missing fields missing.
// ══════════════════════════════════════════════════════════════════════════════

// Mapper converts DTOs to domain types.
type Mapper struct{}

// NewMapper creates a new Mapper.
func NewMapper() *Mapper {
	return &Mapper{}
}

// RawEventFromDTO maps one schedule entry.
func (m *Mapper) RawEventFromDTO(dto EventDTO) schedule.RawEvent {
	return schedule.RawEvent{
		UpstreamID:  dto.ID,
		CourseCode:  trimmed(dto.CourseCode),
		CourseTitle: trimmed(dto.CourseTitle),
		LessonType:  trimmed(dto.LessonType),
		WeekNumber:  dto.WeekNumber,
		StartTime:   trimmed(dto.StartTime),
		EndTime:     trimmed(dto.EndTime),
		Location:    trimmed(dto.Location),
		Lecturer:    trimmed(dto.Lecturer),
	}
}

// RawEventsFromDTO maps a month of entries.
func (m *Mapper) RawEventsFromDTO(dto *ScheduleDTO) []schedule.RawEvent {
	if dto == nil {
		return nil
	}
	out := make([]schedule.RawEvent, 0, len(dto.Events))
	for _, e := range dto.Events {
		out = append(out, m.RawEventFromDTO(e))
	}
	return out
}

// CourseRefsFromDTO maps the attendance list, dropping entries without a code.
func (m *Mapper) CourseRefsFromDTO(dto *AttendanceListDTO) []attendance.CourseRef {
	if dto == nil {
		return nil
	}
	out := make([]attendance.CourseRef, 0, len(dto.Courses))
	for _, c := range dto.Courses {
		code := strings.TrimSpace(c.Code)
		if code == "" {
			continue
		}
		out = append(out, attendance.CourseRef{Code: code, Name: strings.TrimSpace(c.Name)})
	}
	return out
}

// CourseDetailFromDTO maps one course log.
func (m *Mapper) CourseDetailFromDTO(dto *AttendanceDetailDTO) *attendance.CourseDetail {
	if dto == nil {
		return &attendance.CourseDetail{}
	}
	classes := make([]attendance.RawClass, 0, len(dto.Classes))
	for _, c := range dto.Classes {
		classes = append(classes, attendance.RawClass{
			ID:         c.ID,
			Date:       c.Date,
			TimeRange:  c.TimeRange,
			AttendTime: c.AttendTime,
			Room:       c.Room,
			StatusCode: c.Status,
		})
	}
	return &attendance.CourseDetail{Classes: classes, TotalScheduled: dto.TotalScheduled}
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}
