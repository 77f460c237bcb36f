// Package school implements the school information API client.
// It verifies tokens and fetches monthly schedules and per-course attendance.
package school

// ══════════════════════════════════════════════════════════════════════════════
// API RESPONSE WRAPPERS
// ══════════════════════════════════════════════════════════════════════════════

// APIResponse is the envelope every endpoint answers with.
type APIResponse[T any] struct {
	Success bool   `json:"success"`
	Data    *T     `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ══════════════════════════════════════════════════════════════════════════════
// DTOs
// ══════════════════════════════════════════════════════════════════════════════

// ProfileDTO is returned by the token check.
type ProfileDTO struct {
	StudentID string `json:"studentId"`
	Name      string `json:"name,omitempty"`
}

// ScheduleDTO is one month of the schedule.
type ScheduleDTO struct {
	Events []EventDTO `json:"events"`
}

// EventDTO is a schedule entry. Every field may be missing upstream.
type EventDTO struct {
	ID          *string `json:"id"`
	CourseCode  *string `json:"courseCode"`
	CourseTitle *string `json:"courseTitle"`
	LessonType  *string `json:"lessonType"`
	WeekNumber  *int    `json:"weekNumber"`
	StartTime   *string `json:"startTime"`
	EndTime     *string `json:"endTime"`
	Location    *string `json:"location"`
	Lecturer    *string `json:"lecturer"`
}

// AttendanceListDTO lists the courses that have attendance logs.
type AttendanceListDTO struct {
	Courses []CourseDTO `json:"courses"`
}

// CourseDTO is an entry of the attendance list.
type CourseDTO struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// AttendanceDetailDTO is the attendance log of one course.
type AttendanceDetailDTO struct {
	Classes        []ClassDTO `json:"classes"`
	TotalScheduled int        `json:"totalScheduled"`
}

// ClassDTO is one conducted class. Status carries the upstream status code.
type ClassDTO struct {
	ID         string `json:"id"`
	Date       string `json:"date"`
	TimeRange  string `json:"timeRange"`
	AttendTime string `json:"attendTime"`
	Room       string `json:"room"`
	Status     int    `json:"status"`
}

// APIErrorDTO is the body of a non-2xx answer.
type APIErrorDTO struct {
	Success bool   `json:"success"`
	Message string `json:"error"`
}
