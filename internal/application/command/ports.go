// Package command contains write operations (CQRS - Commands).
// Commands change persisted state: schedule sync, attendance reconciliation,
// duplicate sweeps and manual edits.
package command

import (
	"context"
	"time"

	"github.com/alem-hub/attendance-hub/internal/domain/attendance"
	"github.com/alem-hub/attendance-hub/internal/domain/schedule"
)

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES (Interfaces)
// ══════════════════════════════════════════════════════════════════════════════

// ScheduleClient reads a student's data from the school information API.
// Implementations bound their own call duration.
type ScheduleClient interface {
	// VerifyToken returns the upstream student id for a valid token.
	VerifyToken(ctx context.Context, token string) (studentID string, err error)

	// FetchMonthSchedule returns the raw events of one calendar month.
	FetchMonthSchedule(ctx context.Context, token string, month time.Month, year int) ([]schedule.RawEvent, error)

	// FetchAttendanceList returns the courses that have an attendance log.
	FetchAttendanceList(ctx context.Context, token string) ([]attendance.CourseRef, error)

	// FetchAttendanceDetail returns the conducted classes of one course.
	FetchAttendanceDetail(ctx context.Context, token, courseCode string) (*attendance.CourseDetail, error)
}

// Recorder receives counters from commands. The metrics adapter implements it.
type Recorder interface {
	EventsInserted(n int)
	EventsRejected(n int)
	FetchFailed(operation string)
	RollupsWritten(n int)
	DuplicatesDeleted(collection string, n int)
}

// NopRecorder discards everything.
type NopRecorder struct{}

func (NopRecorder) EventsInserted(int) {}
func (NopRecorder) EventsRejected(int) {}
func (NopRecorder) FetchFailed(string) {}
func (NopRecorder) RollupsWritten(int) {}
func (NopRecorder) DuplicatesDeleted(string, int) {}

// Fetch operations reported to Recorder.FetchFailed.
const (
	OpFetchMonth      = "fetch_month"
	OpFetchCourseList = "fetch_attendance_list"
	OpFetchCourse     = "fetch_attendance_detail"
)
