// Package stats рассчитывает гибридную статистику посещаемости: счётчики
// берутся из сводки посещаемости, минуты - из календаря занятий.
package stats

import (
	"math"
	"sort"
	"time"

	"github.com/alem-hub/attendance-hub/internal/domain/attendance"
	"github.com/alem-hub/attendance-hub/internal/domain/schedule"
)

// RequiredRate - минимальная доля посещений для зачёта.
const RequiredRate = 0.8

// GraceProgress - до этой доли прошедших минут курс в льготном периоде.
const GraceProgress = 0.15

// RecoveryStatus - оценка шансов курса на зачёт.
type RecoveryStatus string

const (
	RecoverySafe        RecoveryStatus = "safe"
	RecoveryRecoverable RecoveryStatus = "recoverable"
	RecoveryFailed      RecoveryStatus = "failed"
	RecoveryGrace       RecoveryStatus = "grace"
)

// HybridAttendanceStats - итог расчёта по одной сводке.
// Проценты округлены до десятых, минуты - до целых.
type HybridAttendanceStats struct {
	CourseCode     string        `json:"courseCode"`
	CourseName     string        `json:"courseName"`
	BaseCourseCode string        `json:"baseCourseCode"`
	IsFollowUp     bool          `json:"isFollowUp"`
	Term           schedule.Term `json:"term"`

	Attended            int `json:"attended"`
	ConductedClassCount int `json:"conductedClassCount"`
	RemainingClassCount int `json:"remainingClassCount"`
	TotalClassCount     int `json:"totalClassCount"`

	ConductedMinutes int `json:"conductedMinutes"`
	RemainingMinutes int `json:"remainingMinutes"`
	TotalMinutes     int `json:"totalMinutes"`
	AttendedMinutes  int `json:"attendedMinutes"`

	CurrentRate            float64 `json:"currentRate"`
	MaxPossibleRate        float64 `json:"maxPossibleRate"`
	MinutesRate            float64 `json:"minutesRate"`
	MaxPossibleMinutesRate float64 `json:"maxPossibleMinutesRate"`

	SafeToSkipCount   int `json:"safeToSkipCount"`
	SafeToSkipMinutes int `json:"safeToSkipMinutes"`

	RecoveryStatus RecoveryStatus `json:"recoveryStatus"`
}

// Calculate строит статистику для каждой сводки, отсортированную по коду курса.
func Calculate(rollups []*attendance.Rollup, events []*schedule.ScheduledEvent, now time.Time) []HybridAttendanceStats {
	out := make([]HybridAttendanceStats, 0, len(rollups))
	for _, r := range rollups {
		out = append(out, ForRollup(r, events, now))
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CourseCode != out[j].CourseCode {
			return out[i].CourseCode < out[j].CourseCode
		}
		return out[i].Term < out[j].Term
	})
	return out
}

// ForRollup считает статистику одной сводки по неотменённым занятиям с кодом
// курса или его базовым кодом.
func ForRollup(r *attendance.Rollup, events []*schedule.ScheduledEvent, now time.Time) HybridAttendanceStats {
	base := r.BaseCourseCode
	if base == "" {
		base, _ = attendance.SplitFollowUp(r.CourseCode)
	}

	var (
		conductedMinutes float64
		remainingMinutes float64
		remainingCount   int
	)
	for _, ev := range events {
		if ev.IsCanceled() {
			continue
		}
		if ev.CourseCode != r.CourseCode && ev.CourseCode != base {
			continue
		}
		if ev.HasEnded(now) {
			conductedMinutes += ev.DurationMinutes()
		} else {
			remainingMinutes += ev.DurationMinutes()
			remainingCount++
		}
	}

	attended := r.Attended
	conducted := r.Conducted
	total := conducted + remainingCount
	totalMinutes := conductedMinutes + remainingMinutes

	attendedMinutes := 0.0
	if conducted > 0 {
		attendedMinutes = conductedMinutes * float64(attended) / float64(conducted)
	}

	currentRate := ratio(float64(attended), float64(conducted), 0)
	maxPossibleRate := ratio(float64(attended+remainingCount), float64(total), 100)
	minutesRate := ratio(attendedMinutes, conductedMinutes, 0)
	maxPossibleMinutesRate := ratio(attendedMinutes+remainingMinutes, totalMinutes, 100)

	safeCount := attended + remainingCount - ceilRequired(total)
	if safeCount < 0 {
		safeCount = 0
	}
	safeMinutes := int(math.Floor(attendedMinutes + remainingMinutes - totalMinutes*RequiredRate + 1e-9))
	if safeMinutes < 0 {
		safeMinutes = 0
	}

	progress := 0.0
	if totalMinutes > 0 {
		progress = conductedMinutes / totalMinutes
	}

	return HybridAttendanceStats{
		CourseCode:     r.CourseCode,
		CourseName:     r.CourseName,
		BaseCourseCode: base,
		IsFollowUp:     r.IsFollowUp,
		Term:           r.Term,

		Attended:            attended,
		ConductedClassCount: conducted,
		RemainingClassCount: remainingCount,
		TotalClassCount:     total,

		ConductedMinutes: roundInt(conductedMinutes),
		RemainingMinutes: roundInt(remainingMinutes),
		TotalMinutes:     roundInt(totalMinutes),
		AttendedMinutes:  roundInt(attendedMinutes),

		CurrentRate:            attendance.Round1(currentRate),
		MaxPossibleRate:        attendance.Round1(maxPossibleRate),
		MinutesRate:            attendance.Round1(minutesRate),
		MaxPossibleMinutesRate: attendance.Round1(maxPossibleMinutesRate),

		SafeToSkipCount:   safeCount,
		SafeToSkipMinutes: safeMinutes,

		RecoveryStatus: Classify(minutesRate, maxPossibleMinutesRate, progress),
	}
}

// Classify определяет статус по неокруглённым значениям. Порядок проверок
// важен: failed сильнее safe, а grace действует только до GraceProgress.
func Classify(minutesRate, maxPossibleMinutesRate, progress float64) RecoveryStatus {
	switch {
	case maxPossibleMinutesRate < RequiredRate*100:
		return RecoveryFailed
	case minutesRate >= RequiredRate*100:
		return RecoverySafe
	case progress < GraceProgress:
		return RecoveryGrace
	default:
		return RecoveryRecoverable
	}
}

// ceilRequired - ceil(total * 0.8) в целых числах.
func ceilRequired(total int) int {
	return (total*4 + 4) / 5
}

func ratio(num, den, whenEmpty float64) float64 {
	if den <= 0 {
		return whenEmpty
	}
	return num / den * 100
}

func roundInt(v float64) int {
	return int(math.Round(v))
}
