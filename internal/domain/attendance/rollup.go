// Package attendance содержит сводку посещаемости по курсу: классификацию
// каждого проведённого занятия, жизненный цикл курса и ручные отметки.
package attendance

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/alem-hub/attendance-hub/internal/domain/schedule"
	"github.com/alem-hub/attendance-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONSTANTS
// ══════════════════════════════════════════════════════════════════════════════

const (
	// ManualSentinel записывается вместо времени отметки в ручных записях.
	ManualSentinel = "MANUAL"

	// NotAttendedMarker - значение времени отметки, которым API школы
	// обозначает пропуск. Пустая строка означает то же самое.
	NotAttendedMarker = "NOT_ATTENDED"

	// LateStatusCode - код статуса опоздания в API школы.
	LateStatusCode = 2

	// FinishedMinConducted - курс считается завершённым, только если
	// проведено больше этого числа занятий.
	FinishedMinConducted = 10

	// FollowUpSuffix отмечает курс-продолжение: "COMP101A" продолжает "COMP101".
	FollowUpSuffix = "A"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENUMS
// ══════════════════════════════════════════════════════════════════════════════

// ClassStatus - итог одного проведённого занятия.
type ClassStatus string

const (
	ClassAttended ClassStatus = "attended"
	ClassLate     ClassStatus = "late"
	ClassAbsent   ClassStatus = "absent"
)

// Lifecycle - состояние курса.
type Lifecycle string

const (
	LifecycleActive   Lifecycle = "ACTIVE"
	LifecycleFinished Lifecycle = "FINISHED"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENTITIES
// ══════════════════════════════════════════════════════════════════════════════

// ClassRecord - результат одного занятия внутри сводки.
type ClassRecord struct {
	ID         string      `json:"id"`
	Date       string      `json:"date"`
	TimeRange  string      `json:"timeRange"`
	AttendTime string      `json:"attendTime"`
	Room       string      `json:"room"`
	Status     ClassStatus `json:"status"`
}

// IsManual возвращает true для записей, созданных вручную.
func (r ClassRecord) IsManual() bool {
	return r.AttendTime == ManualSentinel
}

// Rollup - сводка посещаемости по (CourseCode, StudentID, Term).
//
// Инварианты: Attended >= Late, Conducted = Attended + Absent.
// Version растёт при каждом сохранении и защищает запись от гонок.
type Rollup struct {
	ID         string
	CourseCode string
	CourseName string
	StudentID  string
	Term       schedule.Term

	Status         Lifecycle
	AttendanceRate float64
	TotalScheduled int
	Conducted      int
	Attended       int
	Late           int
	Absent         int
	Finished       bool

	IsFollowUp     bool
	BaseCourseCode string

	Records []ClassRecord

	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewRollup создаёт пустую сводку курса.
func NewRollup(studentID, courseCode, courseName string, term schedule.Term, now time.Time) *Rollup {
	base, followUp := SplitFollowUp(courseCode)
	return &Rollup{
		CourseCode:     courseCode,
		CourseName:     courseName,
		StudentID:      studentID,
		Term:           term,
		Status:         LifecycleActive,
		IsFollowUp:     followUp,
		BaseCourseCode: base,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CLASSIFICATION
// ══════════════════════════════════════════════════════════════════════════════

// SplitFollowUp возвращает базовый код курса и признак курса-продолжения.
func SplitFollowUp(code string) (base string, followUp bool) {
	if len(code) > len(FollowUpSuffix) && strings.HasSuffix(code, FollowUpSuffix) {
		return strings.TrimSuffix(code, FollowUpSuffix), true
	}
	return code, false
}

// ClassifyClass определяет итог занятия по времени отметки и коду статуса.
// Опоздание считается посещением.
func ClassifyClass(attendTime string, statusCode int) ClassStatus {
	t := strings.TrimSpace(attendTime)
	switch {
	case t == "" || t == NotAttendedMarker:
		return ClassAbsent
	case statusCode == LateStatusCode:
		return ClassLate
	default:
		return ClassAttended
	}
}

// LifecycleFor - курс завершён, если семестр указанного года уже закончился
// и проведено больше FinishedMinConducted занятий.
func LifecycleFor(term schedule.Term, year, conducted int, now time.Time) Lifecycle {
	end := term.EndDate(year, now.Location())
	if now.After(end) && conducted > FinishedMinConducted {
		return LifecycleFinished
	}
	return LifecycleActive
}

// TermYear - год семестра сводки. Берётся по последнему занятию, а без
// датированных занятий считается последний начавшийся семестр.
func (r *Rollup) TermYear(now time.Time) int {
	for i := len(r.Records) - 1; i >= 0; i-- {
		d, err := time.Parse(timeutil.DateLayout, r.Records[i].Date)
		if err == nil {
			return d.Year()
		}
	}
	return schedule.LatestYear(r.Term, now)
}

// ══════════════════════════════════════════════════════════════════════════════
// MUTATIONS
// ══════════════════════════════════════════════════════════════════════════════

// ApplyUpstream заменяет выводимые поля данными из API школы. Ручные записи
// сохраняются и при совпадении id имеют приоритет над записями API.
func (r *Rollup) ApplyUpstream(courseName string, detail CourseDetail, now time.Time) {
	if courseName != "" {
		r.CourseName = courseName
	}
	r.BaseCourseCode, r.IsFollowUp = SplitFollowUp(r.CourseCode)

	manual := make(map[string]ClassRecord)
	for _, rec := range r.Records {
		if rec.IsManual() {
			manual[rec.ID] = rec
		}
	}

	records := make([]ClassRecord, 0, len(detail.Classes)+len(manual))
	for _, c := range detail.Classes {
		if _, ok := manual[c.ID]; ok {
			continue
		}
		records = append(records, ClassRecord{
			ID:         c.ID,
			Date:       c.Date,
			TimeRange:  c.TimeRange,
			AttendTime: c.AttendTime,
			Room:       c.Room,
			Status:     ClassifyClass(c.AttendTime, c.StatusCode),
		})
	}
	for _, rec := range manual {
		records = append(records, rec)
	}

	r.Records = records
	r.TotalScheduled = detail.TotalScheduled
	r.Recompute(now)
}

// UpsertManualRecord добавляет или заменяет ручную запись с тем же id.
func (r *Rollup) UpsertManualRecord(rec ClassRecord, now time.Time) {
	rec.AttendTime = ManualSentinel
	for i := range r.Records {
		if r.Records[i].ID == rec.ID {
			r.Records[i] = rec
			r.Recompute(now)
			return
		}
	}
	r.Records = append(r.Records, rec)
	r.Recompute(now)
}

// Recompute пересчитывает счётчики, процент и жизненный цикл по списку записей.
func (r *Rollup) Recompute(now time.Time) {
	sortRecords(r.Records)

	r.Attended, r.Late, r.Absent = 0, 0, 0
	for _, rec := range r.Records {
		switch rec.Status {
		case ClassAbsent:
			r.Absent++
		case ClassLate:
			r.Late++
			r.Attended++
		default:
			r.Attended++
		}
	}
	r.Conducted = r.Attended + r.Absent
	if r.TotalScheduled < r.Conducted {
		r.TotalScheduled = r.Conducted
	}

	r.AttendanceRate = 0
	if r.Conducted > 0 {
		r.AttendanceRate = Round1(float64(r.Attended) / float64(r.Conducted) * 100)
	}

	r.Status = LifecycleFor(r.Term, r.TermYear(now), r.Conducted, now)
	r.Finished = r.Status == LifecycleFinished
	r.UpdatedAt = now
}

func sortRecords(records []ClassRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		if a.TimeRange != b.TimeRange {
			return a.TimeRange < b.TimeRange
		}
		return a.ID < b.ID
	})
}

// Round1 округляет до одного знака после запятой.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}
