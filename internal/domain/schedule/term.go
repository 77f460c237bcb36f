// Package schedule содержит доменную модель расписания занятий студента:
// семестры, занятия календаря, сырые события из API школы и вывод
// естественного ключа.
package schedule

import (
	"strconv"
	"strings"
	"time"

	"github.com/alem-hub/attendance-hub/internal/domain/shared"
	"github.com/alem-hub/attendance-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// TERM
// ══════════════════════════════════════════════════════════════════════════════

// Term - академический семестр.
type Term int

const (
	TermFall   Term = 1
	TermSpring Term = 2
	TermSummer Term = 3
)

// IsValid проверяет, что семестр один из трёх известных.
func (t Term) IsValid() bool {
	return t == TermFall || t == TermSpring || t == TermSummer
}

func (t Term) String() string {
	switch t {
	case TermFall:
		return "fall"
	case TermSpring:
		return "spring"
	case TermSummer:
		return "summer"
	default:
		return "unknown"
	}
}

// ParseTerm принимает "1".."3" или название семестра.
func ParseTerm(s string) (Term, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if n, err := strconv.Atoi(s); err == nil {
		t := Term(n)
		if !t.IsValid() {
			return 0, shared.ErrInvalidTerm
		}
		return t, nil
	}
	for _, t := range []Term{TermFall, TermSpring, TermSummer} {
		if t.String() == s {
			return t, nil
		}
	}
	return 0, shared.ErrInvalidTerm
}

// Months возвращает месяцы, из которых загружается расписание семестра.
func (t Term) Months() []time.Month {
	switch t {
	case TermFall:
		return []time.Month{time.September, time.October, time.November, time.December}
	case TermSpring:
		return []time.Month{time.January, time.February, time.March, time.April, time.May}
	case TermSummer:
		return []time.Month{time.June, time.July, time.August}
	default:
		return nil
	}
}

// EndDate - последний момент семестра указанного года: 31 декабря,
// 31 мая или 31 августа, 23:59:59 по времени кампуса.
func (t Term) EndDate(year int, loc *time.Location) time.Time {
	switch t {
	case TermFall:
		return timeutil.EndOfDay(year, time.December, 31, loc)
	case TermSpring:
		return timeutil.EndOfDay(year, time.May, 31, loc)
	default:
		return timeutil.EndOfDay(year, time.August, 31, loc)
	}
}

// TermForMonth определяет текущий семестр по месяцу:
// сентябрь-декабрь - осень, январь-апрель - весна, май-август - лето.
func TermForMonth(m time.Month) Term {
	switch {
	case m >= time.September:
		return TermFall
	case m <= time.April:
		return TermSpring
	default:
		return TermSummer
	}
}

// AcademicYear возвращает календарный год, к которому относится семестр
// относительно момента now. Осенний семестр до сентября считается прошлогодним.
func AcademicYear(t Term, now time.Time) int {
	if t == TermFall && now.Month() < time.September {
		return now.Year() - 1
	}
	return now.Year()
}

// LatestYear возвращает год последнего семестра t, начавшегося не позже now.
// Летний семестр в феврале относится к прошлому году.
func LatestYear(t Term, now time.Time) int {
	months := t.Months()
	if len(months) == 0 || now.Month() >= months[0] {
		return now.Year()
	}
	return now.Year() - 1
}

// ══════════════════════════════════════════════════════════════════════════════
// BACKFILL
// ══════════════════════════════════════════════════════════════════════════════

// MonthRef - один месяц загрузки расписания.
type MonthRef struct {
	Term  Term
	Year  int
	Month time.Month
}

// FetchPlan строит список месяцев для синхронизации семестра.
//
// Осень загружает только свои месяцы. Весна дополнительно подтягивает осень
// прошлого года, лето - весну текущего года, чтобы студент, пришедший
// в середине года, видел предыдущий семестр.
func FetchPlan(t Term, now time.Time) []MonthRef {
	year := AcademicYear(t, now)
	plan := monthsOf(t, year)

	switch t {
	case TermSpring:
		plan = append(plan, monthsOf(TermFall, year-1)...)
	case TermSummer:
		plan = append(plan, monthsOf(TermSpring, year)...)
	}
	return plan
}

func monthsOf(t Term, year int) []MonthRef {
	months := t.Months()
	refs := make([]MonthRef, 0, len(months))
	for _, m := range months {
		refs = append(refs, MonthRef{Term: t, Year: year, Month: m})
	}
	return refs
}
