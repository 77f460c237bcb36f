package attendance

import (
	"context"

	"github.com/alem-hub/attendance-hub/internal/domain/schedule"
)

// ══════════════════════════════════════════════════════════════════════════════
// UPSTREAM DATA
// ══════════════════════════════════════════════════════════════════════════════

// CourseRef - курс из списка посещаемости.
type CourseRef struct {
	Code string
	Name string
}

// RawClass - одно проведённое занятие в детализации курса.
type RawClass struct {
	ID         string
	Date       string
	TimeRange  string
	AttendTime string
	Room       string
	StatusCode int
}

// CourseDetail - детализация посещаемости курса.
type CourseDetail struct {
	Classes        []RawClass
	TotalScheduled int
}

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// ══════════════════════════════════════════════════════════════════════════════

// Repository хранит сводки посещаемости.
type Repository interface {
	// Get возвращает ErrRollupNotFound, если сводки нет.
	Get(ctx context.Context, studentID, courseCode string, term schedule.Term) (*Rollup, error)

	// Save сохраняет сводку с проверкой версии (compare-and-swap).
	// Version == 0 - вставка, иначе обновление строки с той же версией.
	// При конфликте возвращает ошибку с ErrOptimisticLock. После успеха
	// rollup.Version содержит новую версию.
	Save(ctx context.Context, rollup *Rollup) error

	// ListByStudent возвращает все сводки студента.
	ListByStudent(ctx context.Context, studentID string) ([]*Rollup, error)

	// DeleteDuplicates оставляет одну сводку на (курс, студент, семестр).
	DeleteDuplicates(ctx context.Context, studentID string) (int, error)
}
