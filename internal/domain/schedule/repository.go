package schedule

import "context"

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Реализации находятся в infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// Repository хранит занятия календаря.
type Repository interface {
	// ExistingKeys возвращает ключи из keys, для которых у студента уже есть
	// занятие (в любом семестре). Один запрос на весь набор.
	ExistingKeys(ctx context.Context, studentID string, keys []string) (map[string]struct{}, error)

	// InsertMany вставляет занятия одним пакетом. Конфликты уникальности
	// поглощаются; возвращается число реально вставленных строк.
	InsertMany(ctx context.Context, events []*ScheduledEvent) (int, error)

	// GetByID возвращает ErrEventNotFound, если занятия нет.
	GetByID(ctx context.Context, id int64) (*ScheduledEvent, error)

	// Update сохраняет статус и время занятия.
	Update(ctx context.Context, event *ScheduledEvent) error

	// ListByStudent возвращает все занятия студента.
	ListByStudent(ctx context.Context, studentID string) ([]*ScheduledEvent, error)

	// ListByStudentAndTerm возвращает занятия студента за семестр.
	ListByStudentAndTerm(ctx context.Context, studentID string, term Term) ([]*ScheduledEvent, error)

	// LatestTermForCourse - семестр последнего изменённого занятия курса
	// (updated_at, затем start). ok=false, если занятий нет.
	LatestTermForCourse(ctx context.Context, studentID, courseCode string) (term Term, ok bool, err error)

	// DeleteDuplicates оставляет по одной строке на (ключ, студент, семестр):
	// самую свежую, при равенстве - с наибольшим id. Возвращает число удалённых.
	DeleteDuplicates(ctx context.Context, studentID string) (int, error)
}
