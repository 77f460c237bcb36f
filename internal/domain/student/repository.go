package student

import "context"

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// ══════════════════════════════════════════════════════════════════════════════

// Repository хранит студентов.
type Repository interface {
	// Upsert создаёт студента или обновляет токен и время синхронизации.
	// Пустой SealedToken не затирает уже сохранённый.
	Upsert(ctx context.Context, s *Student) error

	// GetByID возвращает ErrStudentNotFound, если студента нет.
	GetByID(ctx context.Context, id string) (*Student, error)

	// ListWithTokens возвращает студентов с сохранённым токеном.
	ListWithTokens(ctx context.Context) ([]*Student, error)
}
