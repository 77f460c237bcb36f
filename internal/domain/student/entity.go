package student

import (
	"strings"
	"time"

	"github.com/alem-hub/attendance-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENTITY
// ══════════════════════════════════════════════════════════════════════════════

// Student - студент, известный системе.
type Student struct {
	// ID - идентификатор студента в API школы.
	ID string

	// SealedToken - токен API школы, зашифрованный ключом сервиса.
	// Пуст, если хранение токенов не настроено.
	SealedToken []byte

	LastSyncedAt time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewStudent создаёт студента после проверки токена.
func NewStudent(id string, now time.Time) (*Student, error) {
	id = strings.TrimSpace(id)
	if id == "" || len(id) > 128 {
		return nil, shared.ErrInvalidStudentID
	}
	return &Student{ID: id, CreatedAt: now, UpdatedAt: now}, nil
}

// HasToken возвращает true, если для автосинхронизации есть сохранённый токен.
func (s *Student) HasToken() bool {
	return len(s.SealedToken) > 0
}

// AttachToken заменяет сохранённый токен.
func (s *Student) AttachToken(sealed []byte) {
	s.SealedToken = sealed
}

// MarkSynced фиксирует успешную синхронизацию.
func (s *Student) MarkSynced(now time.Time) {
	s.LastSyncedAt = now
	s.UpdatedAt = now
}
