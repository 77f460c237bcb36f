package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/alem-hub/attendance-hub/internal/domain/shared"
	"github.com/alem-hub/attendance-hub/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// STUDENT REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// StudentRepository implements student.Repository for PostgreSQL.
type StudentRepository struct {
	conn *Connection
}

// NewStudentRepository creates a new StudentRepository.
func NewStudentRepository(conn *Connection) *StudentRepository {
	return &StudentRepository{conn: conn}
}

// Upsert creates the student or refreshes its sync time. An empty sealed
// token keeps the stored one.
func (r *StudentRepository) Upsert(ctx context.Context, s *student.Student) error {
	query := `
		INSERT INTO students (id, sealed_token, last_synced_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			sealed_token = COALESCE(EXCLUDED.sealed_token, students.sealed_token),
			last_synced_at = COALESCE(EXCLUDED.last_synced_at, students.last_synced_at),
			updated_at = EXCLUDED.updated_at
	`

	var token []byte
	if s.HasToken() {
		token = s.SealedToken
	}

	_, err := r.conn.Exec(ctx, query, s.ID, token, nullTime(s.LastSyncedAt), s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert student: %w", err)
	}
	return nil
}

// GetByID returns a student by ID.
func (r *StudentRepository) GetByID(ctx context.Context, id string) (*student.Student, error) {
	query := `
		SELECT id, sealed_token, last_synced_at, created_at, updated_at
		FROM students
		WHERE id = $1
	`

	s, err := scanStudent(r.conn.QueryRow(ctx, query, id))
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrStudentNotFound
		}
		return nil, fmt.Errorf("failed to get student: %w", err)
	}
	return s, nil
}

// ListWithTokens returns students that can be synced in the background,
// least recently synced first.
func (r *StudentRepository) ListWithTokens(ctx context.Context) ([]*student.Student, error) {
	query := `
		SELECT id, sealed_token, last_synced_at, created_at, updated_at
		FROM students
		WHERE sealed_token IS NOT NULL
		ORDER BY last_synced_at ASC NULLS FIRST, id
	`

	rows, err := r.conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query students: %w", err)
	}
	defer rows.Close()

	var students []*student.Student
	for rows.Next() {
		s, err := scanStudent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan student: %w", err)
		}
		students = append(students, s)
	}
	return students, rows.Err()
}

func scanStudent(row pgx.Row) (*student.Student, error) {
	var s student.Student
	var lastSynced *time.Time

	if err := row.Scan(&s.ID, &s.SealedToken, &lastSynced, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	if lastSynced != nil {
		s.LastSyncedAt = *lastSynced
	}
	return &s, nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
