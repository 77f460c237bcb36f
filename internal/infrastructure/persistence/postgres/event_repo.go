package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/alem-hub/attendance-hub/internal/domain/schedule"
	"github.com/alem-hub/attendance-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// EVENT REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// EventRepository implements schedule.Repository for PostgreSQL.
type EventRepository struct {
	conn *Connection
}

// NewEventRepository creates a new EventRepository.
func NewEventRepository(conn *Connection) *EventRepository {
	return &EventRepository{conn: conn}
}

const eventColumns = `
	id, natural_key, student_id, term, status, course_code, course_title,
	lesson_type, start_at, end_at, location, lecturer, color_index,
	created_at, updated_at
`

// ─────────────────────────────────────────────────────────────────────────────
// Writes
// ─────────────────────────────────────────────────────────────────────────────

// ExistingKeys returns the subset of keys the student already has in any term.
func (r *EventRepository) ExistingKeys(ctx context.Context, studentID string, keys []string) (map[string]struct{}, error) {
	existing := make(map[string]struct{})
	if len(keys) == 0 {
		return existing, nil
	}

	query := `
		SELECT DISTINCT natural_key
		FROM scheduled_events
		WHERE student_id = $1 AND natural_key = ANY($2)
	`

	rows, err := r.conn.Query(ctx, query, studentID, keys)
	if err != nil {
		return nil, fmt.Errorf("failed to query existing keys: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan natural key: %w", err)
		}
		existing[key] = struct{}{}
	}
	return existing, rows.Err()
}

// InsertMany inserts events in one batch. Rows that hit the identity index are
// skipped; the returned count covers inserted rows only. Inserted events get
// their generated IDs.
func (r *EventRepository) InsertMany(ctx context.Context, events []*schedule.ScheduledEvent) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}

	query := `
		INSERT INTO scheduled_events (
			natural_key, student_id, term, status, course_code, course_title,
			lesson_type, start_at, end_at, location, lecturer, color_index,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (natural_key, student_id, term) DO NOTHING
		RETURNING id
	`

	batch := &pgx.Batch{}
	for _, e := range events {
		batch.Queue(query,
			e.NaturalKey,
			e.StudentID,
			int16(e.Term),
			string(e.Status),
			e.CourseCode,
			e.CourseTitle,
			e.LessonType,
			e.Start,
			e.End,
			e.Location,
			e.Lecturer,
			int16(e.ColorIndex),
			e.CreatedAt,
			e.UpdatedAt,
		)
	}

	inserted := 0
	err := r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		results := tx.SendBatch(ctx, batch)
		defer results.Close()

		for _, e := range events {
			var id int64
			err := results.QueryRow().Scan(&id)
			if IsNoRows(err) {
				continue
			}
			if err != nil {
				return fmt.Errorf("failed to insert event %s: %w", e.NaturalKey, err)
			}
			e.ID = id
			inserted++
		}
		return results.Close()
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// Update persists status, times and the update timestamp.
func (r *EventRepository) Update(ctx context.Context, e *schedule.ScheduledEvent) error {
	query := `
		UPDATE scheduled_events
		SET status = $2, start_at = $3, end_at = $4, updated_at = $5
		WHERE id = $1
	`

	tag, err := r.conn.Exec(ctx, query, e.ID, string(e.Status), e.Start, e.End, e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrEventNotFound
	}
	return nil
}

// DeleteDuplicates keeps one row per (natural_key, student_id, term): the most
// recently updated, ties broken by the highest id.
func (r *EventRepository) DeleteDuplicates(ctx context.Context, studentID string) (int, error) {
	query := `
		DELETE FROM scheduled_events
		WHERE id IN (
			SELECT id FROM (
				SELECT id, ROW_NUMBER() OVER (
					PARTITION BY natural_key, student_id, term
					ORDER BY updated_at DESC, id DESC
				) AS rn
				FROM scheduled_events
				WHERE student_id = $1
			) ranked
			WHERE rn > 1
		)
	`

	tag, err := r.conn.Exec(ctx, query, studentID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete duplicate events: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Reads
// ─────────────────────────────────────────────────────────────────────────────

// GetByID returns an event by ID.
func (r *EventRepository) GetByID(ctx context.Context, id int64) (*schedule.ScheduledEvent, error) {
	query := `SELECT` + eventColumns + `FROM scheduled_events WHERE id = $1`

	e, err := scanEvent(r.conn.QueryRow(ctx, query, id))
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrEventNotFound
		}
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	return e, nil
}

// ListByStudent returns every event of the student ordered by start.
func (r *EventRepository) ListByStudent(ctx context.Context, studentID string) ([]*schedule.ScheduledEvent, error) {
	query := `SELECT` + eventColumns + `FROM scheduled_events WHERE student_id = $1 ORDER BY start_at, id`
	return r.list(ctx, query, studentID)
}

// ListByStudentAndTerm returns the student's events of one term ordered by start.
func (r *EventRepository) ListByStudentAndTerm(ctx context.Context, studentID string, term schedule.Term) ([]*schedule.ScheduledEvent, error) {
	query := `SELECT` + eventColumns + `FROM scheduled_events WHERE student_id = $1 AND term = $2 ORDER BY start_at, id`
	return r.list(ctx, query, studentID, int16(term))
}

// LatestTermForCourse returns the term of the course's most recently updated event.
func (r *EventRepository) LatestTermForCourse(ctx context.Context, studentID, courseCode string) (schedule.Term, bool, error) {
	query := `
		SELECT term
		FROM scheduled_events
		WHERE student_id = $1 AND course_code = $2
		ORDER BY updated_at DESC, start_at DESC
		LIMIT 1
	`

	var term int16
	err := r.conn.QueryRow(ctx, query, studentID, courseCode).Scan(&term)
	if err != nil {
		if IsNoRows(err) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to get latest term: %w", err)
	}
	return schedule.Term(term), true, nil
}

func (r *EventRepository) list(ctx context.Context, query string, args ...any) ([]*schedule.ScheduledEvent, error) {
	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []*schedule.ScheduledEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// ─────────────────────────────────────────────────────────────────────────────
// Scanning
// ─────────────────────────────────────────────────────────────────────────────

func scanEvent(row pgx.Row) (*schedule.ScheduledEvent, error) {
	var e schedule.ScheduledEvent
	var term, color int16
	var status string

	err := row.Scan(
		&e.ID,
		&e.NaturalKey,
		&e.StudentID,
		&term,
		&status,
		&e.CourseCode,
		&e.CourseTitle,
		&e.LessonType,
		&e.Start,
		&e.End,
		&e.Location,
		&e.Lecturer,
		&color,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	e.Term = schedule.Term(term)
	e.Status = schedule.Status(status)
	e.ColorIndex = int(color)
	if !e.Status.IsValid() {
		return nil, errors.New("unknown event status " + status)
	}
	return &e, nil
}
