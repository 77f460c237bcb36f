package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/alem-hub/attendance-hub/internal/domain/attendance"
	"github.com/alem-hub/attendance-hub/internal/domain/schedule"
	"github.com/alem-hub/attendance-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ROLLUP REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// RollupRepository implements attendance.Repository for PostgreSQL.
// Class records are stored as a JSONB array on the rollup row.
type RollupRepository struct {
	conn *Connection
}

// NewRollupRepository creates a new RollupRepository.
func NewRollupRepository(conn *Connection) *RollupRepository {
	return &RollupRepository{conn: conn}
}

const rollupColumns = `
	id, course_code, course_name, student_id, term, status, attendance_rate,
	total_scheduled, conducted, attended, late, absent, finished,
	is_follow_up, base_course_code, records, version, created_at, updated_at
`

// Get returns the rollup for (student, course, term).
func (r *RollupRepository) Get(ctx context.Context, studentID, courseCode string, term schedule.Term) (*attendance.Rollup, error) {
	query := `SELECT` + rollupColumns + `FROM attendance_rollups
		WHERE student_id = $1 AND course_code = $2 AND term = $3
		ORDER BY updated_at DESC
		LIMIT 1`

	rollup, err := scanRollup(r.conn.QueryRow(ctx, query, studentID, courseCode, int16(term)))
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrRollupNotFound
		}
		return nil, fmt.Errorf("failed to get rollup: %w", err)
	}
	return rollup, nil
}

// Save inserts the rollup when Version is 0 and otherwise updates the row
// only if its stored version still matches.
func (r *RollupRepository) Save(ctx context.Context, rollup *attendance.Rollup) error {
	records := rollup.Records
	if records == nil {
		records = []attendance.ClassRecord{}
	}
	recordsJSON, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("failed to marshal class records: %w", err)
	}

	if rollup.Version == 0 {
		return r.insert(ctx, rollup, recordsJSON)
	}

	query := `
		UPDATE attendance_rollups
		SET course_name = $3, status = $4, attendance_rate = $5, total_scheduled = $6,
		    conducted = $7, attended = $8, late = $9, absent = $10, finished = $11,
		    is_follow_up = $12, base_course_code = $13, records = $14,
		    version = version + 1, updated_at = $15
		WHERE id = $1 AND version = $2
	`

	tag, err := r.conn.Exec(ctx, query,
		rollup.ID,
		rollup.Version,
		rollup.CourseName,
		string(rollup.Status),
		rollup.AttendanceRate,
		rollup.TotalScheduled,
		rollup.Conducted,
		rollup.Attended,
		rollup.Late,
		rollup.Absent,
		rollup.Finished,
		rollup.IsFollowUp,
		rollup.BaseCourseCode,
		recordsJSON,
		rollup.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update rollup: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrRollupConflict
	}

	rollup.Version++
	return nil
}

func (r *RollupRepository) insert(ctx context.Context, rollup *attendance.Rollup, recordsJSON []byte) error {
	if rollup.ID == "" {
		rollup.ID = uuid.NewString()
	}

	query := `
		INSERT INTO attendance_rollups (
			id, course_code, course_name, student_id, term, status, attendance_rate,
			total_scheduled, conducted, attended, late, absent, finished,
			is_follow_up, base_course_code, records, version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, 1, $17, $18)
	`

	_, err := r.conn.Exec(ctx, query,
		rollup.ID,
		rollup.CourseCode,
		rollup.CourseName,
		rollup.StudentID,
		int16(rollup.Term),
		string(rollup.Status),
		rollup.AttendanceRate,
		rollup.TotalScheduled,
		rollup.Conducted,
		rollup.Attended,
		rollup.Late,
		rollup.Absent,
		rollup.Finished,
		rollup.IsFollowUp,
		rollup.BaseCourseCode,
		recordsJSON,
		rollup.CreatedAt,
		rollup.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			rollup.ID = ""
			return shared.ErrRollupConflict
		}
		return fmt.Errorf("failed to insert rollup: %w", err)
	}

	rollup.Version = 1
	return nil
}

// ListByStudent returns all rollups of the student.
func (r *RollupRepository) ListByStudent(ctx context.Context, studentID string) ([]*attendance.Rollup, error) {
	query := `SELECT` + rollupColumns + `FROM attendance_rollups
		WHERE student_id = $1
		ORDER BY term, course_code`

	rows, err := r.conn.Query(ctx, query, studentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query rollups: %w", err)
	}
	defer rows.Close()

	var rollups []*attendance.Rollup
	for rows.Next() {
		rollup, err := scanRollup(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rollup: %w", err)
		}
		rollups = append(rollups, rollup)
	}
	return rollups, rows.Err()
}

// DeleteDuplicates keeps the most recently updated rollup per (course, student, term).
func (r *RollupRepository) DeleteDuplicates(ctx context.Context, studentID string) (int, error) {
	query := `
		DELETE FROM attendance_rollups
		WHERE id IN (
			SELECT id FROM (
				SELECT id, ROW_NUMBER() OVER (
					PARTITION BY course_code, student_id, term
					ORDER BY updated_at DESC, version DESC
				) AS rn
				FROM attendance_rollups
				WHERE student_id = $1
			) ranked
			WHERE rn > 1
		)
	`

	tag, err := r.conn.Exec(ctx, query, studentID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete duplicate rollups: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func scanRollup(row pgx.Row) (*attendance.Rollup, error) {
	var rollup attendance.Rollup
	var term int16
	var status string
	var recordsJSON []byte

	err := row.Scan(
		&rollup.ID,
		&rollup.CourseCode,
		&rollup.CourseName,
		&rollup.StudentID,
		&term,
		&status,
		&rollup.AttendanceRate,
		&rollup.TotalScheduled,
		&rollup.Conducted,
		&rollup.Attended,
		&rollup.Late,
		&rollup.Absent,
		&rollup.Finished,
		&rollup.IsFollowUp,
		&rollup.BaseCourseCode,
		&recordsJSON,
		&rollup.Version,
		&rollup.CreatedAt,
		&rollup.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	rollup.Term = schedule.Term(term)
	rollup.Status = attendance.Lifecycle(status)
	if len(recordsJSON) > 0 {
		if err := json.Unmarshal(recordsJSON, &rollup.Records); err != nil {
			return nil, fmt.Errorf("failed to unmarshal class records: %w", err)
		}
	}
	return &rollup, nil
}
