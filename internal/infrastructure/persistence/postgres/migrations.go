package postgres

// ══════════════════════════════════════════════════════════════════════════════
// EMBEDDED MIGRATIONS
// ══════════════════════════════════════════════════════════════════════════════

// GetMigrations returns all embedded migrations.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version: 1,
			Name:    "create_students",
			UpSQL:   migration001Up,
			DownSQL: migration001Down,
		},
		{
			Version: 2,
			Name:    "create_scheduled_events",
			UpSQL:   migration002Up,
			DownSQL: migration002Down,
		},
		{
			Version: 3,
			Name:    "create_attendance_rollups",
			UpSQL:   migration003Up,
			DownSQL: migration003Down,
		},
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: CREATE STUDENTS
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
CREATE TABLE IF NOT EXISTS students (
    id VARCHAR(128) PRIMARY KEY,
    sealed_token BYTEA,
    last_synced_at TIMESTAMP WITH TIME ZONE,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_students_with_token ON students(id) WHERE sealed_token IS NOT NULL;
`

const migration001Down = `
DROP TABLE IF EXISTS students;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: CREATE SCHEDULED EVENTS
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
CREATE TABLE IF NOT EXISTS scheduled_events (
    id BIGSERIAL PRIMARY KEY,
    natural_key TEXT NOT NULL,
    student_id VARCHAR(128) NOT NULL,
    term SMALLINT NOT NULL,
    status VARCHAR(16) NOT NULL,
    course_code VARCHAR(64) NOT NULL,
    course_title TEXT NOT NULL DEFAULT '',
    lesson_type TEXT NOT NULL DEFAULT '',
    start_at TIMESTAMP WITH TIME ZONE NOT NULL,
    end_at TIMESTAMP WITH TIME ZONE NOT NULL,
    location TEXT NOT NULL DEFAULT '',
    lecturer TEXT NOT NULL DEFAULT '',
    color_index SMALLINT NOT NULL DEFAULT 0,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_term CHECK (term IN (1, 2, 3)),
    CONSTRAINT valid_status CHECK (status IN ('UPCOMING', 'FINISHED', 'CANCELED', 'RESCHEDULED', 'ABSENT')),
    CONSTRAINT valid_range CHECK (end_at >= start_at)
);

CREATE UNIQUE INDEX IF NOT EXISTS uq_scheduled_events_identity
    ON scheduled_events(natural_key, student_id, term);
CREATE INDEX IF NOT EXISTS idx_scheduled_events_student_term
    ON scheduled_events(student_id, term, start_at);
CREATE INDEX IF NOT EXISTS idx_scheduled_events_student_course
    ON scheduled_events(student_id, course_code, updated_at DESC);
`

const migration002Down = `
DROP TABLE IF EXISTS scheduled_events;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: CREATE ATTENDANCE ROLLUPS
// ══════════════════════════════════════════════════════════════════════════════

const migration003Up = `
CREATE TABLE IF NOT EXISTS attendance_rollups (
    id UUID PRIMARY KEY,
    course_code VARCHAR(64) NOT NULL,
    course_name TEXT NOT NULL DEFAULT '',
    student_id VARCHAR(128) NOT NULL,
    term SMALLINT NOT NULL,
    status VARCHAR(16) NOT NULL DEFAULT 'ACTIVE',
    attendance_rate NUMERIC(5,1) NOT NULL DEFAULT 0,
    total_scheduled INTEGER NOT NULL DEFAULT 0,
    conducted INTEGER NOT NULL DEFAULT 0,
    attended INTEGER NOT NULL DEFAULT 0,
    late INTEGER NOT NULL DEFAULT 0,
    absent INTEGER NOT NULL DEFAULT 0,
    finished BOOLEAN NOT NULL DEFAULT FALSE,
    is_follow_up BOOLEAN NOT NULL DEFAULT FALSE,
    base_course_code VARCHAR(64) NOT NULL DEFAULT '',
    records JSONB NOT NULL DEFAULT '[]'::jsonb,
    version BIGINT NOT NULL DEFAULT 1,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_term CHECK (term IN (1, 2, 3)),
    CONSTRAINT valid_lifecycle CHECK (status IN ('ACTIVE', 'FINISHED')),
    CONSTRAINT valid_counts CHECK (attended >= late AND conducted = attended + absent)
);

CREATE UNIQUE INDEX IF NOT EXISTS uq_attendance_rollups_identity
    ON attendance_rollups(course_code, student_id, term);
CREATE INDEX IF NOT EXISTS idx_attendance_rollups_student
    ON attendance_rollups(student_id);
`

const migration003Down = `
DROP TABLE IF EXISTS attendance_rollups;
`
