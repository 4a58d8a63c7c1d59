package database

import (
	"context"
	"database/sql"
	"fmt"
)

const migration001Users = `
CREATE TABLE IF NOT EXISTS users (
    id BIGSERIAL PRIMARY KEY,
    user_id BIGINT NOT NULL UNIQUE,
    username VARCHAR(255),
    first_name VARCHAR(255),
    last_name VARCHAR(255),
    role VARCHAR(20) NOT NULL DEFAULT 'student',
    is_active BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_role CHECK (role IN ('student', 'curator'))
);

CREATE INDEX IF NOT EXISTS idx_users_role_active ON users(role, is_active);
`

const migration002Reports = `
CREATE TABLE IF NOT EXISTS reports (
    id BIGSERIAL PRIMARY KEY,
    user_id BIGINT NOT NULL REFERENCES users(user_id) ON DELETE CASCADE,
    stage VARCHAR(255) NOT NULL,
    plans TEXT NOT NULL,
    plans_completed BOOLEAN,
    plans_failure_reason TEXT,
    problems TEXT NOT NULL DEFAULT '',
    is_read_by_curator BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT failure_reason_only_on_failure
        CHECK (plans_failure_reason IS NULL OR plans_completed = FALSE)
);

CREATE INDEX IF NOT EXISTS idx_reports_user_created ON reports(user_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_reports_unread ON reports(user_id) WHERE is_read_by_curator = FALSE;
`

const migration003Relations = `
CREATE TABLE IF NOT EXISTS curator_student_relations (
    id BIGSERIAL PRIMARY KEY,
    curator_id BIGINT NOT NULL REFERENCES users(user_id) ON DELETE CASCADE,
    student_id BIGINT NOT NULL REFERENCES users(user_id) ON DELETE CASCADE,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT curator_student_unique UNIQUE (curator_id, student_id),
    CONSTRAINT student_single_curator UNIQUE (student_id)
);

CREATE INDEX IF NOT EXISTS idx_relations_curator ON curator_student_relations(curator_id);
`

var migrations = []struct {
	name string
	sql  string
}{
	{"001_users", migration001Users},
	{"002_reports", migration002Reports},
	{"003_curator_student_relations", migration003Relations},
}

// ApplyMigrations creates the schema. Every statement is idempotent, so it runs on each start.
func ApplyMigrations(ctx context.Context, db *sql.DB) error {
	for _, m := range migrations {
		if _, err := db.ExecContext(ctx, m.sql); err != nil {
			return fmt.Errorf("error applying migration %s: %w", m.name, err)
		}
	}
	return nil
}
