package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Migrate creates the schema if it does not exist. Uniqueness and the
// delete policies (teacher deletion detaches, student deletion
// cascades) are enforced here so every writer shares them.
func Migrate(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id UUID PRIMARY KEY,
			username TEXT NOT NULL,
			role TEXT NOT NULL CHECK (role IN ('ADMIN', 'TEACHER')),
			password_hash BYTEA NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT users_username_key UNIQUE (username)
		)`,
		`CREATE TABLE IF NOT EXISTS teachers (
			id UUID PRIMARY KEY,
			user_id UUID NOT NULL UNIQUE REFERENCES users(id) ON DELETE CASCADE,
			employee_id TEXT NOT NULL,
			CONSTRAINT teachers_employee_id_key UNIQUE (employee_id)
		)`,
		`CREATE TABLE IF NOT EXISTS students (
			id UUID PRIMARY KEY,
			name TEXT NOT NULL,
			roll_number TEXT NOT NULL,
			class_name TEXT NOT NULL DEFAULT '',
			assigned_teacher_id UUID REFERENCES teachers(id) ON DELETE SET NULL,
			CONSTRAINT students_roll_number_key UNIQUE (roll_number)
		)`,
		`CREATE TABLE IF NOT EXISTS attendance (
			id UUID PRIMARY KEY,
			student_id UUID NOT NULL REFERENCES students(id) ON DELETE CASCADE,
			date DATE NOT NULL,
			status TEXT NOT NULL CHECK (status IN ('PRESENT', 'ABSENT')),
			marked_by UUID REFERENCES teachers(id) ON DELETE SET NULL,
			marked_at TIMESTAMPTZ NOT NULL,
			CONSTRAINT attendance_student_id_date_key UNIQUE (student_id, date)
		)`,
		`CREATE INDEX IF NOT EXISTS attendance_date_idx ON attendance (date)`,
		`CREATE INDEX IF NOT EXISTS attendance_marked_by_idx ON attendance (marked_by)`,
		`CREATE INDEX IF NOT EXISTS students_assigned_teacher_idx ON students (assigned_teacher_id)`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
