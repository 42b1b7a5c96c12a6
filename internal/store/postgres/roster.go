// Package postgres implements the roster and attendance repositories
// over database/sql with the pgx stdlib driver. Uniqueness lives in the
// schema; this package translates constraint violations back into the
// domain sentinel errors.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"rollbook/internal/roster"
)

// RosterRepository persists users, teachers and students in Postgres.
type RosterRepository struct {
	db *sql.DB
}

func NewRosterRepository(db *sql.DB) *RosterRepository {
	return &RosterRepository{db: db}
}

func (r *RosterRepository) CreateUser(ctx context.Context, usr roster.User) (roster.User, error) {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, username, role, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, usr.ID, usr.Username, usr.Role, usr.PasswordHash, usr.CreatedAt)
	if err != nil {
		return roster.User{}, rosterErr(err)
	}
	return usr, nil
}

func (r *RosterRepository) GetUserByUsername(ctx context.Context, username string) (roster.User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, username, role, password_hash, created_at
		FROM users WHERE username = $1
	`, username)
	var usr roster.User
	if err := row.Scan(&usr.ID, &usr.Username, &usr.Role, &usr.PasswordHash, &usr.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return roster.User{}, roster.ErrNotFound
		}
		return roster.User{}, err
	}
	return usr, nil
}

func (r *RosterRepository) CreateTeacher(ctx context.Context, usr roster.User, t roster.Teacher) (roster.Teacher, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return roster.Teacher{}, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO users (id, username, role, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, usr.ID, usr.Username, usr.Role, usr.PasswordHash, usr.CreatedAt); err != nil {
		return roster.Teacher{}, rosterErr(err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO teachers (id, user_id, employee_id)
		VALUES ($1, $2, $3)
	`, t.ID, t.UserID, t.EmployeeID); err != nil {
		return roster.Teacher{}, rosterErr(err)
	}
	if err := tx.Commit(); err != nil {
		return roster.Teacher{}, err
	}
	return t, nil
}

func (r *RosterRepository) GetTeacher(ctx context.Context, id string) (roster.Teacher, error) {
	return r.teacherBy(ctx, "t.id", id)
}

func (r *RosterRepository) GetTeacherByUser(ctx context.Context, userID string) (roster.Teacher, error) {
	return r.teacherBy(ctx, "t.user_id", userID)
}

func (r *RosterRepository) teacherBy(ctx context.Context, column, value string) (roster.Teacher, error) {
	row := r.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT t.id, t.user_id, u.username, t.employee_id
		FROM teachers t JOIN users u ON u.id = t.user_id
		WHERE %s = $1
	`, column), value)
	var t roster.Teacher
	if err := row.Scan(&t.ID, &t.UserID, &t.Username, &t.EmployeeID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return roster.Teacher{}, roster.ErrNotFound
		}
		return roster.Teacher{}, err
	}
	return t, nil
}

func (r *RosterRepository) ListTeachers(ctx context.Context) ([]roster.Teacher, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT t.id, t.user_id, u.username, t.employee_id
		FROM teachers t JOIN users u ON u.id = t.user_id
		ORDER BY t.employee_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var teachers []roster.Teacher
	for rows.Next() {
		var t roster.Teacher
		if err := rows.Scan(&t.ID, &t.UserID, &t.Username, &t.EmployeeID); err != nil {
			return nil, err
		}
		teachers = append(teachers, t)
	}
	return teachers, rows.Err()
}

func (r *RosterRepository) UpdateTeacher(ctx context.Context, t roster.Teacher) (roster.Teacher, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return roster.Teacher{}, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `UPDATE teachers SET employee_id = $2 WHERE id = $1`, t.ID, t.EmployeeID)
	if err != nil {
		return roster.Teacher{}, rosterErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return roster.Teacher{}, roster.ErrNotFound
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE users SET username = $2
		WHERE id = (SELECT user_id FROM teachers WHERE id = $1)
	`, t.ID, t.Username); err != nil {
		return roster.Teacher{}, rosterErr(err)
	}
	if err := tx.Commit(); err != nil {
		return roster.Teacher{}, err
	}
	return t, nil
}

// DeleteTeacher removes the underlying user; the teacher row cascades
// from it, and the schema sets assigned_teacher_id / marked_by to NULL
// on the rows that referenced the teacher.
func (r *RosterRepository) DeleteTeacher(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM users WHERE id = (SELECT user_id FROM teachers WHERE id = $1)
	`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return roster.ErrNotFound
	}
	return nil
}

func (r *RosterRepository) CountTeachers(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM teachers`).Scan(&n)
	return n, err
}

func (r *RosterRepository) CreateStudent(ctx context.Context, s roster.Student) (roster.Student, error) {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO students (id, name, roll_number, class_name, assigned_teacher_id)
		VALUES ($1, $2, $3, $4, $5)
	`, s.ID, s.Name, s.RollNumber, s.ClassName, s.AssignedTeacherID)
	if err != nil {
		return roster.Student{}, rosterErr(err)
	}
	return s, nil
}

func (r *RosterRepository) GetStudent(ctx context.Context, id string) (roster.Student, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, roll_number, class_name, assigned_teacher_id
		FROM students WHERE id = $1
	`, id)
	var s roster.Student
	if err := row.Scan(&s.ID, &s.Name, &s.RollNumber, &s.ClassName, &s.AssignedTeacherID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return roster.Student{}, roster.ErrNotFound
		}
		return roster.Student{}, err
	}
	return s, nil
}

func (r *RosterRepository) FilterStudents(ctx context.Context, f roster.StudentFilter) ([]roster.Student, error) {
	query := `SELECT id, name, roll_number, class_name, assigned_teacher_id FROM students`
	args := []any{}
	clauses := []string{}
	if f.TeacherID != nil {
		args = append(args, *f.TeacherID)
		clauses = append(clauses, fmt.Sprintf("assigned_teacher_id = $%d", len(args)))
	}
	if f.NameQuery != "" {
		args = append(args, "%"+f.NameQuery+"%")
		clauses = append(clauses, fmt.Sprintf("name ILIKE $%d", len(args)))
	}
	if f.ClassQuery != "" {
		args = append(args, "%"+f.ClassQuery+"%")
		clauses = append(clauses, fmt.Sprintf("class_name ILIKE $%d", len(args)))
	}
	for i, clause := range clauses {
		if i == 0 {
			query += " WHERE " + clause
		} else {
			query += " AND " + clause
		}
	}
	query += " ORDER BY roll_number"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var students []roster.Student
	for rows.Next() {
		var s roster.Student
		if err := rows.Scan(&s.ID, &s.Name, &s.RollNumber, &s.ClassName, &s.AssignedTeacherID); err != nil {
			return nil, err
		}
		students = append(students, s)
	}
	return students, rows.Err()
}

func (r *RosterRepository) UpdateStudent(ctx context.Context, s roster.Student) (roster.Student, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE students
		SET name = $2, roll_number = $3, class_name = $4, assigned_teacher_id = $5
		WHERE id = $1
	`, s.ID, s.Name, s.RollNumber, s.ClassName, s.AssignedTeacherID)
	if err != nil {
		return roster.Student{}, rosterErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return roster.Student{}, roster.ErrNotFound
	}
	return s, nil
}

// DeleteStudent relies on the FK cascade to remove the student's marks.
func (r *RosterRepository) DeleteStudent(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM students WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return roster.ErrNotFound
	}
	return nil
}

func (r *RosterRepository) CountStudents(ctx context.Context, teacherID *string) (int, error) {
	var n int
	var err error
	if teacherID == nil {
		err = r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM students`).Scan(&n)
	} else {
		err = r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM students WHERE assigned_teacher_id = $1`, *teacherID).Scan(&n)
	}
	return n, err
}

// rosterErr maps unique-constraint violations onto the sentinel errors
// the service layer reports as field validation failures.
func rosterErr(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return err
	}
	switch pgErr.ConstraintName {
	case "users_username_key":
		return roster.ErrUsernameExists
	case "teachers_employee_id_key":
		return roster.ErrEmployeeIDTaken
	case "students_roll_number_key":
		return roster.ErrRollNumberTaken
	}
	return err
}
