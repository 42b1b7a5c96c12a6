package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"rollbook/internal/attendance"
)

// MarkRepository persists attendance marks in Postgres. The
// (student_id, date) unique constraint is the serialization point for
// racing creates: exactly one insert wins.
type MarkRepository struct {
	db *sql.DB
}

func NewMarkRepository(db *sql.DB) *MarkRepository {
	return &MarkRepository{db: db}
}

const markColumns = `id, student_id, date, status, marked_by, marked_at`

func (r *MarkRepository) Insert(ctx context.Context, m attendance.Mark) (attendance.Mark, error) {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO attendance (id, student_id, date, status, marked_by, marked_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, m.ID, m.StudentID, m.Date, m.Status, m.MarkedBy, m.MarkedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return attendance.Mark{}, attendance.ErrDuplicateMark
		}
		return attendance.Mark{}, err
	}
	return m, nil
}

func (r *MarkRepository) GetByMarker(ctx context.Context, id, teacherID string) (attendance.Mark, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+markColumns+` FROM attendance
		WHERE id = $1 AND marked_by = $2
	`, id, teacherID)
	return scanMark(row)
}

func (r *MarkRepository) UpdateStatus(ctx context.Context, id string, status attendance.Status) (attendance.Mark, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE attendance SET status = $2
		WHERE id = $1
		RETURNING `+markColumns+`
	`, id, status)
	return scanMark(row)
}

func (r *MarkRepository) FindForDate(ctx context.Context, studentID string, date time.Time) (*attendance.Mark, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+markColumns+` FROM attendance
		WHERE student_id = $1 AND date = $2
	`, studentID, date)
	m, err := scanMark(row)
	if err != nil {
		if errors.Is(err, attendance.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

func (r *MarkRepository) ListForStudents(ctx context.Context, studentIDs []string) ([]attendance.Mark, error) {
	if len(studentIDs) == 0 {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+markColumns+` FROM attendance
		WHERE student_id = ANY($1::uuid[])
		ORDER BY date DESC, student_id
	`, studentIDs)
	if err != nil {
		return nil, err
	}
	return collectMarks(rows)
}

func (r *MarkRepository) ListForStudent(ctx context.Context, studentID string, ascending bool) ([]attendance.Mark, error) {
	order := "DESC"
	if ascending {
		order = "ASC"
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+markColumns+` FROM attendance
		WHERE student_id = $1
		ORDER BY date `+order, studentID)
	if err != nil {
		return nil, err
	}
	return collectMarks(rows)
}

func (r *MarkRepository) MonthCounts(ctx context.Context, studentID string, year int, month time.Month) (attendance.MonthCounts, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE status = 'PRESENT'),
		       COUNT(*) FILTER (WHERE status = 'ABSENT')
		FROM attendance
		WHERE student_id = $1
		  AND EXTRACT(YEAR FROM date) = $2
		  AND EXTRACT(MONTH FROM date) = $3
	`, studentID, year, int(month))
	var counts attendance.MonthCounts
	if err := row.Scan(&counts.Total, &counts.Present, &counts.Absent); err != nil {
		return attendance.MonthCounts{}, err
	}
	return counts, nil
}

func (r *MarkRepository) CountAll(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM attendance`).Scan(&n)
	return n, err
}

func (r *MarkRepository) CountOnDate(ctx context.Context, date time.Time, status attendance.Status, markedBy *string) (int, error) {
	var n int
	var err error
	if markedBy == nil {
		err = r.db.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM attendance WHERE date = $1 AND status = $2
		`, date, status).Scan(&n)
	} else {
		err = r.db.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM attendance WHERE date = $1 AND status = $2 AND marked_by = $3
		`, date, status, *markedBy).Scan(&n)
	}
	return n, err
}

func scanMark(row *sql.Row) (attendance.Mark, error) {
	var m attendance.Mark
	if err := row.Scan(&m.ID, &m.StudentID, &m.Date, &m.Status, &m.MarkedBy, &m.MarkedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return attendance.Mark{}, attendance.ErrNotFound
		}
		return attendance.Mark{}, err
	}
	return m, nil
}

func collectMarks(rows *sql.Rows) ([]attendance.Mark, error) {
	defer rows.Close()
	var marks []attendance.Mark
	for rows.Next() {
		var m attendance.Mark
		if err := rows.Scan(&m.ID, &m.StudentID, &m.Date, &m.Status, &m.MarkedBy, &m.MarkedAt); err != nil {
			return nil, err
		}
		marks = append(marks, m)
	}
	return marks, rows.Err()
}
