package attendance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"rollbook/internal/policy"
	"rollbook/internal/roster"
	"rollbook/internal/validate"
)

var (
	ErrNotFound      = errors.New("attendance record not found")
	ErrDuplicateMark = errors.New("Attendance for this student on this date is already marked.")
	errFutureEdit    = fmt.Errorf("%w: Cannot edit future attendance.", policy.ErrPermissionDenied)
)

// Repository persists attendance marks. Insert must enforce the
// (student, date) uniqueness atomically and signal ErrDuplicateMark so
// racing creates resolve to exactly one winner.
type Repository interface {
	Insert(ctx context.Context, m Mark) (Mark, error)
	// GetByMarker fetches a mark scoped to the teacher who created it;
	// a mark owned by someone else is ErrNotFound, not a denial.
	GetByMarker(ctx context.Context, id, teacherID string) (Mark, error)
	UpdateStatus(ctx context.Context, id string, status Status) (Mark, error)

	FindForDate(ctx context.Context, studentID string, date time.Time) (*Mark, error)
	// ListForStudents returns every mark of the given students, newest
	// date first. An empty id set yields no rows.
	ListForStudents(ctx context.Context, studentIDs []string) ([]Mark, error)
	ListForStudent(ctx context.Context, studentID string, ascending bool) ([]Mark, error)
	MonthCounts(ctx context.Context, studentID string, year int, month time.Month) (MonthCounts, error)

	CountAll(ctx context.Context) (int, error)
	// CountOnDate counts marks for one date and status, optionally
	// restricted to marks created by one teacher.
	CountOnDate(ctx context.Context, date time.Time, status Status, markedBy *string) (int, error)
}

// StudentDirectory is the slice of the roster the lifecycle needs.
type StudentDirectory interface {
	GetStudent(ctx context.Context, id string) (roster.Student, error)
}

// SummaryInvalidator drops cached monthly summaries after a write.
type SummaryInvalidator interface {
	InvalidateMonthlySummary(ctx context.Context, studentID string, year int, month time.Month)
}

// Service implements the mark lifecycle: who may create or edit a mark
// and under which temporal constraints.
type Service struct {
	repo     Repository
	students StudentDirectory
	cache    SummaryInvalidator

	// Clock supplies "now" for marked_at stamps and the future-edit
	// check; tests override it.
	Clock func() time.Time
}

func NewService(repo Repository, students StudentDirectory, cache SummaryInvalidator) *Service {
	return &Service{repo: repo, students: students, cache: cache, Clock: time.Now}
}

// Mark creates an attendance record for one of the actor's assigned
// students. A second mark for the same (student, date) pair fails with
// ErrDuplicateMark and leaves the original untouched.
func (svc *Service) Mark(ctx context.Context, actor policy.Actor, studentID string, date time.Time, status Status) (Mark, error) {
	if !status.Valid() {
		return Mark{}, validate.NewValidationError(errors.New("invalid status"),
			validate.FieldError{Field: "status", Error: "must be one of: PRESENT, ABSENT"})
	}
	student, err := svc.students.GetStudent(ctx, studentID)
	if err != nil {
		return Mark{}, err
	}
	if !policy.CanMarkAttendance(actor, student) {
		return Mark{}, policy.ErrPermissionDenied
	}
	markedBy := actor.TeacherID
	m := Mark{
		ID:        uuid.NewString(),
		StudentID: student.ID,
		Date:      DateOf(date),
		Status:    status,
		MarkedBy:  &markedBy,
		MarkedAt:  svc.Clock().UTC(),
	}
	created, err := svc.repo.Insert(ctx, m)
	if err != nil {
		return Mark{}, err
	}
	svc.invalidate(ctx, created)
	return created, nil
}

// Edit changes the status of a mark the actor created. Student, date,
// marked_by and marked_at are immutable here. Marks dated after today
// cannot be edited.
func (svc *Service) Edit(ctx context.Context, actor policy.Actor, markID string, status Status) (Mark, error) {
	if !actor.IsTeacher() {
		return Mark{}, policy.ErrPermissionDenied
	}
	if !status.Valid() {
		return Mark{}, validate.NewValidationError(errors.New("invalid status"),
			validate.FieldError{Field: "status", Error: "must be one of: PRESENT, ABSENT"})
	}
	m, err := svc.repo.GetByMarker(ctx, markID, actor.TeacherID)
	if err != nil {
		return Mark{}, err
	}
	if m.Date.After(DateOf(svc.Clock())) {
		return Mark{}, errFutureEdit
	}
	// Ownership scoping already guarantees this; kept as a hard check
	// against a reassignment racing the edit.
	student, err := svc.students.GetStudent(ctx, m.StudentID)
	if err != nil {
		return Mark{}, err
	}
	if m.MarkedBy != nil && !student.AssignedTo(*m.MarkedBy) {
		return Mark{}, validate.NewValidationError(
			errors.New("mark no longer belongs to the student's assigned teacher"))
	}
	updated, err := svc.repo.UpdateStatus(ctx, m.ID, status)
	if err != nil {
		return Mark{}, err
	}
	svc.invalidate(ctx, updated)
	return updated, nil
}

func (svc *Service) invalidate(ctx context.Context, m Mark) {
	if svc.cache == nil {
		return
	}
	svc.cache.InvalidateMonthlySummary(ctx, m.StudentID, m.Date.Year(), m.Date.Month())
}
