package attendance_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"rollbook/internal/attendance"
	"rollbook/internal/policy"
	"rollbook/internal/roster"
	"rollbook/internal/store/inmem"
	"rollbook/internal/validate"
)

var (
	day      = time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	testTime = time.Date(2024, 1, 15, 9, 30, 0, 0, time.UTC)
)

func setup(t *testing.T) (*inmem.Store, *attendance.Service) {
	t.Helper()
	db := inmem.NewStore()
	svc := attendance.NewService(db, db, nil)
	svc.Clock = func() time.Time { return testTime }
	return db, svc
}

func seedTeacher(t *testing.T, db *inmem.Store, id string) policy.Actor {
	t.Helper()
	ctx := context.Background()
	usr := roster.User{ID: "user-" + id, Username: id, Role: roster.RoleTeacher}
	if _, err := db.CreateTeacher(ctx, usr, roster.Teacher{
		ID: id, UserID: usr.ID, Username: id, EmployeeID: "E-" + id,
	}); err != nil {
		t.Fatalf("seed teacher: %v", err)
	}
	return policy.Actor{UserID: usr.ID, Username: id, Role: roster.RoleTeacher, TeacherID: id}
}

func seedStudent(t *testing.T, db *inmem.Store, id, roll string, teacherID *string) roster.Student {
	t.Helper()
	s, err := db.CreateStudent(context.Background(), roster.Student{
		ID: id, Name: "Student " + id, RollNumber: roll, ClassName: "5A", AssignedTeacherID: teacherID,
	})
	if err != nil {
		t.Fatalf("seed student: %v", err)
	}
	return s
}

func TestMark(t *testing.T) {
	ctx := context.Background()
	db, svc := setup(t)
	t1 := seedTeacher(t, db, "t1")
	s1 := seedStudent(t, db, "s1", "R1", &t1.TeacherID)

	m, err := svc.Mark(ctx, t1, s1.ID, day, attendance.StatusPresent)
	assert.NoError(t, err)
	assert.Equal(t, s1.ID, m.StudentID)
	assert.Equal(t, attendance.StatusPresent, m.Status)
	assert.True(t, m.Date.Equal(day))
	assert.Equal(t, testTime, m.MarkedAt)
	if assert.NotNil(t, m.MarkedBy) {
		assert.Equal(t, t1.TeacherID, *m.MarkedBy)
	}
}

func TestMarkDuplicate(t *testing.T) {
	ctx := context.Background()
	db, svc := setup(t)
	t1 := seedTeacher(t, db, "t1")
	s1 := seedStudent(t, db, "s1", "R1", &t1.TeacherID)

	_, err := svc.Mark(ctx, t1, s1.ID, day, attendance.StatusPresent)
	assert.NoError(t, err)

	// Second mark for the same (student, date) fails whatever the status.
	_, err = svc.Mark(ctx, t1, s1.ID, day, attendance.StatusAbsent)
	assert.ErrorIs(t, err, attendance.ErrDuplicateMark)

	// The original record is untouched.
	existing, err := db.FindForDate(ctx, s1.ID, day)
	assert.NoError(t, err)
	if assert.NotNil(t, existing) {
		assert.Equal(t, attendance.StatusPresent, existing.Status)
	}
}

func TestMarkForeignTeacherDenied(t *testing.T) {
	ctx := context.Background()
	db, svc := setup(t)
	t1 := seedTeacher(t, db, "t1")
	t2 := seedTeacher(t, db, "t2")
	s1 := seedStudent(t, db, "s1", "R1", &t1.TeacherID)

	_, err := svc.Mark(ctx, t2, s1.ID, day, attendance.StatusPresent)
	assert.ErrorIs(t, err, policy.ErrPermissionDenied)

	// No record was created.
	existing, err := db.FindForDate(ctx, s1.ID, day)
	assert.NoError(t, err)
	assert.Nil(t, existing)
}

func TestMarkUnknownStudent(t *testing.T) {
	db, svc := setup(t)
	t1 := seedTeacher(t, db, "t1")

	_, err := svc.Mark(context.Background(), t1, "missing", day, attendance.StatusPresent)
	assert.ErrorIs(t, err, roster.ErrNotFound)
}

func TestMarkUnauthenticated(t *testing.T) {
	db, svc := setup(t)
	t1 := seedTeacher(t, db, "t1")
	s1 := seedStudent(t, db, "s1", "R1", &t1.TeacherID)

	_, err := svc.Mark(context.Background(), policy.Actor{}, s1.ID, day, attendance.StatusPresent)
	assert.ErrorIs(t, err, policy.ErrPermissionDenied)
}

func TestEdit(t *testing.T) {
	ctx := context.Background()
	db, svc := setup(t)
	t1 := seedTeacher(t, db, "t1")
	s1 := seedStudent(t, db, "s1", "R1", &t1.TeacherID)

	m, err := svc.Mark(ctx, t1, s1.ID, day, attendance.StatusPresent)
	assert.NoError(t, err)

	updated, err := svc.Edit(ctx, t1, m.ID, attendance.StatusAbsent)
	assert.NoError(t, err)
	assert.Equal(t, attendance.StatusAbsent, updated.Status)

	// Everything except status is immutable.
	assert.Equal(t, m.StudentID, updated.StudentID)
	assert.True(t, m.Date.Equal(updated.Date))
	assert.Equal(t, m.MarkedBy, updated.MarkedBy)
	assert.Equal(t, m.MarkedAt, updated.MarkedAt)
}

func TestEditFutureDenied(t *testing.T) {
	ctx := context.Background()
	db, svc := setup(t)
	t1 := seedTeacher(t, db, "t1")
	s1 := seedStudent(t, db, "s1", "R1", &t1.TeacherID)

	tomorrow := attendance.DateOf(testTime).AddDate(0, 0, 1)
	m, err := svc.Mark(ctx, t1, s1.ID, tomorrow, attendance.StatusPresent)
	assert.NoError(t, err)

	_, err = svc.Edit(ctx, t1, m.ID, attendance.StatusAbsent)
	assert.ErrorIs(t, err, policy.ErrPermissionDenied)
}

func TestEditNotOwnedIsNotFound(t *testing.T) {
	ctx := context.Background()
	db, svc := setup(t)
	t1 := seedTeacher(t, db, "t1")
	t2 := seedTeacher(t, db, "t2")
	s1 := seedStudent(t, db, "s1", "R1", &t1.TeacherID)

	m, err := svc.Mark(ctx, t1, s1.ID, day, attendance.StatusPresent)
	assert.NoError(t, err)

	// A mark owned by someone else reads as absent, not forbidden.
	_, err = svc.Edit(ctx, t2, m.ID, attendance.StatusAbsent)
	assert.ErrorIs(t, err, attendance.ErrNotFound)
	assert.NotErrorIs(t, err, policy.ErrPermissionDenied)
}

func TestEditAfterReassignment(t *testing.T) {
	ctx := context.Background()
	db, svc := setup(t)
	t1 := seedTeacher(t, db, "t1")
	t2 := seedTeacher(t, db, "t2")
	s1 := seedStudent(t, db, "s1", "R1", &t1.TeacherID)

	m, err := svc.Mark(ctx, t1, s1.ID, day, attendance.StatusPresent)
	assert.NoError(t, err)

	// Reassign the student to another teacher behind the mark's back.
	s1.AssignedTeacherID = &t2.TeacherID
	_, err = db.UpdateStudent(ctx, s1)
	assert.NoError(t, err)

	_, err = svc.Edit(ctx, t1, m.ID, attendance.StatusAbsent)
	var verr *validate.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestEditInvalidStatus(t *testing.T) {
	_, svc := setup(t)
	t1 := policy.Actor{UserID: "u", Role: roster.RoleTeacher, TeacherID: "t1"}

	_, err := svc.Edit(context.Background(), t1, "any", attendance.Status("LATE"))
	var verr *validate.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestConcurrentMarksSingleWinner(t *testing.T) {
	ctx := context.Background()
	db, svc := setup(t)
	t1 := seedTeacher(t, db, "t1")
	s1 := seedStudent(t, db, "s1", "R1", &t1.TeacherID)

	const attempts = 8
	errs := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		go func() {
			_, err := svc.Mark(ctx, t1, s1.ID, day, attendance.StatusPresent)
			errs <- err
		}()
	}
	wins, dups := 0, 0
	for i := 0; i < attempts; i++ {
		switch err := <-errs; {
		case err == nil:
			wins++
		case errors.Is(err, attendance.ErrDuplicateMark):
			dups++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, wins, "exactly one insert must win")
	assert.Equal(t, attempts-1, dups)
}
