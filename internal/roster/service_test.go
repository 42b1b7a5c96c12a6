package roster_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"rollbook/internal/attendance"
	"rollbook/internal/roster"
	"rollbook/internal/store/inmem"
	"rollbook/internal/validate"
)

func setup(t *testing.T) (*inmem.Store, *roster.Service) {
	t.Helper()
	db := inmem.NewStore()
	return db, roster.NewService(db)
}

func createTeacher(t *testing.T, svc *roster.Service, username, employeeID string) roster.Teacher {
	t.Helper()
	teacher, err := svc.CreateTeacher(context.Background(), roster.NewTeacher{
		Username: username, Password: "correct-horse", EmployeeID: employeeID,
	})
	if err != nil {
		t.Fatalf("create teacher: %v", err)
	}
	return teacher
}

func fieldsOf(t *testing.T, err error) map[string]string {
	t.Helper()
	var verr *validate.ValidationError
	if !assert.ErrorAs(t, err, &verr) {
		t.FailNow()
	}
	return verr.FieldMap()
}

func TestCreateTeacher(t *testing.T) {
	db, svc := setup(t)
	teacher := createTeacher(t, svc, "t1", "E1")
	assert.Equal(t, "t1", teacher.Username)
	assert.Equal(t, "E1", teacher.EmployeeID)

	// The underlying account exists, holds the TEACHER role and the password.
	usr, err := db.GetUserByUsername(context.Background(), "t1")
	assert.NoError(t, err)
	assert.Equal(t, roster.RoleTeacher, usr.Role)
	assert.NoError(t, usr.CheckPassword("correct-horse"))
}

func TestCreateTeacherValidation(t *testing.T) {
	_, svc := setup(t)
	_, err := svc.CreateTeacher(context.Background(), roster.NewTeacher{Username: "t1", Password: "short"})
	fields := fieldsOf(t, err)
	assert.Contains(t, fields, "password")
	assert.Contains(t, fields, "employee_id")
}

func TestCreateTeacherUniqueness(t *testing.T) {
	_, svc := setup(t)
	createTeacher(t, svc, "t1", "E1")

	_, err := svc.CreateTeacher(context.Background(), roster.NewTeacher{
		Username: "t2", Password: "correct-horse", EmployeeID: "E1",
	})
	assert.Contains(t, fieldsOf(t, err), "employee_id")

	_, err = svc.CreateTeacher(context.Background(), roster.NewTeacher{
		Username: "t1", Password: "correct-horse", EmployeeID: "E2",
	})
	assert.Contains(t, fieldsOf(t, err), "username")
}

func TestUpdateTeacherKeepsUniqueness(t *testing.T) {
	_, svc := setup(t)
	createTeacher(t, svc, "t1", "E1")
	t2 := createTeacher(t, svc, "t2", "E2")

	_, err := svc.UpdateTeacher(context.Background(), t2.ID, roster.UpdateTeacher{
		Username: "t2", EmployeeID: "E1",
	})
	assert.Contains(t, fieldsOf(t, err), "employee_id")

	// Keeping its own employee id is not a collision.
	updated, err := svc.UpdateTeacher(context.Background(), t2.ID, roster.UpdateTeacher{
		Username: "t2-renamed", EmployeeID: "E2",
	})
	assert.NoError(t, err)
	assert.Equal(t, "t2-renamed", updated.Username)
}

func TestDeleteTeacherDetaches(t *testing.T) {
	ctx := context.Background()
	db, svc := setup(t)
	t1 := createTeacher(t, svc, "t1", "E1")

	student, err := svc.CreateStudent(ctx, roster.NewStudent{
		Name: "Alice", RollNumber: "R1", ClassName: "5A", AssignedTeacherID: &t1.ID,
	})
	assert.NoError(t, err)

	mark, err := db.Insert(ctx, attendance.Mark{
		ID: "m1", StudentID: student.ID, Date: attendance.DateOf(time.Now()),
		Status: attendance.StatusPresent, MarkedBy: &t1.ID, MarkedAt: time.Now().UTC(),
	})
	assert.NoError(t, err)

	assert.NoError(t, svc.DeleteTeacher(ctx, t1.ID))

	// The student survives, unassigned.
	got, err := svc.GetStudent(ctx, student.ID)
	assert.NoError(t, err)
	assert.Nil(t, got.AssignedTeacherID)

	// The mark survives with marked_by detached.
	marks, err := db.ListForStudent(ctx, student.ID, true)
	assert.NoError(t, err)
	if assert.Len(t, marks, 1) {
		assert.Equal(t, mark.ID, marks[0].ID)
		assert.Nil(t, marks[0].MarkedBy)
	}

	// The login account is gone.
	_, err = db.GetUserByUsername(ctx, "t1")
	assert.ErrorIs(t, err, roster.ErrNotFound)
}

func TestDeleteStudentCascadesMarks(t *testing.T) {
	ctx := context.Background()
	db, svc := setup(t)
	t1 := createTeacher(t, svc, "t1", "E1")

	student, err := svc.CreateStudent(ctx, roster.NewStudent{
		Name: "Alice", RollNumber: "R1", AssignedTeacherID: &t1.ID,
	})
	assert.NoError(t, err)
	_, err = db.Insert(ctx, attendance.Mark{
		ID: "m1", StudentID: student.ID, Date: attendance.DateOf(time.Now()),
		Status: attendance.StatusPresent, MarkedBy: &t1.ID, MarkedAt: time.Now().UTC(),
	})
	assert.NoError(t, err)

	assert.NoError(t, svc.DeleteStudent(ctx, student.ID))

	n, err := db.CountAll(ctx)
	assert.NoError(t, err)
	assert.Zero(t, n)
}

func TestStudentRollNumberUniqueness(t *testing.T) {
	ctx := context.Background()
	_, svc := setup(t)

	_, err := svc.CreateStudent(ctx, roster.NewStudent{Name: "Alice", RollNumber: "R1"})
	assert.NoError(t, err)
	bob, err := svc.CreateStudent(ctx, roster.NewStudent{Name: "Bob", RollNumber: "R2"})
	assert.NoError(t, err)

	_, err = svc.CreateStudent(ctx, roster.NewStudent{Name: "Eve", RollNumber: "R1"})
	assert.Contains(t, fieldsOf(t, err), "roll_number")

	// Editing must still preserve uniqueness.
	_, err = svc.UpdateStudent(ctx, bob.ID, roster.NewStudent{Name: "Bob", RollNumber: "R1"})
	assert.Contains(t, fieldsOf(t, err), "roll_number")
}

func TestCreateStudentUnknownTeacher(t *testing.T) {
	_, svc := setup(t)
	missing := "5b3f8f9e-0000-4000-8000-000000000000"
	_, err := svc.CreateStudent(context.Background(), roster.NewStudent{
		Name: "Alice", RollNumber: "R1", AssignedTeacherID: &missing,
	})
	assert.Contains(t, fieldsOf(t, err), "assigned_teacher_id")
}

func TestAuthenticate(t *testing.T) {
	ctx := context.Background()
	_, svc := setup(t)
	created := createTeacher(t, svc, "t1", "E1")

	usr, teacher, err := svc.Authenticate(ctx, "t1", "correct-horse")
	assert.NoError(t, err)
	assert.Equal(t, roster.RoleTeacher, usr.Role)
	if assert.NotNil(t, teacher) {
		assert.Equal(t, created.ID, teacher.ID)
	}

	_, _, err = svc.Authenticate(ctx, "t1", "wrong")
	assert.ErrorIs(t, err, roster.ErrBadCredentials)

	_, _, err = svc.Authenticate(ctx, "ghost", "correct-horse")
	assert.ErrorIs(t, err, roster.ErrBadCredentials)
}

func TestEnsureAdmin(t *testing.T) {
	ctx := context.Background()
	_, svc := setup(t)

	assert.NoError(t, svc.EnsureAdmin(ctx, "admin", "sup3r-secret"))
	usr, _, err := svc.Authenticate(ctx, "admin", "sup3r-secret")
	assert.NoError(t, err)
	assert.Equal(t, roster.RoleAdmin, usr.Role)

	// Idempotent: a second bootstrap leaves the account alone.
	assert.NoError(t, svc.EnsureAdmin(ctx, "admin", "other-password"))
	_, _, err = svc.Authenticate(ctx, "admin", "sup3r-secret")
	assert.NoError(t, err)
}
