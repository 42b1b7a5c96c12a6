// Package policy holds the authorization rules. Every rule is a pure
// function over an explicit actor; there is no ambient session state.
package policy

import (
	"errors"

	"rollbook/internal/roster"
)

var ErrPermissionDenied = errors.New("permission denied")

// Actor identifies who is performing an operation. A zero Actor is
// unauthenticated and allowed nothing. TeacherID is set only for
// TEACHER-role actors.
type Actor struct {
	UserID    string
	Username  string
	Role      roster.Role
	TeacherID string
}

func (a Actor) Authenticated() bool { return a.UserID != "" }

func (a Actor) IsAdmin() bool { return a.Authenticated() && a.Role == roster.RoleAdmin }

func (a Actor) IsTeacher() bool {
	return a.Authenticated() && a.Role == roster.RoleTeacher && a.TeacherID != ""
}

// CanManageTeachers gates teacher provisioning, edits and deletion.
func CanManageTeachers(a Actor) bool { return a.IsAdmin() }

// CanManageStudents gates the student register.
func CanManageStudents(a Actor) bool { return a.IsAdmin() }

// CanMarkAttendance allows a teacher to mark only students assigned to them.
func CanMarkAttendance(a Actor, s roster.Student) bool {
	return a.IsTeacher() && s.AssignedTo(a.TeacherID)
}

// CanViewStudent gates per-student reports (history, monthly summary,
// CSV export): admins see everyone, teachers their assigned students.
func CanViewStudent(a Actor, s roster.Student) bool {
	if a.IsAdmin() {
		return true
	}
	return a.IsTeacher() && s.AssignedTo(a.TeacherID)
}

// ReportScope returns the student filter an actor may report over: nil
// teacher scoping for admins, own-students scoping for teachers, and a
// denial for anyone else.
func ReportScope(a Actor) (*string, error) {
	switch {
	case a.IsAdmin():
		return nil, nil
	case a.IsTeacher():
		id := a.TeacherID
		return &id, nil
	default:
		return nil, ErrPermissionDenied
	}
}
