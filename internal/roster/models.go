package roster

import (
	"time"

	"golang.org/x/crypto/bcrypt"

	"rollbook/internal/validate"
)

// Role is the closed set of account roles.
type Role string

const (
	RoleAdmin   Role = "ADMIN"
	RoleTeacher Role = "TEACHER"
)

// Valid reports whether the role is one of the known variants.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleTeacher
}

// User is an account that can sign in. Every user holds exactly one role.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Role         Role      `json:"role"`
	PasswordHash []byte    `json:"-"`
	CreatedAt    time.Time `json:"created_at"` // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

// Teacher is 1:1 with a TEACHER-role user.
type Teacher struct {
	ID         string `json:"id"`
	UserID     string `json:"user_id"`
	Username   string `json:"username"`
	EmployeeID string `json:"employee_id"`
}

// Student may be assigned to at most one teacher; unassigned is valid.
type Student struct {
	ID                string  `json:"id"`
	Name              string  `json:"name"`
	RollNumber        string  `json:"roll_number"`
	ClassName         string  `json:"class_name"`
	AssignedTeacherID *string `json:"assigned_teacher_id,omitempty"`
}

// AssignedTo reports whether the student is assigned to the given teacher.
func (s Student) AssignedTo(teacherID string) bool {
	return s.AssignedTeacherID != nil && *s.AssignedTeacherID == teacherID
}

// NewTeacher is the payload for provisioning a teacher account.
type NewTeacher struct {
	Username   string `json:"username" validate:"required,min=2,max=64"`
	Password   string `json:"password" validate:"required,min=8,max=128"`
	EmployeeID string `json:"employee_id" validate:"required,max=20"`
}

func (nt NewTeacher) Validate() error { return validate.Struct(nt) }

// UpdateTeacher edits username and employee id; password is untouched.
type UpdateTeacher struct {
	Username   string `json:"username" validate:"required,min=2,max=64"`
	EmployeeID string `json:"employee_id" validate:"required,max=20"`
}

func (ut UpdateTeacher) Validate() error { return validate.Struct(ut) }

// NewStudent is the payload for creating or replacing a student record.
type NewStudent struct {
	Name              string  `json:"name" validate:"required,max=100"`
	RollNumber        string  `json:"roll_number" validate:"required,max=20"`
	ClassName         string  `json:"class_name" validate:"max=20"`
	AssignedTeacherID *string `json:"assigned_teacher_id" validate:"omitempty,uuid4"`
}

func (ns NewStudent) Validate() error { return validate.Struct(ns) }
