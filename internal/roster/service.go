package roster

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"rollbook/internal/validate"
)

var (
	ErrNotFound        = errors.New("record not found")
	ErrUsernameExists  = errors.New("a user with this username already exists")
	ErrEmployeeIDTaken = errors.New("a teacher with this employee id already exists")
	ErrRollNumberTaken = errors.New("a student with this roll number already exists")
	ErrBadCredentials  = errors.New("invalid username or password")
)

// StudentFilter narrows student listings. Queries are case-insensitive
// substring matches; a nil TeacherID means no assignment scoping.
type StudentFilter struct {
	TeacherID  *string
	NameQuery  string
	ClassQuery string
}

// Repository persists users, teachers and students.
type Repository interface {
	CreateUser(ctx context.Context, usr User) (User, error)
	GetUserByUsername(ctx context.Context, username string) (User, error)

	// CreateTeacher stores the user and teacher rows atomically.
	CreateTeacher(ctx context.Context, usr User, t Teacher) (Teacher, error)
	GetTeacher(ctx context.Context, id string) (Teacher, error)
	GetTeacherByUser(ctx context.Context, userID string) (Teacher, error)
	ListTeachers(ctx context.Context) ([]Teacher, error)
	UpdateTeacher(ctx context.Context, t Teacher) (Teacher, error)
	// DeleteTeacher removes the teacher with its underlying user, sets
	// assigned_teacher to null on its students and marked_by to null on
	// attendance rows it marked. Marks themselves survive.
	DeleteTeacher(ctx context.Context, id string) error
	CountTeachers(ctx context.Context) (int, error)

	CreateStudent(ctx context.Context, s Student) (Student, error)
	GetStudent(ctx context.Context, id string) (Student, error)
	FilterStudents(ctx context.Context, f StudentFilter) ([]Student, error)
	UpdateStudent(ctx context.Context, s Student) (Student, error)
	// DeleteStudent cascades the student's attendance rows away.
	DeleteStudent(ctx context.Context, id string) error
	CountStudents(ctx context.Context, teacherID *string) (int, error)
}

// Service implements account provisioning and the student register.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Authenticate resolves a username/password pair to a user and, for
// teacher accounts, the teacher record. Failures are indistinguishable.
func (svc *Service) Authenticate(ctx context.Context, username, password string) (User, *Teacher, error) {
	usr, err := svc.repo.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return User{}, nil, ErrBadCredentials
		}
		return User{}, nil, err
	}
	if err := usr.CheckPassword(password); err != nil {
		return User{}, nil, ErrBadCredentials
	}
	if usr.Role != RoleTeacher {
		return usr, nil, nil
	}
	t, err := svc.repo.GetTeacherByUser(ctx, usr.ID)
	if err != nil {
		return User{}, nil, err
	}
	return usr, &t, nil
}

// EnsureAdmin provisions the bootstrap admin account once. A blank
// username disables bootstrapping; an existing account is left alone.
func (svc *Service) EnsureAdmin(ctx context.Context, username, password string) error {
	if username == "" || password == "" {
		return nil
	}
	if _, err := svc.repo.GetUserByUsername(ctx, username); err == nil {
		return nil
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}
	usr := User{
		ID:        uuid.NewString(),
		Username:  username,
		Role:      RoleAdmin,
		CreatedAt: time.Now().UTC(),
	}
	if err := usr.SetPassword(password); err != nil {
		return err
	}
	_, err := svc.repo.CreateUser(ctx, usr)
	return err
}

func (svc *Service) CreateTeacher(ctx context.Context, nt NewTeacher) (Teacher, error) {
	if err := nt.Validate(); err != nil {
		return Teacher{}, err
	}
	usr := User{
		ID:        uuid.NewString(),
		Username:  nt.Username,
		Role:      RoleTeacher,
		CreatedAt: time.Now().UTC(),
	}
	if err := usr.SetPassword(nt.Password); err != nil {
		return Teacher{}, err
	}
	t := Teacher{
		ID:         uuid.NewString(),
		UserID:     usr.ID,
		Username:   usr.Username,
		EmployeeID: nt.EmployeeID,
	}
	created, err := svc.repo.CreateTeacher(ctx, usr, t)
	if err != nil {
		return Teacher{}, uniquenessError(err)
	}
	return created, nil
}

func (svc *Service) UpdateTeacher(ctx context.Context, id string, ut UpdateTeacher) (Teacher, error) {
	if err := ut.Validate(); err != nil {
		return Teacher{}, err
	}
	t, err := svc.repo.GetTeacher(ctx, id)
	if err != nil {
		return Teacher{}, err
	}
	t.Username = ut.Username
	t.EmployeeID = ut.EmployeeID
	updated, err := svc.repo.UpdateTeacher(ctx, t)
	if err != nil {
		return Teacher{}, uniquenessError(err)
	}
	return updated, nil
}

func (svc *Service) DeleteTeacher(ctx context.Context, id string) error {
	return svc.repo.DeleteTeacher(ctx, id)
}

func (svc *Service) GetTeacher(ctx context.Context, id string) (Teacher, error) {
	return svc.repo.GetTeacher(ctx, id)
}

func (svc *Service) Teachers(ctx context.Context) ([]Teacher, error) {
	return svc.repo.ListTeachers(ctx)
}

func (svc *Service) CreateStudent(ctx context.Context, ns NewStudent) (Student, error) {
	if err := ns.Validate(); err != nil {
		return Student{}, err
	}
	if err := svc.checkAssignedTeacher(ctx, ns.AssignedTeacherID); err != nil {
		return Student{}, err
	}
	s := Student{
		ID:                uuid.NewString(),
		Name:              ns.Name,
		RollNumber:        ns.RollNumber,
		ClassName:         ns.ClassName,
		AssignedTeacherID: ns.AssignedTeacherID,
	}
	created, err := svc.repo.CreateStudent(ctx, s)
	if err != nil {
		return Student{}, uniquenessError(err)
	}
	return created, nil
}

func (svc *Service) UpdateStudent(ctx context.Context, id string, ns NewStudent) (Student, error) {
	if err := ns.Validate(); err != nil {
		return Student{}, err
	}
	if err := svc.checkAssignedTeacher(ctx, ns.AssignedTeacherID); err != nil {
		return Student{}, err
	}
	s, err := svc.repo.GetStudent(ctx, id)
	if err != nil {
		return Student{}, err
	}
	s.Name = ns.Name
	s.RollNumber = ns.RollNumber
	s.ClassName = ns.ClassName
	s.AssignedTeacherID = ns.AssignedTeacherID
	updated, err := svc.repo.UpdateStudent(ctx, s)
	if err != nil {
		return Student{}, uniquenessError(err)
	}
	return updated, nil
}

func (svc *Service) DeleteStudent(ctx context.Context, id string) error {
	return svc.repo.DeleteStudent(ctx, id)
}

func (svc *Service) GetStudent(ctx context.Context, id string) (Student, error) {
	return svc.repo.GetStudent(ctx, id)
}

func (svc *Service) Students(ctx context.Context, f StudentFilter) ([]Student, error) {
	return svc.repo.FilterStudents(ctx, f)
}

func (svc *Service) checkAssignedTeacher(ctx context.Context, teacherID *string) error {
	if teacherID == nil {
		return nil
	}
	if _, err := svc.repo.GetTeacher(ctx, *teacherID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return validate.NewValidationError(err, validate.FieldError{
				Field: "assigned_teacher_id", Error: "unknown teacher",
			})
		}
		return err
	}
	return nil
}

// uniquenessError converts repository uniqueness violations into field
// level validation errors; anything else passes through untouched.
func uniquenessError(err error) error {
	var field string
	switch {
	case errors.Is(err, ErrUsernameExists):
		field = "username"
	case errors.Is(err, ErrEmployeeIDTaken):
		field = "employee_id"
	case errors.Is(err, ErrRollNumberTaken):
		field = "roll_number"
	default:
		return err
	}
	return validate.NewValidationError(err, validate.FieldError{Field: field, Error: err.Error()})
}
