// Package inmem is a mutex-guarded in-memory implementation of the
// roster and attendance repositories. It backs STORE_BACKEND=memory dev
// runs and the service tests, and enforces the same uniqueness rules as
// the Postgres schema.
package inmem

import (
	"context"
	"sort"
	"strings"
	"sync"

	"rollbook/internal/attendance"
	"rollbook/internal/roster"
)

type Store struct {
	mu       sync.RWMutex
	users    map[string]roster.User
	teachers map[string]roster.Teacher
	students map[string]roster.Student
	marks    map[string]attendance.Mark
	markKeys map[string]string // studentID|date -> mark id
}

func NewStore() *Store {
	return &Store{
		users:    make(map[string]roster.User),
		teachers: make(map[string]roster.Teacher),
		students: make(map[string]roster.Student),
		marks:    make(map[string]attendance.Mark),
		markKeys: make(map[string]string),
	}
}

func markKey(studentID, date string) string {
	return studentID + "|" + date
}

func dateKey(m attendance.Mark) string {
	return m.Date.Format("2006-01-02")
}

// roster.Repository

func (s *Store) CreateUser(_ context.Context, usr roster.User) (roster.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.usernameTaken(usr.Username, usr.ID) {
		return roster.User{}, roster.ErrUsernameExists
	}
	s.users[usr.ID] = usr
	return usr, nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (roster.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Username == username {
			return u, nil
		}
	}
	return roster.User{}, roster.ErrNotFound
}

func (s *Store) CreateTeacher(_ context.Context, usr roster.User, t roster.Teacher) (roster.Teacher, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.usernameTaken(usr.Username, usr.ID) {
		return roster.Teacher{}, roster.ErrUsernameExists
	}
	if s.employeeIDTaken(t.EmployeeID, t.ID) {
		return roster.Teacher{}, roster.ErrEmployeeIDTaken
	}
	s.users[usr.ID] = usr
	s.teachers[t.ID] = t
	return t, nil
}

func (s *Store) GetTeacher(_ context.Context, id string) (roster.Teacher, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.teachers[id]
	if !ok {
		return roster.Teacher{}, roster.ErrNotFound
	}
	return t, nil
}

func (s *Store) GetTeacherByUser(_ context.Context, userID string) (roster.Teacher, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.teachers {
		if t.UserID == userID {
			return t, nil
		}
	}
	return roster.Teacher{}, roster.ErrNotFound
}

func (s *Store) ListTeachers(_ context.Context) ([]roster.Teacher, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]roster.Teacher, 0, len(s.teachers))
	for _, t := range s.teachers {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EmployeeID < out[j].EmployeeID })
	return out, nil
}

func (s *Store) UpdateTeacher(_ context.Context, t roster.Teacher) (roster.Teacher, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.teachers[t.ID]
	if !ok {
		return roster.Teacher{}, roster.ErrNotFound
	}
	if s.usernameTaken(t.Username, cur.UserID) {
		return roster.Teacher{}, roster.ErrUsernameExists
	}
	if s.employeeIDTaken(t.EmployeeID, t.ID) {
		return roster.Teacher{}, roster.ErrEmployeeIDTaken
	}
	usr := s.users[cur.UserID]
	usr.Username = t.Username
	s.users[cur.UserID] = usr
	cur.Username = t.Username
	cur.EmployeeID = t.EmployeeID
	s.teachers[t.ID] = cur
	return cur, nil
}

func (s *Store) DeleteTeacher(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.teachers[id]
	if !ok {
		return roster.ErrNotFound
	}
	delete(s.teachers, id)
	delete(s.users, t.UserID)
	for sid, st := range s.students {
		if st.AssignedTeacherID != nil && *st.AssignedTeacherID == id {
			st.AssignedTeacherID = nil
			s.students[sid] = st
		}
	}
	for mid, m := range s.marks {
		if m.MarkedBy != nil && *m.MarkedBy == id {
			m.MarkedBy = nil
			s.marks[mid] = m
		}
	}
	return nil
}

func (s *Store) CountTeachers(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.teachers), nil
}

func (s *Store) CreateStudent(_ context.Context, st roster.Student) (roster.Student, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rollNumberTaken(st.RollNumber, st.ID) {
		return roster.Student{}, roster.ErrRollNumberTaken
	}
	s.students[st.ID] = st
	return st, nil
}

func (s *Store) GetStudent(_ context.Context, id string) (roster.Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.students[id]
	if !ok {
		return roster.Student{}, roster.ErrNotFound
	}
	return st, nil
}

func (s *Store) FilterStudents(_ context.Context, f roster.StudentFilter) ([]roster.Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]roster.Student, 0, len(s.students))
	for _, st := range s.students {
		if f.TeacherID != nil && !st.AssignedTo(*f.TeacherID) {
			continue
		}
		if f.NameQuery != "" && !containsFold(st.Name, f.NameQuery) {
			continue
		}
		if f.ClassQuery != "" && !containsFold(st.ClassName, f.ClassQuery) {
			continue
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RollNumber < out[j].RollNumber })
	return out, nil
}

func (s *Store) UpdateStudent(_ context.Context, st roster.Student) (roster.Student, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.students[st.ID]; !ok {
		return roster.Student{}, roster.ErrNotFound
	}
	if s.rollNumberTaken(st.RollNumber, st.ID) {
		return roster.Student{}, roster.ErrRollNumberTaken
	}
	s.students[st.ID] = st
	return st, nil
}

func (s *Store) DeleteStudent(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.students[id]; !ok {
		return roster.ErrNotFound
	}
	delete(s.students, id)
	for mid, m := range s.marks {
		if m.StudentID == id {
			delete(s.marks, mid)
			delete(s.markKeys, markKey(id, dateKey(m)))
		}
	}
	return nil
}

func (s *Store) CountStudents(_ context.Context, teacherID *string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if teacherID == nil {
		return len(s.students), nil
	}
	n := 0
	for _, st := range s.students {
		if st.AssignedTo(*teacherID) {
			n++
		}
	}
	return n, nil
}

func (s *Store) usernameTaken(username, excludeUserID string) bool {
	for _, u := range s.users {
		if u.Username == username && u.ID != excludeUserID {
			return true
		}
	}
	return false
}

func (s *Store) employeeIDTaken(employeeID, excludeTeacherID string) bool {
	for _, t := range s.teachers {
		if t.EmployeeID == employeeID && t.ID != excludeTeacherID {
			return true
		}
	}
	return false
}

func (s *Store) rollNumberTaken(roll, excludeStudentID string) bool {
	for _, st := range s.students {
		if st.RollNumber == roll && st.ID != excludeStudentID {
			return true
		}
	}
	return false
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
