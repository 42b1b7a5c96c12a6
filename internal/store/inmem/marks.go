package inmem

import (
	"context"
	"sort"
	"time"

	"rollbook/internal/attendance"
)

// attendance.Repository

func (s *Store) Insert(_ context.Context, m attendance.Mark) (attendance.Mark, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := markKey(m.StudentID, dateKey(m))
	if _, exists := s.markKeys[key]; exists {
		return attendance.Mark{}, attendance.ErrDuplicateMark
	}
	s.marks[m.ID] = m
	s.markKeys[key] = m.ID
	return m, nil
}

func (s *Store) GetByMarker(_ context.Context, id, teacherID string) (attendance.Mark, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.marks[id]
	if !ok || m.MarkedBy == nil || *m.MarkedBy != teacherID {
		return attendance.Mark{}, attendance.ErrNotFound
	}
	return m, nil
}

func (s *Store) UpdateStatus(_ context.Context, id string, status attendance.Status) (attendance.Mark, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.marks[id]
	if !ok {
		return attendance.Mark{}, attendance.ErrNotFound
	}
	m.Status = status
	s.marks[id] = m
	return m, nil
}

func (s *Store) FindForDate(_ context.Context, studentID string, date time.Time) (*attendance.Mark, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.markKeys[markKey(studentID, date.Format("2006-01-02"))]
	if !ok {
		return nil, nil
	}
	m := s.marks[id]
	return &m, nil
}

func (s *Store) ListForStudents(_ context.Context, studentIDs []string) ([]attendance.Mark, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wanted := make(map[string]bool, len(studentIDs))
	for _, id := range studentIDs {
		wanted[id] = true
	}
	var out []attendance.Mark
	for _, m := range s.marks {
		if wanted[m.StudentID] {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date)
		}
		return out[i].StudentID < out[j].StudentID
	})
	return out, nil
}

func (s *Store) ListForStudent(_ context.Context, studentID string, ascending bool) ([]attendance.Mark, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []attendance.Mark
	for _, m := range s.marks {
		if m.StudentID == studentID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if ascending {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].Date.After(out[j].Date)
	})
	return out, nil
}

func (s *Store) MonthCounts(_ context.Context, studentID string, year int, month time.Month) (attendance.MonthCounts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var counts attendance.MonthCounts
	for _, m := range s.marks {
		if m.StudentID != studentID || m.Date.Year() != year || m.Date.Month() != month {
			continue
		}
		counts.Total++
		switch m.Status {
		case attendance.StatusPresent:
			counts.Present++
		case attendance.StatusAbsent:
			counts.Absent++
		}
	}
	return counts, nil
}

func (s *Store) CountAll(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.marks), nil
}

func (s *Store) CountOnDate(_ context.Context, date time.Time, status attendance.Status, markedBy *string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, m := range s.marks {
		if !m.Date.Equal(date) || m.Status != status {
			continue
		}
		if markedBy != nil && (m.MarkedBy == nil || *m.MarkedBy != *markedBy) {
			continue
		}
		n++
	}
	return n, nil
}
