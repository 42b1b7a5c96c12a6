package attendance

import (
	"fmt"
	"time"
)

// Status is the closed set of attendance outcomes.
type Status string

const (
	StatusPresent Status = "PRESENT"
	StatusAbsent  Status = "ABSENT"
)

// Valid reports whether the status is one of the known variants.
func (s Status) Valid() bool {
	return s == StatusPresent || s == StatusAbsent
}

// ParseStatus converts wire input into a Status.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", fmt.Errorf("unknown attendance status %q", s)
	}
	return st, nil
}

// Mark is one attendance record: at most one exists per (student, date).
// MarkedAt is set once at creation and never updated; MarkedBy is the
// teacher who created the mark, or nil after that teacher was deleted.
type Mark struct {
	ID        string    `json:"id"`
	StudentID string    `json:"student_id"`
	Date      time.Time `json:"date"`
	Status    Status    `json:"status"`
	MarkedBy  *string   `json:"marked_by,omitempty"`
	MarkedAt  time.Time `json:"marked_at"`
}

// MonthCounts aggregates one student's marks within a calendar month.
type MonthCounts struct {
	Total   int
	Present int
	Absent  int
}

// DateOf truncates a timestamp to its calendar date in UTC. All mark
// dates are stored and compared in this form.
func DateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
