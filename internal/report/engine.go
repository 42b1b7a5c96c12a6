// Package report derives every read model from the mark set: the daily
// snapshot, the filtered listing, monthly aggregates, per-student
// history, CSV export and the role dashboards.
package report

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"math"
	"time"

	"rollbook/internal/attendance"
	"rollbook/internal/policy"
	"rollbook/internal/roster"
)

var (
	ErrInvalidDate  = errors.New("invalid date, expected YYYY-MM-DD")
	ErrInvalidMonth = errors.New("invalid month, expected YYYY-MM")
)

const (
	ModeDate   = "date"
	ModeSearch = "search"
)

// Query selects the report shape. A date with no search terms (or
// nothing at all) yields one row per visible student for that date; any
// search term without a date switches to a flat per-mark listing. This
// branching is a contract: it changes the row shape, not just content.
type Query struct {
	Date         string
	StudentQuery string
	ClassQuery   string
}

// Row is one line of a date- or search-mode report. Mark is nil in date
// mode when the student is unmarked for the day; never nil in search
// mode. CanEdit is true only for a teacher looking at their own mark.
type Row struct {
	Student roster.Student   `json:"student"`
	Date    time.Time        `json:"date"`
	Mark    *attendance.Mark `json:"attendance"`
	CanEdit bool             `json:"can_edit"`
}

type Report struct {
	Title string `json:"title"`
	Mode  string `json:"mode"`
	Date  string `json:"date,omitempty"`
	Rows  []Row  `json:"rows"`
}

type MonthlySummary struct {
	StudentID      string  `json:"student_id"`
	StudentName    string  `json:"student_name"`
	Year           int     `json:"year"`
	Month          int     `json:"month"`
	Total          int     `json:"total"`
	Present        int     `json:"present"`
	Absent         int     `json:"absent"`
	PresentPercent float64 `json:"present_percent"`
	AbsentPercent  float64 `json:"absent_percent"`
}

type AdminDashboard struct {
	TotalStudents   int `json:"total_students"`
	TotalTeachers   int `json:"total_teachers"`
	TotalAttendance int `json:"total_attendance"`
	TodayPresent    int `json:"today_present"`
	TodayAbsent     int `json:"today_absent"`
}

type TeacherDashboard struct {
	AssignedStudents int `json:"assigned_students"`
	TodayPresent     int `json:"today_present"`
	TodayAbsent      int `json:"today_absent"`
}

// SummaryCache is the read-through cache for monthly summaries.
type SummaryCache interface {
	GetMonthlySummary(ctx context.Context, studentID string, year int, month time.Month, dst interface{}) bool
	SetMonthlySummary(ctx context.Context, studentID string, year int, month time.Month, v interface{})
}

// Engine answers report queries against the roster and mark stores.
type Engine struct {
	students roster.Repository
	marks    attendance.Repository
	cache    SummaryCache

	// Clock supplies "today" and the default month; tests override it.
	Clock func() time.Time
}

func NewEngine(students roster.Repository, marks attendance.Repository, cache SummaryCache) *Engine {
	return &Engine{students: students, marks: marks, cache: cache, Clock: time.Now}
}

// Generate builds the daily snapshot or the filtered listing, scoped to
// the students the actor may see.
func (e *Engine) Generate(ctx context.Context, actor policy.Actor, q Query) (Report, error) {
	scope, err := policy.ReportScope(actor)
	if err != nil {
		return Report{}, err
	}

	mode := ModeSearch
	var selected time.Time
	switch {
	case q.Date == "" && q.StudentQuery == "" && q.ClassQuery == "":
		mode = ModeDate
		selected = attendance.DateOf(e.Clock())
	case q.Date != "":
		parsed, perr := time.Parse("2006-01-02", q.Date)
		if perr != nil {
			return Report{}, ErrInvalidDate
		}
		mode = ModeDate
		selected = attendance.DateOf(parsed)
	}

	students, err := e.students.FilterStudents(ctx, roster.StudentFilter{
		TeacherID:  scope,
		NameQuery:  q.StudentQuery,
		ClassQuery: q.ClassQuery,
	})
	if err != nil {
		return Report{}, err
	}

	if mode == ModeDate {
		return e.dateReport(ctx, actor, students, selected)
	}
	return e.searchReport(ctx, actor, students)
}

// dateReport emits exactly one row per visible student, marked or not.
func (e *Engine) dateReport(ctx context.Context, actor policy.Actor, students []roster.Student, date time.Time) (Report, error) {
	rows := make([]Row, 0, len(students))
	for _, s := range students {
		m, err := e.marks.FindForDate(ctx, s.ID, date)
		if err != nil {
			return Report{}, err
		}
		rows = append(rows, Row{
			Student: s,
			Date:    date,
			Mark:    m,
			CanEdit: canEdit(actor, m),
		})
	}
	return Report{
		Title: "Attendance Report for " + date.Format("02-01-2006"),
		Mode:  ModeDate,
		Date:  date.Format("2006-01-02"),
		Rows:  rows,
	}, nil
}

// searchReport emits one row per mark; unmarked students contribute
// nothing, unlike the per-student guarantee of date mode.
func (e *Engine) searchReport(ctx context.Context, actor policy.Actor, students []roster.Student) (Report, error) {
	ids := make([]string, 0, len(students))
	byID := make(map[string]roster.Student, len(students))
	for _, s := range students {
		ids = append(ids, s.ID)
		byID[s.ID] = s
	}
	marks, err := e.marks.ListForStudents(ctx, ids)
	if err != nil {
		return Report{}, err
	}
	rows := make([]Row, 0, len(marks))
	for i := range marks {
		m := marks[i]
		rows = append(rows, Row{
			Student: byID[m.StudentID],
			Date:    m.Date,
			Mark:    &m,
			CanEdit: canEdit(actor, &m),
		})
	}
	return Report{
		Title: "Attendance Report (Filtered Results)",
		Mode:  ModeSearch,
		Rows:  rows,
	}, nil
}

func canEdit(actor policy.Actor, m *attendance.Mark) bool {
	return actor.IsTeacher() && m != nil && m.MarkedBy != nil && *m.MarkedBy == actor.TeacherID
}

// Monthly aggregates one student's marks for a YYYY-MM month (current
// month when blank). Percentages are rounded to two decimals and both
// zero when the student has no marks in the month.
func (e *Engine) Monthly(ctx context.Context, actor policy.Actor, studentID, monthStr string) (MonthlySummary, error) {
	student, err := e.visibleStudent(ctx, actor, studentID)
	if err != nil {
		return MonthlySummary{}, err
	}

	var year int
	var month time.Month
	if monthStr == "" {
		now := e.Clock()
		year, month = now.Year(), now.Month()
	} else {
		parsed, perr := time.Parse("2006-01", monthStr)
		if perr != nil {
			return MonthlySummary{}, ErrInvalidMonth
		}
		year, month = parsed.Year(), parsed.Month()
	}

	var cached MonthlySummary
	if e.cache != nil && e.cache.GetMonthlySummary(ctx, student.ID, year, month, &cached) {
		return cached, nil
	}

	counts, err := e.marks.MonthCounts(ctx, student.ID, year, month)
	if err != nil {
		return MonthlySummary{}, err
	}
	sum := MonthlySummary{
		StudentID:   student.ID,
		StudentName: student.Name,
		Year:        year,
		Month:       int(month),
		Total:       counts.Total,
		Present:     counts.Present,
		Absent:      counts.Absent,
	}
	if counts.Total > 0 {
		sum.PresentPercent = round2(float64(counts.Present) / float64(counts.Total) * 100)
		sum.AbsentPercent = round2(float64(counts.Absent) / float64(counts.Total) * 100)
	}
	if e.cache != nil {
		e.cache.SetMonthlySummary(ctx, student.ID, year, month, sum)
	}
	return sum, nil
}

// History lists a student's full mark history, newest date first.
func (e *Engine) History(ctx context.Context, actor policy.Actor, studentID string) (roster.Student, []attendance.Mark, error) {
	student, err := e.visibleStudent(ctx, actor, studentID)
	if err != nil {
		return roster.Student{}, nil, err
	}
	marks, err := e.marks.ListForStudent(ctx, student.ID, false)
	if err != nil {
		return roster.Student{}, nil, err
	}
	return student, marks, nil
}

// ExportCSV streams a student's history ascending by date as
// Date,Status rows, and returns the student for naming the download.
func (e *Engine) ExportCSV(ctx context.Context, actor policy.Actor, studentID string, w io.Writer) (roster.Student, error) {
	student, err := e.visibleStudent(ctx, actor, studentID)
	if err != nil {
		return roster.Student{}, err
	}
	marks, err := e.marks.ListForStudent(ctx, student.ID, true)
	if err != nil {
		return roster.Student{}, err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Date", "Status"}); err != nil {
		return roster.Student{}, err
	}
	for _, m := range marks {
		if err := cw.Write([]string{m.Date.Format("2006-01-02"), string(m.Status)}); err != nil {
			return roster.Student{}, err
		}
	}
	cw.Flush()
	return student, cw.Error()
}

// Admin returns the school-wide dashboard counters.
func (e *Engine) Admin(ctx context.Context) (AdminDashboard, error) {
	today := attendance.DateOf(e.Clock())
	var dash AdminDashboard
	var err error
	if dash.TotalStudents, err = e.students.CountStudents(ctx, nil); err != nil {
		return AdminDashboard{}, err
	}
	if dash.TotalTeachers, err = e.students.CountTeachers(ctx); err != nil {
		return AdminDashboard{}, err
	}
	if dash.TotalAttendance, err = e.marks.CountAll(ctx); err != nil {
		return AdminDashboard{}, err
	}
	if dash.TodayPresent, err = e.marks.CountOnDate(ctx, today, attendance.StatusPresent, nil); err != nil {
		return AdminDashboard{}, err
	}
	if dash.TodayAbsent, err = e.marks.CountOnDate(ctx, today, attendance.StatusAbsent, nil); err != nil {
		return AdminDashboard{}, err
	}
	return dash, nil
}

// Teacher returns the per-teacher dashboard counters, scoped to marks
// the teacher created today.
func (e *Engine) Teacher(ctx context.Context, teacherID string) (TeacherDashboard, error) {
	today := attendance.DateOf(e.Clock())
	var dash TeacherDashboard
	var err error
	if dash.AssignedStudents, err = e.students.CountStudents(ctx, &teacherID); err != nil {
		return TeacherDashboard{}, err
	}
	if dash.TodayPresent, err = e.marks.CountOnDate(ctx, today, attendance.StatusPresent, &teacherID); err != nil {
		return TeacherDashboard{}, err
	}
	if dash.TodayAbsent, err = e.marks.CountOnDate(ctx, today, attendance.StatusAbsent, &teacherID); err != nil {
		return TeacherDashboard{}, err
	}
	return dash, nil
}

func (e *Engine) visibleStudent(ctx context.Context, actor policy.Actor, studentID string) (roster.Student, error) {
	student, err := e.students.GetStudent(ctx, studentID)
	if err != nil {
		return roster.Student{}, err
	}
	if !policy.CanViewStudent(actor, student) {
		return roster.Student{}, policy.ErrPermissionDenied
	}
	return student, nil
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
