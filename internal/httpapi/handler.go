package httpapi

import (
	"bytes"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"rollbook/internal/attendance"
	"rollbook/internal/auth"
	"rollbook/internal/config"
	"rollbook/internal/policy"
	"rollbook/internal/report"
	"rollbook/internal/roster"
	"rollbook/internal/validate"
)

// Handler wires the HTTP surface to the services.
type Handler struct {
	cfg     config.App
	roster  *roster.Service
	marks   *attendance.Service
	reports *report.Engine
}

func New(cfg config.App, rosterSvc *roster.Service, marks *attendance.Service, reports *report.Engine) *Handler {
	return &Handler{cfg: cfg, roster: rosterSvc, marks: marks, reports: reports}
}

// Register mounts all routes. Admin-only management endpoints sit
// behind a policy gate; attendance and report endpoints enforce their
// own rules inside the services.
func (h *Handler) Register(r *gin.Engine) {
	r.POST("/v1/auth/login", h.login)

	v1 := r.Group("/v1", auth.RequireAuth(h.cfg.JWTSigningKey, h.cfg.JWTIssuer))
	v1.GET("/dashboard", h.dashboard)

	admin := v1.Group("", requireAdmin())
	admin.GET("/teachers", h.listTeachers)
	admin.POST("/teachers", h.createTeacher)
	admin.PUT("/teachers/:id", h.updateTeacher)
	admin.DELETE("/teachers/:id", h.deleteTeacher)
	admin.GET("/students", h.listStudents)
	admin.POST("/students", h.createStudent)
	admin.PUT("/students/:id", h.updateStudent)
	admin.DELETE("/students/:id", h.deleteStudent)

	v1.GET("/students/assigned", h.assignedStudents)
	v1.POST("/attendance", h.markAttendance)
	v1.PUT("/attendance/:id", h.editAttendance)

	v1.GET("/reports", h.reportIndex)
	v1.GET("/reports/students/:id", h.studentHistory)
	v1.GET("/reports/students/:id/monthly", h.monthlySummary)
	v1.GET("/reports/students/:id/export.csv", h.exportCSV)
}

func requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !policy.CanManageTeachers(auth.Actor(c)) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": policy.ErrPermissionDenied.Error()})
			return
		}
		c.Next()
	}
}

func (h *Handler) login(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	usr, teacher, err := h.roster.Authenticate(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		writeError(c, err)
		return
	}
	teacherID := ""
	if teacher != nil {
		teacherID = teacher.ID
	}
	tokens, err := auth.Issue(usr, teacherID, h.cfg.JWTIssuer, h.cfg.JWTSigningKey, h.cfg.AccessTTL, h.cfg.RefreshTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"access_token":  tokens.AccessToken,
		"refresh_token": tokens.RefreshToken,
		"expires_at":    tokens.AccessExp.Unix(),
		"role":          usr.Role,
	})
}

func (h *Handler) dashboard(c *gin.Context) {
	actor := auth.Actor(c)
	switch {
	case actor.IsAdmin():
		dash, err := h.reports.Admin(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, dash)
	case actor.IsTeacher():
		dash, err := h.reports.Teacher(c.Request.Context(), actor.TeacherID)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, dash)
	default:
		writeError(c, policy.ErrPermissionDenied)
	}
}

func (h *Handler) listTeachers(c *gin.Context) {
	teachers, err := h.roster.Teachers(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"teachers": teachers})
}

func (h *Handler) createTeacher(c *gin.Context) {
	var req roster.NewTeacher
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	t, err := h.roster.CreateTeacher(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

func (h *Handler) updateTeacher(c *gin.Context) {
	var req roster.UpdateTeacher
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	t, err := h.roster.UpdateTeacher(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *Handler) deleteTeacher(c *gin.Context) {
	if err := h.roster.DeleteTeacher(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) listStudents(c *gin.Context) {
	students, err := h.roster.Students(c.Request.Context(), roster.StudentFilter{
		NameQuery:  c.Query("student"),
		ClassQuery: c.Query("class"),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"students": students})
}

func (h *Handler) createStudent(c *gin.Context) {
	var req roster.NewStudent
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s, err := h.roster.CreateStudent(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, s)
}

func (h *Handler) updateStudent(c *gin.Context) {
	var req roster.NewStudent
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s, err := h.roster.UpdateStudent(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h *Handler) deleteStudent(c *gin.Context) {
	if err := h.roster.DeleteStudent(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) assignedStudents(c *gin.Context) {
	actor := auth.Actor(c)
	if !actor.IsTeacher() {
		writeError(c, policy.ErrPermissionDenied)
		return
	}
	teacherID := actor.TeacherID
	students, err := h.roster.Students(c.Request.Context(), roster.StudentFilter{TeacherID: &teacherID})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"students": students})
}

func (h *Handler) markAttendance(c *gin.Context) {
	var req struct {
		StudentID string `json:"student_id" binding:"required"`
		Date      string `json:"date"`
		Status    string `json:"status" binding:"required,oneof=PRESENT ABSENT"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	date := time.Now()
	if req.Date != "" {
		parsed, err := time.Parse("2006-01-02", req.Date)
		if err != nil {
			writeError(c, validate.NewValidationError(errors.New("invalid date"),
				validate.FieldError{Field: "date", Error: "must match format 2006-01-02"}))
			return
		}
		date = parsed
	}
	m, err := h.marks.Mark(c.Request.Context(), auth.Actor(c), req.StudentID, date, attendance.Status(req.Status))
	if err != nil {
		if errors.Is(err, attendance.ErrDuplicateMark) {
			duplicateMarks.Inc()
		}
		writeError(c, err)
		return
	}
	marksCreated.WithLabelValues(string(m.Status)).Inc()
	c.JSON(http.StatusCreated, m)
}

func (h *Handler) editAttendance(c *gin.Context) {
	var req struct {
		Status string `json:"status" binding:"required,oneof=PRESENT ABSENT"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	m, err := h.marks.Edit(c.Request.Context(), auth.Actor(c), c.Param("id"), attendance.Status(req.Status))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

func (h *Handler) reportIndex(c *gin.Context) {
	rep, err := h.reports.Generate(c.Request.Context(), auth.Actor(c), report.Query{
		Date:         c.Query("date"),
		StudentQuery: c.Query("student"),
		ClassQuery:   c.Query("class"),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rep)
}

func (h *Handler) studentHistory(c *gin.Context) {
	student, marks, err := h.reports.History(c.Request.Context(), auth.Actor(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"student": student, "attendance_records": marks})
}

func (h *Handler) monthlySummary(c *gin.Context) {
	sum, err := h.reports.Monthly(c.Request.Context(), auth.Actor(c), c.Param("id"), c.Query("month"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

func (h *Handler) exportCSV(c *gin.Context) {
	var buf bytes.Buffer
	student, err := h.reports.ExportCSV(c.Request.Context(), auth.Actor(c), c.Param("id"), &buf)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+student.Name+`_attendance.csv"`)
	c.Data(http.StatusOK, "text/csv", buf.Bytes())
}
