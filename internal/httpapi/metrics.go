package httpapi

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	marksCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rollbook_marks_created_total",
		Help: "Attendance marks created, by status.",
	}, []string{"status"})

	duplicateMarks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rollbook_duplicate_marks_total",
		Help: "Mark attempts rejected by the (student, date) uniqueness constraint.",
	})
)
