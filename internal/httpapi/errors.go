package httpapi

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"rollbook/internal/attendance"
	"rollbook/internal/policy"
	"rollbook/internal/report"
	"rollbook/internal/roster"
	"rollbook/internal/validate"
)

// writeError maps the domain error taxonomy onto HTTP statuses.
func writeError(c *gin.Context, err error) {
	var verr *validate.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error(), "fields": verr.FieldMap()})
	case errors.Is(err, roster.ErrBadCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.Is(err, policy.ErrPermissionDenied):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, roster.ErrNotFound), errors.Is(err, attendance.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, attendance.ErrDuplicateMark):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, report.ErrInvalidDate), errors.Is(err, report.ErrInvalidMonth):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		log.Printf("internal error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
