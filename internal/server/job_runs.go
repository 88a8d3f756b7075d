package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

func (s *Server) ListJobRuns(c *gin.Context) {
	if s.jobRuns == nil {
		AbortWithError(c, ErrNotFound)
		return
	}

	limit, err := parseOptionalInt(c.Query("limit"))
	if err != nil || (limit != nil && (*limit < 1 || *limit > 200)) {
		AbortWithError(c, newValidationError("limit", "invalid_limit", "limit must be between 1 and 200"))
		return
	}
	size := 20
	if limit != nil {
		size = *limit
	}

	runs, err := s.jobRuns.ListRuns(c.Request.Context(), strings.TrimSpace(c.Query("job")), size)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": runs})
}
