package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

func (s *Server) ListDueForRefill(c *gin.Context) {
	limit := s.cfg.Refill.BatchSize
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	due, err := s.subscriptionSvc.ListDueForRefill(c.Request.Context(), time.Now().UTC(), limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": due})
}

// RunRefillBatch triggers one batch run inline and returns its execution
// record. The run is guarded by the distributed lock, so an overlapping
// scheduled run answers with a conflict instead of double-granting.
func (s *Server) RunRefillBatch(c *gin.Context) {
	exec, err := s.scheduler.RunRefillBatch(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, exec)
}

func (s *Server) ListRefillExecutions(c *gin.Context) {
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			limit = parsed
		}
	}

	execs, err := s.scheduler.RecentExecutions(c.Request.Context(), limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": execs})
}
