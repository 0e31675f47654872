package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	subscriptiondomain "github.com/agencyops/credcore/internal/subscription/domain"
)

type startSubscriptionRequest struct {
	PlanID  string     `json:"plan_id"`
	StartAt *time.Time `json:"start_at"`
}

func (s *Server) StartSubscription(c *gin.Context) {
	var req startSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	startAt := time.Now().UTC()
	if req.StartAt != nil {
		startAt = req.StartAt.UTC()
	}

	sub, err := s.subscriptionSvc.Start(c.Request.Context(), subscriptiondomain.StartSubscriptionRequest{
		OrgID:   c.Param("orgId"),
		PlanID:  strings.TrimSpace(req.PlanID),
		StartAt: startAt,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, sub)
}

func (s *Server) PauseSubscription(c *gin.Context) {
	sub, err := s.subscriptionSvc.Pause(c.Request.Context(), c.Param("orgId"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, sub)
}

func (s *Server) ResumeSubscription(c *gin.Context) {
	sub, err := s.subscriptionSvc.Resume(c.Request.Context(), c.Param("orgId"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, sub)
}

func (s *Server) CancelSubscription(c *gin.Context) {
	sub, err := s.subscriptionSvc.Cancel(c.Request.Context(), c.Param("orgId"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, sub)
}

func (s *Server) GetSubscription(c *gin.Context) {
	sub, err := s.subscriptionSvc.GetByOrgID(c.Request.Context(), c.Param("orgId"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, sub)
}
