package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	organizationdomain "github.com/agencyops/credcore/internal/organization/domain"
)

type createOrganizationRequest struct {
	Name               string  `json:"name"`
	RegistrationNumber *string `json:"registration_number"`
	BusinessProfile    string  `json:"business_profile"`
}

func (s *Server) CreateOrganization(c *gin.Context) {
	var req createOrganizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	org, err := s.organizationSvc.Create(c.Request.Context(), organizationdomain.CreateOrganizationRequest{
		Name:               strings.TrimSpace(req.Name),
		RegistrationNumber: req.RegistrationNumber,
		BusinessProfile:    strings.TrimSpace(req.BusinessProfile),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, org)
}

func (s *Server) ListOrganizations(c *gin.Context) {
	items, err := s.organizationSvc.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (s *Server) GetOrganization(c *gin.Context) {
	org, err := s.organizationSvc.GetByID(c.Request.Context(), c.Param("orgId"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, org)
}

func (s *Server) UpdateOrganization(c *gin.Context) {
	var req organizationdomain.UpdateOrganizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	org, err := s.organizationSvc.Update(c.Request.Context(), c.Param("orgId"), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, org)
}

type setOrganizationStatusRequest struct {
	Status string `json:"status"`
}

func (s *Server) SetOrganizationStatus(c *gin.Context) {
	var req setOrganizationStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	status := organizationdomain.OrganizationStatus(strings.ToUpper(strings.TrimSpace(req.Status)))
	org, err := s.organizationSvc.SetStatus(c.Request.Context(), c.Param("orgId"), status)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, org)
}
