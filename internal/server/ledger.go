package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"

	ledgerdomain "github.com/agencyops/credcore/internal/ledger/domain"
	"github.com/agencyops/credcore/pkg/db/pagination"
)

type addTransactionRequest struct {
	Amount      int64   `json:"amount"`
	Description string  `json:"description"`
	ProjectID   *string `json:"project_id"`
}

func (s *Server) AddTransaction(c *gin.Context) {
	orgID, ok := parseSnowflakeParam(c, "orgId")
	if !ok {
		return
	}

	var req addTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	var projectID *snowflake.ID
	if req.ProjectID != nil && strings.TrimSpace(*req.ProjectID) != "" {
		parsed, err := snowflake.ParseString(strings.TrimSpace(*req.ProjectID))
		if err != nil {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		projectID = &parsed
	}

	resp, err := s.ledgerSvc.AddTransaction(c.Request.Context(), ledgerdomain.AddTransactionRequest{
		OrgID:       orgID,
		Amount:      req.Amount,
		Description: req.Description,
		ProjectID:   projectID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

func (s *Server) GetBalance(c *gin.Context) {
	orgID, ok := parseSnowflakeParam(c, "orgId")
	if !ok {
		return
	}

	balance, err := s.ledgerSvc.Balance(c.Request.Context(), orgID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"org_id": orgID.String(), "balance": balance})
}

func (s *Server) ListLedgerEntries(c *gin.Context) {
	orgID, ok := parseSnowflakeParam(c, "orgId")
	if !ok {
		return
	}

	resp, err := s.ledgerSvc.History(c.Request.Context(), ledgerdomain.ListEntriesRequest{
		Pagination: paginationFromQuery(c),
		OrgID:      orgID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func parseSnowflakeParam(c *gin.Context, name string) (snowflake.ID, bool) {
	id, err := snowflake.ParseString(strings.TrimSpace(c.Param(name)))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return 0, false
	}
	return id, true
}

func paginationFromQuery(c *gin.Context) pagination.Pagination {
	p := pagination.Pagination{
		PageToken: c.Query("page_token"),
	}
	if raw := c.Query("page_size"); raw != "" {
		if size, err := strconv.Atoi(raw); err == nil {
			p.PageSize = size
		}
	}
	return p
}
