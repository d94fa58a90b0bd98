package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	outreachdomain "github.com/smallbiznis/recouply/internal/outreach/domain"
	"github.com/smallbiznis/recouply/pkg/db/pagination"
)

func (s *Server) CreateWorkflow(c *gin.Context) {
	var req outreachdomain.CreateWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.outreachSvc.CreateWorkflow(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ListDrafts(c *gin.Context) {
	var query struct {
		pagination.Pagination
		Status    string `form:"status"`
		InvoiceID string `form:"invoice_id"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.outreachSvc.ListDrafts(c.Request.Context(), outreachdomain.ListDraftsRequest{
		Status:    strings.TrimSpace(query.Status),
		InvoiceID: strings.TrimSpace(query.InvoiceID),
		PageToken: strings.TrimSpace(query.PageToken),
		PageSize:  query.PageSize,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) ApproveDraft(c *gin.Context) {
	resp, err := s.outreachSvc.Approve(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// RecordDispatchResult is the delivery collaborator's callback.
func (s *Server) RecordDispatchResult(c *gin.Context) {
	var req outreachdomain.DispatchResultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.outreachSvc.RecordDispatchResult(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
