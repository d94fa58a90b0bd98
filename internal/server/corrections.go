package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type invoiceStatusRequest struct {
	Status string `json:"status"`
}

type outreachPauseRequest struct {
	Paused *bool `json:"paused"`
}

func (s *Server) UpdateInvoiceStatus(c *gin.Context) {
	var req invoiceStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.invoiceSvc.UpdateStatus(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) SetInvoiceOutreach(c *gin.Context) {
	paused, ok := bindPause(c)
	if !ok {
		return
	}

	resp, err := s.invoiceSvc.SetOutreachPaused(c.Request.Context(), c.Param("id"), paused)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) SetDebtorOutreach(c *gin.Context) {
	paused, ok := bindPause(c)
	if !ok {
		return
	}

	resp, err := s.debtorSvc.SetOutreachPaused(c.Request.Context(), c.Param("id"), paused)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func bindPause(c *gin.Context) (bool, bool) {
	var req outreachPauseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return false, false
	}
	if req.Paused == nil {
		AbortWithError(c, newValidationError("paused", "required", "paused is required"))
		return false, false
	}
	return *req.Paused, true
}
