package server

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	recondomain "github.com/smallbiznis/recouply/internal/reconciliation/domain"
)

type uploadRequest struct {
	Rows         []map[string]any  `json:"rows"`
	FieldMapping map[string]string `json:"fieldMapping"`
	FileType     string            `json:"fileType"`
}

// Upload ingests a parsed spreadsheet. Row failures are part of the 200
// summary; only request-shape problems are rejected.
func (s *Server) Upload(c *gin.Context) {
	var req uploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	c.Set("upload_file_type", strings.TrimSpace(req.FileType))

	rows := make([]map[string]string, 0, len(req.Rows))
	for _, row := range req.Rows {
		cells := make(map[string]string, len(row))
		for column, value := range row {
			cells[column] = cellString(value)
		}
		rows = append(rows, cells)
	}

	s.withUploadLock(c, req.FileType, func() {
		resp, err := s.reconciliation.Ingest(c.Request.Context(), recondomain.UploadRequest{
			Rows:         rows,
			FieldMapping: req.FieldMapping,
			FileType:     req.FileType,
		})
		if err != nil {
			AbortWithError(c, err)
			return
		}

		c.JSON(http.StatusOK, resp)
	})
}

// RecordPayment accepts a single payment from an external feed.
func (s *Server) RecordPayment(c *gin.Context) {
	var req recondomain.FeedPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	c.Set("upload_file_type", "payment_feed")

	resp, err := s.reconciliation.RecordPayment(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// cellString renders a JSON cell the way a spreadsheet export would.
func cellString(v any) string {
	switch typed := v.(type) {
	case nil:
		return ""
	case string:
		return typed
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(typed)
	default:
		return fmt.Sprint(typed)
	}
}
