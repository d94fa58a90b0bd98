package logger

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestRequestLevel(t *testing.T) {
	cases := []struct {
		route     string
		status    int
		errorType string
		want      zapcore.Level
	}{
		{"/health", http.StatusOK, "", zapcore.DebugLevel},
		{"/api/engine/run", http.StatusInternalServerError, "internal_error", zapcore.ErrorLevel},
		{"/api/drafts", http.StatusBadRequest, "validation_error", zapcore.InfoLevel},
		{"/api/uploads", http.StatusBadRequest, "validation_error", zapcore.DebugLevel},
		{"/api/uploads", http.StatusConflict, "conflict", zapcore.WarnLevel},
		{"/api/payments", http.StatusTooManyRequests, "rate_limited", zapcore.WarnLevel},
		{"/api/payments", http.StatusCreated, "", zapcore.InfoLevel},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, requestLevel(tc.route, tc.status, tc.errorType), "%s %d", tc.route, tc.status)
	}
}

func TestGinMiddlewareLogsRequest(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	t.Cleanup(restore)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(GinMiddleware(MiddlewareConfig{
		ErrorClassifier: func(error) (string, string) { return "conflict", "upload_in_progress" },
	}))
	r.POST("/api/uploads", func(c *gin.Context) {
		c.Set("upload_file_type", "invoice_aging")
		_ = c.Error(errors.New("upload_in_progress"))
		c.Status(http.StatusConflict)
	})

	req := httptest.NewRequest(http.MethodPost, "/api/uploads", nil)
	req.Header.Set(HeaderRequestID, "req-1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "req-1", w.Header().Get(HeaderRequestID))
	entries := logs.FilterMessage("http_request").All()
	require.Len(t, entries, 1)
	entry := entries[0]
	assert.Equal(t, zapcore.WarnLevel, entry.Level)
	fields := entry.ContextMap()
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Equal(t, "invoice_aging", fields["upload_file_type"])
	assert.Equal(t, "upload_in_progress", fields["error_code"])
	assert.NotContains(t, fields, "path")
}

func TestGinMiddlewareGeneratesRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(GinMiddleware(MiddlewareConfig{}))
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.NotEmpty(t, w.Header().Get(HeaderRequestID))
}
