package server

import (
	"errors"
	"math"
	"strconv"

	"github.com/gin-gonic/gin"
	obslogger "github.com/smallbiznis/recouply/internal/observability/logger"
	"github.com/smallbiznis/recouply/internal/ratelimit"
	"go.uber.org/zap"
)

var (
	ErrTooManyRequests  = errors.New("too_many_requests")
	ErrUploadInProgress = errors.New("upload_in_progress")
)

// IngestRateLimit throttles ingestion per account. Must run after
// AccountRequired.
func (s *Server) IngestRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.limiter.Enabled() {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		accountID := c.GetString(contextAccountID)
		result, err := s.limiter.AllowAccount(ctx, accountID)
		if err != nil {
			obslogger.FromContext(ctx).Warn("ingest rate limit check failed", zap.Error(err))
			AbortWithError(c, ErrServiceUnavailable)
			return
		}
		if !result.Allowed {
			retryAfter := int(math.Ceil(result.RetryAfter.Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
			c.Header("X-RateLimit-Remaining", "0")
			obslogger.FromContext(ctx).Info("ingest rate limited",
				zap.String("account_id", accountID),
				zap.String("route", c.FullPath()),
			)
			AbortWithError(c, ErrTooManyRequests)
			return
		}
		c.Next()
	}
}

// withUploadLock runs fn while holding the account's lock for fileType.
func (s *Server) withUploadLock(c *gin.Context, fileType string, fn func()) {
	ctx := c.Request.Context()
	accountID := c.GetString(contextAccountID)

	lease, err := s.limiter.LockUpload(ctx, accountID, fileType)
	if errors.Is(err, ratelimit.ErrLockHeld) {
		AbortWithError(c, ErrUploadInProgress)
		return
	}
	if err != nil {
		obslogger.FromContext(ctx).Warn("upload lock failed", zap.Error(err))
		AbortWithError(c, ErrServiceUnavailable)
		return
	}
	defer func() {
		if err := lease.Release(ctx); err != nil {
			obslogger.FromContext(ctx).Warn("upload unlock failed",
				zap.String("lock_key", lease.Key()),
				zap.Error(err),
			)
		}
	}()

	fn()
}
