package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RunEngine executes one collections cycle. A run that could not get past
// the sweeper is the only 500; row failures are listed in the summary.
func (s *Server) RunEngine(c *gin.Context) {
	summary, err := s.runner.RunOnce(c.Request.Context())
	if err != nil {
		s.log.Error("engine run could not start", zap.Error(err))
		AbortWithError(c, ErrInternal)
		return
	}

	c.JSON(http.StatusOK, summary)
}
