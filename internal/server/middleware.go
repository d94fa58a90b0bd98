package server

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	accountdomain "github.com/smallbiznis/recouply/internal/account/domain"
	"github.com/smallbiznis/recouply/internal/accountcontext"
	obscontext "github.com/smallbiznis/recouply/internal/observability/context"
)

const (
	HeaderAccount    = "X-Recouply-Account"
	contextAccountID = "account_id"
)

// AccountRequired resolves the account scope from the X-Recouply-Account
// header. Unknown accounts are rejected before any handler runs.
func (s *Server) AccountRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(HeaderAccount))
		if raw == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		accountID, err := snowflake.ParseString(raw)
		if err != nil || accountID == 0 {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		ctx := c.Request.Context()
		account, err := s.accountRepo.FindByID(ctx, s.db.WithContext(ctx), accountID)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		if account == nil {
			AbortWithError(c, accountdomain.ErrNotFound)
			return
		}

		ctx = accountcontext.WithAccountID(ctx, accountID)
		ctx = obscontext.WithAccountID(ctx, accountID.String())
		ctx = obscontext.WithActor(ctx, "account", accountID.String())
		c.Request = c.Request.WithContext(ctx)
		c.Set(contextAccountID, accountID.String())
		c.Next()
	}
}
