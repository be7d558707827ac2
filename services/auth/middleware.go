package auth

import (
	"tuliu-backend/pkg/errutil"
	"tuliu-backend/pkg/middleware"
	"tuliu-backend/pkg/session"
	"tuliu-backend/services/ledger"

	"github.com/gin-gonic/gin"
)

// NewAuth builds the session middlewares consumed by the route modules.
// Require resolves the session cookie to an account and aborts on failure;
// RequireAdmin additionally checks the role and must run after Require.
func NewAuth(sessions *session.Manager, accounts *ledger.Service) *middleware.Auth {
	require := func(c *gin.Context) {
		token, err := c.Cookie(sessions.CookieName)
		if err != nil || token == "" {
			c.Error(errutil.Unauthorized("not signed in"))
			c.Abort()
			return
		}

		accountID, err := sessions.Verify(token)
		if err != nil {
			c.Error(err)
			c.Abort()
			return
		}

		acc, err := accounts.GetAccount(c.Request.Context(), accountID)
		if err != nil {
			c.Error(errutil.Unauthorized("not signed in", errutil.WithErr(err)))
			c.Abort()
			return
		}
		if acc.Blocked {
			c.Error(errutil.Forbidden("account is blocked"))
			c.Abort()
			return
		}

		c.Set(middleware.AccountKey, acc)
		c.Next()
	}

	requireAdmin := func(c *gin.Context) {
		acc := ledger.AccountFrom(c)
		if acc == nil || acc.Role != ledger.RoleAdmin {
			c.Error(errutil.Forbidden("admin access required"))
			c.Abort()
			return
		}
		c.Next()
	}

	return &middleware.Auth{
		Require:      require,
		RequireAdmin: requireAdmin,
	}
}
