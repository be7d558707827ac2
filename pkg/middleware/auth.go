package middleware

import "github.com/gin-gonic/gin"

// AccountKey is the gin context key under which the authenticated account is
// stored by the session middleware.
const AccountKey = "auth.account"

// Auth bundles the session middlewares so route modules can depend on them
// without importing the auth service.
type Auth struct {
	Require      gin.HandlerFunc
	RequireAdmin gin.HandlerFunc
}
