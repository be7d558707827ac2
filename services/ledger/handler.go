package ledger

import (
	"net/http"
	"strconv"

	"tuliu-backend/pkg/errutil"
	"tuliu-backend/pkg/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type RegisterRoutesParams struct {
	fx.In
	Engine  *gin.Engine
	Handler *Handler
	Auth    *middleware.Auth
}

func RegisterRoutes(p RegisterRoutesParams) {
	api := p.Engine.Group("/api", p.Auth.Require)
	api.GET("/credits", p.Handler.getCredits)
	api.GET("/credits/transactions", p.Handler.listTransactions)

	admin := p.Engine.Group("/api/admin", p.Auth.Require, p.Auth.RequireAdmin)
	admin.POST("/credits/adjust", p.Handler.adjustCredits)
}

func (h *Handler) getCredits(c *gin.Context) {
	acc := AccountFrom(c)
	if acc == nil {
		c.Error(errutil.Unauthorized("not signed in"))
		return
	}

	balance, err := h.svc.GetBalance(c.Request.Context(), acc.ID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"credits": balance})
}

func (h *Handler) listTransactions(c *gin.Context) {
	acc := AccountFrom(c)
	if acc == nil {
		c.Error(errutil.Unauthorized("not signed in"))
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	entries, err := h.svc.ListTransactions(c.Request.Context(), acc.ID, limit)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"transactions": entries})
}

type adjustCreditsRequest struct {
	AccountID   string `json:"accountId" binding:"required"`
	Delta       int64  `json:"delta" binding:"required"`
	Description string `json:"description"`
}

func (h *Handler) adjustCredits(c *gin.Context) {
	var req adjustCreditsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.ValidationFailed("invalid request body", errutil.WithErr(err)))
		return
	}

	var (
		entry *Transaction
		err   error
	)
	if req.Delta > 0 {
		entry, err = h.svc.Grant(c.Request.Context(), req.AccountID, req.Delta, TypeAdminRecharge, req.Description)
	} else {
		entry, err = h.svc.Deduct(c.Request.Context(), req.AccountID, -req.Delta, TypeAdminDeduct, req.Description)
	}
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"transaction": entry})
}
