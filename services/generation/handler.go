package generation

import (
	"net/http"
	"strconv"

	"tuliu-backend/pkg/errutil"
	"tuliu-backend/pkg/middleware"
	"tuliu-backend/services/ledger"

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
	api.POST("/generate", p.Handler.generate)
	api.GET("/generations", p.Handler.history)
}

type generateRequest struct {
	Prompt         string `json:"prompt"`
	Width          int    `json:"width" binding:"required"`
	Height         int    `json:"height" binding:"required"`
	SourceImageURL string `json:"sourceImageUrl"`
}

func (h *Handler) generate(c *gin.Context) {
	acc := ledger.AccountFrom(c)
	if acc == nil {
		c.Error(errutil.Unauthorized("not signed in"))
		return
	}

	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.ValidationFailed("invalid request body", errutil.WithErr(err)))
		return
	}

	result, err := h.svc.Generate(c.Request.Context(), acc.ID, req.Prompt, req.Width, req.Height, req.SourceImageURL)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *Handler) history(c *gin.Context) {
	acc := ledger.AccountFrom(c)
	if acc == nil {
		c.Error(errutil.Unauthorized("not signed in"))
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	records, err := h.svc.History(c.Request.Context(), acc.ID, limit)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"generations": records})
}
