package auth

import (
	"net/http"

	"tuliu-backend/pkg/errutil"
	"tuliu-backend/pkg/middleware"
	"tuliu-backend/pkg/session"
	"tuliu-backend/services/ledger"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

type Handler struct {
	svc      *Service
	sessions *session.Manager
}

func NewHandler(svc *Service, sessions *session.Manager) *Handler {
	return &Handler{svc: svc, sessions: sessions}
}

type RegisterRoutesParams struct {
	fx.In
	Engine  *gin.Engine
	Handler *Handler
	Auth    *middleware.Auth
}

func RegisterRoutes(p RegisterRoutesParams) {
	api := p.Engine.Group("/api/auth")
	api.POST("/otp/send", p.Handler.sendOTP)
	api.POST("/otp/verify", p.Handler.verifyOTP)
	api.POST("/logout", p.Handler.logout)
	api.GET("/me", p.Auth.Require, p.Handler.me)
}

type sendOTPRequest struct {
	Email string `json:"email" binding:"required"`
}

func (h *Handler) sendOTP(c *gin.Context) {
	var req sendOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.ValidationFailed("invalid request body", errutil.WithErr(err)))
		return
	}

	if err := h.svc.RequestOTP(c.Request.Context(), req.Email); err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"sent": true})
}

type verifyOTPRequest struct {
	Email string `json:"email" binding:"required"`
	Code  string `json:"code" binding:"required"`
}

func (h *Handler) verifyOTP(c *gin.Context) {
	var req verifyOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.ValidationFailed("invalid request body", errutil.WithErr(err)))
		return
	}

	acc, token, err := h.svc.VerifyOTP(c.Request.Context(), req.Email, req.Code)
	if err != nil {
		c.Error(err)
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.sessions.CookieName, token, int(h.sessions.TTL().Seconds()), "/", "", false, true)
	c.JSON(http.StatusOK, acc)
}

func (h *Handler) me(c *gin.Context) {
	acc := ledger.AccountFrom(c)
	if acc == nil {
		c.Error(errutil.Unauthorized("not signed in"))
		return
	}
	c.JSON(http.StatusOK, acc)
}

func (h *Handler) logout(c *gin.Context) {
	c.SetCookie(h.sessions.CookieName, "", -1, "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{"signedOut": true})
}
