package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"codeart/internal/domain/auth"
)

// AuthHandler issues session tokens.
type AuthHandler struct {
	*BaseHandler
	jwt *auth.JWTService
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(base *BaseHandler, jwt *auth.JWTService) *AuthHandler {
	return &AuthHandler{BaseHandler: base, jwt: jwt}
}

type sessionRequest struct {
	Subject string `json:"subject" binding:"required"`
}

type sessionResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// StartSession handles POST /auth/session. Each token names a fresh session.
func (h *AuthHandler) StartSession(c *gin.Context) {
	var req sessionRequest
	if !h.BindJSON(c, &req) {
		return
	}

	token, expiresAt, err := h.jwt.IssueSessionToken(req.Subject)
	if err != nil {
		h.Error(c, err)
		return
	}

	c.JSON(http.StatusCreated, sessionResponse{Token: token, ExpiresAt: expiresAt})
}
