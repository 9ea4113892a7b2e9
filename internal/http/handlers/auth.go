package handlers

import (
	"net/http"

	"logbook/internal/http/middleware"

	"github.com/gin-gonic/gin"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// POST /api/auth/login
func (a *API) Login(c *gin.Context) {
	var req loginRequest
	if !bindBody(c, &req) {
		return
	}
	token, principal, err := a.auth(c).Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "user": principal})
}

// GET /api/auth/me
func (a *API) Me(c *gin.Context) {
	rc, ok := middleware.Caller(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "unauthorized", "not logged in", nil)
		return
	}
	c.JSON(http.StatusOK, rc)
}
