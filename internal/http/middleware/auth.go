package middleware

import (
	"net/http"
	"slices"
	"strings"

	"logbook/internal/domain"
	"logbook/internal/services"

	"github.com/gin-gonic/gin"
)

const authKey = "auth"

// Auth requires a valid bearer token and stores the caller in the context.
func Auth(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader("Authorization"))
		token, ok := strings.CutPrefix(raw, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			abort(c, http.StatusUnauthorized, "missing bearer token")
			return
		}
		claims, err := services.ParseToken(secret, strings.TrimSpace(token))
		if err != nil {
			abort(c, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		c.Set(authKey, domain.RequestContext{UserID: claims.Subject, Role: claims.Role, Subject: claims.Name})
		c.Next()
	}
}

// RequireRole must run after Auth.
func RequireRole(roles ...domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		rc, ok := Caller(c)
		if !ok {
			abort(c, http.StatusUnauthorized, "missing bearer token")
			return
		}
		if !slices.Contains(roles, rc.Role) {
			abort(c, http.StatusForbidden, "role "+string(rc.Role)+" may not access this resource")
			return
		}
		c.Next()
	}
}

// Caller returns the authenticated caller set by Auth.
func Caller(c *gin.Context) (domain.RequestContext, bool) {
	v, ok := c.Get(authKey)
	if !ok {
		return domain.RequestContext{}, false
	}
	rc, ok := v.(domain.RequestContext)
	return rc, ok
}

func abort(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"error":      message,
		"code":       http.StatusText(status),
		"request_id": GetRequestID(c),
	})
}
