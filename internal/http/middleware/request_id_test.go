package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func echoRequestID(t *testing.T, header string) (string, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID())
	var fromCtx string
	r.GET("/", func(c *gin.Context) {
		fromCtx = RequestIDFrom(c.Request.Context())
		c.String(http.StatusOK, GetRequestID(c))
	})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("X-Request-ID", header)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, w.Body.String(), w.Header().Get("X-Request-ID"))
	assert.Equal(t, w.Body.String(), fromCtx)
	return w.Body.String(), fromCtx
}

func TestRequestIDKeepsPlainToken(t *testing.T) {
	got, _ := echoRequestID(t, "mobile-42.retry_1")
	assert.Equal(t, "mobile-42.retry_1", got)
}

func TestRequestIDReplacesUnsafeHeader(t *testing.T) {
	cases := map[string]string{
		"missing":   "",
		"too long":  strings.Repeat("a", 65),
		"spaces":    "abc def",
		"log break": "abc\nlevel=error",
		"quotes":    `a"b`,
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			got, _ := echoRequestID(t, header)
			assert.NotEqual(t, header, got)
			_, err := uuid.Parse(got)
			assert.NoError(t, err, "expected a minted uuid, got %q", got)
		})
	}
}

func TestRequestIDAcceptsMaxLength(t *testing.T) {
	id := strings.Repeat("z", 64)
	got, _ := echoRequestID(t, id)
	assert.Equal(t, id, got)
}
