package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

// maxJSONBytes bounds every JSON request body; photos and signatures travel
// as data URLs so the limit is generous.
const maxJSONBytes = 8 << 20

// bindBody decodes a JSON body into dst. On failure it has already written a
// 400 (or 413) and the handler must return.
func bindBody[T any](c *gin.Context, dst *T) bool {
	if c.Request.Body == nil || c.Request.Body == http.NoBody {
		respondError(c, http.StatusBadRequest, "empty_body", "request body is required", nil)
		return false
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxJSONBytes)
	err := c.ShouldBindJSON(dst)
	var tooLarge *http.MaxBytesError
	switch {
	case err == nil:
		return true
	case errors.Is(err, io.EOF):
		respondError(c, http.StatusBadRequest, "empty_body", "request body is required", nil)
	case errors.As(err, &tooLarge):
		respondError(c, http.StatusRequestEntityTooLarge, "body_too_large", "request body is too large", gin.H{"limit": tooLarge.Limit})
	default:
		respondError(c, http.StatusBadRequest, "invalid_body", "request body is not valid JSON for this endpoint", gin.H{"reason": err.Error()})
	}
	return false
}

// unavailable reports a dependency the handler could not reach.
func unavailable(c *gin.Context, what string, err error) {
	var details any
	if err != nil {
		details = gin.H{"reason": err.Error()}
	}
	respondError(c, http.StatusServiceUnavailable, "unavailable", what+" unavailable", details)
}
