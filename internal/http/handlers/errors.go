package handlers

import (
	"errors"
	"net/http"

	"logbook/internal/domain"
	"logbook/internal/http/middleware"
	"logbook/internal/services"

	"github.com/gin-gonic/gin"
)

// ErrorResponse standardizes error payloads.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	Details   any    `json:"details,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

func respondError(c *gin.Context, status int, code, message string, details any) {
	if code == "" {
		code = http.StatusText(status)
	}
	c.JSON(status, ErrorResponse{
		Error:     message,
		Code:      code,
		Details:   details,
		RequestID: middleware.GetRequestID(c),
	})
}

// RespondDomainError maps domain errors to HTTP responses.
func RespondDomainError(c *gin.Context, err error) {
	var capErr domain.CapacityExceededError
	var dup domain.DuplicateKeyError
	var batch domain.BatchError
	switch {
	case errors.Is(err, services.ErrBadCredentials):
		respondError(c, http.StatusUnauthorized, "bad_credentials", err.Error(), nil)
	case domain.IsValidation(err):
		respondError(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
	case domain.IsInvalidPayload(err):
		respondError(c, http.StatusBadRequest, "invalid_payload", err.Error(), nil)
	case domain.IsNotFound(err):
		respondError(c, http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.As(err, &capErr):
		respondError(c, http.StatusConflict, "capacity_exceeded", err.Error(), gin.H{
			"groupId": capErr.GroupID, "capacity": capErr.Capacity, "active": capErr.Active,
		})
	case errors.As(err, &dup):
		respondError(c, http.StatusConflict, "duplicate_key", err.Error(), gin.H{
			"field": dup.Field, "value": dup.Value, "ownerId": dup.OwnerID,
		})
	case domain.IsInvalidState(err):
		respondError(c, http.StatusConflict, "invalid_state", err.Error(), nil)
	case domain.IsConflict(err):
		respondError(c, http.StatusConflict, "conflict", err.Error(), nil)
	case domain.IsStorageFull(err):
		var details any
		if errors.As(err, &batch) {
			details = gin.H{"written": batch.Written, "total": batch.Total}
		}
		respondError(c, http.StatusInsufficientStorage, "storage_full", err.Error(), details)
	case domain.IsInternal(err):
		var internal domain.InternalError
		errors.As(err, &internal)
		_ = c.Error(err)
		respondError(c, http.StatusInternalServerError, "internal_error", internal.Error(), nil)
	default:
		_ = c.Error(err)
		respondError(c, http.StatusInternalServerError, "internal_error", "something went wrong", nil)
	}
}
