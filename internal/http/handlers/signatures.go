package handlers

import (
	"net/http"
	"strings"

	"logbook/internal/domain"
	"logbook/internal/domain/models"
	"logbook/internal/repositories"
	"logbook/internal/utils"

	"github.com/gin-gonic/gin"
)

// GET /api/signatures
func (a *API) GetSignatures(c *gin.Context) {
	list, err := repositories.NewSignatureRepository(a.Facade).List(c.Request.Context())
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// POST /api/signatures stores a new block; reports print the latest per role.
func (a *API) SaveSignature(c *gin.Context) {
	var sig models.Signature
	if !bindBody(c, &sig) {
		return
	}
	sig.Role = strings.ToLower(strings.TrimSpace(sig.Role))
	if sig.Role != "contractor" && sig.Role != "corporation" {
		RespondDomainError(c, domain.ValidationError{Field: "role", Msg: "must be contractor or corporation"})
		return
	}
	sig.Name = utils.NormalizeSpace(sig.Name)
	if sig.Name == "" {
		RespondDomainError(c, domain.ValidationError{Field: "name", Msg: "is required"})
		return
	}
	sig.ID = ""
	if err := repositories.NewSignatureRepository(a.Facade).Save(c.Request.Context(), &sig); err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sig)
}
