package handlers

import (
	"net/http"
	"strings"
	"time"

	"logbook/internal/domain"
	"logbook/internal/domain/models"
	"logbook/internal/repositories"
	"logbook/internal/services"
	"logbook/internal/utils"

	"github.com/gin-gonic/gin"
)

type conductorRequest struct {
	Name       string   `json:"name"`
	Cedula     string   `json:"cedula"`
	UnitNumber string   `json:"unitNumber"`
	Area       string   `json:"area"`
	Route      string   `json:"route"`
	Photos     []string `json:"photos"`
}

func (r conductorRequest) apply(dst *models.Conductor) error {
	dst.Name = utils.NormalizeSpace(r.Name)
	dst.Cedula = utils.NormalizeCedula(r.Cedula)
	dst.UnitNumber = strings.TrimSpace(r.UnitNumber)
	dst.Area = strings.TrimSpace(r.Area)
	dst.Route = strings.TrimSpace(r.Route)
	dst.Photos = r.Photos
	if dst.Name == "" {
		return domain.ValidationError{Field: "name", Msg: "is required"}
	}
	if dst.Cedula == "" {
		return domain.ValidationError{Field: "cedula", Msg: "is required"}
	}
	return nil
}

// GET /api/conductors
func (a *API) GetConductors(c *gin.Context) {
	list, err := repositories.NewConductorRepository(a.Facade).List(c.Request.Context())
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// POST /api/conductors
func (a *API) CreateConductor(c *gin.Context) {
	var req conductorRequest
	if !bindBody(c, &req) {
		return
	}
	var cd models.Conductor
	if err := req.apply(&cd); err != nil {
		RespondDomainError(c, err)
		return
	}
	if err := repositories.NewConductorRepository(a.Facade).Save(c.Request.Context(), &cd); err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusCreated, cd)
}

// PUT /api/conductors/:id
func (a *API) UpdateConductor(c *gin.Context) {
	var req conductorRequest
	if !bindBody(c, &req) {
		return
	}
	repo := repositories.NewConductorRepository(a.Facade)
	cd, err := repo.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	if err := req.apply(&cd); err != nil {
		RespondDomainError(c, err)
		return
	}
	cd.UpdatedAt = time.Now()
	if err := repo.Save(c.Request.Context(), &cd); err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, cd)
}

// DELETE /api/conductors/:id
func (a *API) DeleteConductor(c *gin.Context) {
	if err := repositories.NewConductorRepository(a.Facade).Delete(c.Request.Context(), c.Param("id")); err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "conductor deleted"})
}

type credentialRequest struct {
	ConductorID string `json:"conductorId"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	Active      *bool  `json:"active"`
}

// GET /api/conductor-credentials
func (a *API) GetCredentials(c *gin.Context) {
	list, err := repositories.NewCredentialRepository(a.Facade).List(c.Request.Context())
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	for i := range list {
		list[i].PasswordHash = ""
	}
	c.JSON(http.StatusOK, list)
}

// POST /api/conductor-credentials
func (a *API) CreateCredential(c *gin.Context) {
	var req credentialRequest
	if !bindBody(c, &req) {
		return
	}
	ctx := c.Request.Context()
	if _, err := repositories.NewConductorRepository(a.Facade).Get(ctx, req.ConductorID); err != nil {
		RespondDomainError(c, err)
		return
	}
	username := strings.TrimSpace(req.Username)
	if username == "" {
		RespondDomainError(c, domain.ValidationError{Field: "username", Msg: "is required"})
		return
	}
	repo := repositories.NewCredentialRepository(a.Facade)
	if _, taken, err := repo.ByUsername(ctx, username); err != nil {
		RespondDomainError(c, err)
		return
	} else if taken {
		RespondDomainError(c, domain.ConflictError{Resource: "credential", Msg: "username already in use"})
		return
	}
	hash, err := services.HashPassword(req.Password)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	cred := models.Credential{ConductorID: req.ConductorID, Username: username, PasswordHash: hash, Active: req.Active == nil || *req.Active}
	if err := repo.Save(ctx, &cred); err != nil {
		RespondDomainError(c, err)
		return
	}
	cred.PasswordHash = ""
	c.JSON(http.StatusCreated, cred)
}

// PUT /api/conductor-credentials/:id changes the password or the active flag.
func (a *API) UpdateCredential(c *gin.Context) {
	var req credentialRequest
	if !bindBody(c, &req) {
		return
	}
	repo := repositories.NewCredentialRepository(a.Facade)
	cred, err := repo.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	if req.Password != "" {
		if cred.PasswordHash, err = services.HashPassword(req.Password); err != nil {
			RespondDomainError(c, err)
			return
		}
	}
	if req.Active != nil {
		cred.Active = *req.Active
	}
	if err := repo.Save(c.Request.Context(), &cred); err != nil {
		RespondDomainError(c, err)
		return
	}
	cred.PasswordHash = ""
	c.JSON(http.StatusOK, cred)
}

// DELETE /api/conductor-credentials/:id
func (a *API) DeleteCredential(c *gin.Context) {
	if err := repositories.NewCredentialRepository(a.Facade).Delete(c.Request.Context(), c.Param("id")); err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "credential deleted"})
}
