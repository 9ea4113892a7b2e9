package handlers

import (
	"net/http"
	"strings"

	"logbook/internal/domain"
	"logbook/internal/domain/models"
	"logbook/internal/repositories"
	"logbook/internal/services"
	"logbook/internal/utils"

	"github.com/gin-gonic/gin"
)

type userRequest struct {
	Name     string      `json:"name"`
	Cedula   string      `json:"cedula"`
	Username string      `json:"username"`
	Password string      `json:"password"`
	Role     domain.Role `json:"role"`
}

// GET /api/users
func (a *API) GetUsers(c *gin.Context) {
	list, err := repositories.NewUserRepository(a.Facade).List(c.Request.Context())
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	for i := range list {
		list[i].PasswordHash = ""
	}
	c.JSON(http.StatusOK, list)
}

// POST /api/users
func (a *API) CreateUser(c *gin.Context) {
	var req userRequest
	if !bindBody(c, &req) {
		return
	}
	if req.Role == "" {
		req.Role = domain.RoleAdmin
	}
	if req.Role == domain.RoleConductor || !req.Role.Valid() {
		RespondDomainError(c, domain.ValidationError{Field: "role", Msg: "must be root or admin"})
		return
	}
	u := models.User{
		Name:     utils.NormalizeSpace(req.Name),
		Cedula:   utils.NormalizeCedula(req.Cedula),
		Username: strings.TrimSpace(req.Username),
		Role:     req.Role,
	}
	if u.Name == "" || u.Username == "" {
		RespondDomainError(c, domain.ValidationError{Msg: "name and username are required"})
		return
	}
	ctx := c.Request.Context()
	repo := repositories.NewUserRepository(a.Facade)
	if _, taken, err := repo.ByUsername(ctx, u.Username); err != nil {
		RespondDomainError(c, err)
		return
	} else if taken {
		RespondDomainError(c, domain.ConflictError{Resource: "user", Msg: "username already in use"})
		return
	}
	hash, err := services.HashPassword(req.Password)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	u.PasswordHash = hash
	if err := repo.Save(ctx, &u); err != nil {
		RespondDomainError(c, err)
		return
	}
	u.PasswordHash = ""
	c.JSON(http.StatusCreated, u)
}

// PUT /api/users/:id updates name, role and optionally the password.
func (a *API) UpdateUser(c *gin.Context) {
	var req userRequest
	if !bindBody(c, &req) {
		return
	}
	repo := repositories.NewUserRepository(a.Facade)
	u, err := repo.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	if name := utils.NormalizeSpace(req.Name); name != "" {
		u.Name = name
	}
	if req.Role != "" {
		if req.Role == domain.RoleConductor || !req.Role.Valid() {
			RespondDomainError(c, domain.ValidationError{Field: "role", Msg: "must be root or admin"})
			return
		}
		u.Role = req.Role
	}
	if req.Password != "" {
		if u.PasswordHash, err = services.HashPassword(req.Password); err != nil {
			RespondDomainError(c, err)
			return
		}
	}
	if err := repo.Save(c.Request.Context(), &u); err != nil {
		RespondDomainError(c, err)
		return
	}
	u.PasswordHash = ""
	c.JSON(http.StatusOK, u)
}

// DELETE /api/users/:id
func (a *API) DeleteUser(c *gin.Context) {
	if err := repositories.NewUserRepository(a.Facade).Delete(c.Request.Context(), c.Param("id")); err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "user deleted"})
}
