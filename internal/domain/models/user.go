package models

import "logbook/internal/domain"

type User struct {
	Base
	Name         string      `json:"name"`
	Cedula       string      `json:"cedula"`
	Username     string      `json:"username"`
	PasswordHash string      `json:"passwordHash,omitempty"`
	Role         domain.Role `json:"role"`
}

// Credential binds a conductor to a login.
type Credential struct {
	Base
	ConductorID  string `json:"conductorId"`
	Username     string `json:"username"`
	PasswordHash string `json:"passwordHash,omitempty"`
	Active       bool   `json:"active"`
}
