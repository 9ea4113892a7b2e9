package models

// Signature is a verifier identity block printed on reports.
type Signature struct {
	Base
	Role     string `json:"role"` // contractor / corporation
	Name     string `json:"name"`
	Cedula   string `json:"cedula"`
	Position string `json:"position"`
	Company  string `json:"company"`
}
