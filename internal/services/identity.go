package services

import (
	"encoding/base64"
	"strings"
	"time"

	"logbook/internal/domain"
	"logbook/internal/domain/models"

	"github.com/goccy/go-json"
)

const identityVersion = 1

// IdentityPayload is what a passenger's QR code carries.
type IdentityPayload struct {
	Version    int       `json:"v"`
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Cedula     string    `json:"cedula"`
	Department string    `json:"department"`
	IssuedAt   time.Time `json:"issuedAt"`
}

// EncodeIdentity renders the passenger's identity as a URL-safe blob.
func EncodeIdentity(p models.Passenger, at time.Time) (string, error) {
	raw, err := json.Marshal(IdentityPayload{
		Version:    identityVersion,
		ID:         p.ID,
		Name:       p.Name,
		Cedula:     p.Cedula,
		Department: p.Department,
		IssuedAt:   at.UTC(),
	})
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// DecodeIdentity parses a scanned blob. Padded and unpadded encodings are
// both accepted since older codes were printed with padding.
func DecodeIdentity(blob string) (IdentityPayload, error) {
	blob = strings.TrimRight(strings.TrimSpace(blob), "=")
	if blob == "" {
		return IdentityPayload{}, domain.InvalidPayloadError{Msg: "empty identity payload"}
	}
	raw, err := base64.RawURLEncoding.DecodeString(blob)
	if err != nil {
		return IdentityPayload{}, domain.InvalidPayloadError{Msg: "identity payload is not base64url", Err: err}
	}
	var p IdentityPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return IdentityPayload{}, domain.InvalidPayloadError{Msg: "identity payload is not JSON", Err: err}
	}
	if p.Version != identityVersion {
		return IdentityPayload{}, domain.InvalidPayloadError{Msg: "unsupported identity payload version"}
	}
	if strings.TrimSpace(p.Cedula) == "" {
		return IdentityPayload{}, domain.InvalidPayloadError{Msg: "identity payload has no cedula"}
	}
	return p, nil
}
