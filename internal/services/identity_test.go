package services

import (
	"encoding/base64"
	"testing"
	"time"

	"logbook/internal/domain"
	"logbook/internal/domain/models"
)

func TestIdentityRoundTrip(t *testing.T) {
	p := models.Passenger{Base: models.Base{ID: "p1"}, Name: "Ana Pérez", Cedula: "V-1", Department: "Ops"}
	at := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)

	blob, err := EncodeIdentity(p, at)
	if err != nil {
		t.Fatalf("EncodeIdentity error: %v", err)
	}
	got, err := DecodeIdentity(blob)
	if err != nil {
		t.Fatalf("DecodeIdentity error: %v", err)
	}
	if got.ID != "p1" || got.Cedula != "V-1" || got.Name != "Ana Pérez" || !got.IssuedAt.Equal(at) {
		t.Fatalf("unexpected payload: %+v", got)
	}

	// padded blobs from older printers still decode
	padded := base64.URLEncoding.EncodeToString([]byte(`{"v":1,"id":"p1","cedula":"V-1"}`))
	if _, err := DecodeIdentity(padded); err != nil {
		t.Fatalf("padded blob rejected: %v", err)
	}
}

func TestDecodeIdentityRejectsBadInput(t *testing.T) {
	cases := map[string]string{
		"empty":      "",
		"not base64": "***",
		"not json":   base64.RawURLEncoding.EncodeToString([]byte("hello")),
		"no cedula":  base64.RawURLEncoding.EncodeToString([]byte(`{"v":1,"id":"p1"}`)),
		"version":    base64.RawURLEncoding.EncodeToString([]byte(`{"v":9,"cedula":"1"}`)),
	}
	for name, blob := range cases {
		if _, err := DecodeIdentity(blob); !domain.IsInvalidPayload(err) {
			t.Fatalf("%s: expected InvalidPayloadError, got %v", name, err)
		}
	}
}
