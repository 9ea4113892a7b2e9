package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"logbook/internal/domain"
	"logbook/internal/domain/models"
	"logbook/internal/repositories"
)

func newAuth(t *testing.T) (AuthService, *fixture) {
	t.Helper()
	fx := newFixture(t)
	return AuthService{
		Users:       repositories.NewUserRepository(fx.facade),
		Credentials: repositories.NewCredentialRepository(fx.facade),
		Conductors:  repositories.NewConductorRepository(fx.facade),
		Secret:      []byte("test-secret"),
		TTL:         time.Hour,
	}, fx
}

func TestEnsureRootThenLogin(t *testing.T) {
	ctx := context.Background()
	svc, _ := newAuth(t)

	created, err := svc.EnsureRoot(ctx, "root", "s3cret!")
	if err != nil || !created {
		t.Fatalf("EnsureRoot: created=%v err=%v", created, err)
	}
	created, _ = svc.EnsureRoot(ctx, "root", "s3cret!")
	if created {
		t.Fatalf("second EnsureRoot must not create another root")
	}

	token, p, err := svc.Login(ctx, "ROOT", "s3cret!")
	if err != nil {
		t.Fatalf("Login error: %v", err)
	}
	if p.Role != domain.RoleRoot {
		t.Fatalf("role = %s", p.Role)
	}
	claims, err := ParseToken(svc.Secret, token)
	if err != nil {
		t.Fatalf("ParseToken error: %v", err)
	}
	if claims.Subject != p.ID || claims.Role != domain.RoleRoot {
		t.Fatalf("unexpected claims: %+v", claims)
	}

	if _, _, err := svc.Login(ctx, "root", "wrong"); !errors.Is(err, ErrBadCredentials) {
		t.Fatalf("expected ErrBadCredentials, got %v", err)
	}
	if _, err := ParseToken([]byte("other"), token); err == nil {
		t.Fatalf("token signed with another secret must be rejected")
	}
}

func TestConductorCredentialLogin(t *testing.T) {
	ctx := context.Background()
	svc, fx := newAuth(t)

	hash, err := HashPassword("bus-123")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	cred := models.Credential{ConductorID: fx.conductor.ID, Username: "carlos", PasswordHash: hash, Active: true}
	if err := svc.Credentials.Save(ctx, &cred); err != nil {
		t.Fatalf("save credential: %v", err)
	}

	_, p, err := svc.Login(ctx, "carlos", "bus-123")
	if err != nil {
		t.Fatalf("Login error: %v", err)
	}
	if p.Role != domain.RoleConductor || p.ConductorID != fx.conductor.ID || p.Name != "Carlos" {
		t.Fatalf("unexpected principal: %+v", p)
	}

	cred.Active = false
	if err := svc.Credentials.Save(ctx, &cred); err != nil {
		t.Fatalf("save credential: %v", err)
	}
	if _, _, err := svc.Login(ctx, "carlos", "bus-123"); !errors.Is(err, ErrBadCredentials) {
		t.Fatalf("inactive credential must not log in, got %v", err)
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	svc, _ := newAuth(t)
	svc.Now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, _, err := svc.issue(Principal{ID: "u1", Role: domain.RoleAdmin})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := ParseToken(svc.Secret, token); err == nil {
		t.Fatalf("expired token accepted")
	}
}

func TestHashPasswordTooShort(t *testing.T) {
	if _, err := HashPassword("123"); !domain.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
