package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"logbook/internal/domain"
	"logbook/internal/domain/models"
	"logbook/internal/repositories"
	"logbook/internal/utils"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// ErrBadCredentials is returned for any unknown user or wrong password.
var ErrBadCredentials = errors.New("wrong username or password")

// Claims is the JWT payload issued at login.
type Claims struct {
	Role domain.Role `json:"role"`
	Name string      `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Principal is the logged-in account returned with a token.
type Principal struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Username    string      `json:"username"`
	Role        domain.Role `json:"role"`
	ConductorID string      `json:"conductorId,omitempty"`
}

type AuthService struct {
	Users       repositories.UserRepository
	Credentials repositories.CredentialRepository
	Conductors  repositories.ConductorRepository
	Secret      []byte
	TTL         time.Duration
	Now         func() time.Time
	RequestID   string
}

func (s AuthService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// HashPassword wraps bcrypt with the default cost.
func HashPassword(password string) (string, error) {
	if len(password) < 6 {
		return "", domain.ValidationError{Field: "password", Msg: "must have at least 6 characters"}
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// Login checks users first and then conductor credentials.
func (s AuthService) Login(ctx context.Context, username, password string) (string, Principal, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return "", Principal{}, ErrBadCredentials
	}

	if u, ok, err := s.Users.ByUsername(ctx, username); err != nil {
		return "", Principal{}, err
	} else if ok {
		if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
			return "", Principal{}, ErrBadCredentials
		}
		p := Principal{ID: u.ID, Name: u.Name, Username: u.Username, Role: u.Role}
		return s.issue(p)
	}

	cred, ok, err := s.Credentials.ByUsername(ctx, username)
	if err != nil {
		return "", Principal{}, err
	}
	if !ok || !cred.Active || bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(password)) != nil {
		return "", Principal{}, ErrBadCredentials
	}
	p := Principal{ID: cred.ConductorID, Username: cred.Username, Role: domain.RoleConductor, ConductorID: cred.ConductorID}
	if c, err := s.Conductors.Get(ctx, cred.ConductorID); err == nil {
		p.Name = c.Name
	}
	return s.issue(p)
}

func (s AuthService) issue(p Principal) (string, Principal, error) {
	ttl := s.TTL
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Role: p.Role,
		Name: p.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	signed, err := token.SignedString(s.Secret)
	if err != nil {
		return "", Principal{}, fmt.Errorf("sign token: %w", err)
	}
	utils.LogEvent(s.RequestID, "auth", "login", "subject="+p.ID+" role="+string(p.Role))
	return signed, p, nil
}

// ParseToken validates a bearer token and returns its claims.
func ParseToken(secret []byte, raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if !claims.Role.Valid() {
		return nil, fmt.Errorf("token carries unknown role %q", claims.Role)
	}
	return claims, nil
}

// EnsureRoot creates the root account on first start when a password is configured.
func (s AuthService) EnsureRoot(ctx context.Context, username, password string) (bool, error) {
	if strings.TrimSpace(password) == "" {
		return false, nil
	}
	all, err := s.Users.List(ctx)
	if err != nil {
		return false, err
	}
	for _, u := range all {
		if u.Role == domain.RoleRoot {
			return false, nil
		}
	}
	hash, err := HashPassword(password)
	if err != nil {
		return false, err
	}
	root := models.User{Name: "Root", Username: strings.TrimSpace(username), PasswordHash: hash, Role: domain.RoleRoot}
	if err := s.Users.Save(ctx, &root); err != nil {
		return false, err
	}
	utils.LogEvent(s.RequestID, "auth", "ensure_root", "created root account "+root.Username)
	return true, nil
}
