package repositories

import (
	"context"
	"strings"

	"logbook/internal/domain/models"
	"logbook/internal/store"
)

type UserRepository struct {
	Repository[models.User, *models.User]
}

func NewUserRepository(f *Facade) UserRepository {
	return UserRepository{Repository[models.User, *models.User]{Facade: f, Coll: store.Users}}
}

// ByUsername matches case-insensitively.
func (r UserRepository) ByUsername(ctx context.Context, username string) (models.User, bool, error) {
	username = strings.TrimSpace(username)
	all, err := r.List(ctx)
	if err != nil {
		return models.User{}, false, err
	}
	for _, u := range all {
		if strings.EqualFold(u.Username, username) {
			return u, true, nil
		}
	}
	return models.User{}, false, nil
}

type CredentialRepository struct {
	Repository[models.Credential, *models.Credential]
}

func NewCredentialRepository(f *Facade) CredentialRepository {
	return CredentialRepository{Repository[models.Credential, *models.Credential]{Facade: f, Coll: store.ConductorCredentials}}
}

// ByUsername uses the store index on username.
func (r CredentialRepository) ByUsername(ctx context.Context, username string) (models.Credential, bool, error) {
	found, err := r.Find(ctx, "username", strings.TrimSpace(username))
	if err != nil {
		return models.Credential{}, false, err
	}
	if len(found) == 0 {
		return models.Credential{}, false, nil
	}
	return found[0], true, nil
}
