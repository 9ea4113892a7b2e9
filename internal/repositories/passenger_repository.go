package repositories

import (
	"context"
	"strings"

	"logbook/internal/domain/models"
	"logbook/internal/store"
)

type PassengerRepository struct {
	Repository[models.Passenger, *models.Passenger]
}

func NewPassengerRepository(f *Facade) PassengerRepository {
	return PassengerRepository{Repository[models.Passenger, *models.Passenger]{Facade: f, Coll: store.Passengers}}
}

// ByCedula returns the passenger holding cedula, if any.
func (r PassengerRepository) ByCedula(ctx context.Context, cedula string) (models.Passenger, bool, error) {
	cedula = strings.TrimSpace(cedula)
	if cedula == "" {
		return models.Passenger{}, false, nil
	}
	found, err := r.Find(ctx, "cedula", cedula)
	if err != nil {
		return models.Passenger{}, false, err
	}
	if len(found) == 0 {
		return models.Passenger{}, false, nil
	}
	return found[0], true, nil
}

// Cedulas returns the set of non-empty cedulas currently stored.
func (r PassengerRepository) Cedulas(ctx context.Context) (map[string]string, error) {
	all, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(all))
	for _, p := range all {
		if c := strings.TrimSpace(p.Cedula); c != "" {
			out[c] = p.ID
		}
	}
	return out, nil
}

type ConductorRepository struct {
	Repository[models.Conductor, *models.Conductor]
}

func NewConductorRepository(f *Facade) ConductorRepository {
	return ConductorRepository{Repository[models.Conductor, *models.Conductor]{Facade: f, Coll: store.Conductors}}
}

type SignatureRepository struct {
	Repository[models.Signature, *models.Signature]
}

func NewSignatureRepository(f *Facade) SignatureRepository {
	return SignatureRepository{Repository[models.Signature, *models.Signature]{Facade: f, Coll: store.Signatures}}
}

// ByRole returns the latest signature saved for role.
func (r SignatureRepository) ByRole(ctx context.Context, role string) (models.Signature, bool, error) {
	all, err := r.List(ctx)
	if err != nil {
		return models.Signature{}, false, err
	}
	var (
		out models.Signature
		ok  bool
	)
	for _, s := range all {
		if s.Role == role && (!ok || !s.CreatedAt.Before(out.CreatedAt)) {
			out, ok = s, true
		}
	}
	return out, ok, nil
}
