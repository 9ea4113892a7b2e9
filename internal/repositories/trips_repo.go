package repositories

import (
	"context"
	"time"

	"logbook/internal/domain"
	"logbook/internal/domain/models"
	"logbook/internal/store"
)

type TripRepository struct {
	Repository[models.Trip, *models.Trip]
}

func NewTripRepository(f *Facade) TripRepository {
	return TripRepository{Repository[models.Trip, *models.Trip]{Facade: f, Coll: store.Trips}}
}

// Save refuses to move a finalized trip back to active.
func (r TripRepository) Save(ctx context.Context, t *models.Trip) error {
	if err := r.guard(ctx, *t); err != nil {
		return err
	}
	return r.Repository.Save(ctx, t)
}

// SaveAll applies the same guard to every trip before writing any of them.
func (r TripRepository) SaveAll(ctx context.Context, trips []models.Trip) (int, error) {
	for _, t := range trips {
		if err := r.guard(ctx, t); err != nil {
			return 0, err
		}
	}
	return r.Repository.SaveAll(ctx, trips)
}

func (r TripRepository) guard(ctx context.Context, t models.Trip) error {
	if t.ID == "" || t.Status == domain.TripFinalized {
		return nil
	}
	prev, err := r.Get(ctx, t.ID)
	if domain.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if prev.Status == domain.TripFinalized {
		return domain.InvalidStateError{Msg: "trip " + t.ID + " is already finalized"}
	}
	return nil
}

// ActiveInGroup counts active trips bound to groupID.
func (r TripRepository) ActiveInGroup(ctx context.Context, groupID string) ([]models.Trip, error) {
	all, err := r.Find(ctx, "groupId", groupID)
	if err != nil {
		return nil, err
	}
	return active(all), nil
}

// Active lists every trip still in progress.
func (r TripRepository) Active(ctx context.Context) ([]models.Trip, error) {
	all, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	return active(all), nil
}

// ActiveOnRoute lists trips in progress on route.
func (r TripRepository) ActiveOnRoute(ctx context.Context, route string) ([]models.Trip, error) {
	all, err := r.Active(ctx)
	if err != nil {
		return nil, err
	}
	out := []models.Trip{}
	for _, t := range all {
		if t.Route == route {
			out = append(out, t)
		}
	}
	return out, nil
}

// Between lists trips that started in [from, to).
func (r TripRepository) Between(ctx context.Context, from, to time.Time) ([]models.Trip, error) {
	return r.Range(ctx, "startTime", from, to)
}

func active(trips []models.Trip) []models.Trip {
	out := []models.Trip{}
	for _, t := range trips {
		if t.Active() {
			out = append(out, t)
		}
	}
	return out
}
