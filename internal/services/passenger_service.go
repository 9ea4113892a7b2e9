package services

import (
	"context"
	"strconv"
	"strings"
	"time"

	"logbook/internal/domain"
	"logbook/internal/domain/models"
	"logbook/internal/repositories"
	"logbook/internal/utils"

	"github.com/google/uuid"
)

// PassengerService applies the editing rules for passengers: cedula is fixed
// at creation and only name and department change afterwards.
type PassengerService struct {
	Repo      repositories.PassengerRepository
	RequestID string
	Now       func() time.Time
}

func (s PassengerService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// PassengerInput is the create payload.
type PassengerInput struct {
	Name       string `json:"name"`
	Cedula     string `json:"cedula"`
	Department string `json:"department"`
}

func (in PassengerInput) normalize() (PassengerInput, error) {
	in.Name = utils.NormalizeSpace(in.Name)
	in.Cedula = utils.NormalizeCedula(in.Cedula)
	in.Department = utils.NormalizeSpace(in.Department)
	if in.Name == "" {
		return in, domain.ValidationError{Field: "name", Msg: "is required"}
	}
	if in.Cedula == "" {
		return in, domain.ValidationError{Field: "cedula", Msg: "is required"}
	}
	return in, nil
}

func (s PassengerService) Create(ctx context.Context, in PassengerInput) (models.Passenger, error) {
	in, err := in.normalize()
	if err != nil {
		return models.Passenger{}, err
	}
	now := s.now()
	p := models.Passenger{
		Base:       models.Base{CreatedAt: now},
		Name:       in.Name,
		Cedula:     in.Cedula,
		Department: in.Department,
		UpdatedAt:  now,
	}
	if err := s.stampPayload(&p); err != nil {
		return models.Passenger{}, err
	}
	if err := s.Repo.Save(ctx, &p); err != nil {
		return models.Passenger{}, err
	}
	utils.LogEvent(s.RequestID, "passenger", "create", "id="+p.ID)
	return p, nil
}

// stampPayload assigns the id up front so the identity blob can carry it.
func (s PassengerService) stampPayload(p *models.Passenger) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	blob, err := EncodeIdentity(*p, s.now())
	if err != nil {
		return err
	}
	p.QRPayload = blob
	return nil
}

func (s PassengerService) Update(ctx context.Context, id string, upd models.PassengerUpdate) (models.Passenger, error) {
	p, err := s.Repo.Get(ctx, id)
	if err != nil {
		return models.Passenger{}, err
	}
	if upd.Name != nil {
		name := utils.NormalizeSpace(*upd.Name)
		if name == "" {
			return models.Passenger{}, domain.ValidationError{Field: "name", Msg: "must not be empty"}
		}
		p.Name = name
	}
	if upd.Department != nil {
		p.Department = utils.NormalizeSpace(*upd.Department)
	}
	p.UpdatedAt = s.now()
	if err := s.stampPayload(&p); err != nil {
		return models.Passenger{}, err
	}
	if err := s.Repo.Save(ctx, &p); err != nil {
		return models.Passenger{}, err
	}
	utils.LogEvent(s.RequestID, "passenger", "update", "id="+p.ID)
	return p, nil
}

func (s PassengerService) Delete(ctx context.Context, id string) error {
	if err := s.Repo.Delete(ctx, id); err != nil {
		return err
	}
	utils.LogEvent(s.RequestID, "passenger", "delete", "id="+id)
	return nil
}

// DeleteMany removes ids in order; an empty list is rejected.
func (s PassengerService) DeleteMany(ctx context.Context, ids []string) (int, error) {
	clean := make([]string, 0, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			clean = append(clean, id)
		}
	}
	if len(clean) == 0 {
		return 0, domain.ValidationError{Field: "ids", Msg: "at least one id is required"}
	}
	n, err := s.Repo.DeleteMany(ctx, clean)
	utils.LogEvent(s.RequestID, "passenger", "bulk_delete", "deleted="+strconv.Itoa(n))
	return n, err
}
