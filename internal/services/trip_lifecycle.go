package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"logbook/internal/domain"
	"logbook/internal/domain/models"
	"logbook/internal/repositories"

	"github.com/sirupsen/logrus"
)

const DefaultSeatCapacity = 18

// TripLifecycle moves trips from active to finalized and keeps every group
// at or below its seat capacity.
type TripLifecycle struct {
	Trips      repositories.TripRepository
	Passengers repositories.PassengerRepository
	Conductors repositories.ConductorRepository
	Groups     *GroupRegistry
	Capacity   int
	Now        func() time.Time
	Log        logrus.FieldLogger

	startMu sync.Mutex
}

func NewTripLifecycle(f *repositories.Facade, groups *GroupRegistry, capacity int, logger logrus.FieldLogger) *TripLifecycle {
	if capacity <= 0 {
		capacity = DefaultSeatCapacity
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &TripLifecycle{
		Trips:      repositories.NewTripRepository(f),
		Passengers: repositories.NewPassengerRepository(f),
		Conductors: repositories.NewConductorRepository(f),
		Groups:     groups,
		Capacity:   capacity,
		Now:        time.Now,
		Log:        logger.WithField("module", "trips"),
	}
}

func (s *TripLifecycle) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// StartRequest names the records a new trip is built from.
type StartRequest struct {
	Passenger models.Passenger
	Conductor models.Conductor
	Route     string
	Shift     string
}

// Start opens an active trip for the passenger in the conductor's current
// group, minting the group if needed.
func (s *TripLifecycle) Start(ctx context.Context, req StartRequest) (models.Trip, error) {
	if strings.TrimSpace(req.Shift) == "" {
		return models.Trip{}, domain.InvalidStateError{Msg: "select shift first"}
	}
	shift, err := domain.ParseShift(req.Shift)
	if err != nil {
		return models.Trip{}, err
	}
	route := strings.TrimSpace(req.Route)
	if route == "" {
		return models.Trip{}, domain.ValidationError{Field: "route", Msg: "is required"}
	}
	if req.Passenger.ID == "" {
		return models.Trip{}, domain.ValidationError{Field: "passengerId", Msg: "is required"}
	}
	if req.Conductor.ID == "" {
		return models.Trip{}, domain.ValidationError{Field: "conductorId", Msg: "is required"}
	}

	s.startMu.Lock()
	defer s.startMu.Unlock()

	groupID, err := s.Groups.EnsureGroup(req.Conductor.ID, route, shift)
	if err != nil {
		return models.Trip{}, err
	}
	inGroup, err := s.Trips.ActiveInGroup(ctx, groupID)
	if err != nil {
		return models.Trip{}, fmt.Errorf("count active trips: %w", err)
	}
	if len(inGroup) >= s.Capacity {
		return models.Trip{}, domain.CapacityExceededError{GroupID: groupID, Capacity: s.Capacity, Active: len(inGroup)}
	}

	trip := models.Trip{
		GroupID:             groupID,
		Shift:               shift,
		PassengerID:         req.Passenger.ID,
		PassengerName:       req.Passenger.Name,
		PassengerCedula:     req.Passenger.Cedula,
		PassengerDepartment: req.Passenger.Department,
		ConductorID:         req.Conductor.ID,
		ConductorName:       req.Conductor.Name,
		Route:               route,
		StartTime:           s.now(),
		Status:              domain.TripActive,
	}
	if err := s.Trips.Save(ctx, &trip); err != nil {
		return models.Trip{}, err
	}
	s.Log.WithFields(logrus.Fields{"trip_id": trip.ID, "group_id": groupID, "seat": len(inGroup) + 1}).Info("trip started")
	return trip, nil
}

// FinalizeOne closes a single trip. Finalizing a finalized trip succeeds
// without changing it.
func (s *TripLifecycle) FinalizeOne(ctx context.Context, tripID string) (models.Trip, error) {
	trip, err := s.Trips.Get(ctx, tripID)
	if err != nil {
		return models.Trip{}, err
	}
	if trip.Status == domain.TripFinalized {
		return trip, nil
	}
	end := s.now()
	trip.EndTime = &end
	trip.Status = domain.TripFinalized
	if err := s.Trips.Save(ctx, &trip); err != nil {
		return models.Trip{}, err
	}
	s.Log.WithField("trip_id", trip.ID).Info("trip finalized")
	return trip, nil
}

// FinalizeRoute closes every active trip on route in one batch. Group
// bindings are cleared only when the whole batch landed, so a failed call
// can be retried against the same groups.
func (s *TripLifecycle) FinalizeRoute(ctx context.Context, route string) ([]models.Trip, error) {
	route = strings.TrimSpace(route)
	if route == "" {
		return nil, domain.ValidationError{Field: "route", Msg: "is required"}
	}
	// Held until the bindings are cleared so no Start can join a group being closed.
	s.startMu.Lock()
	defer s.startMu.Unlock()

	open, err := s.Trips.ActiveOnRoute(ctx, route)
	if err != nil {
		return nil, err
	}
	if len(open) == 0 {
		return []models.Trip{}, nil
	}

	end := s.now()
	for i := range open {
		open[i].EndTime = &end
		open[i].Status = domain.TripFinalized
	}
	n, err := s.Trips.SaveAll(ctx, open)
	if err != nil {
		s.Log.WithError(err).WithFields(logrus.Fields{"route": route, "written": n, "total": len(open)}).
			Error("route finalize incomplete; groups kept")
		return open[:n], err
	}

	type binding struct {
		conductor string
		shift     domain.Shift
		day       string
	}
	seen := map[binding]bool{}
	for _, t := range open {
		for _, day := range []time.Time{end, t.StartTime} {
			b := binding{t.ConductorID, t.Shift, day.In(s.Groups.Loc).Format(time.DateOnly)}
			if seen[b] {
				continue
			}
			seen[b] = true
			s.Groups.ClearGroupOn(t.ConductorID, route, t.Shift, day)
		}
	}
	s.Log.WithFields(logrus.Fields{"route": route, "finalized": len(open)}).Info("route finalized")
	return open, nil
}

// ActiveTripFor finds the passenger's trip in progress, if any.
func (s *TripLifecycle) ActiveTripFor(ctx context.Context, passengerID string) (models.Trip, bool, error) {
	open, err := s.Trips.Active(ctx)
	if err != nil {
		return models.Trip{}, false, err
	}
	for _, t := range open {
		if t.PassengerID == passengerID {
			return t, true, nil
		}
	}
	return models.Trip{}, false, nil
}

// IdentifyAction says what a scan did.
type IdentifyAction string

const (
	IdentifyStarted   IdentifyAction = "started"
	IdentifyFinalized IdentifyAction = "finalized"
)

type IdentifyResult struct {
	Action    IdentifyAction   `json:"action"`
	Trip      models.Trip      `json:"trip"`
	Passenger models.Passenger `json:"passenger"`
}

// Identify handles a scanned identity: it closes the passenger's active
// trip when there is one and otherwise starts a new trip with conductor.
func (s *TripLifecycle) Identify(ctx context.Context, blob, conductorID, route, shift string) (IdentifyResult, error) {
	payload, err := DecodeIdentity(blob)
	if err != nil {
		return IdentifyResult{}, err
	}
	passenger, ok, err := s.Passengers.ByCedula(ctx, payload.Cedula)
	if err != nil {
		return IdentifyResult{}, err
	}
	if !ok {
		return IdentifyResult{}, domain.NotFoundError{Resource: "passenger", ID: payload.Cedula}
	}

	if active, ok, err := s.ActiveTripFor(ctx, passenger.ID); err != nil {
		return IdentifyResult{}, err
	} else if ok {
		done, err := s.FinalizeOne(ctx, active.ID)
		if err != nil {
			return IdentifyResult{}, err
		}
		return IdentifyResult{Action: IdentifyFinalized, Trip: done, Passenger: passenger}, nil
	}

	conductor, err := s.Conductors.Get(ctx, conductorID)
	if err != nil {
		return IdentifyResult{}, err
	}
	if strings.TrimSpace(route) == "" {
		route = conductor.Route
	}
	trip, err := s.Start(ctx, StartRequest{Passenger: passenger, Conductor: conductor, Route: route, Shift: shift})
	if err != nil {
		return IdentifyResult{}, err
	}
	return IdentifyResult{Action: IdentifyStarted, Trip: trip, Passenger: passenger}, nil
}
