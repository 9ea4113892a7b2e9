package handlers

import (
	"net/http"
	"sort"
	"strings"
	"time"

	"logbook/internal/domain"
	"logbook/internal/domain/models"
	"logbook/internal/http/middleware"
	"logbook/internal/repositories"
	"logbook/internal/services"
	"logbook/internal/utils"

	"github.com/gin-gonic/gin"
)

// dateRange reads ?from=YYYY-MM-DD&to=YYYY-MM-DD as [from, to+1day).
func (a *API) dateRange(c *gin.Context) (time.Time, time.Time, error) {
	var from, to time.Time
	if raw := c.Query("from"); raw != "" {
		d, err := utils.ParseDate(raw, a.loc())
		if err != nil {
			return from, to, domain.ValidationError{Field: "from", Msg: "must be YYYY-MM-DD", Err: err}
		}
		from = d
	}
	if raw := c.Query("to"); raw != "" {
		d, err := utils.ParseDate(raw, a.loc())
		if err != nil {
			return from, to, domain.ValidationError{Field: "to", Msg: "must be YYYY-MM-DD", Err: err}
		}
		to = d.AddDate(0, 0, 1)
	}
	return from, to, nil
}

// conductorFor pins conductors to their own id; admins may act for anyone.
func conductorFor(c *gin.Context, requested string) string {
	if rc, ok := middleware.Caller(c); ok && rc.Role == domain.RoleConductor {
		return rc.UserID
	}
	return strings.TrimSpace(requested)
}

// GET /api/trips?status=&route=&conductorId=&from=&to=
func (a *API) GetTrips(c *gin.Context) {
	from, to, err := a.dateRange(c)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	repo := repositories.NewTripRepository(a.Facade)
	var trips []models.Trip
	if from.IsZero() && to.IsZero() {
		trips, err = repo.List(c.Request.Context())
	} else {
		trips, err = repo.Between(c.Request.Context(), from, to)
	}
	if err != nil {
		RespondDomainError(c, err)
		return
	}

	status := domain.TripStatus(strings.ToLower(c.Query("status")))
	route := strings.TrimSpace(c.Query("route"))
	conductor := conductorFor(c, c.Query("conductorId"))
	out := make([]models.Trip, 0, len(trips))
	for _, t := range trips {
		if status != "" && t.Status != status {
			continue
		}
		if route != "" && t.Route != route {
			continue
		}
		if conductor != "" && t.ConductorID != conductor {
			continue
		}
		out = append(out, t)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	c.JSON(http.StatusOK, out)
}

type startTripRequest struct {
	PassengerID string `json:"passengerId"`
	ConductorID string `json:"conductorId"`
	Route       string `json:"route"`
	Shift       string `json:"shift"`
}

// POST /api/trips/start
func (a *API) StartTrip(c *gin.Context) {
	var req startTripRequest
	if !bindBody(c, &req) {
		return
	}
	ctx := c.Request.Context()
	passenger, err := repositories.NewPassengerRepository(a.Facade).Get(ctx, req.PassengerID)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	conductor, err := repositories.NewConductorRepository(a.Facade).Get(ctx, conductorFor(c, req.ConductorID))
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	route := req.Route
	if strings.TrimSpace(route) == "" {
		route = conductor.Route
	}
	trip, err := a.Lifecycle.Start(ctx, services.StartRequest{Passenger: passenger, Conductor: conductor, Route: route, Shift: req.Shift})
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusCreated, trip)
}

// POST /api/trips/:id/finalize
func (a *API) FinalizeTrip(c *gin.Context) {
	trip, err := a.Lifecycle.FinalizeOne(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, trip)
}

type finalizeRouteRequest struct {
	Route string `json:"route"`
}

// POST /api/trips/finalize-route
func (a *API) FinalizeRoute(c *gin.Context) {
	var req finalizeRouteRequest
	if !bindBody(c, &req) {
		return
	}
	done, err := a.Lifecycle.FinalizeRoute(c.Request.Context(), req.Route)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"route": req.Route, "finalized": len(done), "trips": done})
}

type identifyRequest struct {
	Payload     string `json:"payload"`
	ConductorID string `json:"conductorId"`
	Route       string `json:"route"`
	Shift       string `json:"shift"`
}

// POST /api/trips/identify handles a scanned passenger card.
func (a *API) IdentifyPassenger(c *gin.Context) {
	var req identifyRequest
	if !bindBody(c, &req) {
		return
	}
	res, err := a.Lifecycle.Identify(c.Request.Context(), req.Payload, conductorFor(c, req.ConductorID), req.Route, req.Shift)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	status := http.StatusOK
	if res.Action == services.IdentifyStarted {
		status = http.StatusCreated
	}
	c.JSON(status, res)
}

// GET /api/groups/current?conductorId=&route=&shift=
func (a *API) CurrentGroup(c *gin.Context) {
	shift, err := domain.ParseShift(c.Query("shift"))
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	if shift == "" {
		RespondDomainError(c, domain.InvalidStateError{Msg: "select shift first"})
		return
	}
	conductor := conductorFor(c, c.Query("conductorId"))
	route := strings.TrimSpace(c.Query("route"))
	groupID, ok := a.Groups.CurrentGroup(conductor, route, shift)
	if !ok {
		c.JSON(http.StatusOK, gin.H{"groupId": nil, "active": 0, "capacity": a.Lifecycle.Capacity})
		return
	}
	active, err := repositories.NewTripRepository(a.Facade).ActiveInGroup(c.Request.Context(), groupID)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"groupId": groupID, "active": len(active), "capacity": a.Lifecycle.Capacity})
}
