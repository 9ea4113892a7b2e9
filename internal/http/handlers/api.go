package handlers

import (
	"context"
	"time"

	"logbook/internal/http/middleware"
	"logbook/internal/repositories"
	"logbook/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// API holds everything the HTTP handlers need. It is built once in the
// router and shared by all requests.
type API struct {
	Facade    *repositories.Facade
	Lifecycle *services.TripLifecycle
	Groups    *services.GroupRegistry
	Loc       *time.Location
	Secret    []byte
	TokenTTL  time.Duration
	Log       logrus.FieldLogger
}

func (a *API) passengers(c *gin.Context) services.PassengerService {
	return services.PassengerService{
		Repo:      repositories.NewPassengerRepository(a.Facade),
		RequestID: middleware.GetRequestID(c),
	}
}

func (a *API) importer(c *gin.Context) services.ImportService {
	return services.ImportService{
		Repo:      repositories.NewPassengerRepository(a.Facade),
		RequestID: middleware.GetRequestID(c),
	}
}

func (a *API) auth(c *gin.Context) services.AuthService {
	return services.AuthService{
		Users:       repositories.NewUserRepository(a.Facade),
		Credentials: repositories.NewCredentialRepository(a.Facade),
		Conductors:  repositories.NewConductorRepository(a.Facade),
		Secret:      a.Secret,
		TTL:         a.TokenTTL,
		RequestID:   middleware.GetRequestID(c),
	}
}

func (a *API) reports(c *gin.Context) services.ReportService {
	return services.ReportService{
		Trips:      repositories.NewTripRepository(a.Facade),
		Conductors: repositories.NewConductorRepository(a.Facade),
		Signatures: repositories.NewSignatureRepository(a.Facade),
		Loc:        a.Loc,
		RequestID:  middleware.GetRequestID(c),
	}
}

// pinger is satisfied by the SQL store.
type pinger interface {
	Ping(ctx context.Context) error
}

func (a *API) loc() *time.Location {
	if a.Loc != nil {
		return a.Loc
	}
	return time.Local
}
