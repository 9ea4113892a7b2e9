package api

import (
	stdhttp "net/http"

	intconfig "logbook/internal/config"
	"logbook/internal/domain"
	h "logbook/internal/http/handlers"
	"logbook/internal/http/middleware"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func NewRouter(env intconfig.Env, a *h.API, logger logrus.FieldLogger) *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestID(), middleware.Logger(logger), gin.Recovery(), middleware.CORS(env.CORSAllowedOrigins))

	if err := r.SetTrustedProxies(nil); err != nil {
		logger.WithError(err).Warn("failed to set trusted proxies")
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(stdhttp.StatusNotFound, gin.H{
			"error":  "route not found",
			"path":   c.Request.URL.Path,
			"method": c.Request.Method,
		})
	})

	staff := middleware.RequireRole(domain.RoleRoot, domain.RoleAdmin)

	api := r.Group("/api")
	{
		api.GET("/health", a.Health)
		api.POST("/auth/login", a.Login)

		authed := api.Group("", middleware.Auth(a.Secret))
		authed.GET("/auth/me", a.Me)
		authed.GET("/db-check", staff, a.DBCheck)
		authed.GET("/routes", staff, a.Routes)

		// Passengers
		passengers := authed.Group("/passengers")
		passengers.GET("", a.GetPassengers)
		passengers.GET("/:id", a.GetPassenger)
		passengers.GET("/:id/identity", a.GetPassengerIdentity)
		passengers.POST("", staff, a.CreatePassenger)
		passengers.PUT("/:id", staff, a.UpdatePassenger)
		passengers.DELETE("/:id", staff, a.DeletePassenger)
		passengers.POST("/bulk-delete", staff, a.DeletePassengers)
		passengers.POST("/import", staff, a.ImportPassengers)

		// Conductors & conductor logins
		conductors := authed.Group("/conductors")
		conductors.GET("", a.GetConductors)
		conductors.POST("", staff, a.CreateConductor)
		conductors.PUT("/:id", staff, a.UpdateConductor)
		conductors.DELETE("/:id", staff, a.DeleteConductor)
		credentials := authed.Group("/conductor-credentials", staff)
		credentials.GET("", a.GetCredentials)
		credentials.POST("", a.CreateCredential)
		credentials.PUT("/:id", a.UpdateCredential)
		credentials.DELETE("/:id", a.DeleteCredential)

		// Users
		users := authed.Group("/users", middleware.RequireRole(domain.RoleRoot))
		users.GET("", a.GetUsers)
		users.POST("", a.CreateUser)
		users.PUT("/:id", a.UpdateUser)
		users.DELETE("/:id", a.DeleteUser)

		// Signatures
		authed.GET("/signatures", a.GetSignatures)
		authed.POST("/signatures", staff, a.SaveSignature)

		// Trips & groups
		trips := authed.Group("/trips")
		trips.GET("", a.GetTrips)
		trips.POST("/start", a.StartTrip)
		trips.POST("/identify", a.IdentifyPassenger)
		trips.POST("/:id/finalize", a.FinalizeTrip)
		trips.POST("/finalize-route", a.FinalizeRoute)
		authed.GET("/groups/current", a.CurrentGroup)

		// Reports
		authed.GET("/reports/manifest", a.GetRouteManifest)
	}

	h.SetRouter(r)
	return r
}
