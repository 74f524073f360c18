package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/swiftcab/dispatch/internal/api/handlers"
)

// SetupRoutes configures all API routes
func SetupRoutes(r *gin.Engine, h *handlers.Handlers, nrApp *newrelic.Application) {
	if nrApp != nil {
		r.Use(nrgin.Middleware(nrApp))
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "healthy"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/v1")
	{
		// WebSocket connection
		v1.GET("/ws", h.HandleWebSocket)

		users := v1.Group("/users")
		{
			users.POST("", h.CreateUser)
			users.GET("/:id", h.GetUser)
			users.PUT("/:id/locations", h.SaveUserLocation)
		}

		drivers := v1.Group("/drivers")
		{
			drivers.POST("/:id/location", h.UpdateDriverLocation)
			drivers.GET("/:id/trip", h.GetDriverTrip)
			drivers.GET("/nearby", h.GetNearbyDrivers)
			drivers.GET("/match", h.MatchDriver)
		}

		trips := v1.Group("/trips")
		{
			trips.POST("", h.RequestTrip)
			trips.GET("/:passengerId", h.GetTrip)
			trips.POST("/:passengerId/accept", h.AcceptTrip)
			trips.POST("/:passengerId/state", h.AdvanceTripState)
			trips.DELETE("/:passengerId", h.CancelTrip)
		}
	}
}
