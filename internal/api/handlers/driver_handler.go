package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/swiftcab/dispatch/internal/api/dto"
	"github.com/swiftcab/dispatch/internal/geo"
	"github.com/swiftcab/dispatch/pkg/logger"
)

// UpdateDriverLocation handles POST /v1/drivers/:id/location
func (h *Handlers) UpdateDriverLocation(c *gin.Context) {
	driverID := c.Param("id")

	var req dto.UpdateLocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	coord := geo.Coordinate{Latitude: *req.Latitude, Longitude: *req.Longitude}
	if err := h.Ingest.ReportLocation(c.Request.Context(), driverID, coord); err != nil {
		h.respondError(c, err)
		return
	}

	h.Logger.Debug("Driver location accepted",
		logger.String("driver_id", driverID),
		logger.Float64("latitude", coord.Latitude),
		logger.Float64("longitude", coord.Longitude),
	)

	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"driver_id": driverID,
	})
}

// GetDriverTrip handles GET /v1/drivers/:id/trip
func (h *Handlers) GetDriverTrip(c *gin.Context) {
	t, err := h.Lifecycle.GetByDriver(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

// GetNearbyDrivers handles GET /v1/drivers/nearby?lat=&lon=&radius=
func (h *Handlers) GetNearbyDrivers(c *gin.Context) {
	lat, err1 := strconv.ParseFloat(c.Query("lat"), 64)
	lon, err2 := strconv.ParseFloat(c.Query("lon"), 64)
	if err1 != nil || err2 != nil {
		h.respondError(c, geo.ErrInvalidCoordinate)
		return
	}

	radius := 50.0
	if raw := c.Query("radius"); raw != "" {
		r, err := strconv.ParseFloat(raw, 64)
		if err != nil || r <= 0 {
			h.badRequest(c, err)
			return
		}
		radius = r
	}

	drivers, err := h.Index.QueryNearby(c.Request.Context(), geo.Coordinate{Latitude: lat, Longitude: lon}, radius)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if drivers == nil {
		drivers = []geo.DriverLocation{}
	}

	c.JSON(http.StatusOK, gin.H{
		"drivers":   drivers,
		"radius_km": radius,
	})
}

// MatchDriver handles GET /v1/drivers/match?lat=&lon= — the passenger-side
// "find me someone" query used before requesting a trip.
func (h *Handlers) MatchDriver(c *gin.Context) {
	lat, err1 := strconv.ParseFloat(c.Query("lat"), 64)
	lon, err2 := strconv.ParseFloat(c.Query("lon"), 64)
	if err1 != nil || err2 != nil {
		h.respondError(c, geo.ErrInvalidCoordinate)
		return
	}

	found, err := h.Matching.FindNearestDriver(c.Request.Context(), geo.Coordinate{Latitude: lat, Longitude: lon})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, found)
}
