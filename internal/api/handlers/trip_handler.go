package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/swiftcab/dispatch/internal/api/dto"
	"github.com/swiftcab/dispatch/internal/domain/trip"
	"github.com/swiftcab/dispatch/internal/geo"
	"github.com/swiftcab/dispatch/pkg/logger"
)

// RequestTrip handles POST /v1/trips
func (h *Handlers) RequestTrip(c *gin.Context) {
	var req dto.RequestTripRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	pickup := geo.Coordinate{Latitude: *req.Pickup.Latitude, Longitude: *req.Pickup.Longitude}
	destination := geo.Coordinate{Latitude: *req.Destination.Latitude, Longitude: *req.Destination.Longitude}

	t, err := h.Lifecycle.RequestTrip(c.Request.Context(), req.PassengerID, pickup, destination)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, t)
}

// GetTrip handles GET /v1/trips/:passengerId
func (h *Handlers) GetTrip(c *gin.Context) {
	t, err := h.Lifecycle.Get(c.Request.Context(), c.Param("passengerId"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

// AcceptTrip handles POST /v1/trips/:passengerId/accept
func (h *Handlers) AcceptTrip(c *gin.Context) {
	passengerID := c.Param("passengerId")

	var req dto.AcceptTripRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	t, err := h.Lifecycle.Accept(c.Request.Context(), passengerID, req.DriverID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	h.Logger.Info("Trip accepted via API",
		logger.String("passenger_id", passengerID),
		logger.String("driver_id", req.DriverID),
	)
	c.JSON(http.StatusOK, t)
}

// AdvanceTripState handles POST /v1/trips/:passengerId/state
func (h *Handlers) AdvanceTripState(c *gin.Context) {
	passengerID := c.Param("passengerId")

	var req dto.AdvanceStateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	next := trip.State(*req.State)
	if !next.IsValid() {
		h.badRequest(c, trip.ErrInvalidTransition)
		return
	}

	t, err := h.Lifecycle.AdvanceState(c.Request.Context(), passengerID, req.ActorID, next)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

// CancelTrip handles DELETE /v1/trips/:passengerId
func (h *Handlers) CancelTrip(c *gin.Context) {
	passengerID := c.Param("passengerId")

	actorID := c.Query("actor_id")
	if actorID == "" {
		actorID = passengerID
	}

	if err := h.Lifecycle.Cancel(c.Request.Context(), passengerID, actorID); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
