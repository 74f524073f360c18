package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/swiftcab/dispatch/internal/api/dto"
	"github.com/swiftcab/dispatch/internal/domain/trip"
	"github.com/swiftcab/dispatch/internal/domain/user"
	"github.com/swiftcab/dispatch/internal/geo"
	"github.com/swiftcab/dispatch/internal/service/ingest"
	"github.com/swiftcab/dispatch/internal/service/lifecycle"
	"github.com/swiftcab/dispatch/internal/service/matching"
	"github.com/swiftcab/dispatch/pkg/logger"
	"github.com/swiftcab/dispatch/pkg/websocket"

	apperrors "github.com/swiftcab/dispatch/pkg/errors"
)

// Handlers holds all handler dependencies
type Handlers struct {
	Lifecycle *lifecycle.Service
	Matching  *matching.Service
	Ingest    *ingest.Service
	Users     user.Repository
	Index     geo.Index
	Gateway   *websocket.Gateway
	Logger    *logger.Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(
	lc *lifecycle.Service,
	match *matching.Service,
	ing *ingest.Service,
	users user.Repository,
	index geo.Index,
	gw *websocket.Gateway,
	log *logger.Logger,
) *Handlers {
	return &Handlers{
		Lifecycle: lc,
		Matching:  match,
		Ingest:    ing,
		Users:     users,
		Index:     index,
		Gateway:   gw,
		Logger:    log,
	}
}

// respondError maps domain sentinel errors onto distinct response codes
// so clients can tell "already handled" from "not allowed" from
// "nothing there".
func (h *Handlers) respondError(c *gin.Context, err error) {
	var appErr *apperrors.AppError

	switch {
	case errors.Is(err, trip.ErrTripNotFound):
		appErr = apperrors.NotFound("Trip not found", err).WithCode("TRIP_NOT_FOUND")
	case errors.Is(err, user.ErrUserNotFound):
		appErr = apperrors.NotFound("User not found", err).WithCode("USER_NOT_FOUND")
	case errors.Is(err, trip.ErrTripExists):
		appErr = apperrors.Conflict("Passenger already has an active trip", err).WithCode("TRIP_EXISTS")
	case errors.Is(err, user.ErrUserExists):
		appErr = apperrors.Conflict("User already exists", err).WithCode("USER_EXISTS")
	case errors.Is(err, trip.ErrInvalidTransition):
		appErr = apperrors.Conflict("Transition not allowed from the current state", err).WithCode("INVALID_TRANSITION")
	case errors.Is(err, trip.ErrDriverBusy):
		appErr = apperrors.Conflict("Driver already has an active trip", err).WithCode("DRIVER_BUSY")
	case errors.Is(err, trip.ErrUnauthorizedRole),
		errors.Is(err, user.ErrNotADriver),
		errors.Is(err, user.ErrNotAPassenger):
		appErr = apperrors.Forbidden("Actor role not allowed for this operation", err)
	case errors.Is(err, geo.ErrInvalidCoordinate):
		appErr = apperrors.BadRequest("Invalid coordinate", err)
	case errors.Is(err, user.ErrInvalidAccount), errors.Is(err, user.ErrInvalidLocation):
		appErr = apperrors.BadRequest("Invalid input", err)
	case errors.Is(err, matching.ErrNoDriversAvailable):
		appErr = apperrors.NotFound("No drivers available in the area", err).WithCode("NO_DRIVERS_AVAILABLE")
	default:
		appErr = apperrors.GetAppError(err)
		h.Logger.Error("Unhandled error", logger.Err(err))
	}

	c.JSON(appErr.Status, dto.ErrorResponse{Code: appErr.Code, Message: appErr.Message})
}

func (h *Handlers) badRequest(c *gin.Context, err error) {
	appErr := apperrors.BadRequest("Invalid request payload", err)
	c.JSON(appErr.Status, dto.ErrorResponse{Code: appErr.Code, Message: appErr.Message})
}
