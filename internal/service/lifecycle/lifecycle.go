package lifecycle

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/swiftcab/dispatch/internal/domain/trip"
	"github.com/swiftcab/dispatch/internal/domain/user"
	"github.com/swiftcab/dispatch/internal/geo"
	"github.com/swiftcab/dispatch/internal/store/tripstore"
	"github.com/swiftcab/dispatch/pkg/logger"
	"github.com/swiftcab/dispatch/pkg/metrics"
	"github.com/swiftcab/dispatch/pkg/pubsub"
)

// TripsFeedKey is the feed driver sessions watch for new requests.
var TripsFeedKey = pubsub.Key{Kind: "trips"}

// WatchIntent instructs the driver's geofencing client to arm or disarm a
// region watch. The core emits intents; it never monitors regions itself.
type WatchIntent struct {
	Action     string         `json:"action"` // "arm" or "disarm"
	Region     string         `json:"region"` // "pickup" or "destination"
	Coordinate geo.Coordinate `json:"coordinate,omitempty"`
}

const (
	watchArm    = "arm"
	watchDisarm = "disarm"

	regionPickup      = "pickup"
	regionDestination = "destination"
	regionAll         = "all"
)

// Service is the trip state machine orchestrator. Every mutation for a
// given passenger runs under that passenger's lock, so guard checks and
// writes are atomic and a losing concurrent call is rejected cleanly.
type Service struct {
	trips tripstore.Store
	users user.Repository
	hub   *pubsub.Hub
	log   *logger.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewService(trips tripstore.Store, users user.Repository, hub *pubsub.Hub, log *logger.Logger) *Service {
	return &Service{
		trips: trips,
		users: users,
		hub:   hub,
		log:   log,
		locks: make(map[string]*sync.Mutex),
	}
}

// RequestTrip creates a trip in Requested state. Passenger accounts only;
// one trip per passenger at a time.
func (s *Service) RequestTrip(ctx context.Context, passengerID string, pickup, destination geo.Coordinate) (*trip.Trip, error) {
	if err := pickup.Validate(); err != nil {
		return nil, err
	}
	if err := destination.Validate(); err != nil {
		return nil, err
	}
	if err := s.requireRole(ctx, passengerID, user.AccountPassenger); err != nil {
		return nil, err
	}

	unlock := s.lock(passengerID)
	defer unlock()

	now := time.Now()
	t := &trip.Trip{
		PassengerID: passengerID,
		Pickup:      pickup,
		Destination: destination,
		State:       trip.StateRequested,
		RequestedAt: now,
		UpdatedAt:   now,
	}
	if err := s.trips.Create(ctx, t); err != nil {
		s.reject("create", err)
		return nil, err
	}

	metrics.TripTransitionsTotal.WithLabelValues(trip.StateRequested.String()).Inc()
	s.log.Info("Trip requested",
		logger.String("passenger_id", passengerID),
		logger.Float64("pickup_lat", pickup.Latitude),
		logger.Float64("pickup_lon", pickup.Longitude),
	)

	s.publishTrip("trip_requested", t)
	s.hub.Publish(pubsub.Event{Key: TripsFeedKey, Type: "trip_requested", Payload: t})
	return t, nil
}

// Get returns the passenger's current trip.
func (s *Service) Get(ctx context.Context, passengerID string) (*trip.Trip, error) {
	return s.trips.Get(ctx, passengerID)
}

// GetByDriver returns the driver's active trip, the read a driver session
// uses to resync after reconnecting.
func (s *Service) GetByDriver(ctx context.Context, driverID string) (*trip.Trip, error) {
	return s.trips.GetByDriver(ctx, driverID)
}

// Accept assigns driverID to the passenger's requested trip. A driver
// with another active trip is refused; two drivers racing for the same
// trip resolve to exactly one winner.
func (s *Service) Accept(ctx context.Context, passengerID, driverID string) (*trip.Trip, error) {
	if err := s.requireRole(ctx, driverID, user.AccountDriver); err != nil {
		return nil, err
	}

	unlock := s.lock(passengerID)
	defer unlock()

	t, err := s.trips.Get(ctx, passengerID)
	if err != nil {
		return nil, err
	}
	if !trip.CanTransition(t.State, trip.StateAccepted) {
		s.reject("accept", trip.ErrInvalidTransition)
		return nil, trip.ErrInvalidTransition
	}

	// The busy check lives inside AssignDriver: the passenger lock only
	// serializes one trip, and a driver racing for two different trips
	// runs under two different passenger locks.
	if err := s.trips.AssignDriver(ctx, passengerID, driverID, trip.StateAccepted); err != nil {
		if errors.Is(err, trip.ErrDriverBusy) {
			s.reject("accept", err)
		}
		return nil, err
	}
	t.DriverID = &driverID
	t.State = trip.StateAccepted
	t.UpdatedAt = time.Now()

	metrics.TripTransitionsTotal.WithLabelValues(trip.StateAccepted.String()).Inc()
	s.log.Info("Trip accepted",
		logger.String("passenger_id", passengerID),
		logger.String("driver_id", driverID),
	)

	s.publishTrip("trip_accepted", t)
	s.publishWatch(driverID, WatchIntent{
		Action:     watchArm,
		Region:     regionPickup,
		Coordinate: t.Pickup,
	})
	return t, nil
}

// AdvanceState applies a driver-side transition. Beyond Accepted, only the
// assigned driver may advance; Denied is allowed from Requested by any
// driver (nobody is assigned yet).
func (s *Service) AdvanceState(ctx context.Context, passengerID, actorID string, next trip.State) (*trip.Trip, error) {
	if !next.IsValid() {
		return nil, trip.ErrInvalidTransition
	}
	if next == trip.StateAccepted {
		return s.Accept(ctx, passengerID, actorID)
	}
	if err := s.requireRole(ctx, actorID, user.AccountDriver); err != nil {
		return nil, err
	}

	unlock := s.lock(passengerID)
	defer unlock()

	t, err := s.trips.Get(ctx, passengerID)
	if err != nil {
		return nil, err
	}
	if !trip.CanTransition(t.State, next) {
		s.reject("advance", trip.ErrInvalidTransition)
		return nil, trip.ErrInvalidTransition
	}

	assignedDriver := t.HasDriver() && *t.DriverID == actorID
	denyUnassigned := next == trip.StateDenied && !t.HasDriver()
	if !assignedDriver && !denyUnassigned {
		s.reject("advance", trip.ErrUnauthorizedRole)
		return nil, trip.ErrUnauthorizedRole
	}

	if err := s.trips.UpdateState(ctx, passengerID, next); err != nil {
		return nil, err
	}
	prev := t.State
	t.State = next
	t.UpdatedAt = time.Now()

	metrics.TripTransitionsTotal.WithLabelValues(next.String()).Inc()
	s.log.Info("Trip state advanced",
		logger.String("passenger_id", passengerID),
		logger.String("actor_id", actorID),
		logger.String("from", prev.String()),
		logger.String("to", next.String()),
	)

	s.publishTrip("trip_state_changed", t)
	s.applySideEffects(t, next)
	return t, nil
}

// Cancel deletes the passenger's trip. Allowed while Requested or
// Accepted (a cancel), or once terminal (a completion acknowledgement).
func (s *Service) Cancel(ctx context.Context, passengerID, actorID string) error {
	if actorID != passengerID {
		s.reject("cancel", trip.ErrUnauthorizedRole)
		return trip.ErrUnauthorizedRole
	}
	if err := s.requireRole(ctx, actorID, user.AccountPassenger); err != nil {
		return err
	}

	unlock := s.lock(passengerID)
	defer unlock()

	t, err := s.trips.Get(ctx, passengerID)
	if err != nil {
		return err
	}
	if !t.CanCancel() && !t.State.IsTerminal() {
		s.reject("cancel", trip.ErrInvalidTransition)
		return trip.ErrInvalidTransition
	}

	if err := s.trips.Delete(ctx, passengerID); err != nil {
		return err
	}

	eventType := "trip_cancelled"
	if t.State.IsTerminal() {
		eventType = "trip_closed"
	}

	s.log.Info("Trip deleted",
		logger.String("passenger_id", passengerID),
		logger.String("last_state", t.State.String()),
		logger.String("event", eventType),
	)

	t.UpdatedAt = time.Now()
	s.publishTrip(eventType, t)
	if t.HasDriver() {
		s.publishWatch(*t.DriverID, WatchIntent{Action: watchDisarm, Region: regionAll})
	}
	return nil
}

func (s *Service) applySideEffects(t *trip.Trip, entered trip.State) {
	if !t.HasDriver() {
		return
	}
	driverID := *t.DriverID

	switch entered {
	case trip.StateInProgress:
		s.publishWatch(driverID, WatchIntent{
			Action:     watchArm,
			Region:     regionDestination,
			Coordinate: t.Destination,
		})
	case trip.StateCompleted, trip.StateDenied:
		s.publishWatch(driverID, WatchIntent{Action: watchDisarm, Region: regionAll})
	}
}

func (s *Service) publishTrip(eventType string, t *trip.Trip) {
	s.hub.Publish(pubsub.Event{
		Key:     pubsub.Key{Kind: "trip", ID: t.PassengerID},
		Type:    eventType,
		Payload: t,
	})
}

func (s *Service) publishWatch(driverID string, intent WatchIntent) {
	s.hub.Publish(pubsub.Event{
		Key:     pubsub.Key{Kind: "watch", ID: driverID},
		Type:    "watch_intent",
		Payload: intent,
	})
}

func (s *Service) requireRole(ctx context.Context, userID string, want user.AccountType) error {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if u.AccountType != want {
		if want == user.AccountDriver {
			return user.ErrNotADriver
		}
		return user.ErrNotAPassenger
	}
	return nil
}

func (s *Service) reject(op string, err error) {
	metrics.TripTransitionRejections.WithLabelValues(op).Inc()
	s.log.Warn("Trip operation rejected",
		logger.String("op", op),
		logger.Err(err),
	)
}

// lock serializes mutations per passenger id.
func (s *Service) lock(passengerID string) func() {
	s.mu.Lock()
	m, ok := s.locks[passengerID]
	if !ok {
		m = &sync.Mutex{}
		s.locks[passengerID] = m
	}
	s.mu.Unlock()

	m.Lock()
	return m.Unlock
}
