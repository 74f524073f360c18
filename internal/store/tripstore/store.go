package tripstore

import (
	"context"

	"github.com/swiftcab/dispatch/internal/domain/trip"
)

// Store is the durable record of one active trip per passenger. Transition
// legality is the lifecycle service's job; the store only persists what it
// is told, atomically per call.
type Store interface {
	// Create inserts a new trip. Returns trip.ErrTripExists when the
	// passenger already has one.
	Create(ctx context.Context, t *trip.Trip) error

	// Get returns the passenger's trip or trip.ErrTripNotFound.
	Get(ctx context.Context, passengerID string) (*trip.Trip, error)

	// GetByDriver returns the active (non-terminal) trip assigned to
	// driverID, or trip.ErrTripNotFound.
	GetByDriver(ctx context.Context, driverID string) (*trip.Trip, error)

	// UpdateState sets the trip state.
	UpdateState(ctx context.Context, passengerID string, state trip.State) error

	// AssignDriver sets the driver and state in one write
	// (the Requested -> Accepted step). Returns trip.ErrDriverBusy when
	// driverID already holds another non-terminal trip; the check and the
	// write are atomic, so two passengers cannot claim one driver.
	AssignDriver(ctx context.Context, passengerID, driverID string, state trip.State) error

	// Delete removes the trip record. Returns trip.ErrTripNotFound when
	// there is nothing to delete.
	Delete(ctx context.Context, passengerID string) error
}
