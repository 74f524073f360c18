package trip

import (
	"errors"
	"time"

	"github.com/swiftcab/dispatch/internal/geo"
)

// State is the trip lifecycle state. The wire values are the integer codes
// the mobile clients already speak (requested=0 through denied=6).
type State int

const (
	StateRequested State = iota // 0
	StateAccepted               // 1
	StateDriverArrived          // 2
	StateInProgress             // 3
	StateArrivedAtDestination   // 4
	StateCompleted              // 5
	StateDenied                 // 6
)

func (s State) String() string {
	switch s {
	case StateRequested:
		return "requested"
	case StateAccepted:
		return "accepted"
	case StateDriverArrived:
		return "driver_arrived"
	case StateInProgress:
		return "in_progress"
	case StateArrivedAtDestination:
		return "arrived_at_destination"
	case StateCompleted:
		return "completed"
	case StateDenied:
		return "denied"
	}
	return "unknown"
}

// IsValid reports whether s is a defined state.
func (s State) IsValid() bool {
	return s >= StateRequested && s <= StateDenied
}

// IsTerminal reports whether no further transition may leave s.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateDenied
}

// allowedTransitions encodes the forward-only state flow. Denied is
// reachable while the trip has not started; everything else moves strictly
// in order.
var allowedTransitions = map[State][]State{
	StateRequested:            {StateAccepted, StateDenied},
	StateAccepted:             {StateDriverArrived, StateDenied},
	StateDriverArrived:        {StateInProgress},
	StateInProgress:           {StateArrivedAtDestination},
	StateArrivedAtDestination: {StateCompleted},
}

// CanTransition reports whether from -> to is a legal single step.
func CanTransition(from, to State) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Trip is one ride transaction, keyed by the requesting passenger. At most
// one trip exists per passenger at a time.
type Trip struct {
	PassengerID string         `json:"passenger_id"`
	DriverID    *string        `json:"driver_id,omitempty"`
	Pickup      geo.Coordinate `json:"pickup_coordinate"`
	Destination geo.Coordinate `json:"destination_coordinate"`
	State       State          `json:"state"`
	RequestedAt time.Time      `json:"requested_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// HasDriver reports whether a driver has been assigned.
func (t *Trip) HasDriver() bool {
	return t.DriverID != nil && *t.DriverID != ""
}

// CanCancel reports whether the passenger may still cancel outright.
// Terminal trips are deleted via acknowledgement instead.
func (t *Trip) CanCancel() bool {
	return t.State == StateRequested || t.State == StateAccepted
}

// Errors
var (
	ErrTripNotFound      = errors.New("trip not found")
	ErrTripExists        = errors.New("passenger already has a trip")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrUnauthorizedRole  = errors.New("actor role not allowed for this transition")
	ErrDriverBusy        = errors.New("driver already assigned to another trip")
)
