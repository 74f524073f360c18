package dto

// CreateUserRequest registers a passenger or driver account.
type CreateUserRequest struct {
	ID          string `json:"id"`
	FullName    string `json:"full_name" binding:"required"`
	Email       string `json:"email" binding:"required,email"`
	AccountType *int   `json:"account_type" binding:"required"`
}

// SaveLocationRequest stores a home or work address for a user.
type SaveLocationRequest struct {
	Type    string `json:"type" binding:"required,oneof=home work"`
	Address string `json:"address" binding:"required"`
}

// UpdateLocationRequest is one driver location ping.
type UpdateLocationRequest struct {
	Latitude  *float64 `json:"latitude" binding:"required"`
	Longitude *float64 `json:"longitude" binding:"required"`
}

// RequestTripRequest creates a trip for a passenger.
type RequestTripRequest struct {
	PassengerID string      `json:"passenger_id" binding:"required"`
	Pickup      Coordinate  `json:"pickup_coordinate" binding:"required"`
	Destination Coordinate  `json:"destination_coordinate" binding:"required"`
}

// Coordinate mirrors geo.Coordinate on the wire. Pointers so that a
// missing field is distinguishable from latitude/longitude zero.
type Coordinate struct {
	Latitude  *float64 `json:"latitude" binding:"required"`
	Longitude *float64 `json:"longitude" binding:"required"`
}

// AcceptTripRequest is a driver claiming a requested trip.
type AcceptTripRequest struct {
	DriverID string `json:"driver_id" binding:"required"`
}

// AdvanceStateRequest moves a trip to its next lifecycle state.
type AdvanceStateRequest struct {
	ActorID string `json:"actor_id" binding:"required"`
	State   *int   `json:"state" binding:"required"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
