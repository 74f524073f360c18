package geo

import (
	"context"
	"errors"
	"math"
	"time"
)

var (
	ErrInvalidCoordinate = errors.New("invalid coordinate")
)

// Coordinate is a WGS84 latitude/longitude pair.
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Validate rejects NaN, infinite and out-of-range values.
func (c Coordinate) Validate() error {
	if math.IsNaN(c.Latitude) || math.IsInf(c.Latitude, 0) ||
		math.IsNaN(c.Longitude) || math.IsInf(c.Longitude, 0) {
		return ErrInvalidCoordinate
	}
	if c.Latitude < -90 || c.Latitude > 90 {
		return ErrInvalidCoordinate
	}
	if c.Longitude < -180 || c.Longitude > 180 {
		return ErrInvalidCoordinate
	}
	return nil
}

// DriverLocation is one live driver position. One entry per driver id,
// last write wins.
type DriverLocation struct {
	DriverID   string     `json:"driver_id"`
	Coordinate Coordinate `json:"coordinate"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Index maintains live driver positions and answers radius queries.
type Index interface {
	// Upsert overwrites the position for driverID. Idempotent.
	Upsert(ctx context.Context, driverID string, coord Coordinate) error

	// QueryNearby returns drivers within radiusKM of center, unordered.
	// Entries older than the index staleness threshold are excluded.
	QueryNearby(ctx context.Context, center Coordinate, radiusKM float64) ([]DriverLocation, error)
}

// DistanceKM returns the haversine great-circle distance in kilometres.
func DistanceKM(a, b Coordinate) float64 {
	const earthRadiusKM = 6371.0

	dLat := toRadians(b.Latitude - a.Latitude)
	dLon := toRadians(b.Longitude - a.Longitude)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRadians(a.Latitude))*math.Cos(toRadians(b.Latitude))*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusKM * c
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
