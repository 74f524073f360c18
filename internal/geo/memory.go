package geo

import (
	"context"
	"sync"
	"time"
)

// MemoryIndex is an in-process Index backed by a map and haversine scans.
// Fine for a single-node deployment and for tests; the Redis index is the
// production backend.
type MemoryIndex struct {
	mu         sync.RWMutex
	drivers    map[string]DriverLocation
	staleAfter time.Duration
	now        func() time.Time
}

// NewMemoryIndex creates an index. staleAfter of zero disables staleness
// filtering.
func NewMemoryIndex(staleAfter time.Duration) *MemoryIndex {
	return &MemoryIndex{
		drivers:    make(map[string]DriverLocation),
		staleAfter: staleAfter,
		now:        time.Now,
	}
}

func (m *MemoryIndex) Upsert(ctx context.Context, driverID string, coord Coordinate) error {
	if err := coord.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.drivers[driverID] = DriverLocation{
		DriverID:   driverID,
		Coordinate: coord,
		UpdatedAt:  m.now(),
	}
	return nil
}

func (m *MemoryIndex) QueryNearby(ctx context.Context, center Coordinate, radiusKM float64) ([]DriverLocation, error) {
	if err := center.Validate(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	cutoff := time.Time{}
	if m.staleAfter > 0 {
		cutoff = m.now().Add(-m.staleAfter)
	}

	var out []DriverLocation
	for _, d := range m.drivers {
		if !cutoff.IsZero() && d.UpdatedAt.Before(cutoff) {
			continue
		}
		if DistanceKM(center, d.Coordinate) <= radiusKM {
			out = append(out, d)
		}
	}
	return out, nil
}

// Len reports the number of tracked drivers, stale entries included.
func (m *MemoryIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.drivers)
}
