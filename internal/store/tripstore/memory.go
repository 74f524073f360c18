package tripstore

import (
	"context"
	"sync"
	"time"

	"github.com/swiftcab/dispatch/internal/domain/trip"
)

// MemoryStore keeps trips in a mutex-guarded map. Used for tests and
// single-node deployments without Postgres.
type MemoryStore struct {
	mu    sync.RWMutex
	trips map[string]*trip.Trip
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{trips: make(map[string]*trip.Trip)}
}

func (m *MemoryStore) Create(ctx context.Context, t *trip.Trip) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.trips[t.PassengerID]; ok {
		return trip.ErrTripExists
	}
	cp := *t
	m.trips[t.PassengerID] = &cp
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, passengerID string) (*trip.Trip, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.trips[passengerID]
	if !ok {
		return nil, trip.ErrTripNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *MemoryStore) GetByDriver(ctx context.Context, driverID string) (*trip.Trip, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, t := range m.trips {
		if t.HasDriver() && *t.DriverID == driverID && !t.State.IsTerminal() {
			cp := *t
			return &cp, nil
		}
	}
	return nil, trip.ErrTripNotFound
}

func (m *MemoryStore) UpdateState(ctx context.Context, passengerID string, state trip.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.trips[passengerID]
	if !ok {
		return trip.ErrTripNotFound
	}
	t.State = state
	t.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) AssignDriver(ctx context.Context, passengerID, driverID string, state trip.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.trips[passengerID]
	if !ok {
		return trip.ErrTripNotFound
	}
	for _, other := range m.trips {
		if other.PassengerID != passengerID &&
			other.HasDriver() && *other.DriverID == driverID && !other.State.IsTerminal() {
			return trip.ErrDriverBusy
		}
	}
	t.DriverID = &driverID
	t.State = state
	t.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, passengerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.trips[passengerID]; !ok {
		return trip.ErrTripNotFound
	}
	delete(m.trips, passengerID)
	return nil
}
