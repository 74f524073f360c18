package userstore

import (
	"context"
	"sync"

	"github.com/swiftcab/dispatch/internal/domain/user"
)

// MemoryStore is an in-process user.Repository for tests and
// Postgres-less deployments.
type MemoryStore struct {
	mu    sync.RWMutex
	users map[string]*user.User
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: make(map[string]*user.User)}
}

func (m *MemoryStore) Create(ctx context.Context, u *user.User) error {
	if !u.AccountType.IsValid() {
		return user.ErrInvalidAccount
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[u.ID]; ok {
		return user.ErrUserExists
	}
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *MemoryStore) GetByID(ctx context.Context, id string) (*user.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return nil, user.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *MemoryStore) SaveLocation(ctx context.Context, id string, locType user.SavedLocationType, address string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return user.ErrUserNotFound
	}
	switch locType {
	case user.LocationHome:
		u.HomeAddress = address
	case user.LocationWork:
		u.WorkAddress = address
	default:
		return user.ErrInvalidLocation
	}
	return nil
}
