package user

import (
	"context"
	"errors"
	"time"
)

// AccountType determines which lifecycle role a connected session plays.
// Immutable after creation. Wire values match the mobile clients
// (passenger=0, driver=1).
type AccountType int

const (
	AccountPassenger AccountType = iota
	AccountDriver
)

func (a AccountType) String() string {
	switch a {
	case AccountPassenger:
		return "passenger"
	case AccountDriver:
		return "driver"
	}
	return "unknown"
}

// IsValid reports whether a is a defined account type.
func (a AccountType) IsValid() bool {
	return a == AccountPassenger || a == AccountDriver
}

// User is a read-mostly reference entity.
type User struct {
	ID          string      `json:"id"`
	FullName    string      `json:"full_name"`
	Email       string      `json:"email"`
	AccountType AccountType `json:"account_type"`
	HomeAddress string      `json:"home_address,omitempty"`
	WorkAddress string      `json:"work_address,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
}

// SavedLocationType selects which saved address to update.
type SavedLocationType string

const (
	LocationHome SavedLocationType = "home"
	LocationWork SavedLocationType = "work"
)

// Repository defines user data access.
type Repository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	SaveLocation(ctx context.Context, id string, locType SavedLocationType, address string) error
}

// Errors
var (
	ErrUserNotFound    = errors.New("user not found")
	ErrUserExists      = errors.New("user already exists")
	ErrInvalidAccount  = errors.New("invalid account type")
	ErrInvalidLocation = errors.New("invalid saved location type")
	ErrNotADriver      = errors.New("account is not a driver")
	ErrNotAPassenger   = errors.New("account is not a passenger")
)
