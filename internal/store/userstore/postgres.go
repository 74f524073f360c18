package userstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/swiftcab/dispatch/internal/domain/user"
)

const pqUniqueViolation = "23505"

// PostgresStore implements user.Repository on the users table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, u *user.User) error {
	if !u.AccountType.IsValid() {
		return user.ErrInvalidAccount
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, full_name, email, account_type, home_address, work_address, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, u.ID, u.FullName, u.Email, int(u.AccountType), u.HomeAddress, u.WorkAddress, u.CreatedAt)

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == pqUniqueViolation {
		return user.ErrUserExists
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetByID(ctx context.Context, id string) (*user.User, error) {
	var (
		u           user.User
		accountType int
	)

	err := s.db.QueryRowContext(ctx, `
		SELECT id, full_name, email, account_type,
		       COALESCE(home_address, ''), COALESCE(work_address, ''), created_at
		FROM users
		WHERE id = $1
	`, id).Scan(&u.ID, &u.FullName, &u.Email, &accountType,
		&u.HomeAddress, &u.WorkAddress, &u.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, user.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}

	u.AccountType = user.AccountType(accountType)
	return &u, nil
}

func (s *PostgresStore) SaveLocation(ctx context.Context, id string, locType user.SavedLocationType, address string) error {
	var column string
	switch locType {
	case user.LocationHome:
		column = "home_address"
	case user.LocationWork:
		column = "work_address"
	default:
		return user.ErrInvalidLocation
	}

	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE users SET %s = $1 WHERE id = $2`, column),
		address, id)
	if err != nil {
		return fmt.Errorf("save location: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return user.ErrUserNotFound
	}
	return nil
}
