package tripstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/swiftcab/dispatch/internal/domain/trip"
)

const pqUniqueViolation = "23505"

// PostgresStore persists trips in the trips table, keyed by passenger_id.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, t *trip.Trip) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trips (
			passenger_id, driver_id, state,
			pickup_latitude, pickup_longitude,
			destination_latitude, destination_longitude,
			requested_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
	`, t.PassengerID, t.DriverID, int(t.State),
		t.Pickup.Latitude, t.Pickup.Longitude,
		t.Destination.Latitude, t.Destination.Longitude,
		t.RequestedAt)

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == pqUniqueViolation {
		return trip.ErrTripExists
	}
	if err != nil {
		return fmt.Errorf("insert trip: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, passengerID string) (*trip.Trip, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT passenger_id, driver_id, state,
		       pickup_latitude, pickup_longitude,
		       destination_latitude, destination_longitude,
		       requested_at, updated_at
		FROM trips
		WHERE passenger_id = $1
	`, passengerID)

	return scanTrip(row)
}

func (s *PostgresStore) GetByDriver(ctx context.Context, driverID string) (*trip.Trip, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT passenger_id, driver_id, state,
		       pickup_latitude, pickup_longitude,
		       destination_latitude, destination_longitude,
		       requested_at, updated_at
		FROM trips
		WHERE driver_id = $1 AND state NOT IN ($2, $3)
		LIMIT 1
	`, driverID, int(trip.StateCompleted), int(trip.StateDenied))

	return scanTrip(row)
}

func (s *PostgresStore) UpdateState(ctx context.Context, passengerID string, state trip.State) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE trips SET state = $1, updated_at = NOW() WHERE passenger_id = $2
	`, int(state), passengerID)
	if err != nil {
		return fmt.Errorf("update trip state: %w", err)
	}
	return checkAffected(res)
}

func (s *PostgresStore) AssignDriver(ctx context.Context, passengerID, driverID string, state trip.State) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE trips SET driver_id = $1, state = $2, updated_at = NOW()
		WHERE passenger_id = $3
		  AND NOT EXISTS (
			SELECT 1 FROM trips
			WHERE driver_id = $1 AND passenger_id <> $3 AND state NOT IN ($4, $5)
		  )
	`, driverID, int(state), passengerID,
		int(trip.StateCompleted), int(trip.StateDenied))

	// The partial unique index on active driver_id backstops the NOT EXISTS
	// guard across concurrent transactions.
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == pqUniqueViolation {
		return trip.ErrDriverBusy
	}
	if err != nil {
		return fmt.Errorf("assign driver: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// Nothing updated: either the trip is gone or the driver holds
		// another active trip.
		var exists bool
		if err := s.db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM trips WHERE passenger_id = $1)`,
			passengerID).Scan(&exists); err != nil {
			return fmt.Errorf("assign driver: %w", err)
		}
		if exists {
			return trip.ErrDriverBusy
		}
		return trip.ErrTripNotFound
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, passengerID string) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM trips WHERE passenger_id = $1
	`, passengerID)
	if err != nil {
		return fmt.Errorf("delete trip: %w", err)
	}
	return checkAffected(res)
}

func scanTrip(row *sql.Row) (*trip.Trip, error) {
	var (
		t        trip.Trip
		driverID sql.NullString
		state    int
		reqAt    time.Time
		updAt    time.Time
	)

	err := row.Scan(&t.PassengerID, &driverID, &state,
		&t.Pickup.Latitude, &t.Pickup.Longitude,
		&t.Destination.Latitude, &t.Destination.Longitude,
		&reqAt, &updAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, trip.ErrTripNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan trip: %w", err)
	}

	if driverID.Valid {
		t.DriverID = &driverID.String
	}
	t.State = trip.State(state)
	t.RequestedAt = reqAt
	t.UpdatedAt = updAt
	return &t, nil
}

func checkAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return trip.ErrTripNotFound
	}
	return nil
}
