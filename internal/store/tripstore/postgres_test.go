package tripstore

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swiftcab/dispatch/internal/domain/trip"
	"github.com/swiftcab/dispatch/internal/geo"
)

// openTestDB connects to the database named by DISPATCH_TEST_DSN. The
// schema from migrations/ must already be applied.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	dsn := os.Getenv("DISPATCH_TEST_DSN")
	if dsn == "" {
		t.Skip("DISPATCH_TEST_DSN not set, skipping Postgres tests")
	}

	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	require.NoError(t, db.Ping())
	t.Cleanup(func() { db.Close() })
	return db
}

func TestPostgresTripRoundTrip(t *testing.T) {
	db := openTestDB(t)
	store := NewPostgresStore(db)
	ctx := context.Background()

	passengerID := uuid.NewString()
	driverID := uuid.NewString()
	t.Cleanup(func() { _ = store.Delete(ctx, passengerID) })

	created := &trip.Trip{
		PassengerID: passengerID,
		Pickup:      geo.Coordinate{Latitude: 25.033, Longitude: 121.565},
		Destination: geo.Coordinate{Latitude: 25.047, Longitude: 121.517},
		State:       trip.StateRequested,
		RequestedAt: time.Now().UTC(),
	}
	require.NoError(t, store.Create(ctx, created))
	assert.ErrorIs(t, store.Create(ctx, created), trip.ErrTripExists)

	got, err := store.Get(ctx, passengerID)
	require.NoError(t, err)
	assert.Equal(t, trip.StateRequested, got.State)
	assert.Nil(t, got.DriverID)
	assert.InDelta(t, 25.033, got.Pickup.Latitude, 1e-9)

	require.NoError(t, store.AssignDriver(ctx, passengerID, driverID, trip.StateAccepted))

	active, err := store.GetByDriver(ctx, driverID)
	require.NoError(t, err)
	require.NotNil(t, active.DriverID)
	assert.Equal(t, driverID, *active.DriverID)
	assert.Equal(t, trip.StateAccepted, active.State)

	require.NoError(t, store.UpdateState(ctx, passengerID, trip.StateDriverArrived))
	require.NoError(t, store.UpdateState(ctx, passengerID, trip.StateInProgress))
	require.NoError(t, store.UpdateState(ctx, passengerID, trip.StateArrivedAtDestination))
	require.NoError(t, store.UpdateState(ctx, passengerID, trip.StateCompleted))

	// A completed trip no longer counts as the driver's active trip.
	_, err = store.GetByDriver(ctx, driverID)
	assert.ErrorIs(t, err, trip.ErrTripNotFound)

	require.NoError(t, store.Delete(ctx, passengerID))
	_, err = store.Get(ctx, passengerID)
	assert.ErrorIs(t, err, trip.ErrTripNotFound)
}

func TestPostgresAssignDriverRefusesBusyDriver(t *testing.T) {
	db := openTestDB(t)
	store := NewPostgresStore(db)
	ctx := context.Background()

	p1 := uuid.NewString()
	p2 := uuid.NewString()
	driverID := uuid.NewString()
	t.Cleanup(func() {
		_ = store.Delete(ctx, p1)
		_ = store.Delete(ctx, p2)
	})

	for _, pid := range []string{p1, p2} {
		require.NoError(t, store.Create(ctx, &trip.Trip{
			PassengerID: pid,
			Pickup:      geo.Coordinate{Latitude: 25.033, Longitude: 121.565},
			Destination: geo.Coordinate{Latitude: 25.047, Longitude: 121.517},
			State:       trip.StateRequested,
			RequestedAt: time.Now().UTC(),
		}))
	}

	require.NoError(t, store.AssignDriver(ctx, p1, driverID, trip.StateAccepted))
	assert.ErrorIs(t, store.AssignDriver(ctx, p2, driverID, trip.StateAccepted), trip.ErrDriverBusy)

	got, err := store.Get(ctx, p2)
	require.NoError(t, err)
	assert.False(t, got.HasDriver())
	assert.Equal(t, trip.StateRequested, got.State)

	// denied is terminal, so the driver frees up
	require.NoError(t, store.UpdateState(ctx, p1, trip.StateDenied))
	assert.NoError(t, store.AssignDriver(ctx, p2, driverID, trip.StateAccepted))
}

func TestPostgresUnknownTrip(t *testing.T) {
	db := openTestDB(t)
	store := NewPostgresStore(db)
	ctx := context.Background()

	missing := uuid.NewString()

	_, err := store.Get(ctx, missing)
	assert.ErrorIs(t, err, trip.ErrTripNotFound)
	assert.ErrorIs(t, store.UpdateState(ctx, missing, trip.StateAccepted), trip.ErrTripNotFound)
	assert.ErrorIs(t, store.Delete(ctx, missing), trip.ErrTripNotFound)
}
