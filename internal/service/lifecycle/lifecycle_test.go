package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swiftcab/dispatch/internal/domain/trip"
	"github.com/swiftcab/dispatch/internal/domain/user"
	"github.com/swiftcab/dispatch/internal/geo"
	"github.com/swiftcab/dispatch/internal/store/tripstore"
	"github.com/swiftcab/dispatch/internal/store/userstore"
	"github.com/swiftcab/dispatch/pkg/logger"
	"github.com/swiftcab/dispatch/pkg/pubsub"
)

var (
	pickup      = geo.Coordinate{Latitude: 1, Longitude: 1}
	destination = geo.Coordinate{Latitude: 2, Longitude: 2}
)

type fixture struct {
	svc   *Service
	trips *tripstore.MemoryStore
	hub   *pubsub.Hub
}

func setup(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	users := userstore.NewMemoryStore()
	require.NoError(t, users.Create(ctx, &user.User{ID: "p1", FullName: "Pat", AccountType: user.AccountPassenger}))
	require.NoError(t, users.Create(ctx, &user.User{ID: "p2", FullName: "Perry", AccountType: user.AccountPassenger}))
	for i := 0; i < 10; i++ {
		id := fmt.Sprintf("d%d", i+1)
		require.NoError(t, users.Create(ctx, &user.User{ID: id, FullName: "Driver " + id, AccountType: user.AccountDriver}))
	}

	trips := tripstore.NewMemoryStore()
	hub := pubsub.NewHub(32, logger.NewNop())
	return &fixture{
		svc:   NewService(trips, users, hub, logger.NewNop()),
		trips: trips,
		hub:   hub,
	}
}

func (f *fixture) request(t *testing.T, passengerID string) *trip.Trip {
	t.Helper()
	tr, err := f.svc.RequestTrip(context.Background(), passengerID, pickup, destination)
	require.NoError(t, err)
	return tr
}

func TestRequestTrip(t *testing.T) {
	f := setup(t)

	tr := f.request(t, "p1")
	assert.Equal(t, trip.StateRequested, tr.State)
	assert.False(t, tr.HasDriver())

	stored, err := f.svc.Get(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, trip.StateRequested, stored.State)
}

func TestRequestTrip_SecondCreateFails(t *testing.T) {
	f := setup(t)
	f.request(t, "p1")

	_, err := f.svc.RequestTrip(context.Background(), "p1", pickup, destination)
	assert.ErrorIs(t, err, trip.ErrTripExists)
}

func TestRequestTrip_DriverAccountRejected(t *testing.T) {
	f := setup(t)

	_, err := f.svc.RequestTrip(context.Background(), "d1", pickup, destination)
	assert.ErrorIs(t, err, user.ErrNotAPassenger)
}

func TestRequestTrip_InvalidCoordinates(t *testing.T) {
	f := setup(t)

	_, err := f.svc.RequestTrip(context.Background(), "p1", geo.Coordinate{Latitude: 95}, destination)
	assert.ErrorIs(t, err, geo.ErrInvalidCoordinate)

	_, err = f.svc.RequestTrip(context.Background(), "p1", pickup, geo.Coordinate{Longitude: 200})
	assert.ErrorIs(t, err, geo.ErrInvalidCoordinate)
}

func TestAcceptAssignsDriver(t *testing.T) {
	f := setup(t)
	f.request(t, "p1")

	tr, err := f.svc.Accept(context.Background(), "p1", "d1")
	require.NoError(t, err)
	assert.Equal(t, trip.StateAccepted, tr.State)
	require.True(t, tr.HasDriver())
	assert.Equal(t, "d1", *tr.DriverID)
}

func TestGetByDriver(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.request(t, "p1")

	_, err := f.svc.Accept(ctx, "p1", "d1")
	require.NoError(t, err)

	tr, err := f.svc.GetByDriver(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, "p1", tr.PassengerID)

	_, err = f.svc.GetByDriver(ctx, "d2")
	assert.ErrorIs(t, err, trip.ErrTripNotFound)
}

func TestAccept_SecondDriverLoses(t *testing.T) {
	f := setup(t)
	f.request(t, "p1")

	_, err := f.svc.Accept(context.Background(), "p1", "d1")
	require.NoError(t, err)

	_, err = f.svc.Accept(context.Background(), "p1", "d2")
	assert.ErrorIs(t, err, trip.ErrInvalidTransition)

	stored, err := f.svc.Get(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, "d1", *stored.DriverID, "winner must keep the trip")
}

func TestAccept_PassengerAccountRejected(t *testing.T) {
	f := setup(t)
	f.request(t, "p1")

	_, err := f.svc.Accept(context.Background(), "p1", "p2")
	assert.ErrorIs(t, err, user.ErrNotADriver)
}

func TestAccept_DriverBusyElsewhere(t *testing.T) {
	f := setup(t)
	f.request(t, "p1")
	f.request(t, "p2")

	_, err := f.svc.Accept(context.Background(), "p1", "d1")
	require.NoError(t, err)

	_, err = f.svc.Accept(context.Background(), "p2", "d1")
	assert.ErrorIs(t, err, trip.ErrDriverBusy)
}

func TestFullLifecycle(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.request(t, "p1")

	_, err := f.svc.Accept(ctx, "p1", "d1")
	require.NoError(t, err)

	for _, next := range []trip.State{
		trip.StateDriverArrived,
		trip.StateInProgress,
		trip.StateArrivedAtDestination,
		trip.StateCompleted,
	} {
		tr, err := f.svc.AdvanceState(ctx, "p1", "d1", next)
		require.NoError(t, err, "advance to %s", next)
		assert.Equal(t, next, tr.State)
	}

	// completion acknowledgement deletes the record
	require.NoError(t, f.svc.Cancel(ctx, "p1", "p1"))
	_, err = f.svc.Get(ctx, "p1")
	assert.ErrorIs(t, err, trip.ErrTripNotFound)
}

func TestAdvanceState_NoSkipping(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.request(t, "p1")

	// Requested -> InProgress jumps two states
	_, err := f.svc.AdvanceState(ctx, "p1", "d1", trip.StateInProgress)
	assert.ErrorIs(t, err, trip.ErrInvalidTransition)

	_, err = f.svc.Accept(ctx, "p1", "d1")
	require.NoError(t, err)
	_, err = f.svc.AdvanceState(ctx, "p1", "d1", trip.StateDriverArrived)
	require.NoError(t, err)

	// DriverArrived -> Completed skips ahead
	_, err = f.svc.AdvanceState(ctx, "p1", "d1", trip.StateCompleted)
	assert.ErrorIs(t, err, trip.ErrInvalidTransition)

	stored, err := f.svc.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, trip.StateDriverArrived, stored.State, "failed transition must not mutate state")
}

func TestAdvanceState_OnlyAssignedDriver(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.request(t, "p1")

	_, err := f.svc.Accept(ctx, "p1", "d1")
	require.NoError(t, err)

	_, err = f.svc.AdvanceState(ctx, "p1", "d2", trip.StateDriverArrived)
	assert.ErrorIs(t, err, trip.ErrUnauthorizedRole)

	_, err = f.svc.AdvanceState(ctx, "p1", "p1", trip.StateDriverArrived)
	assert.ErrorIs(t, err, user.ErrNotADriver)
}

func TestAdvanceState_DenyWhileRequested(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.request(t, "p1")

	// no driver assigned yet, any driver may deny
	tr, err := f.svc.AdvanceState(ctx, "p1", "d3", trip.StateDenied)
	require.NoError(t, err)
	assert.Equal(t, trip.StateDenied, tr.State)

	// terminal: no further transitions
	_, err = f.svc.AdvanceState(ctx, "p1", "d3", trip.StateInProgress)
	assert.ErrorIs(t, err, trip.ErrInvalidTransition)
}

func TestAdvanceState_UnknownTrip(t *testing.T) {
	f := setup(t)
	_, err := f.svc.AdvanceState(context.Background(), "p1", "d1", trip.StateDriverArrived)
	assert.ErrorIs(t, err, trip.ErrTripNotFound)
}

func TestCancelWhileAccepted(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.request(t, "p1")

	_, err := f.svc.Accept(ctx, "p1", "d1")
	require.NoError(t, err)

	cancelled := make(chan pubsub.Event, 1)
	f.hub.Subscribe(pubsub.Key{Kind: "watch", ID: "d1"}, func(e pubsub.Event) {
		select {
		case cancelled <- e:
		default:
		}
	})

	require.NoError(t, f.svc.Cancel(ctx, "p1", "p1"))

	_, err = f.svc.Get(ctx, "p1")
	assert.ErrorIs(t, err, trip.ErrTripNotFound)

	select {
	case e := <-cancelled:
		assert.Equal(t, "watch_intent", e.Type)
	case <-time.After(time.Second):
		t.Fatal("driver was not told about the cancellation")
	}
}

func TestCancel_RejectedMidRide(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.request(t, "p1")

	_, err := f.svc.Accept(ctx, "p1", "d1")
	require.NoError(t, err)
	_, err = f.svc.AdvanceState(ctx, "p1", "d1", trip.StateDriverArrived)
	require.NoError(t, err)

	err = f.svc.Cancel(ctx, "p1", "p1")
	assert.ErrorIs(t, err, trip.ErrInvalidTransition)
}

func TestCancel_OnlyOwningPassenger(t *testing.T) {
	f := setup(t)
	f.request(t, "p1")

	assert.ErrorIs(t, f.svc.Cancel(context.Background(), "p1", "p2"), trip.ErrUnauthorizedRole)
	assert.ErrorIs(t, f.svc.Cancel(context.Background(), "p1", "d1"), trip.ErrUnauthorizedRole)
}

func TestCancel_NothingThere(t *testing.T) {
	f := setup(t)
	assert.ErrorIs(t, f.svc.Cancel(context.Background(), "p1", "p1"), trip.ErrTripNotFound)
}

func TestTripEventsPublished(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	var mu sync.Mutex
	var types []string
	f.hub.Subscribe(pubsub.Key{Kind: "trip", ID: "p1"}, func(e pubsub.Event) {
		mu.Lock()
		types = append(types, e.Type)
		mu.Unlock()
	})

	feed := make(chan pubsub.Event, 1)
	f.hub.Subscribe(TripsFeedKey, func(e pubsub.Event) { feed <- e })

	f.request(t, "p1")
	_, err := f.svc.Accept(ctx, "p1", "d1")
	require.NoError(t, err)

	select {
	case e := <-feed:
		assert.Equal(t, "trip_requested", e.Type)
	case <-time.After(time.Second):
		t.Fatal("trips feed never saw the request")
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(types)
		mu.Unlock()
		if n >= 2 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	require.GreaterOrEqual(t, len(types), 2)
	assert.Equal(t, "trip_requested", types[0])
	assert.Equal(t, "trip_accepted", types[1])
}

func TestWatchIntentsFollowStateChanges(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	intents := make(chan WatchIntent, 8)
	f.hub.Subscribe(pubsub.Key{Kind: "watch", ID: "d1"}, func(e pubsub.Event) {
		if wi, ok := e.Payload.(WatchIntent); ok {
			intents <- wi
		}
	})

	next := func() WatchIntent {
		select {
		case wi := <-intents:
			return wi
		case <-time.After(time.Second):
			t.Fatal("expected a watch intent")
			return WatchIntent{}
		}
	}

	f.request(t, "p1")
	_, err := f.svc.Accept(ctx, "p1", "d1")
	require.NoError(t, err)

	wi := next()
	assert.Equal(t, "arm", wi.Action)
	assert.Equal(t, "pickup", wi.Region)
	assert.Equal(t, pickup, wi.Coordinate)

	_, err = f.svc.AdvanceState(ctx, "p1", "d1", trip.StateDriverArrived)
	require.NoError(t, err)
	_, err = f.svc.AdvanceState(ctx, "p1", "d1", trip.StateInProgress)
	require.NoError(t, err)

	wi = next()
	assert.Equal(t, "arm", wi.Action)
	assert.Equal(t, "destination", wi.Region)
	assert.Equal(t, destination, wi.Coordinate)

	_, err = f.svc.AdvanceState(ctx, "p1", "d1", trip.StateArrivedAtDestination)
	require.NoError(t, err)
	_, err = f.svc.AdvanceState(ctx, "p1", "d1", trip.StateCompleted)
	require.NoError(t, err)

	wi = next()
	assert.Equal(t, "disarm", wi.Action)
	assert.Equal(t, "all", wi.Region)
}

func TestConcurrentAcceptSameTrip(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.request(t, "p1")

	const attempts = 8
	var wg sync.WaitGroup
	errs := make(chan error, attempts)

	for i := 0; i < attempts; i++ {
		driverID := fmt.Sprintf("d%d", i+1)
		wg.Add(1)
		go func(did string) {
			defer wg.Done()
			_, err := f.svc.Accept(ctx, "p1", did)
			errs <- err
		}(driverID)
	}

	wg.Wait()
	close(errs)

	success := 0
	for err := range errs {
		if err == nil {
			success++
			continue
		}
		if err != trip.ErrInvalidTransition && err != trip.ErrDriverBusy {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, success, "exactly one driver wins")

	stored, err := f.svc.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, trip.StateAccepted, stored.State)
	assert.True(t, stored.HasDriver())
}

func TestConcurrentAcceptAcrossPassengers(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	// One driver racing for two different passengers' trips runs under two
	// different passenger locks, so the busy guard must hold on its own.
	for i := 0; i < 50; i++ {
		f.request(t, "p1")
		f.request(t, "p2")

		start := make(chan struct{})
		var wg sync.WaitGroup
		errs := make(chan error, 2)

		for _, pid := range []string{"p1", "p2"} {
			wg.Add(1)
			go func(pid string) {
				defer wg.Done()
				<-start
				_, err := f.svc.Accept(ctx, pid, "d1")
				errs <- err
			}(pid)
		}
		close(start)
		wg.Wait()
		close(errs)

		success := 0
		for err := range errs {
			if err == nil {
				success++
				continue
			}
			assert.ErrorIs(t, err, trip.ErrDriverBusy)
		}
		require.Equal(t, 1, success, "driver accepted %d trips concurrently", success)

		for _, pid := range []string{"p1", "p2"} {
			require.NoError(t, f.svc.Cancel(ctx, pid, pid))
		}
	}
}

func TestConcurrentAcceptVsCancel(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.request(t, "p1")

	var wg sync.WaitGroup
	errs := make(chan error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := f.svc.Accept(ctx, "p1", "d1")
		errs <- err
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		errs <- f.svc.Cancel(ctx, "p1", "p1")
	}()

	wg.Wait()
	close(errs)

	for err := range errs {
		if err == nil {
			continue
		}
		switch err {
		case trip.ErrInvalidTransition, trip.ErrTripNotFound, trip.ErrDriverBusy:
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	// whatever the interleaving, the record is either gone (cancel last
	// or cancel won) or accepted by d1
	stored, err := f.svc.Get(ctx, "p1")
	if err == nil {
		assert.Equal(t, trip.StateAccepted, stored.State)
	} else {
		assert.ErrorIs(t, err, trip.ErrTripNotFound)
	}
}
