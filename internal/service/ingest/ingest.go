package ingest

import (
	"context"
	"sync"
	"time"

	"github.com/swiftcab/dispatch/internal/domain/user"
	"github.com/swiftcab/dispatch/internal/geo"
	"github.com/swiftcab/dispatch/pkg/logger"
	"github.com/swiftcab/dispatch/pkg/metrics"
	"github.com/swiftcab/dispatch/pkg/pubsub"
)

// Service accepts periodic driver location pings and feeds them into the
// geo index, gated by account type. Sessions watching `driver/{id}` get a
// live position event for each accepted ping.
type Service struct {
	users user.Repository
	index geo.Index
	hub   *pubsub.Hub
	log   *logger.Logger

	// MinInterval debounces pings per driver; zero forwards everything,
	// matching the original client which relayed every location callback.
	minInterval time.Duration

	mu       sync.Mutex
	lastPing map[string]time.Time
}

func NewService(users user.Repository, index geo.Index, hub *pubsub.Hub, log *logger.Logger, minInterval time.Duration) *Service {
	return &Service{
		users:       users,
		index:       index,
		hub:         hub,
		log:         log,
		minInterval: minInterval,
		lastPing:    make(map[string]time.Time),
	}
}

// ReportLocation upserts a driver's position. Returns
// user.ErrUserNotFound for unknown ids, trip-role errors for non-driver
// accounts, and geo.ErrInvalidCoordinate for malformed input. A ping
// dropped by debouncing returns nil; the caller treats it as a no-op.
func (s *Service) ReportLocation(ctx context.Context, driverID string, coord geo.Coordinate) error {
	u, err := s.users.GetByID(ctx, driverID)
	if err != nil {
		return err
	}
	if u.AccountType != user.AccountDriver {
		return user.ErrNotADriver
	}
	if err := coord.Validate(); err != nil {
		return err
	}

	if s.debounced(driverID) {
		metrics.LocationUpdatesDropped.Inc()
		return nil
	}

	if err := s.index.Upsert(ctx, driverID, coord); err != nil {
		return err
	}
	metrics.LocationUpdatesTotal.Inc()

	s.hub.Publish(pubsub.Event{
		Key:  pubsub.Key{Kind: "driver", ID: driverID},
		Type: "driver_location",
		Payload: geo.DriverLocation{
			DriverID:   driverID,
			Coordinate: coord,
			UpdatedAt:  time.Now(),
		},
	})

	s.log.Debug("Driver location updated",
		logger.String("driver_id", driverID),
		logger.Float64("latitude", coord.Latitude),
		logger.Float64("longitude", coord.Longitude),
	)
	return nil
}

func (s *Service) debounced(driverID string) bool {
	if s.minInterval <= 0 {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if last, ok := s.lastPing[driverID]; ok && now.Sub(last) < s.minInterval {
		return true
	}
	s.lastPing[driverID] = now
	return false
}
