package matching

import (
	"context"
	"errors"
	"time"

	"github.com/swiftcab/dispatch/internal/geo"
	"github.com/swiftcab/dispatch/pkg/logger"
	"github.com/swiftcab/dispatch/pkg/metrics"
)

var ErrNoDriversAvailable = errors.New("no drivers available in the area")

// Config holds matching parameters.
type Config struct {
	// SearchRadiusKM is the fixed query radius. The mobile clients were
	// built around a 50-unit GeoFire query, so that stays the default.
	SearchRadiusKM float64

	// Timeout bounds how long a match request waits for a driver to
	// appear before giving up with ErrNoDriversAvailable.
	Timeout time.Duration

	// PollInterval is how often the index is re-queried while waiting.
	PollInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.SearchRadiusKM <= 0 {
		c.SearchRadiusKM = 50
	}
	if c.Timeout <= 0 {
		c.Timeout = 15 * time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 500 * time.Millisecond
	}
	return c
}

// Service matches passengers to nearby drivers.
type Service struct {
	index  geo.Index
	logger *logger.Logger
	cfg    Config
}

func NewService(index geo.Index, log *logger.Logger, cfg Config) *Service {
	return &Service{index: index, logger: log, cfg: cfg.withDefaults()}
}

// FindNearestDriver returns the first driver found inside the search
// radius. "First" means whichever entry the index yields first, not the
// closest by distance: that mirrors the behavior the clients were built
// against, where the first geo-query callback won. The bounded wait is a
// deliberate addition; previously a search with no drivers hung forever.
func (s *Service) FindNearestDriver(ctx context.Context, pickup geo.Coordinate) (geo.DriverLocation, error) {
	if err := pickup.Validate(); err != nil {
		return geo.DriverLocation{}, err
	}

	start := time.Now()
	deadline := start.Add(s.cfg.Timeout)

	for {
		results, err := s.index.QueryNearby(ctx, pickup, s.cfg.SearchRadiusKM)
		if err != nil {
			return geo.DriverLocation{}, err
		}
		if len(results) > 0 {
			found := results[0]
			metrics.MatchesTotal.Inc()
			metrics.MatchLatency.Observe(time.Since(start).Seconds())
			s.logger.Info("Driver matched",
				logger.String("driver_id", found.DriverID),
				logger.Float64("search_radius_km", s.cfg.SearchRadiusKM),
				logger.Float64("latency_ms", float64(time.Since(start).Milliseconds())),
			)
			return found, nil
		}

		if time.Now().Add(s.cfg.PollInterval).After(deadline) {
			break
		}
		select {
		case <-ctx.Done():
			return geo.DriverLocation{}, ctx.Err()
		case <-time.After(s.cfg.PollInterval):
		}
	}

	metrics.MatchFailuresTotal.Inc()
	s.logger.Warn("No drivers inside search radius",
		logger.Float64("search_radius_km", s.cfg.SearchRadiusKM),
		logger.Float64("pickup_lat", pickup.Latitude),
		logger.Float64("pickup_lon", pickup.Longitude),
	)
	return geo.DriverLocation{}, ErrNoDriversAvailable
}
