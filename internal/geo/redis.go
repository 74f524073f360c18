package geo

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const locationsKey = "drivers:locations"

// RedisIndex implements Index on top of Redis GEO commands. Positions live
// in a single geo set; last-seen timestamps live in per-driver hashes so
// stale entries can be filtered out of query results.
type RedisIndex struct {
	client     *redis.Client
	staleAfter time.Duration
}

func NewRedisIndex(client *redis.Client, staleAfter time.Duration) *RedisIndex {
	return &RedisIndex{client: client, staleAfter: staleAfter}
}

func (r *RedisIndex) Upsert(ctx context.Context, driverID string, coord Coordinate) error {
	if err := coord.Validate(); err != nil {
		return err
	}

	_, err := r.client.GeoAdd(ctx, locationsKey, &redis.GeoLocation{
		Name:      driverID,
		Longitude: coord.Longitude,
		Latitude:  coord.Latitude,
	}).Result()
	if err != nil {
		return fmt.Errorf("geoadd driver %s: %w", driverID, err)
	}

	if err := r.client.HSet(ctx, metaKey(driverID),
		"updated", time.Now().UTC().Format(time.RFC3339Nano),
	).Err(); err != nil {
		return fmt.Errorf("set driver meta %s: %w", driverID, err)
	}
	return nil
}

func (r *RedisIndex) QueryNearby(ctx context.Context, center Coordinate, radiusKM float64) ([]DriverLocation, error) {
	if err := center.Validate(); err != nil {
		return nil, err
	}

	results, err := r.client.GeoSearchLocation(ctx, locationsKey, &redis.GeoSearchLocationQuery{
		GeoSearchQuery: redis.GeoSearchQuery{
			Longitude:  center.Longitude,
			Latitude:   center.Latitude,
			Radius:     radiusKM,
			RadiusUnit: "km",
		},
		WithCoord: true,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("geosearch: %w", err)
	}

	cutoff := time.Time{}
	if r.staleAfter > 0 {
		cutoff = time.Now().UTC().Add(-r.staleAfter)
	}

	out := make([]DriverLocation, 0, len(results))
	for _, g := range results {
		loc := DriverLocation{
			DriverID:   g.Name,
			Coordinate: Coordinate{Latitude: g.Latitude, Longitude: g.Longitude},
		}
		if updated, err := r.client.HGet(ctx, metaKey(g.Name), "updated").Result(); err == nil {
			if ts, err := time.Parse(time.RFC3339Nano, updated); err == nil {
				loc.UpdatedAt = ts
			}
		}
		if !cutoff.IsZero() && loc.UpdatedAt.Before(cutoff) {
			continue
		}
		out = append(out, loc)
	}
	return out, nil
}

func metaKey(driverID string) string {
	return "driver:meta:" + driverID
}
