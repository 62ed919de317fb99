package geo

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/halladj/vtc-sahra/internal/models"
)

// RedisGeo implements Registry using Redis GEO commands. Last-seen times live
// in a companion sorted set scored by unix milliseconds.
type RedisGeo struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	now    func() time.Time
}

func NewRedisGeo(client *redis.Client, key string, ttl time.Duration) *RedisGeo {
	return &RedisGeo{client: client, key: key, ttl: ttl, now: time.Now}
}

func (r *RedisGeo) seenKey() string { return r.key + ":seen" }

func (r *RedisGeo) Upsert(ctx context.Context, driverID string, loc models.Coord) error {
	now := r.now()
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.GeoAdd(ctx, r.key, &redis.GeoLocation{Longitude: loc.Lng, Latitude: loc.Lat, Name: driverID})
		pipe.ZAdd(ctx, r.seenKey(), redis.Z{Score: float64(now.UnixMilli()), Member: driverID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis geo upsert %s: %w", driverID, err)
	}
	return nil
}

func (r *RedisGeo) Remove(ctx context.Context, driverID string) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, r.key, driverID)
		pipe.ZRem(ctx, r.seenKey(), driverID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis geo remove %s: %w", driverID, err)
	}
	return nil
}

func (r *RedisGeo) Within(ctx context.Context, center models.Coord, radiusKm float64) ([]Nearby, error) {
	if err := r.evictStale(ctx); err != nil {
		return nil, err
	}
	// Redis uses a slightly different earth radius; search wide and filter below.
	res, err := r.client.GeoSearchLocation(ctx, r.key, &redis.GeoSearchLocationQuery{
		GeoSearchQuery: redis.GeoSearchQuery{
			Longitude:  center.Lng,
			Latitude:   center.Lat,
			Radius:     radiusKm * 1.01,
			RadiusUnit: "km",
			Sort:       "ASC",
		},
		WithCoord: true,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("redis geo search: %w", err)
	}
	if len(res) == 0 {
		return nil, nil
	}
	names := make([]string, len(res))
	for i, g := range res {
		names[i] = g.Name
	}
	seen, err := r.client.ZMScore(ctx, r.seenKey(), names...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis geo last seen: %w", err)
	}
	out := make([]Nearby, 0, len(res))
	for i, g := range res {
		dist := HaversineKm(center.Lat, center.Lng, g.Latitude, g.Longitude)
		if dist > radiusKm {
			continue
		}
		var lastSeen time.Time
		if i < len(seen) {
			lastSeen = time.UnixMilli(int64(seen[i]))
		}
		out = append(out, Nearby{
			DriverLocation: models.DriverLocation{
				DriverID: g.Name,
				Loc:      models.Coord{Lat: g.Latitude, Lng: g.Longitude},
				LastSeen: lastSeen,
			},
			DistanceKm: dist,
		})
	}
	sortByDistance(out)
	return out, nil
}

func (r *RedisGeo) evictStale(ctx context.Context) error {
	if r.ttl <= 0 {
		return nil
	}
	cutoff := r.now().Add(-r.ttl).UnixMilli()
	stale, err := r.client.ZRangeByScore(ctx, r.seenKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(cutoff, 10),
	}).Result()
	if err != nil {
		return fmt.Errorf("redis geo stale scan: %w", err)
	}
	if len(stale) == 0 {
		return nil
	}
	members := make([]interface{}, len(stale))
	for i, s := range stale {
		members[i] = s
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, r.key, members...)
		pipe.ZRem(ctx, r.seenKey(), members...)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis geo evict: %w", err)
	}
	return nil
}
