// Package livepos keeps the latest position of every ride in progress so
// that map views can read it without touching the database.
package livepos

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/pkordes/ecopool/backend/internal/domain"
)

// Cache stores one position per live ride.
type Cache interface {
	Set(ctx context.Context, rideID uuid.UUID, p domain.Position) error
	Get(ctx context.Context, rideID uuid.UUID) (domain.Position, bool, error)
	Remove(ctx context.Context, rideID uuid.UUID) error
}

// Nop discards positions. It is used when Redis is not configured.
type Nop struct{}

func (Nop) Set(context.Context, uuid.UUID, domain.Position) error { return nil }
func (Nop) Get(context.Context, uuid.UUID) (domain.Position, bool, error) {
	return domain.Position{}, false, nil
}
func (Nop) Remove(context.Context, uuid.UUID) error { return nil }

// geoClient is the part of the go-redis client the cache uses.
type geoClient interface {
	GeoAdd(ctx context.Context, key string, geoLocation ...*redis.GeoLocation) *redis.IntCmd
	GeoPos(ctx context.Context, key string, members ...string) *redis.GeoPosCmd
	ZRem(ctx context.Context, key string, members ...any) *redis.IntCmd
}

// RedisCache keeps positions in one Redis GEO set keyed by ride id.
type RedisCache struct {
	client geoClient
	key    string
}

// NewRedisCache connects to addr and stores positions under key.
func NewRedisCache(addr, password, key string) (*RedisCache, *redis.Client) {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return &RedisCache{client: c, key: key}, c
}

func (r *RedisCache) Set(ctx context.Context, rideID uuid.UUID, p domain.Position) error {
	loc := &redis.GeoLocation{Name: rideID.String(), Longitude: p.Lng, Latitude: p.Lat}
	if err := r.client.GeoAdd(ctx, r.key, loc).Err(); err != nil {
		return fmt.Errorf("livepos.RedisCache.Set: %w", err)
	}
	return nil
}

func (r *RedisCache) Get(ctx context.Context, rideID uuid.UUID) (domain.Position, bool, error) {
	res, err := r.client.GeoPos(ctx, r.key, rideID.String()).Result()
	if err != nil {
		return domain.Position{}, false, fmt.Errorf("livepos.RedisCache.Get: %w", err)
	}
	if len(res) == 0 || res[0] == nil {
		return domain.Position{}, false, nil
	}
	return domain.Position{Lat: res[0].Latitude, Lng: res[0].Longitude}, true, nil
}

func (r *RedisCache) Remove(ctx context.Context, rideID uuid.UUID) error {
	if err := r.client.ZRem(ctx, r.key, rideID.String()).Err(); err != nil {
		return fmt.Errorf("livepos.RedisCache.Remove: %w", err)
	}
	return nil
}
