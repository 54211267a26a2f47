package state

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/oshokin/alarm-subsystem/internal/domain/place"
)

// DefaultRedisKeyPrefix prefixes the key of every place snapshot.
const DefaultRedisKeyPrefix = "alarm:place:"

// RedisRepository persists snapshots in Redis, one key per place.
type RedisRepository struct {
	// client is the Redis connection.
	client *redis.Client
	// prefix is prepended to the place id to form the key.
	prefix string
	// ttl expires idle places; zero keeps them forever.
	ttl time.Duration
}

// NewRedisRepository creates a Redis-backed repository.
func NewRedisRepository(client *redis.Client, prefix string, ttl time.Duration) *RedisRepository {
	if prefix == "" {
		prefix = DefaultRedisKeyPrefix
	}

	return &RedisRepository{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

// Key returns the Redis key of a place.
func (r *RedisRepository) Key(placeID string) string {
	return r.prefix + placeID
}

// Load reads the snapshot of a place.
func (r *RedisRepository) Load(ctx context.Context, placeID string) (*place.Snapshot, error) {
	if placeID == "" {
		return nil, ErrInvalidPlaceID
	}

	data, err := r.client.Get(ctx, r.Key(placeID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("get %s: %w", r.Key(placeID), err)
	}

	snapshot, err := unmarshalSnapshot(data)
	if err != nil {
		return nil, err
	}

	snapshot.PlaceID = placeID

	return snapshot, nil
}

// Save writes the snapshot of a place.
func (r *RedisRepository) Save(ctx context.Context, snapshot *place.Snapshot) error {
	if snapshot.PlaceID == "" {
		return ErrInvalidPlaceID
	}

	data, err := marshalSnapshot(snapshot)
	if err != nil {
		return err
	}

	if err = r.client.Set(ctx, r.Key(snapshot.PlaceID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("set %s: %w", r.Key(snapshot.PlaceID), err)
	}

	return nil
}
