package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dyluth/rota/pkg/booking"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps the Map as a single JSON string at rota:{namespace}:bookings.
// Save is one SET, so readers never observe a partial write.
type RedisStore struct {
	rdb       *redis.Client
	namespace string
}

// NewRedisStore creates a store for the given namespace.
// An empty namespace uses booking.DefaultNamespace.
func NewRedisStore(redisOpts *redis.Options, namespace string) *RedisStore {
	if namespace == "" {
		namespace = booking.DefaultNamespace
	}
	return &RedisStore{
		rdb:       redis.NewClient(redisOpts),
		namespace: namespace,
	}
}

// NewRedisStoreFromURL parses a redis:// URL and creates a store for namespace.
func NewRedisStoreFromURL(redisURL, namespace string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	return NewRedisStore(opts, namespace), nil
}

// Key returns the Redis key holding the Map.
func (s *RedisStore) Key() string {
	return booking.BookingsKey(s.namespace)
}

// Load reads the Map. A missing key yields an empty Map.
func (s *RedisStore) Load(ctx context.Context) (booking.Map, error) {
	raw, err := s.rdb.Get(ctx, s.Key()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return booking.Map{}, nil
		}
		return nil, fmt.Errorf("%w: failed to read bookings from Redis: %v", ErrUnavailable, err)
	}

	var m booking.Map
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("%w: failed to decode bookings from Redis: %v", ErrMalformed, err)
	}
	if m == nil {
		m = booking.Map{}
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	return m, nil
}

// Save overwrites the key with the JSON-encoded Map.
func (s *RedisStore) Save(ctx context.Context, m booking.Map) error {
	data, err := json.Marshal(m.Clone())
	if err != nil {
		return fmt.Errorf("failed to serialize bookings: %w", err)
	}

	if err := s.rdb.Set(ctx, s.Key(), data, 0).Err(); err != nil {
		return fmt.Errorf("%w: failed to write bookings to Redis: %v", ErrUnavailable, err)
	}

	return nil
}

// Ping verifies Redis connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Close closes the Redis connection. After Close the store must not be used.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
