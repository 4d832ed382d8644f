package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrKeyNotFound is returned when a key is not found in the cache
var ErrKeyNotFound = errors.New("key not found in cache")

// RedisCache represents a Redis-backed distributed cache. All keys are
// namespaced with the configured prefix.
type RedisCache struct {
	client *redis.Client
	prefix string
}

// RedisConfig holds the configuration for the Redis cache
type RedisConfig struct {
	Address   string
	Password  string
	DB        int
	KeyPrefix string
	// DialTimeout bounds the startup ping as well as new connections
	DialTimeout time.Duration
}

// NewRedisCache creates a new Redis cache client and checks connectivity.
func NewRedisCache(ctx context.Context, config RedisConfig) (*RedisCache, error) {
	if config.DialTimeout <= 0 {
		config.DialTimeout = 5 * time.Second
	}
	client := redis.NewClient(&redis.Options{
		Addr:        config.Address,
		Password:    config.Password,
		DB:          config.DB,
		DialTimeout: config.DialTimeout,
	})

	ctx, cancel := context.WithTimeout(ctx, config.DialTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	return &RedisCache{
		client: client,
		prefix: config.KeyPrefix,
	}, nil
}

func (r *RedisCache) key(k string) string {
	return r.prefix + k
}

// Set stores a value in the cache with optional expiration
func (r *RedisCache) Set(ctx context.Context, key string, value []byte, expiration time.Duration) error {
	return r.client.Set(ctx, r.key(key), value, expiration).Err()
}

// GetDel reads and deletes key in one round trip.
func (r *RedisCache) GetDel(ctx context.Context, key string) ([]byte, error) {
	val, err := r.client.GetDel(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrKeyNotFound
	} else if err != nil {
		return nil, err
	}
	return val, nil
}

// Delete removes a value from the cache
func (r *RedisCache) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.key(key)).Err()
}

// Close closes the Redis client connection
func (r *RedisCache) Close() error {
	return r.client.Close()
}
