// Package cache holds short-lived login data in Redis.
package cache

import (
	"context"
	"time"
)

// Cache defines the interface for cache operations
type Cache interface {
	// Set stores a value in the cache with optional expiration
	Set(ctx context.Context, key string, value []byte, expiration time.Duration) error

	// GetDel atomically reads and removes a value
	GetDel(ctx context.Context, key string) ([]byte, error)

	// Delete removes a value from the cache
	Delete(ctx context.Context, key string) error

	// Close closes the cache connection
	Close() error
}
