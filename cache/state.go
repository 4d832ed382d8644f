package cache

import (
	"context"
	"errors"
	"time"

	"socialauth/sso"
)

var _ sso.StateStore = (*RedisStateStore)(nil)

const statePrefix = "state:"

// RedisStateStore keeps OAuth state nonces in a Cache so any instance behind
// a load balancer can complete a login started on another one.
type RedisStateStore struct {
	cache Cache
}

// NewRedisStateStore creates a state store backed by c.
func NewRedisStateStore(c Cache) *RedisStateStore {
	return &RedisStateStore{cache: c}
}

// Save stores nonce for ttl.
func (s *RedisStateStore) Save(ctx context.Context, nonce string, ttl time.Duration) error {
	if nonce == "" {
		return errors.New("empty state nonce")
	}
	return s.cache.Set(ctx, statePrefix+nonce, []byte("1"), ttl)
}

// Consume removes nonce and reports whether it was present. Expiry is
// enforced by Redis.
func (s *RedisStateStore) Consume(ctx context.Context, nonce string) (bool, error) {
	if nonce == "" {
		return false, nil
	}
	_, err := s.cache.GetDel(ctx, statePrefix+nonce)
	if errors.Is(err, ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
