package sso

import (
	"context"
	"sync"
	"time"
)

// StateStore keeps one-time CSRF nonces between the login redirect and the
// provider callback.
type StateStore interface {
	// Save stores nonce for ttl
	Save(ctx context.Context, nonce string, ttl time.Duration) error

	// Consume deletes nonce and reports whether it was present and unexpired
	Consume(ctx context.Context, nonce string) (bool, error)
}

// MemoryStateStore is an in-process StateStore.
type MemoryStateStore struct {
	mu     sync.Mutex
	states map[string]time.Time
	now    func() time.Time
}

// NewMemoryStateStore creates a new MemoryStateStore
func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{
		states: make(map[string]time.Time),
		now:    time.Now,
	}
}

// Save stores nonce with an expiration time. Expired entries are swept on
// each call.
func (s *MemoryStateStore) Save(_ context.Context, nonce string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for k, exp := range s.states {
		if now.After(exp) {
			delete(s.states, k)
		}
	}
	s.states[nonce] = now.Add(ttl)
	return nil
}

// Consume checks if nonce is valid and not expired, removing it either way.
func (s *MemoryStateStore) Consume(_ context.Context, nonce string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	expiration, exists := s.states[nonce]
	if !exists {
		return false, nil
	}
	delete(s.states, nonce)
	return !s.now().After(expiration), nil
}
