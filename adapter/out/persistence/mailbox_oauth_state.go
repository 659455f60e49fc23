// Package persistence holds the short-lived OAuth login state stores.
package persistence

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"mailbox_server/core/port/out"

	"github.com/redis/go-redis/v9"
)

// OAuthStateKey Redis key prefix for OAuth state
const OAuthStateKey = "oauth:state:"

var errEmptyState = errors.New("state cannot be empty")

// =============================================================================
// Redis State Store
// =============================================================================

// RedisOAuthStateStore keeps login states in Redis so several API processes
// can share them.
type RedisOAuthStateStore struct {
	client *redis.Client
}

var _ out.OAuthStateStore = (*RedisOAuthStateStore)(nil)

func NewRedisOAuthStateStore(client *redis.Client) *RedisOAuthStateStore {
	return &RedisOAuthStateStore{client: client}
}

// NewRedisOAuthStateStoreFromURL parses url and pings the server.
func NewRedisOAuthStateStoreFromURL(ctx context.Context, url string) (*RedisOAuthStateStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedisOAuthStateStore(client), nil
}

func (s *RedisOAuthStateStore) StoreState(ctx context.Context, state string, ttl time.Duration) error {
	if state == "" {
		return errEmptyState
	}
	if err := s.client.Set(ctx, OAuthStateKey+state, "1", ttl).Err(); err != nil {
		return fmt.Errorf("failed to store OAuth state: %w", err)
	}
	return nil
}

// ValidateState consumes state. GETDEL makes a state usable once.
func (s *RedisOAuthStateStore) ValidateState(ctx context.Context, state string) error {
	if state == "" {
		return errEmptyState
	}
	err := s.client.GetDel(ctx, OAuthStateKey+state).Err()
	if errors.Is(err, redis.Nil) {
		return out.ErrStateNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to validate OAuth state: %w", err)
	}
	return nil
}

func (s *RedisOAuthStateStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisOAuthStateStore) Close() error {
	return s.client.Close()
}

// =============================================================================
// Memory State Store
// =============================================================================

// MemoryOAuthStateStore keeps login states in process memory.
type MemoryOAuthStateStore struct {
	mu     sync.Mutex
	states map[string]time.Time // state -> expiry
	now    func() time.Time
}

var _ out.OAuthStateStore = (*MemoryOAuthStateStore)(nil)

func NewMemoryOAuthStateStore() *MemoryOAuthStateStore {
	return &MemoryOAuthStateStore{
		states: make(map[string]time.Time),
		now:    time.Now,
	}
}

func (s *MemoryOAuthStateStore) StoreState(_ context.Context, state string, ttl time.Duration) error {
	if state == "" {
		return errEmptyState
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for k, exp := range s.states {
		if now.After(exp) {
			delete(s.states, k)
		}
	}
	s.states[state] = now.Add(ttl)
	return nil
}

func (s *MemoryOAuthStateStore) ValidateState(_ context.Context, state string) error {
	if state == "" {
		return errEmptyState
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	exp, ok := s.states[state]
	if !ok {
		return out.ErrStateNotFound
	}
	delete(s.states, state)
	if s.now().After(exp) {
		return out.ErrStateNotFound
	}
	return nil
}
