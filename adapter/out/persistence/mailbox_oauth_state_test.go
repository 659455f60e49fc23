package persistence

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"mailbox_server/core/port/out"
)

func TestMemoryOAuthStateStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryOAuthStateStore()

	if err := s.StoreState(ctx, "abc", time.Minute); err != nil {
		t.Fatalf("StoreState() error = %v", err)
	}
	if err := s.ValidateState(ctx, "abc"); err != nil {
		t.Fatalf("ValidateState() error = %v", err)
	}
	// A state is usable once.
	if err := s.ValidateState(ctx, "abc"); !errors.Is(err, out.ErrStateNotFound) {
		t.Errorf("second ValidateState() error = %v, want ErrStateNotFound", err)
	}
	if err := s.ValidateState(ctx, "unknown"); !errors.Is(err, out.ErrStateNotFound) {
		t.Errorf("ValidateState(unknown) error = %v", err)
	}
}

func TestMemoryOAuthStateStore_Expiry(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	s := NewMemoryOAuthStateStore()
	s.now = func() time.Time { return now }

	_ = s.StoreState(ctx, "abc", 10*time.Minute)
	now = now.Add(11 * time.Minute)

	if err := s.ValidateState(ctx, "abc"); !errors.Is(err, out.ErrStateNotFound) {
		t.Errorf("ValidateState() after expiry error = %v", err)
	}
}

func TestMemoryOAuthStateStore_EmptyState(t *testing.T) {
	s := NewMemoryOAuthStateStore()
	if err := s.StoreState(context.Background(), "", time.Minute); err == nil {
		t.Error("StoreState(\"\") error = nil")
	}
}

func TestRedisOAuthStateStore(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	ctx := context.Background()
	s, err := NewRedisOAuthStateStoreFromURL(ctx, url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer s.Close()

	if err := s.StoreState(ctx, "redis-test-state", time.Minute); err != nil {
		t.Fatalf("StoreState() error = %v", err)
	}
	if err := s.ValidateState(ctx, "redis-test-state"); err != nil {
		t.Fatalf("ValidateState() error = %v", err)
	}
	if err := s.ValidateState(ctx, "redis-test-state"); !errors.Is(err, out.ErrStateNotFound) {
		t.Errorf("second ValidateState() error = %v", err)
	}
}
