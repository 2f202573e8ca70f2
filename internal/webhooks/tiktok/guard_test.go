package tiktokwebhook

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestGuardCheckAndMark(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	guard, err := NewIdempotencyGuard(store, time.Minute, nil)
	if err != nil {
		t.Fatalf("new guard: %v", err)
	}

	dup, err := guard.CheckAndMark(ctx, "evt-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dup {
		t.Fatalf("first delivery must not be a duplicate")
	}

	dup, err = guard.CheckAndMark(ctx, "evt-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !dup {
		t.Fatalf("second delivery must be a duplicate")
	}
}

func TestGuardFailsOpenOnStoreError(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	store.err = errors.New("connection refused")
	guard, err := NewIdempotencyGuard(store, time.Minute, nil)
	if err != nil {
		t.Fatalf("new guard: %v", err)
	}

	dup, err := guard.CheckAndMark(ctx, "evt-1")
	if err != nil {
		t.Fatalf("store failure must not surface: %v", err)
	}
	if dup {
		t.Fatalf("store failure must not report a duplicate")
	}
}

func TestGuardMarkCompletedAndRelease(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	guard, err := NewIdempotencyGuard(store, time.Minute, nil)
	if err != nil {
		t.Fatalf("new guard: %v", err)
	}

	if _, err := guard.CheckAndMark(ctx, "evt-1"); err != nil {
		t.Fatalf("check: %v", err)
	}
	guard.MarkCompleted(ctx, "evt-1", "success")
	if got := store.data["tb:idempotency:tiktok:evt-1"]; got != "completed:success" {
		t.Fatalf("expected completed marker, got %q", got)
	}

	if err := guard.Release(ctx, "evt-1"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, exists := store.data["tb:idempotency:tiktok:evt-1"]; exists {
		t.Fatalf("expected marker removed after release")
	}
}

func TestGuardValidation(t *testing.T) {
	if _, err := NewIdempotencyGuard(nil, time.Minute, nil); err == nil {
		t.Fatalf("expected error for nil store")
	}
	if _, err := NewIdempotencyGuard(newFakeStore(), 0, nil); err == nil {
		t.Fatalf("expected error for zero ttl")
	}
	guard, _ := NewIdempotencyGuard(newFakeStore(), time.Minute, nil)
	if _, err := guard.CheckAndMark(context.Background(), ""); err == nil {
		t.Fatalf("expected error for empty event id")
	}
}

type fakeStore struct {
	mu   sync.Mutex
	data map[string]string
	err  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[string]string)}
}

func (s *fakeStore) Get(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data[key], s.err
}

func (s *fakeStore) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.data[key] = fmt.Sprintf("%v", value)
	return nil
}

func (s *fakeStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return false, s.err
	}
	if _, exists := s.data[key]; exists {
		return false, nil
	}
	s.data[key] = fmt.Sprintf("%v", value)
	return true, nil
}

func (s *fakeStore) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("tb:idempotency:%s:%s", scope, id)
}

func (s *fakeStore) Del(ctx context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	for _, key := range keys {
		delete(s.data, key)
	}
	return nil
}
