package tiktokwebhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/philiathrifts/thriftbot/pkg/logger"
	"github.com/philiathrifts/thriftbot/pkg/redis"
)

const guardScope = "tiktok"

// IdempotencyGuard deduplicates webhook deliveries via a TTL-bounded SETNX
// marker. Unlike a payment-grade guard it fails OPEN: when Redis is down a
// duplicate reply beats a dropped customer message.
type IdempotencyGuard struct {
	store redis.IdempotencyStore
	ttl   time.Duration
	logg  *logger.Logger
}

func NewIdempotencyGuard(store redis.IdempotencyStore, ttl time.Duration, logg *logger.Logger) (*IdempotencyGuard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl <= 0 {
		return nil, errors.New("ttl must be positive")
	}
	return &IdempotencyGuard{
		store: store,
		ttl:   ttl,
		logg:  logg,
	}, nil
}

// CheckAndMark claims the event id. It returns true when the event was seen
// before. Store errors are logged and treated as "not a duplicate".
func (g *IdempotencyGuard) CheckAndMark(ctx context.Context, eventID string) (bool, error) {
	if eventID == "" {
		return false, errors.New("event id is required")
	}
	key := g.store.IdempotencyKey(guardScope, eventID)
	set, err := g.store.SetNX(ctx, key, "processing", g.ttl)
	if err != nil {
		if g.logg != nil {
			g.logg.Error(ctx, "idempotency store unavailable, processing without dedupe", err)
		}
		return false, nil
	}
	return !set, nil
}

// MarkCompleted records the terminal status on the existing marker so a
// late duplicate can be traced to its outcome. Best effort.
func (g *IdempotencyGuard) MarkCompleted(ctx context.Context, eventID, status string) {
	if eventID == "" {
		return
	}
	key := g.store.IdempotencyKey(guardScope, eventID)
	if err := g.store.Set(ctx, key, fmt.Sprintf("completed:%s", status), g.ttl); err != nil && g.logg != nil {
		g.logg.Warn(ctx, fmt.Sprintf("failed to mark event %s completed: %v", eventID, err))
	}
}

// Release drops the marker so the platform's retry can be reprocessed after a
// dispatch failure.
func (g *IdempotencyGuard) Release(ctx context.Context, eventID string) error {
	if eventID == "" {
		return errors.New("event id is required")
	}
	key := g.store.IdempotencyKey(guardScope, eventID)
	return g.store.Del(ctx, key)
}
