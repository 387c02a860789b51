package stripewebhook

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	markerProcessing   = "processing"
	markerDone         = "done"
	processingLeaseTTL = 5 * time.Minute
)

type idempotencyStore interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
}

// IdempotencyGuard deduplicates Stripe deliveries by event id. An event is
// claimed with a short processing lease and marked done once handled; a
// failed delivery releases the claim so Stripe's retry is processed. The
// ledger's own uniqueness makes a duplicate that slips through harmless.
type IdempotencyGuard struct {
	store idempotencyStore
	ttl   time.Duration
	scope string
}

func NewIdempotencyGuard(store idempotencyStore, ttl time.Duration, scope string) (*IdempotencyGuard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl <= 0 {
		return nil, errors.New("ttl must be positive")
	}
	if scope == "" {
		return nil, errors.New("scope is required")
	}
	return &IdempotencyGuard{store: store, ttl: ttl, scope: scope}, nil
}

// Claim reports duplicate=true when the event is done or being handled by
// another delivery.
func (g *IdempotencyGuard) Claim(ctx context.Context, eventID string) (bool, error) {
	if eventID == "" {
		return false, errors.New("event id is required")
	}
	set, err := g.store.SetNX(ctx, g.key(eventID), markerProcessing, processingLeaseTTL)
	if err != nil {
		return false, fmt.Errorf("claim webhook event: %w", err)
	}
	return !set, nil
}

// Complete keeps the marker for the full retention window.
func (g *IdempotencyGuard) Complete(ctx context.Context, eventID string) error {
	if eventID == "" {
		return errors.New("event id is required")
	}
	if err := g.store.Set(ctx, g.key(eventID), markerDone, g.ttl); err != nil {
		return fmt.Errorf("complete webhook event: %w", err)
	}
	return nil
}

// Release drops the claim after a failed delivery.
func (g *IdempotencyGuard) Release(ctx context.Context, eventID string) error {
	if eventID == "" {
		return errors.New("event id is required")
	}
	return g.store.Del(ctx, g.key(eventID))
}

func (g *IdempotencyGuard) key(eventID string) string {
	return g.store.IdempotencyKey(g.scope, eventID)
}
