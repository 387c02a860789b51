package stripewebhook

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	values map[string]string
	ttls   map[string]time.Duration
}

func newMemoryStore() *memoryStore {
	return &memoryStore{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memoryStore) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	m.values[key] = fmt.Sprint(value)
	m.ttls[key] = ttl
	return nil
}

func (m *memoryStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	return true, m.Set(ctx, key, value, ttl)
}

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(m.values, key)
	}
	return nil
}

func (m *memoryStore) IdempotencyKey(scope, id string) string { return scope + ":" + id }

func TestIdempotencyGuardClaimCompleteRelease(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	guard, err := NewIdempotencyGuard(store, 24*time.Hour, "stripe")
	require.NoError(t, err)

	dup, err := guard.Claim(ctx, "evt_1")
	require.NoError(t, err)
	assert.False(t, dup)

	dup, err = guard.Claim(ctx, "evt_1")
	require.NoError(t, err)
	assert.True(t, dup, "in-flight event must be reported as duplicate")

	require.NoError(t, guard.Release(ctx, "evt_1"))
	dup, err = guard.Claim(ctx, "evt_1")
	require.NoError(t, err)
	assert.False(t, dup, "released event must be claimable by the retry")

	require.NoError(t, guard.Complete(ctx, "evt_1"))
	assert.Equal(t, markerDone, store.values["stripe:evt_1"])
	assert.Equal(t, 24*time.Hour, store.ttls["stripe:evt_1"])
	dup, err = guard.Claim(ctx, "evt_1")
	require.NoError(t, err)
	assert.True(t, dup)
}

func TestIdempotencyGuardValidates(t *testing.T) {
	_, err := NewIdempotencyGuard(nil, time.Hour, "stripe")
	assert.Error(t, err)
	_, err = NewIdempotencyGuard(newMemoryStore(), 0, "stripe")
	assert.Error(t, err)
	_, err = NewIdempotencyGuard(newMemoryStore(), time.Hour, "")
	assert.Error(t, err)

	guard, _ := NewIdempotencyGuard(newMemoryStore(), time.Hour, "stripe")
	_, err = guard.Claim(context.Background(), "")
	assert.Error(t, err)
}
