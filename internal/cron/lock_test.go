package cron

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryLockStore struct {
	values map[string]string
}

func (m *memoryLockStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value.(string)
	return true, nil
}

func (m *memoryLockStore) CompareAndExpire(_ context.Context, key, expected string, _ time.Duration) (bool, error) {
	return m.values[key] == expected, nil
}

func (m *memoryLockStore) CompareAndDelete(_ context.Context, key, expected string) (bool, error) {
	if m.values[key] != expected {
		return false, nil
	}
	delete(m.values, key)
	return true, nil
}

func TestRedisLockExcludesSecondWorker(t *testing.T) {
	store := &memoryLockStore{values: map[string]string{}}
	first, err := NewRedisLock(store, "pl:lock:cron", time.Minute)
	if err != nil {
		t.Fatalf("NewRedisLock: %v", err)
	}
	second, _ := NewRedisLock(store, "pl:lock:cron", time.Minute)
	ctx := context.Background()

	if ok, err := first.Acquire(ctx); err != nil || !ok {
		t.Fatalf("first acquire: ok=%v err=%v", ok, err)
	}
	if ok, _ := second.Acquire(ctx); ok {
		t.Fatal("second worker acquired a held lock")
	}
	if err := second.Release(ctx); err != nil {
		t.Fatalf("release without ownership: %v", err)
	}
	if _, held := store.values["pl:lock:cron"]; !held {
		t.Fatal("non-owner release removed the lock")
	}
	if err := first.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if ok, _ := second.Acquire(ctx); !ok {
		t.Fatal("lock not reusable after release")
	}
}

func TestRedisLockLeavesTakenOverLease(t *testing.T) {
	store := &memoryLockStore{values: map[string]string{}}
	lock, _ := NewRedisLock(store, "k", time.Minute)
	ctx := context.Background()
	if ok, _ := lock.Acquire(ctx); !ok {
		t.Fatal("acquire failed")
	}
	store.values["k"] = "someone-else"
	if err := lock.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if store.values["k"] != "someone-else" {
		t.Fatal("release deleted another worker's lease")
	}
}

func TestRedisLockRefreshStopsOnceLeaseIsGone(t *testing.T) {
	store := &memoryLockStore{values: map[string]string{}}
	lock, err := NewRedisLock(store, "k", time.Minute)
	require.NoError(t, err)
	ctx := context.Background()

	kept, err := lock.Refresh(ctx)
	require.NoError(t, err)
	assert.False(t, kept, "refresh before acquire")

	won, err := lock.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, won)
	kept, err = lock.Refresh(ctx)
	require.NoError(t, err)
	assert.True(t, kept)

	store.values["k"] = "someone-else"
	kept, err = lock.Refresh(ctx)
	require.NoError(t, err)
	assert.False(t, kept)
	require.NoError(t, lock.Release(ctx))
	assert.Equal(t, "someone-else", store.values["k"])
}

func TestNewRedisLockDefaultsTTL(t *testing.T) {
	lock, err := NewRedisLock(&memoryLockStore{}, "k", 0)
	require.NoError(t, err)
	assert.Equal(t, defaultLockTTL, lock.TTL())

	_, err = NewRedisLock(nil, "k", 0)
	assert.Error(t, err)
	_, err = NewRedisLock(&memoryLockStore{}, "", 0)
	assert.Error(t, err)
}
