package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	redislib "github.com/redis/go-redis/v9"
)

type sessionStore interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
	AccessSessionKey(accessID string) string
}

// AccessSessionChecker is the read side used by the auth middleware.
type AccessSessionChecker interface {
	HasSession(ctx context.Context, accessID string) (bool, error)
}

// Registry tracks live access sessions by token id (jti). The identity
// service registers sessions at login; revoking one invalidates the token
// here before it expires.
type Registry struct {
	store sessionStore
}

func NewRegistry(store sessionStore) (*Registry, error) {
	if store == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	return &Registry{store: store}, nil
}

// Register marks accessID live for ttl.
func (r *Registry) Register(ctx context.Context, accessID string, ttl time.Duration) error {
	if strings.TrimSpace(accessID) == "" {
		return fmt.Errorf("access id is required")
	}
	if ttl <= 0 {
		return fmt.Errorf("session ttl must be positive")
	}
	return r.store.Set(ctx, r.store.AccessSessionKey(accessID), "1", ttl)
}

func (r *Registry) Revoke(ctx context.Context, accessID string) error {
	if strings.TrimSpace(accessID) == "" {
		return fmt.Errorf("access id is required")
	}
	return r.store.Del(ctx, r.store.AccessSessionKey(accessID))
}

func (r *Registry) HasSession(ctx context.Context, accessID string) (bool, error) {
	if strings.TrimSpace(accessID) == "" {
		return false, fmt.Errorf("access id is required")
	}
	if _, err := r.store.Get(ctx, r.store.AccessSessionKey(accessID)); err != nil {
		if errors.Is(err, redislib.Nil) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
