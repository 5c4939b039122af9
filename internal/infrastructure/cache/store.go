// Package cache is the cache-aside layer over a TTL key-value store. The
// store is optional: every Service operation fails soft.
package cache

import (
	"context"
	"errors"
	"time"

	"storefront/pkg/contextx"
)

var logger = contextx.LoggerFromContextOrDefault //nolint:gochecknoglobals

var (
	ErrMiss        = errors.New("cache miss")
	ErrNotInteger  = errors.New("value is not an integer")
	ErrUnavailable = errors.New("cache store unavailable")
)

// Store is the subset of key-value commands the cache relies on. Get returns
// ErrMiss for an absent key.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetEx(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) (int64, error)
	Keys(ctx context.Context, pattern string) ([]string, error)
	Exists(ctx context.Context, key string) (bool, error)
	Incr(ctx context.Context, key string) (int64, error)
	Decr(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	FlushDB(ctx context.Context) error
	Ready() bool
}
