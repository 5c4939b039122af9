package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"storefront/pkg/logx"
)

// RedisStore adapts a go-redis client. Readiness is tracked locally: Probe
// and the Watch loop set it from PING, and a connection error on any command
// clears it until the next successful probe.
type RedisStore struct {
	client *redis.Client
	ready  atomic.Bool
}

// NewRedisStore wraps client. The store reports not ready until the first
// successful Probe.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Ready reports the outcome of the last probe or command.
func (r *RedisStore) Ready() bool {
	return r.ready.Load()
}

// Probe pings Redis and records the result as readiness.
func (r *RedisStore) Probe(ctx context.Context) error {
	err := r.client.Ping(ctx).Err()

	was := r.ready.Swap(err == nil)
	if was != (err == nil) {
		logger(ctx).Info("redis readiness changed", slog.Bool("ready", err == nil))
	}

	if err != nil {
		return fmt.Errorf("redisClient.Ping: %w", err)
	}

	return nil
}

// Watch probes the connection every interval until ctx is done.
func (r *RedisStore) Watch(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := r.Probe(ctx); err != nil && ctx.Err() == nil {
			logger(ctx).Debug("redis probe failed", logx.Error(err))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}

	if err != nil {
		return nil, r.fail("redisClient.Get", err)
	}

	return b, nil
}

func (r *RedisStore) SetEx(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := r.client.SetEx(ctx, key, value, ttl).Err(); err != nil {
		return r.fail("redisClient.SetEx", err)
	}

	return nil
}

func (r *RedisStore) Del(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}

	n, err := r.client.Del(ctx, keys...).Result()
	if err != nil {
		return 0, r.fail("redisClient.Del", err)
	}

	return n, nil
}

func (r *RedisStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	keys, err := r.client.Keys(ctx, pattern).Result()
	if err != nil {
		return nil, r.fail("redisClient.Keys", err)
	}

	return keys, nil
}

func (r *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return false, r.fail("redisClient.Exists", err)
	}

	return n > 0, nil
}

func (r *RedisStore) Incr(ctx context.Context, key string) (int64, error) {
	n, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, r.fail("redisClient.Incr", err)
	}

	return n, nil
}

func (r *RedisStore) Decr(ctx context.Context, key string) (int64, error) {
	n, err := r.client.Decr(ctx, key).Result()
	if err != nil {
		return 0, r.fail("redisClient.Decr", err)
	}

	return n, nil
}

func (r *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := r.client.Expire(ctx, key, ttl).Result()
	if err != nil {
		return false, r.fail("redisClient.Expire", err)
	}

	return ok, nil
}

func (r *RedisStore) FlushDB(ctx context.Context) error {
	if err := r.client.FlushDB(ctx).Err(); err != nil {
		return r.fail("redisClient.FlushDB", err)
	}

	return nil
}

// fail wraps err and drops readiness when the server could not be reached.
// Error replies from a healthy server keep the store ready, and so does a
// caller's own cancellation or deadline. Server-side stalls surface as
// network timeouts and still drop readiness.
func (r *RedisStore) fail(op string, err error) error {
	var reply redis.Error
	if !errors.As(err, &reply) &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded) {
		r.ready.Store(false)
	}

	return fmt.Errorf("%s: %w", op, err)
}
