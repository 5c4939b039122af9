package connectors

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"storefront/pkg/logx"
)

// Redis holds the process-wide pooled client. The cache built on it is
// optional, so a failed initial ping is logged instead of aborting startup;
// the driver keeps reconnecting with bounded exponential backoff.
type Redis struct {
	value              *redis.Client
	Username           string
	Password           string
	Address            string
	DatabaseNumber     int
	PoolSize           int
	MinIdleConnections int
	MaxIdleConnections int
	MaxRetries         int
	MinRetryBackoff    time.Duration
	MaxRetryBackoff    time.Duration
	DialTimeout        time.Duration
	init               sync.Once
}

func (r *Redis) Client(ctx context.Context) *redis.Client {
	r.init.Do(func() {
		r.value = redis.NewClient(&redis.Options{
			//nolint:exhaustruct
			Network:         "tcp",
			Addr:            r.Address,
			Username:        r.Username,
			Password:        r.Password,
			DB:              r.DatabaseNumber,
			PoolSize:        r.PoolSize,
			MinIdleConns:    r.MinIdleConnections,
			MaxIdleConns:    r.MaxIdleConnections,
			MaxRetries:      r.MaxRetries,
			MinRetryBackoff: r.MinRetryBackoff,
			MaxRetryBackoff: r.MaxRetryBackoff,
			DialTimeout:     r.DialTimeout,
		})

		if err := r.value.Ping(ctx).Err(); err != nil {
			logger(ctx).Warn(
				"redis unavailable, cache degraded",
				slog.String("address", r.Address),
				logx.Error(err),
			)

			return
		}

		logger(ctx).Info(
			"redis connected",
			slog.String("address", r.Address),
			slog.Int("database", r.DatabaseNumber),
		)
	})

	return r.value
}

func (r *Redis) Ping(ctx context.Context) error {
	if r.value == nil {
		return fmt.Errorf("redis: %w", errNotConnected)
	}

	if err := r.value.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redisClient.Ping: %w", err)
	}

	return nil
}

func (r *Redis) Close(ctx context.Context) {
	if r.value == nil {
		return
	}

	if err := r.value.Close(); err != nil {
		logger(ctx).Error("redisClient.Close", logx.Error(err))
	}

	logger(ctx).Info(
		"redis disconnected",
		slog.String("address", r.Address),
		slog.Int("database", r.DatabaseNumber),
	)
}
