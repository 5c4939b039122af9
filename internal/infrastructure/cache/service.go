package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	jsoniter "github.com/json-iterator/go"
	"golang.org/x/sync/singleflight"

	"storefront/pkg/logx"
)

// DefaultTTL applies to Set calls without a positive TTL.
const DefaultTTL = 300 * time.Second

// DefaultComputeTimeout bounds a shared GetOrSet compute, which no longer
// follows any single caller's context.
const DefaultComputeTimeout = 30 * time.Second

var json = jsoniter.ConfigCompatibleWithStandardLibrary //nolint:gochecknoglobals

// Option configures a Service.
type Option func(*Service)

// WithDefaultTTL overrides DefaultTTL; non-positive values are ignored.
func WithDefaultTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.defaultTTL = ttl
		}
	}
}

// WithMetrics records hits, misses, store errors and compute time on m.
func WithMetrics(m *Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithComputeTimeout overrides DefaultComputeTimeout; non-positive values
// are ignored.
func WithComputeTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.computeTimeout = d
		}
	}
}

// Service is the cache-aside facade. None of its methods return store
// errors: failures are logged and reported as a miss, false or zero.
type Service struct {
	store          Store
	defaultTTL     time.Duration
	computeTimeout time.Duration
	metrics        *Metrics
	inflight       singleflight.Group
}

// NewService wraps store. A nil store gives a service that always misses.
func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:          store,
		defaultTTL:     DefaultTTL,
		computeTimeout: DefaultComputeTimeout,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// IsAvailable reports whether the store currently accepts commands.
func (s *Service) IsAvailable() bool {
	return s.store != nil && s.store.Ready()
}

// Get decodes the cached value into dest and reports whether it did.
func (s *Service) Get(ctx context.Context, key string, dest any) bool {
	if !s.IsAvailable() {
		return false
	}

	b, err := s.store.Get(ctx, key)
	if errors.Is(err, ErrMiss) {
		s.metrics.miss()

		return false
	}

	if err != nil {
		s.warn(ctx, "get", key, err)

		return false
	}

	if err = json.Unmarshal(b, dest); err != nil {
		s.warn(ctx, "decode", key, err)

		return false
	}

	s.metrics.hit()

	return true
}

// Set stores value for ttl, or for the default TTL when ttl is not positive.
func (s *Service) Set(ctx context.Context, key string, value any, ttl time.Duration) {
	if !s.IsAvailable() {
		return
	}

	if ttl <= 0 {
		ttl = s.defaultTTL
	}

	b, err := json.Marshal(value)
	if err != nil {
		s.warn(ctx, "encode", key, err)

		return
	}

	if err = s.store.SetEx(ctx, key, b, ttl); err != nil {
		s.warn(ctx, "set", key, err)
	}
}

// Del removes keys; missing keys are ignored.
func (s *Service) Del(ctx context.Context, keys ...string) {
	if !s.IsAvailable() || len(keys) == 0 {
		return
	}

	if _, err := s.store.Del(ctx, keys...); err != nil {
		s.warn(ctx, "del", keys[0], err)
	}
}

// DelPattern removes every key matching the glob and returns how many went.
// Keys written between the lookup and the delete survive.
func (s *Service) DelPattern(ctx context.Context, pattern string) int {
	if !s.IsAvailable() {
		return 0
	}

	keys, err := s.store.Keys(ctx, pattern)
	if err != nil {
		s.failed(ctx, "keys", err, slog.String(logx.FieldCachePattern, pattern))

		return 0
	}

	if len(keys) == 0 {
		return 0
	}

	n, err := s.store.Del(ctx, keys...)
	if err != nil {
		s.failed(ctx, "del", err, slog.String(logx.FieldCachePattern, pattern))

		return 0
	}

	return int(n)
}

// Exists is false for missing keys and while the store is down.
func (s *Service) Exists(ctx context.Context, key string) bool {
	if !s.IsAvailable() {
		return false
	}

	ok, err := s.store.Exists(ctx, key)
	if err != nil {
		s.warn(ctx, "exists", key, err)

		return false
	}

	return ok
}

// Incr increments the integer at key, starting from zero, and returns the
// new value. ok is false when the store failed.
func (s *Service) Incr(ctx context.Context, key string) (int64, bool) {
	if !s.IsAvailable() {
		return 0, false
	}

	n, err := s.store.Incr(ctx, key)
	if err != nil {
		s.warn(ctx, "incr", key, err)

		return 0, false
	}

	return n, true
}

// Decr is Incr downwards.
func (s *Service) Decr(ctx context.Context, key string) (int64, bool) {
	if !s.IsAvailable() {
		return 0, false
	}

	n, err := s.store.Decr(ctx, key)
	if err != nil {
		s.warn(ctx, "decr", key, err)

		return 0, false
	}

	return n, true
}

// Expire resets the TTL of an existing key.
func (s *Service) Expire(ctx context.Context, key string, ttl time.Duration) bool {
	if !s.IsAvailable() {
		return false
	}

	ok, err := s.store.Expire(ctx, key, ttl)
	if err != nil {
		s.warn(ctx, "expire", key, err)

		return false
	}

	return ok
}

// Flush drops every key of the store's database.
func (s *Service) Flush(ctx context.Context) bool {
	if !s.IsAvailable() {
		return false
	}

	if err := s.store.FlushDB(ctx); err != nil {
		s.failed(ctx, "flush", err)

		return false
	}

	return true
}

// readCounter returns the integer stored at key without recording a hit or
// miss; a missing key reads as zero. ok is false when the store failed.
func (s *Service) readCounter(ctx context.Context, key string) (int64, bool) {
	if !s.IsAvailable() {
		return 0, false
	}

	b, err := s.store.Get(ctx, key)
	if errors.Is(err, ErrMiss) {
		return 0, true
	}

	if err != nil {
		s.warn(ctx, "get", key, err)

		return 0, false
	}

	n, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		s.warn(ctx, "decode", key, err)

		return 0, false
	}

	return n, true
}

// GetOrSet returns the cached value of key or computes, stores and returns
// it. Concurrent misses on one key share a single compute call, which runs
// detached from the callers' cancellation and bounded by the compute
// timeout; a caller whose own ctx ends stops waiting without affecting the
// others. A compute error is returned as is and nothing is cached.
func GetOrSet[T any](
	ctx context.Context,
	s *Service,
	key string,
	ttl time.Duration,
	compute func(ctx context.Context) (T, error),
) (T, error) {
	var cached T
	if s.Get(ctx, key, &cached) {
		return cached, nil
	}

	flight := s.inflight.DoChan(key, func() (any, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.computeTimeout)
		defer cancel()

		start := time.Now()

		value, err := compute(ctx)
		if err != nil {
			return nil, err
		}

		s.metrics.computed(time.Since(start))
		s.Set(ctx, key, value, ttl)

		return value, nil
	})

	var result singleflight.Result

	select {
	case <-ctx.Done():
		var zero T

		return zero, fmt.Errorf("compute %s: %w", key, ctx.Err())
	case result = <-flight:
	}

	if result.Err != nil {
		var zero T

		return zero, fmt.Errorf("compute %s: %w", key, result.Err)
	}

	value, ok := result.Val.(T)
	if !ok {
		return compute(ctx)
	}

	return value, nil
}

func (s *Service) warn(ctx context.Context, operation, key string, err error) {
	s.failed(ctx, operation, err, slog.String(logx.FieldCacheKey, key))
}

func (s *Service) failed(ctx context.Context, operation string, err error, attrs ...any) {
	s.metrics.failed(operation)

	logger(ctx).Warn(
		"cache operation failed",
		append([]any{slog.String(logx.FieldOperation, operation), logx.Error(err)}, attrs...)...,
	)
}
