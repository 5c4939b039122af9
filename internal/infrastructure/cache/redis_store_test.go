package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"storefront/internal/infrastructure/cache"
)

func newRedisStore(t *testing.T) (*cache.RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{ //nolint:exhaustruct
		Addr:       mr.Addr(),
		MaxRetries: -1,
	})
	t.Cleanup(func() { _ = client.Close() })

	store := cache.NewRedisStore(client)
	require.NoError(t, store.Probe(context.Background()))

	return store, mr
}

func TestRedisStore_Commands(t *testing.T) {
	rq := require.New(t)
	ctx := context.Background()
	store, mr := newRedisStore(t)

	rq.True(store.Ready())

	_, err := store.Get(ctx, "absent")
	rq.ErrorIs(err, cache.ErrMiss)

	rq.NoError(store.SetEx(ctx, "product:v0:sold_count:1", []byte(`5`), time.Minute))
	rq.NoError(store.SetEx(ctx, "product:v0:sold_count:2", []byte(`7`), time.Minute))
	rq.NoError(store.SetEx(ctx, "product:v0:top_selling:10", []byte(`[]`), time.Minute))

	got, err := store.Get(ctx, "product:v0:sold_count:1")
	rq.NoError(err)
	rq.Equal([]byte(`5`), got)

	keys, err := store.Keys(ctx, "product:v0:sold_count:*")
	rq.NoError(err)
	rq.ElementsMatch([]string{"product:v0:sold_count:1", "product:v0:sold_count:2"}, keys)

	exists, err := store.Exists(ctx, "product:v0:sold_count:2")
	rq.NoError(err)
	rq.True(exists)

	n, err := store.Del(ctx, "product:v0:sold_count:1", "product:v0:sold_count:9")
	rq.NoError(err)
	rq.Equal(int64(1), n)

	n, err = store.Incr(ctx, "product:version")
	rq.NoError(err)
	rq.Equal(int64(1), n)

	n, err = store.Decr(ctx, "product:version")
	rq.NoError(err)
	rq.Equal(int64(0), n)

	ok, err := store.Expire(ctx, "product:version", time.Second)
	rq.NoError(err)
	rq.True(ok)

	ok, err = store.Expire(ctx, "absent", time.Second)
	rq.NoError(err)
	rq.False(ok)

	mr.FastForward(2 * time.Minute)

	_, err = store.Get(ctx, "product:v0:sold_count:2")
	rq.ErrorIs(err, cache.ErrMiss)

	rq.NoError(store.SetEx(ctx, "k", []byte(`1`), time.Minute))
	rq.NoError(store.FlushDB(ctx))
	rq.Empty(mr.Keys())
}

func TestRedisStore_Readiness(t *testing.T) {
	rq := require.New(t)
	ctx := context.Background()
	store, mr := newRedisStore(t)

	rq.NoError(store.SetEx(ctx, "text", []byte(`not a number`), time.Minute))

	_, err := store.Incr(ctx, "text")
	rq.Error(err)
	rq.True(store.Ready(), "an error reply does not mean the server is gone")

	expired, cancel := context.WithDeadline(ctx, time.Now().Add(-time.Second))
	defer cancel()

	_, err = store.Get(expired, "text")
	rq.ErrorIs(err, context.DeadlineExceeded)
	rq.True(store.Ready(), "a caller's deadline does not mean the server is gone")

	mr.Close()

	_, err = store.Get(ctx, "text")
	rq.Error(err)
	rq.NotErrorIs(err, cache.ErrMiss)
	rq.False(store.Ready())

	rq.Error(store.Probe(ctx))
	rq.False(store.Ready())
}

func TestRedisStore_Watch(t *testing.T) {
	rq := require.New(t)
	store, mr := newRedisStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() { done <- store.Watch(ctx, 10*time.Millisecond) }()

	rq.Eventually(store.Ready, time.Second, 5*time.Millisecond)

	mr.Close()
	rq.Eventually(func() bool { return !store.Ready() }, time.Second, 5*time.Millisecond)

	cancel()
	rq.NoError(<-done)
}
