package cache

import (
	"context"
	"fmt"
	"path"
	"strconv"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

const memoryCleanupInterval = time.Minute

// MemoryStore keeps entries in process. It backs the cache when no Redis
// address is configured and in tests.
type MemoryStore struct {
	items *gocache.Cache
	// mu serializes read-modify-write commands.
	mu sync.Mutex
}

// NewMemoryStore returns an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items: gocache.New(gocache.NoExpiration, memoryCleanupInterval),
	}
}

// Ready is always true.
func (m *MemoryStore) Ready() bool {
	return true
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	v, ok := m.items.Get(key)
	if !ok {
		return nil, ErrMiss
	}

	switch value := v.(type) {
	case []byte:
		return value, nil
	case int64:
		return []byte(strconv.FormatInt(value, 10)), nil
	default:
		return nil, fmt.Errorf("unexpected value type %T for %q", v, key)
	}
}

func (m *MemoryStore) SetEx(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.items.Set(key, value, ttl)

	return nil
}

func (m *MemoryStore) Del(_ context.Context, keys ...string) (int64, error) {
	var n int64

	for _, key := range keys {
		if _, ok := m.items.Get(key); ok {
			m.items.Delete(key)
			n++
		}
	}

	return n, nil
}

// Keys matches with path.Match, which agrees with Redis globs for keys that
// contain no '/'.
func (m *MemoryStore) Keys(_ context.Context, pattern string) ([]string, error) {
	var keys []string

	for key := range m.items.Items() {
		ok, err := path.Match(pattern, key)
		if err != nil {
			return nil, fmt.Errorf("path.Match: %w", err)
		}

		if ok {
			keys = append(keys, key)
		}
	}

	return keys, nil
}

func (m *MemoryStore) Exists(_ context.Context, key string) (bool, error) {
	_, ok := m.items.Get(key)

	return ok, nil
}

func (m *MemoryStore) Incr(_ context.Context, key string) (int64, error) {
	return m.add(key, 1)
}

func (m *MemoryStore) Decr(_ context.Context, key string) (int64, error) {
	return m.add(key, -1)
}

func (m *MemoryStore) Expire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.items.Get(key)
	if !ok {
		return false, nil
	}

	m.items.Set(key, v, ttl)

	return true, nil
}

func (m *MemoryStore) FlushDB(context.Context) error {
	m.items.Flush()

	return nil
}

// add follows INCRBY: a missing key starts at zero and has no expiry, a
// numeric byte value is parsed.
func (m *MemoryStore) add(key string, delta int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, expiresAt, ok := m.items.GetWithExpiration(key)
	if !ok || (!expiresAt.IsZero() && !time.Now().Before(expiresAt)) {
		m.items.Set(key, delta, gocache.NoExpiration)

		return delta, nil
	}

	var current int64

	switch value := v.(type) {
	case int64:
		current = value
	case []byte:
		parsed, err := strconv.ParseInt(string(value), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%q: %w", key, ErrNotInteger)
		}

		current = parsed
	default:
		return 0, fmt.Errorf("%q: %w", key, ErrNotInteger)
	}

	ttl := gocache.NoExpiration
	if !expiresAt.IsZero() {
		ttl = time.Until(expiresAt)
	}

	m.items.Set(key, current+delta, ttl)

	return current + delta, nil
}
