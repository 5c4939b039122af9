package cache

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"
)

// VersionReuse is how long a read namespace version is reused before the
// store is asked again. Bumps made through the same Keyspace apply at once.
const VersionReuse = time.Second

// Keyspace builds keys tagged with a namespace version, e.g.
// "product:v3:sold_count:42". Bumping the version orphans every key of the
// namespace at once; orphans expire through their TTL. Copies share the
// remembered version.
type Keyspace struct {
	cache     *Service
	namespace string
	memo      *versionMemo
}

type versionMemo struct {
	mu      sync.Mutex
	version int64
	readAt  time.Time
	now     func() time.Time
}

// NewKeyspace returns the keyspace of namespace on cache.
func NewKeyspace(cache *Service, namespace string) Keyspace {
	return Keyspace{
		cache:     cache,
		namespace: namespace,
		memo:      &versionMemo{now: time.Now},
	}
}

func (k Keyspace) versionKey() string {
	return k.namespace + ":version"
}

// Version is 0 until the first bump or while the cache is unavailable. A
// version read within VersionReuse is served without a store round trip.
func (k Keyspace) Version(ctx context.Context) int64 {
	if version, ok := k.memo.fresh(); ok {
		return version
	}

	version, ok := k.cache.readCounter(ctx, k.versionKey())
	if !ok {
		return 0
	}

	k.memo.remember(version)

	return version
}

// Key joins parts under the current version.
func (k Keyspace) Key(ctx context.Context, parts ...string) string {
	return k.build(k.Version(ctx), parts)
}

// Pattern is Key with glob parts allowed.
func (k Keyspace) Pattern(ctx context.Context, parts ...string) string {
	return k.Key(ctx, parts...)
}

// BumpVersion moves the namespace to a new version and returns it. ok is
// false when the cache is unavailable.
func (k Keyspace) BumpVersion(ctx context.Context) (int64, bool) {
	version, ok := k.cache.Incr(ctx, k.versionKey())
	if ok {
		k.memo.remember(version)
	}

	return version, ok
}

func (k Keyspace) build(version int64, parts []string) string {
	var b strings.Builder

	b.WriteString(k.namespace)
	b.WriteString(":v")
	b.WriteString(strconv.FormatInt(version, 10))

	for _, part := range parts {
		b.WriteByte(':')
		b.WriteString(part)
	}

	return b.String()
}

func (m *versionMemo) fresh() (int64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.readAt.IsZero() || m.now().Sub(m.readAt) >= VersionReuse {
		return 0, false
	}

	return m.version, true
}

func (m *versionMemo) remember(version int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.version = version
	m.readAt = m.now()
}
