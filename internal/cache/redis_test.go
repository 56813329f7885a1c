package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/storefront-search/internal/cachekey"
)

func newRedisBackend(t *testing.T) (*RedisBackend, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisBackend(client, "search:cache:"), mr
}

func TestRedisBackend_SetGet(t *testing.T) {
	b, mr := newRedisBackend(t)
	ctx := context.Background()

	_, ok, err := b.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, b.Set(ctx, Entry{Key: "k", Value: []byte("v"), ExpiresAt: time.Now().Add(time.Minute)}))
	e, ok, err := b.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v"), e.Value)
	assert.True(t, e.ExpiresAt.After(time.Now()))

	mr.FastForward(time.Minute)
	_, ok, err = b.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisBackend_SetSkipsExpired(t *testing.T) {
	b, mr := newRedisBackend(t)
	require.NoError(t, b.Set(context.Background(), Entry{Key: "k", Value: []byte("v"), ExpiresAt: time.Now().Add(-time.Second)}))
	assert.Empty(t, mr.Keys())
}

func TestRedisBackend_DeleteMatching(t *testing.T) {
	b, _ := newRedisBackend(t)
	ctx := context.Background()
	exp := time.Now().Add(time.Minute)

	keys := []string{
		key(cachekey.NamespaceSearch, "42", 1, "aaa"),
		key(cachekey.NamespaceFacets, "42", 1, "bbb"),
		key(cachekey.NamespaceSearch, "7", 1, "ccc"),
		key(cachekey.NamespaceSearch, "x/42", 1, "ddd"),
	}
	for _, k := range keys {
		require.NoError(t, b.Set(ctx, Entry{Key: k, Value: []byte("x"), ExpiresAt: exp}))
	}

	n, err := b.DeleteMatching(ctx, cachekey.TenantPattern("42"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	for i, k := range keys {
		_, ok, err := b.Get(ctx, k)
		require.NoError(t, err)
		assert.Equal(t, i >= 2, ok, k)
	}
}

func TestRedisBackend_DeleteTagged(t *testing.T) {
	b, mr := newRedisBackend(t)
	ctx := context.Background()
	exp := time.Now().Add(time.Minute)

	require.NoError(t, b.Set(ctx, Entry{Key: "a", Value: []byte("1"), ExpiresAt: exp, Tags: []string{"tenant:42"}}))
	require.NoError(t, b.Set(ctx, Entry{Key: "b", Value: []byte("2"), ExpiresAt: exp, Tags: []string{"tenant:42", "fcv:42:3"}}))
	require.NoError(t, b.Set(ctx, Entry{Key: "c", Value: []byte("3"), ExpiresAt: exp, Tags: []string{"tenant:7"}}))

	n, err := b.DeleteTagged(ctx, []string{"tenant:42"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.False(t, mr.Exists("search:cache:tag:tenant:42"))

	_, ok, _ := b.Get(ctx, "c")
	assert.True(t, ok)

	n, err = b.DeleteTagged(ctx, []string{"unknown"})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRedisBackend_TagOutlivesLongestMember(t *testing.T) {
	b, mr := newRedisBackend(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, b.Set(ctx, Entry{Key: "long", Value: []byte("1"), ExpiresAt: now.Add(10 * time.Minute), Tags: []string{"tenant:42"}}))
	require.NoError(t, b.Set(ctx, Entry{Key: "short", Value: []byte("2"), ExpiresAt: now.Add(time.Minute), Tags: []string{"tenant:42"}}))

	assert.Greater(t, mr.TTL("search:cache:tag:tenant:42"), 5*time.Minute, "a shorter write does not shrink the tag set")

	mr.FastForward(2 * time.Minute)
	require.True(t, mr.Exists("search:cache:tag:tenant:42"))

	n, err := b.DeleteTagged(ctx, []string{"tenant:42"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	_, ok, err := b.Get(ctx, "long")
	require.NoError(t, err)
	assert.False(t, ok, "the long-lived entry is still reachable through its tag")
}

func TestRedisBackend_WithManager(t *testing.T) {
	b, mr := newRedisBackend(t)
	m := New(b, testLogger(), WithName("redis-test"))
	ctx := context.Background()

	v, hit, err := m.GetOrCompute(ctx, "k", time.Minute, []string{"tenant:1"}, func(context.Context) ([]byte, error) {
		return []byte("value"), nil
	})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, []byte("value"), v)

	_, hit, err = m.GetOrCompute(ctx, "k", time.Minute, nil, func(context.Context) ([]byte, error) {
		t.Error("should be served from cache")
		return nil, nil
	})
	require.NoError(t, err)
	assert.True(t, hit)

	require.NoError(t, m.Ping(ctx))
	mr.Close()
	_, ok := m.Get(ctx, "k")
	assert.False(t, ok, "unreachable redis is a miss")
}
