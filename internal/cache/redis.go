package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/utafrali/storefront-search/internal/cachekey"
	"github.com/utafrali/storefront-search/pkg/database"
)

const scanBatch = 500

// KEYS[1] value key, KEYS[2..] tag sets. ARGV[1] value, ARGV[2] ttl ms,
// ARGV[3] cache key. A tag set's expiry only ever grows, so it outlives
// the longest-lived member.
var setScript = redis.NewScript(`
local ttl = tonumber(ARGV[2])
redis.call('SET', KEYS[1], ARGV[1], 'PX', ttl)
for i = 2, #KEYS do
	redis.call('SADD', KEYS[i], ARGV[3])
	if redis.call('PTTL', KEYS[i]) < ttl then
		redis.call('PEXPIRE', KEYS[i], ttl)
	end
end
return 1
`)

// RedisBackend shares entries between replicas. Values live under
// prefix+key with a PX expiry; each tag is a set of keys under
// prefix+"tag:"+tag that expires with its longest-lived member.
type RedisBackend struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisBackend creates a Redis backend namespaced by prefix.
func NewRedisBackend(client redis.UniversalClient, prefix string) *RedisBackend {
	return &RedisBackend{client: client, prefix: prefix}
}

func (b *RedisBackend) valueKey(key string) string { return b.prefix + "v:" + key }
func (b *RedisBackend) tagKey(tag string) string   { return b.prefix + "tag:" + tag }

// Get implements Backend.
func (b *RedisBackend) Get(ctx context.Context, key string) (_ Entry, _ bool, err error) {
	ctx, end := database.TraceCommand(ctx, "GET", key)
	defer func() { end(err) }()

	pipe := b.client.Pipeline()
	getCmd := pipe.Get(ctx, b.valueKey(key))
	ttlCmd := pipe.PTTL(ctx, b.valueKey(key))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return Entry{}, false, fmt.Errorf("redis cache get: %w", err)
	}

	value, err := getCmd.Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("redis cache get: %w", err)
	}
	ttl := ttlCmd.Val()
	if ttl <= 0 {
		// Expiring right now, or no expiry which this backend never writes.
		return Entry{}, false, nil
	}
	return Entry{Key: key, Value: value, ExpiresAt: time.Now().Add(ttl)}, true, nil
}

// Set implements Backend.
func (b *RedisBackend) Set(ctx context.Context, entry Entry) (err error) {
	ctx, end := database.TraceCommand(ctx, "SET", entry.Key)
	defer func() { end(err) }()

	ttl := time.Until(entry.ExpiresAt)
	if ttl <= 0 {
		return nil
	}
	keys := make([]string, 0, len(entry.Tags)+1)
	keys = append(keys, b.valueKey(entry.Key))
	for _, tag := range entry.Tags {
		keys = append(keys, b.tagKey(tag))
	}
	// Sub-millisecond remainders round up so PX is never zero.
	ms := max(ttl.Milliseconds(), 1)
	if err = setScript.Run(ctx, b.client, keys, entry.Value, ms, entry.Key).Err(); err != nil {
		return fmt.Errorf("redis cache set: %w", err)
	}
	return nil
}

// DeleteMatching implements Backend. Redis glob '*' also spans '/', so each
// scanned key is re-checked with cachekey.MatchesPattern.
func (b *RedisBackend) DeleteMatching(ctx context.Context, pattern string) (_ int, err error) {
	ctx, end := database.TraceCommand(ctx, "SCAN", pattern)
	defer func() { end(err) }()

	// Escaped segments never contain glob metacharacters, so the pattern
	// is usable as a SCAN glob directly.
	match := b.valueKey(pattern)
	var (
		cursor uint64
		total  int
	)
	for {
		keys, next, err := b.client.Scan(ctx, cursor, match, scanBatch).Result()
		if err != nil {
			return total, fmt.Errorf("redis cache scan: %w", err)
		}
		var victims []string
		for _, k := range keys {
			if cachekey.MatchesPattern(strings.TrimPrefix(k, b.valueKey("")), pattern) {
				victims = append(victims, k)
			}
		}
		if len(victims) > 0 {
			n, err := b.client.Unlink(ctx, victims...).Result()
			if err != nil {
				return total, fmt.Errorf("redis cache unlink: %w", err)
			}
			total += int(n)
		}
		cursor = next
		if cursor == 0 {
			return total, nil
		}
	}
}

// DeleteTagged implements Backend.
func (b *RedisBackend) DeleteTagged(ctx context.Context, tags []string) (_ int, err error) {
	ctx, end := database.TraceCommand(ctx, "SMEMBERS", strings.Join(tags, ","))
	defer func() { end(err) }()

	var keys []string
	for _, tag := range tags {
		members, err := b.client.SMembers(ctx, b.tagKey(tag)).Result()
		if err != nil {
			return 0, fmt.Errorf("redis cache tag members: %w", err)
		}
		for _, m := range members {
			keys = append(keys, b.valueKey(m))
		}
	}

	tagKeys := make([]string, len(tags))
	for i, tag := range tags {
		tagKeys[i] = b.tagKey(tag)
	}

	var removed *redis.IntCmd
	_, err = b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(keys) > 0 {
			removed = pipe.Unlink(ctx, keys...)
		}
		pipe.Unlink(ctx, tagKeys...)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("redis cache tag delete: %w", err)
	}
	if removed == nil {
		return 0, nil
	}
	return int(removed.Val()), nil
}

// Ping implements Backend.
func (b *RedisBackend) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}
