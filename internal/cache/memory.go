package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/utafrali/storefront-search/internal/cachekey"
)

// MemoryBackend is an in-process LRU bounded by entry count. Entries may be
// evicted before they expire when capacity is reached.
type MemoryBackend struct {
	mu   sync.Mutex
	lru  *simplelru.LRU[string, Entry]
	tags map[string]map[string]struct{}
	now  func() time.Time
	name string
}

// NewMemoryBackend creates an LRU backend holding at most capacity entries.
func NewMemoryBackend(capacity int, name string) (*MemoryBackend, error) {
	b := &MemoryBackend{
		tags: make(map[string]map[string]struct{}),
		now:  time.Now,
		name: name,
	}
	lru, err := simplelru.NewLRU[string, Entry](capacity, b.onEvict)
	if err != nil {
		return nil, fmt.Errorf("memory cache: %w", err)
	}
	b.lru = lru
	return b, nil
}

// onEvict runs with b.mu held, for capacity evictions and removals alike.
func (b *MemoryBackend) onEvict(key string, entry Entry) {
	for _, tag := range entry.Tags {
		keys := b.tags[tag]
		delete(keys, key)
		if len(keys) == 0 {
			delete(b.tags, tag)
		}
	}
}

// Get implements Backend.
func (b *MemoryBackend) Get(_ context.Context, key string) (Entry, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry, ok := b.lru.Get(key)
	if !ok {
		return Entry{}, false, nil
	}
	if !b.now().Before(entry.ExpiresAt) {
		b.lru.Remove(key)
		return Entry{}, false, nil
	}
	return entry, true, nil
}

// Set implements Backend.
func (b *MemoryBackend) Set(_ context.Context, entry Entry) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	// Drop the previous tag links before re-adding.
	b.lru.Remove(entry.Key)
	if b.lru.Add(entry.Key, entry) {
		cacheEvictions.WithLabelValues(b.name).Inc()
	}
	for _, tag := range entry.Tags {
		keys, ok := b.tags[tag]
		if !ok {
			keys = make(map[string]struct{})
			b.tags[tag] = keys
		}
		keys[entry.Key] = struct{}{}
	}
	return nil
}

// DeleteMatching implements Backend.
func (b *MemoryBackend) DeleteMatching(_ context.Context, pattern string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := 0
	for _, key := range b.lru.Keys() {
		if cachekey.MatchesPattern(key, pattern) {
			b.lru.Remove(key)
			n++
		}
	}
	return n, nil
}

// DeleteTagged implements Backend.
func (b *MemoryBackend) DeleteTagged(_ context.Context, tags []string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var keys []string
	for _, tag := range tags {
		for key := range b.tags[tag] {
			keys = append(keys, key)
		}
	}
	n := 0
	for _, key := range keys {
		if b.lru.Remove(key) {
			n++
		}
	}
	return n, nil
}

// Ping implements Backend.
func (b *MemoryBackend) Ping(context.Context) error { return nil }

// Len returns the number of stored entries, expired ones included.
func (b *MemoryBackend) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lru.Len()
}
