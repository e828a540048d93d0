package cache

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultLRUSize = 2048

type lruEntry struct {
	value     []byte
	expiresAt time.Time
}

// LRUCache is a bounded in-process cache with per-entry TTL on top of an
// LRU eviction policy. Suitable for single-instance deployments.
type LRUCache struct {
	entries *lru.Cache[string, lruEntry]
	now     func() time.Time
}

func NewLRUCache(size int) (*LRUCache, error) {
	if size < 1 {
		size = defaultLRUSize
	}

	entries, err := lru.New[string, lruEntry](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create lru cache: %w", err)
	}

	return &LRUCache{entries: entries, now: time.Now}, nil
}

func (c *LRUCache) Get(_ context.Context, key string) ([]byte, bool) {
	entry, ok := c.entries.Get(key)
	if !ok {
		return nil, false
	}
	if !entry.expiresAt.After(c.now()) {
		c.entries.Remove(key)
		return nil, false
	}
	return entry.value, true
}

func (c *LRUCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	c.entries.Add(key, lruEntry{value: value, expiresAt: c.now().Add(ttl)})
}

func (c *LRUCache) Invalidate(_ context.Context, key string) {
	c.entries.Remove(key)
}
