package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
)

const memcacheTimeout = 200 * time.Millisecond

// MemcacheCache is a networked cache shared across instances. Errors are
// swallowed: a failing cache degrades to a miss, never to a request failure.
type MemcacheCache struct {
	client *memcache.Client
}

func NewMemcacheCache(addr string) (*MemcacheCache, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, fmt.Errorf("memcache address is required")
	}

	client := memcache.New(addr)
	client.Timeout = memcacheTimeout

	return &MemcacheCache{client: client}, nil
}

func (c *MemcacheCache) Get(_ context.Context, key string) ([]byte, bool) {
	item, err := c.client.Get(key)
	if err != nil || item == nil {
		return nil, false
	}
	return item.Value, true
}

func (c *MemcacheCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		return
	}

	seconds := int32(ttl / time.Second)
	if seconds < 1 {
		seconds = 1
	}

	_ = c.client.Set(&memcache.Item{
		Key:        key,
		Value:      value,
		Expiration: seconds,
	})
}

func (c *MemcacheCache) Invalidate(_ context.Context, key string) {
	_ = c.client.Delete(key)
}
