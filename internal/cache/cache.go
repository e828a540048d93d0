// Package cache fronts read-mostly lookups (users, templates) with a small
// key/value capability interface. It is never the system of record: a miss
// or stale entry only costs a repository re-read.
package cache

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Backend names accepted by New.
const (
	BackendNone     = "none"
	BackendLRU      = "lru"
	BackendMemcache = "memcache"
)

// Cache is the capability interface shared by all backends. Callers never
// branch on backend identity.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
	Invalidate(ctx context.Context, key string)
}

// Options configures backend construction.
type Options struct {
	Backend      string
	LRUSize      int
	MemcacheAddr string
}

// New selects a backend from configuration.
func New(opts Options) (Cache, error) {
	backend := strings.ToLower(strings.TrimSpace(opts.Backend))
	if backend == "" {
		backend = BackendNone
	}

	switch backend {
	case BackendNone:
		return NoopCache{}, nil
	case BackendLRU:
		return NewLRUCache(opts.LRUSize)
	case BackendMemcache:
		return NewMemcacheCache(opts.MemcacheAddr)
	default:
		return nil, fmt.Errorf("unknown cache backend %q", opts.Backend)
	}
}

// NoopCache misses every read and drops every write.
type NoopCache struct{}

func (NoopCache) Get(context.Context, string) ([]byte, bool) { return nil, false }

func (NoopCache) Set(context.Context, string, []byte, time.Duration) {}

func (NoopCache) Invalidate(context.Context, string) {}
