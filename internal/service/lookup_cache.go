package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/waseemanjum-be/NotifyHub/internal/cache"
	"github.com/waseemanjum-be/NotifyHub/internal/domain"
	"github.com/waseemanjum-be/NotifyHub/internal/repository"
	"go.uber.org/zap"
)

// CachedLookups layers read-through caching over user and template lookups.
// Entries are stored as JSON so the same code works for the in-process LRU
// and memcache backends. Cache failures degrade to repository reads.
type CachedLookups struct {
	inner  repository.LookupRepository
	cache  cache.Cache
	ttl    time.Duration
	logger *zap.Logger
}

func NewCachedLookups(inner repository.LookupRepository, c cache.Cache, ttl time.Duration, logger *zap.Logger) *CachedLookups {
	if c == nil {
		c = cache.NoopCache{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &CachedLookups{
		inner:  inner,
		cache:  c,
		ttl:    ttl,
		logger: logger,
	}
}

func (l *CachedLookups) GetNotification(ctx context.Context, id string) (*domain.Notification, error) {
	key := "notification:" + id

	var cached domain.Notification
	if l.getCached(ctx, key, &cached) {
		return &cached, nil
	}

	notification, err := l.inner.GetNotification(ctx, id)
	if err != nil {
		return nil, err
	}

	l.setCached(ctx, key, notification)
	return notification, nil
}

func (l *CachedLookups) GetUser(ctx context.Context, id string) (*domain.User, error) {
	key := "user:" + id

	var cached domain.User
	if l.getCached(ctx, key, &cached) {
		return &cached, nil
	}

	user, err := l.inner.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}

	l.setCached(ctx, key, user)
	return user, nil
}

func (l *CachedLookups) GetTemplate(ctx context.Context, id string) (*domain.Template, error) {
	key := "template:" + id

	var cached domain.Template
	if l.getCached(ctx, key, &cached) {
		return &cached, nil
	}

	template, err := l.inner.GetTemplate(ctx, id)
	if err != nil {
		return nil, err
	}

	l.setCached(ctx, key, template)
	return template, nil
}

// InvalidateUser drops a cached user entry after a profile update.
func (l *CachedLookups) InvalidateUser(ctx context.Context, id string) {
	l.cache.Invalidate(ctx, "user:"+id)
}

// InvalidateTemplate drops a cached template entry after a template update.
func (l *CachedLookups) InvalidateTemplate(ctx context.Context, id string) {
	l.cache.Invalidate(ctx, "template:"+id)
}

func (l *CachedLookups) getCached(ctx context.Context, key string, out interface{}) bool {
	raw, ok := l.cache.Get(ctx, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, out); err != nil {
		l.logger.Warn("dropping undecodable cache entry",
			zap.String("key", key),
			zap.Error(err),
		)
		l.cache.Invalidate(ctx, key)
		return false
	}
	return true
}

func (l *CachedLookups) setCached(ctx context.Context, key string, value interface{}) {
	raw, err := json.Marshal(value)
	if err != nil {
		l.logger.Warn("failed to encode cache entry",
			zap.String("key", key),
			zap.Error(err),
		)
		return
	}
	l.cache.Set(ctx, key, raw, l.ttl)
}

var _ repository.LookupRepository = (*CachedLookups)(nil)
