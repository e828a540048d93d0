package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/waseemanjum-be/NotifyHub/internal/cache"
	"github.com/waseemanjum-be/NotifyHub/internal/domain"
	"go.uber.org/zap"
)

func newLRUForTest(t *testing.T) cache.Cache {
	t.Helper()

	c, err := cache.New(cache.Options{Backend: "lru", LRUSize: 16})
	if err != nil {
		t.Fatalf("cache.New() error = %v", err)
	}
	return c
}

func TestCachedLookupsReadThrough(t *testing.T) {
	t.Parallel()

	userCalls := 0
	inner := &fakeLookups{
		getUserFn: func(ctx context.Context, id string) (*domain.User, error) {
			userCalls++
			return &domain.User{ID: id, Email: "ada@example.com", PhoneNumber: "+15550001111"}, nil
		},
	}

	lookups := NewCachedLookups(inner, newLRUForTest(t), time.Minute, zap.NewNop())

	for i := 0; i < 3; i++ {
		user, err := lookups.GetUser(context.Background(), "u1")
		if err != nil {
			t.Fatalf("GetUser() error = %v", err)
		}
		if user.Email != "ada@example.com" {
			t.Fatalf("email = %q, want ada@example.com", user.Email)
		}
	}

	if userCalls != 1 {
		t.Fatalf("repository reads = %d, want 1", userCalls)
	}
}

func TestCachedLookupsDoesNotCacheErrors(t *testing.T) {
	t.Parallel()

	calls := 0
	inner := &fakeLookups{
		getTemplateFn: func(ctx context.Context, id string) (*domain.Template, error) {
			calls++
			if calls == 1 {
				return nil, domain.ErrNotFound
			}
			return &domain.Template{ID: id, Body: "hello"}, nil
		},
	}

	lookups := NewCachedLookups(inner, newLRUForTest(t), time.Minute, zap.NewNop())

	if _, err := lookups.GetTemplate(context.Background(), "t1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("first GetTemplate() error = %v, want ErrNotFound", err)
	}
	template, err := lookups.GetTemplate(context.Background(), "t1")
	if err != nil {
		t.Fatalf("second GetTemplate() error = %v", err)
	}
	if template.Body != "hello" {
		t.Fatalf("body = %q, want hello", template.Body)
	}
	if calls != 2 {
		t.Fatalf("repository reads = %d, want 2", calls)
	}
}

func TestCachedLookupsInvalidate(t *testing.T) {
	t.Parallel()

	calls := 0
	inner := &fakeLookups{
		getUserFn: func(ctx context.Context, id string) (*domain.User, error) {
			calls++
			return &domain.User{ID: id}, nil
		},
	}

	lookups := NewCachedLookups(inner, newLRUForTest(t), time.Minute, zap.NewNop())

	if _, err := lookups.GetUser(context.Background(), "u1"); err != nil {
		t.Fatalf("GetUser() error = %v", err)
	}
	lookups.InvalidateUser(context.Background(), "u1")
	if _, err := lookups.GetUser(context.Background(), "u1"); err != nil {
		t.Fatalf("GetUser() error = %v", err)
	}

	if calls != 2 {
		t.Fatalf("repository reads = %d, want 2 after invalidation", calls)
	}
}

func TestCachedLookupsNoopCachePassesThrough(t *testing.T) {
	t.Parallel()

	calls := 0
	inner := &fakeLookups{
		getNotificationFn: func(ctx context.Context, id string) (*domain.Notification, error) {
			calls++
			return &domain.Notification{ID: id, UserID: "u1", TemplateID: "t1"}, nil
		},
	}

	lookups := NewCachedLookups(inner, cache.NoopCache{}, time.Minute, zap.NewNop())

	for i := 0; i < 2; i++ {
		if _, err := lookups.GetNotification(context.Background(), "n1"); err != nil {
			t.Fatalf("GetNotification() error = %v", err)
		}
	}

	if calls != 2 {
		t.Fatalf("repository reads = %d, want 2 with noop cache", calls)
	}
}
