package cache

import (
	"context"
	"time"
)

// AnalyticsCache stores computed reports as JSON. Any sale, expense or
// product write calls Invalidate.
type AnalyticsCache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Invalidate(ctx context.Context) error
}

type NoopAnalyticsCache struct{}

func (NoopAnalyticsCache) Get(_ context.Context, _ string, _ any) (bool, error) {
	return false, nil
}

func (NoopAnalyticsCache) Set(_ context.Context, _ string, _ any, _ time.Duration) error {
	return nil
}

func (NoopAnalyticsCache) Invalidate(_ context.Context) error {
	return nil
}
