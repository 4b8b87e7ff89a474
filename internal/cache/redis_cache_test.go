package cache

import (
	"context"
	"os"
	"testing"
	"time"
)

type report struct {
	Year    int   `json:"year"`
	Revenue int64 `json:"revenue"`
}

func TestNoopCacheAlwaysMisses(t *testing.T) {
	var c AnalyticsCache = NoopAnalyticsCache{}
	ctx := context.Background()

	if err := c.Set(ctx, "k", report{Year: 2025}, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	var got report
	hit, err := c.Get(ctx, "k", &got)
	if err != nil || hit {
		t.Fatalf("expected miss, got hit=%v err=%v", hit, err)
	}
}

func TestRedisCacheRoundTripAndInvalidate(t *testing.T) {
	addr := os.Getenv("MAGIA_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("set MAGIA_TEST_REDIS_ADDR to run redis integration test")
	}

	c := NewRedisAnalyticsCache(addr, "", 0)
	t.Cleanup(func() {
		_ = c.Close()
	})
	ctx := context.Background()
	if err := c.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}

	if err := c.Set(ctx, "dashboard:2025", report{Year: 2025, Revenue: 170000}, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	var got report
	hit, err := c.Get(ctx, "dashboard:2025", &got)
	if err != nil || !hit || got.Revenue != 170000 {
		t.Fatalf("expected cached report, got hit=%v err=%v value=%+v", hit, err, got)
	}

	if err := c.Invalidate(ctx); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	hit, err = c.Get(ctx, "dashboard:2025", &got)
	if err != nil || hit {
		t.Fatalf("expected miss after invalidate, got hit=%v err=%v", hit, err)
	}
}
