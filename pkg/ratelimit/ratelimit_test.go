package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestLocalRateLimiter_Burst(t *testing.T) {
	l := NewLocalRateLimiter()
	ctx := context.Background()
	limit := Limit{Rate: 1, Period: time.Hour, Burst: 3}

	for i := range 3 {
		res, err := l.Allow(ctx, "client-a", limit)
		if err != nil {
			t.Fatal(err)
		}
		if !res.Allowed {
			t.Fatalf("request %d should be allowed", i)
		}
	}

	res, _ := l.Allow(ctx, "client-a", limit)
	if res.Allowed {
		t.Error("fourth request should be rejected")
	}
	if res.RetryAfter <= 0 {
		t.Errorf("RetryAfter = %v, want positive", res.RetryAfter)
	}

	// 不同 key 独立计数
	if res, _ := l.Allow(ctx, "client-b", limit); !res.Allowed {
		t.Error("other key should be allowed")
	}
}

func TestRedisRateLimiter_Allow(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	l := NewRedisRateLimiter(rdb)
	ctx := context.Background()
	limit := PerSecond(2, 2)

	allowed := 0
	for range 5 {
		res, err := l.Allow(ctx, "ratelimit:test", limit)
		if err != nil {
			t.Fatalf("Allow failed: %v", err)
		}
		if res.Allowed {
			allowed++
		}
	}
	if allowed != 2 {
		t.Errorf("allowed = %d, want 2", allowed)
	}
}
