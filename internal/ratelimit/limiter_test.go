package ratelimit

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestLimiterCapacity(t *testing.T) {
	ctx := context.Background()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()

	limiter := NewLimiter(redis.NewClient(&redis.Options{Addr: mr.Addr()}), 2, 1)

	for i := 0; i < 2; i++ {
		allowed, err := limiter.Allow(ctx, "client")
		if err != nil || !allowed {
			t.Fatalf("request %d: allowed=%v err=%v", i, allowed, err)
		}
	}
	allowed, err := limiter.Allow(ctx, "client")
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if allowed {
		t.Fatal("expected request over capacity to be rejected")
	}
}

func TestLimiterKeysAreIndependent(t *testing.T) {
	ctx := context.Background()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()

	limiter := NewLimiter(redis.NewClient(&redis.Options{Addr: mr.Addr()}), 1, 1)

	if allowed, _ := limiter.Allow(ctx, "a"); !allowed {
		t.Fatal("first token for a should be allowed")
	}
	if allowed, _ := limiter.Allow(ctx, "a"); allowed {
		t.Fatal("a is out of tokens")
	}
	if allowed, _ := limiter.Allow(ctx, "b"); !allowed {
		t.Fatal("b has its own bucket")
	}
}
