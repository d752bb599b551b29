package ratelimit

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestSlidingWindowAllow(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()
	window := SlidingWindow{Client: client, Prefix: "test:"}

	ctx := context.Background()
	per := 2 * time.Second
	max := 2

	for i := 0; i < max; i++ {
		res, err := window.Allow(ctx, "key", per, max)
		if err != nil {
			t.Fatalf("allow: %v", err)
		}
		if !res.Allowed {
			t.Fatalf("expected attempt %d to be allowed", i)
		}
		if res.Remaining != max-(i+1) {
			t.Fatalf("unexpected remaining: %d", res.Remaining)
		}
	}

	res, err := window.Allow(ctx, "key", per, max)
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if res.Allowed {
		t.Fatal("expected third attempt to be rejected")
	}
	if res.Remaining != 0 {
		t.Fatalf("expected remaining 0, got %d", res.Remaining)
	}

	mr.FastForward(per)

	res, err = window.Allow(ctx, "key", per, max)
	if err != nil {
		t.Fatalf("allow after window: %v", err)
	}
	if !res.Allowed {
		t.Fatal("expected attempt after window to be allowed")
	}
}

func TestSlidingWindowNilClientAllowsAll(t *testing.T) {
	res, err := SlidingWindow{}.Allow(context.Background(), "key", time.Second, 1)
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if !res.Allowed {
		t.Fatal("expected nil client to disable throttling")
	}
}
