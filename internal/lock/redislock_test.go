package lock

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestTryWithLockSkipsWhenHeld(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()

	locker := Locker{R: client}
	ctx := context.Background()

	release := make(chan struct{})
	held := make(chan struct{})
	go func() {
		_ = locker.TryWithLock(ctx, "scan", time.Minute, func(context.Context) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	err := locker.TryWithLock(ctx, "scan", time.Minute, func(context.Context) error {
		t.Fatal("second holder must not run")
		return nil
	})
	if !errors.Is(err, ErrNotAcquired) {
		t.Fatalf("expected ErrNotAcquired, got %v", err)
	}
	close(release)
}

func TestTryWithLockReleasesAfterRun(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()

	locker := Locker{R: client}
	ctx := context.Background()

	ran := 0
	for i := 0; i < 2; i++ {
		err := locker.TryWithLock(ctx, "scan", time.Minute, func(context.Context) error {
			ran++
			return nil
		})
		if err != nil {
			t.Fatalf("try %d: %v", i, err)
		}
	}
	if ran != 2 {
		t.Fatalf("expected lock to be reusable, ran %d times", ran)
	}
}

func TestWithLockWaitsForRelease(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()

	locker := Locker{R: client, RetryBackoff: 10 * time.Millisecond}
	ctx := context.Background()

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- locker.TryWithLock(ctx, "key", time.Minute, func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started
	close(release)

	if err := locker.WithLock(ctx, "key", time.Minute, func(context.Context) error { return nil }); err != nil {
		t.Fatalf("with lock: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("first holder: %v", err)
	}
}
