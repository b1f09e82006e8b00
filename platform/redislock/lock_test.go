package redislock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLocker(t *testing.T) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisLocker(client, Config{Prefix: "test:", TTL: time.Second, RetryDelay: 5 * time.Millisecond, MaxRetries: 3}), mr
}

func TestRedisLockerExcludesSecondHolder(t *testing.T) {
	locker, mr := newTestLocker(t)
	ctx := context.Background()

	release, err := locker.TryAcquire(ctx, "customer:1")
	if err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}
	if !mr.Exists("test:customer:1") {
		t.Fatalf("expected lock key to exist")
	}

	if _, err := locker.TryAcquire(ctx, "customer:1"); !errors.Is(err, ErrNotAcquired) {
		t.Fatalf("expected ErrNotAcquired, got %v", err)
	}
	if _, err := locker.Acquire(ctx, "customer:1"); !errors.Is(err, ErrNotAcquired) {
		t.Fatalf("expected blocking acquire to give up, got %v", err)
	}

	if err := release(ctx); err != nil {
		t.Fatalf("release failed: %v", err)
	}
	if err := release(ctx); !errors.Is(err, ErrNotHeld) {
		t.Fatalf("expected ErrNotHeld on double release, got %v", err)
	}

	again, err := locker.Acquire(ctx, "customer:1")
	if err != nil {
		t.Fatalf("acquire after release failed: %v", err)
	}
	_ = again(ctx)
}

func TestRedisLockExpiresAfterTTL(t *testing.T) {
	locker, mr := newTestLocker(t)
	ctx := context.Background()

	if _, err := locker.TryAcquire(ctx, "sweep"); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	mr.FastForward(2 * time.Second)

	release, err := locker.TryAcquire(ctx, "sweep")
	if err != nil {
		t.Fatalf("expected expired lock to be free, got %v", err)
	}
	_ = release(ctx)
}

func TestLocalLockerSerializesSameKey(t *testing.T) {
	locker := NewLocalLocker()
	ctx := context.Background()

	release, err := locker.Acquire(ctx, "a")
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	if _, err := locker.TryAcquire(ctx, "a"); !errors.Is(err, ErrNotAcquired) {
		t.Fatalf("expected ErrNotAcquired, got %v", err)
	}
	other, err := locker.TryAcquire(ctx, "b")
	if err != nil {
		t.Fatalf("independent key should be free: %v", err)
	}
	_ = other(ctx)

	acquired := make(chan struct{})
	go func() {
		r, err := locker.Acquire(ctx, "a")
		if err == nil {
			_ = r(ctx)
		}
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatalf("second holder should wait")
	case <-time.After(20 * time.Millisecond):
	}
	_ = release(ctx)

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatalf("waiter was not woken after release")
	}
}

func TestLocalLockerHonoursContext(t *testing.T) {
	locker := NewLocalLocker()
	release, _ := locker.Acquire(context.Background(), "a")
	defer release(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := locker.Acquire(ctx, "a"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
