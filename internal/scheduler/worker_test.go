package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"conectapro/internal/leads/followup"
	"conectapro/platform/logger"
	"conectapro/platform/redislock"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

type schedulerConfig struct {
	redisURL string
}

func (c schedulerConfig) GetRedisURL() string                     { return c.redisURL }
func (c schedulerConfig) GetRedisTLSInsecure() bool               { return false }
func (c schedulerConfig) GetAsynqQueueName() string               { return "" }
func (c schedulerConfig) GetAsynqConcurrency() int                { return 1 }
func (c schedulerConfig) GetFollowupSweepInterval() time.Duration { return time.Minute }

type countingSweeper struct {
	calls atomic.Int32
	err   error
}

func (s *countingSweeper) Sweep(context.Context) (followup.Report, error) {
	s.calls.Add(1)
	return followup.Report{Reminders: 1}, s.err
}

func newTestWorker(t *testing.T, sweeper Sweeper) (*Worker, *redislock.RedisLocker) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	locker := redislock.NewRedisLocker(client, redislock.Config{Prefix: "test:", TTL: time.Minute})

	w, err := NewWorker(schedulerConfig{redisURL: "redis://" + mr.Addr()}, sweeper, locker, logger.New("development"))
	if err != nil {
		t.Fatalf("NewWorker: %v", err)
	}
	return w, locker
}

func sweepTask(t *testing.T) *asynq.Task {
	t.Helper()
	task, err := NewFollowupSweepTask(FollowupSweepPayload{Reason: "test"})
	if err != nil {
		t.Fatalf("NewFollowupSweepTask: %v", err)
	}
	return task
}

func TestSweepTaskRunsSweeper(t *testing.T) {
	sweeper := &countingSweeper{}
	w, _ := newTestWorker(t, sweeper)

	if err := w.handleFollowupSweep(context.Background(), sweepTask(t)); err != nil {
		t.Fatalf("handleFollowupSweep: %v", err)
	}
	if err := w.handleFollowupSweep(context.Background(), sweepTask(t)); err != nil {
		t.Fatalf("second handleFollowupSweep: %v", err)
	}
	if got := sweeper.calls.Load(); got != 2 {
		t.Fatalf("expected 2 sweeps, got %d", got)
	}
}

func TestSweepTaskSkipsWhileAnotherSweepHoldsLock(t *testing.T) {
	sweeper := &countingSweeper{}
	w, locker := newTestWorker(t, sweeper)
	ctx := context.Background()

	release, err := locker.TryAcquire(ctx, sweepLockKey)
	if err != nil {
		t.Fatalf("TryAcquire: %v", err)
	}
	defer func() { _ = release(ctx) }()

	if err := w.handleFollowupSweep(ctx, sweepTask(t)); err != nil {
		t.Fatalf("handleFollowupSweep: %v", err)
	}
	if got := sweeper.calls.Load(); got != 0 {
		t.Fatalf("expected the sweep to be skipped, got %d calls", got)
	}
}

func TestSweepTaskReturnsSweepError(t *testing.T) {
	sweeper := &countingSweeper{err: errors.New("db down")}
	w, locker := newTestWorker(t, sweeper)
	ctx := context.Background()

	if err := w.handleFollowupSweep(ctx, sweepTask(t)); err == nil {
		t.Fatalf("expected the sweep error to be returned for retry")
	}

	release, err := locker.TryAcquire(ctx, sweepLockKey)
	if err != nil {
		t.Fatalf("lock not released after a failed sweep: %v", err)
	}
	_ = release(ctx)
}

func TestMalformedPayloadIsNotRetried(t *testing.T) {
	w, _ := newTestWorker(t, &countingSweeper{})

	err := w.handleFollowupSweep(context.Background(), asynq.NewTask(TaskFollowupSweep, []byte("{")))
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry, got %v", err)
	}
}
