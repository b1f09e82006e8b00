// Package redislock provides keyed mutual exclusion backed by Redis SET NX,
// with an in-process fallback for single-instance deployments.
package redislock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultTTL        = 30 * time.Second
	DefaultRetryDelay = 50 * time.Millisecond
	DefaultMaxRetries = 100
)

var (
	ErrNotAcquired = errors.New("lock not acquired")
	ErrNotHeld     = errors.New("lock not held")
)

var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

var extendScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("pexpire", KEYS[1], ARGV[2])
	else
		return 0
	end
`)

// Locker serializes work on a key across goroutines and, for the Redis implementation, processes.
type Locker interface {
	// Acquire blocks until the key is held or ctx ends. The returned release must be called once.
	Acquire(ctx context.Context, key string) (release func(context.Context) error, err error)
	// TryAcquire returns ErrNotAcquired immediately when the key is held elsewhere.
	TryAcquire(ctx context.Context, key string) (release func(context.Context) error, err error)
}

// Config tunes lock timing.
type Config struct {
	Prefix     string
	TTL        time.Duration
	RetryDelay time.Duration
	MaxRetries int
}

// Lock is a single Redis-held lock instance.
type Lock struct {
	client redis.Cmdable
	key    string
	token  string
	ttl    time.Duration
}

// TryLock attempts to take the lock once.
func (l *Lock) TryLock(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lock %s: %w", l.key, err)
	}
	return ok, nil
}

// Unlock releases the lock if this instance still holds it.
func (l *Lock) Unlock(ctx context.Context) error {
	result, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Int()
	if err != nil {
		return fmt.Errorf("release lock %s: %w", l.key, err)
	}
	if result == 0 {
		return ErrNotHeld
	}
	return nil
}

// Extend pushes the expiry out by extension if the lock is still held.
func (l *Lock) Extend(ctx context.Context, extension time.Duration) error {
	result, err := extendScript.Run(ctx, l.client, []string{l.key}, l.token, extension.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("extend lock %s: %w", l.key, err)
	}
	if result == 0 {
		return ErrNotHeld
	}
	return nil
}

// RedisLocker hands out Lock instances for keys under a common prefix.
type RedisLocker struct {
	client     redis.Cmdable
	prefix     string
	ttl        time.Duration
	retryDelay time.Duration
	maxRetries int
}

// NewRedisLocker creates a Locker backed by client.
func NewRedisLocker(client redis.Cmdable, cfg Config) *RedisLocker {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	return &RedisLocker{
		client:     client,
		prefix:     cfg.Prefix,
		ttl:        cfg.TTL,
		retryDelay: cfg.RetryDelay,
		maxRetries: cfg.MaxRetries,
	}
}

func (r *RedisLocker) newLock(key string) *Lock {
	return &Lock{client: r.client, key: r.prefix + key, token: uuid.New().String(), ttl: r.ttl}
}

func (r *RedisLocker) Acquire(ctx context.Context, key string) (func(context.Context) error, error) {
	lock := r.newLock(key)
	for i := range r.maxRetries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		acquired, err := lock.TryLock(ctx)
		if err != nil {
			return nil, err
		}
		if acquired {
			return lock.Unlock, nil
		}

		if i < r.maxRetries-1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(r.retryDelay):
			}
		}
	}
	return nil, ErrNotAcquired
}

func (r *RedisLocker) TryAcquire(ctx context.Context, key string) (func(context.Context) error, error) {
	lock := r.newLock(key)
	acquired, err := lock.TryLock(ctx)
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, ErrNotAcquired
	}
	return lock.Unlock, nil
}

// LocalLocker is an in-process Locker used when Redis is not configured.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]chan struct{}
}

// NewLocalLocker creates an empty LocalLocker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]chan struct{})}
}

func (l *LocalLocker) Acquire(ctx context.Context, key string) (func(context.Context) error, error) {
	for {
		l.mu.Lock()
		wait, busy := l.held[key]
		if !busy {
			done := make(chan struct{})
			l.held[key] = done
			l.mu.Unlock()
			return l.releaser(key, done), nil
		}
		l.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-wait:
		}
	}
}

func (l *LocalLocker) TryAcquire(_ context.Context, key string) (func(context.Context) error, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.held[key]; busy {
		return nil, ErrNotAcquired
	}
	done := make(chan struct{})
	l.held[key] = done
	return l.releaser(key, done), nil
}

func (l *LocalLocker) releaser(key string, done chan struct{}) func(context.Context) error {
	var once sync.Once
	return func(context.Context) error {
		released := false
		once.Do(func() {
			l.mu.Lock()
			if l.held[key] == done {
				delete(l.held, key)
			}
			l.mu.Unlock()
			close(done)
			released = true
		})
		if !released {
			return ErrNotHeld
		}
		return nil
	}
}
