// Package ratelimit implements a sliding-window request counter with Redis
// and in-memory backends.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Result is the verdict for one hit.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Backend counts hits per fixed bucket. Hit increments the current bucket
// and reports it together with the previous one.
type Backend interface {
	Hit(ctx context.Context, key string, bucket int64, window time.Duration) (current, previous int64, err error)
}

type Limiter struct {
	backend Backend
	now     func() time.Time
}

func New(backend Backend) *Limiter {
	return &Limiter{backend: backend, now: time.Now}
}

// Allow records a hit for key and decides whether it fits into limit per
// window. The previous bucket counts with the fraction of it still inside
// the window.
func (l *Limiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (Result, error) {
	if window <= 0 || limit <= 0 {
		return Result{}, fmt.Errorf("invalid rate %d/%s", limit, window)
	}

	now := l.now()
	bucket := now.UnixNano() / int64(window)
	elapsed := time.Duration(now.UnixNano() - bucket*int64(window))

	cur, prev, err := l.backend.Hit(ctx, key, bucket, window)
	if err != nil {
		return Result{}, err
	}

	frac := 1 - float64(elapsed)/float64(window)
	weighted := float64(prev)*frac + float64(cur)

	res := Result{Limit: limit, Allowed: weighted <= float64(limit)}
	res.Remaining = int(math.Max(0, math.Floor(float64(limit)-weighted)))
	if !res.Allowed {
		res.RetryAfter = window - elapsed
		if res.RetryAfter < time.Second {
			res.RetryAfter = time.Second
		}
	}
	return res, nil
}

func bucketKey(key string, bucket int64) string {
	return fmt.Sprintf("rate_limit:%s:%d", key, bucket)
}

// RedisBackend keeps one counter key per bucket, expiring after two windows.
type RedisBackend struct {
	client *redis.Client
}

func NewRedisBackend(client *redis.Client) *RedisBackend {
	return &RedisBackend{client: client}
}

func (b *RedisBackend) Hit(ctx context.Context, key string, bucket int64, window time.Duration) (int64, int64, error) {
	curKey := bucketKey(key, bucket)

	pipe := b.client.Pipeline()
	incr := pipe.Incr(ctx, curKey)
	pipe.PExpire(ctx, curKey, 2*window)
	prevCmd := pipe.Get(ctx, bucketKey(key, bucket-1))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return 0, 0, err
	}

	prev, err := prevCmd.Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, 0, err
	}
	return incr.Val(), prev, nil
}

// MemoryBackend is the single-process backend used without a cache.
type MemoryBackend struct {
	mu      sync.Mutex
	buckets map[string]map[int64]int64
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{buckets: make(map[string]map[int64]int64)}
}

func (b *MemoryBackend) Hit(_ context.Context, key string, bucket int64, _ time.Duration) (int64, int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	counts, ok := b.buckets[key]
	if !ok {
		counts = make(map[int64]int64, 2)
		b.buckets[key] = counts
	}
	for k := range counts {
		if k < bucket-1 {
			delete(counts, k)
		}
	}
	counts[bucket]++
	return counts[bucket], counts[bucket-1], nil
}
