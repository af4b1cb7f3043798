package session

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Revocations remembers refresh token ids that were logged out.
type Revocations interface {
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

const revokedKeyPrefix = "session:revoked:"

type RedisRevocations struct {
	client *redis.Client
}

func NewRedisRevocations(client *redis.Client) *RedisRevocations {
	return &RedisRevocations{client: client}
}

func (r *RedisRevocations) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	return r.client.Set(ctx, revokedKeyPrefix+jti, 1, ttl).Err()
}

func (r *RedisRevocations) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := r.client.Exists(ctx, revokedKeyPrefix+jti).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MemoryRevocations is the in-process variant used by tests.
type MemoryRevocations struct {
	mu  sync.Mutex
	ids map[string]time.Time
}

func NewMemoryRevocations() *MemoryRevocations {
	return &MemoryRevocations{ids: make(map[string]time.Time)}
}

func (r *MemoryRevocations) Revoke(_ context.Context, jti string, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids[jti] = time.Now().Add(ttl)
	return nil
}

func (r *MemoryRevocations) IsRevoked(_ context.Context, jti string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	exp, ok := r.ids[jti]
	if !ok {
		return false, nil
	}
	if time.Now().After(exp) {
		delete(r.ids, jti)
		return false, nil
	}
	return true, nil
}
