package tokenstore

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// consumeScript deletes KEYS[1] only when it still holds ARGV[1].
var consumeScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisStore keeps tokens as plain string keys with a TTL, so expiry is
// enforced by Redis at read time without any sweep.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Issue(ctx context.Context, purpose Purpose, subject uint, ttl time.Duration) (string, error) {
	if err := checkIssue(purpose, subject, ttl); err != nil {
		return "", err
	}
	token := newToken()
	ok, err := s.client.SetNX(ctx, key(purpose, token), strconv.FormatUint(uint64(subject), 10), ttl).Result()
	if err != nil {
		return "", err
	}
	if !ok {
		return "", errors.New("token collision")
	}
	return token, nil
}

func (s *RedisStore) Peek(ctx context.Context, purpose Purpose, token string) (uint, error) {
	if token == "" {
		return 0, ErrNotFound
	}
	val, err := s.client.Get(ctx, key(purpose, token)).Result()
	return parseSubject(val, err)
}

func (s *RedisStore) Redeem(ctx context.Context, purpose Purpose, token string) (uint, error) {
	if token == "" {
		return 0, ErrNotFound
	}
	val, err := s.client.GetDel(ctx, key(purpose, token)).Result()
	return parseSubject(val, err)
}

func (s *RedisStore) Consume(ctx context.Context, purpose Purpose, token string, subject uint) error {
	if token == "" {
		return ErrNotFound
	}
	n, err := consumeScript.Run(ctx, s.client, []string{key(purpose, token)}, strconv.FormatUint(uint64(subject), 10)).Int()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func parseSubject(val string, err error) (uint, error) {
	if errors.Is(err, redis.Nil) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	id, perr := strconv.ParseUint(val, 10, 64)
	if perr != nil {
		return 0, ErrNotFound
	}
	return uint(id), nil
}
