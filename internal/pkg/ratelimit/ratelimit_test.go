package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func backends(t *testing.T) map[string]Backend {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return map[string]Backend{
		"memory": NewMemoryBackend(),
		"redis":  NewRedisBackend(client),
	}
}

func fixedLimiter(b Backend, start time.Time) (*Limiter, func(time.Duration)) {
	now := start
	l := New(b)
	l.now = func() time.Time { return now }
	return l, func(d time.Duration) { now = now.Add(d) }
}

func TestAllowWithinWindow(t *testing.T) {
	start := time.Unix(0, 0).Add(1000 * time.Hour)
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			l, _ := fixedLimiter(b, start)
			ctx := context.Background()

			for i := 0; i < 3; i++ {
				res, err := l.Allow(ctx, "login:1.2.3.4", 3, time.Hour)
				require.NoError(t, err)
				assert.True(t, res.Allowed, "hit %d", i+1)
				assert.Equal(t, 2-i, res.Remaining)
			}

			res, err := l.Allow(ctx, "login:1.2.3.4", 3, time.Hour)
			require.NoError(t, err)
			assert.False(t, res.Allowed)
			assert.Equal(t, time.Hour, res.RetryAfter)

			other, err := l.Allow(ctx, "login:5.6.7.8", 3, time.Hour)
			require.NoError(t, err)
			assert.True(t, other.Allowed, "keys count separately")
		})
	}
}

func TestSlidingWindowWeighsPreviousBucket(t *testing.T) {
	start := time.Unix(0, 0).Add(1000 * time.Hour)
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			l, advance := fixedLimiter(b, start)
			ctx := context.Background()

			for i := 0; i < 10; i++ {
				_, err := l.Allow(ctx, "k", 10, time.Hour)
				require.NoError(t, err)
			}

			// a quarter into the next bucket, 75% of the old hits still count
			advance(time.Hour + 15*time.Minute)
			allowed := 0
			for i := 0; i < 5; i++ {
				res, err := l.Allow(ctx, "k", 10, time.Hour)
				require.NoError(t, err)
				if res.Allowed {
					allowed++
				}
			}
			assert.Equal(t, 2, allowed)

			// two windows later everything has expired
			advance(2 * time.Hour)
			res, err := l.Allow(ctx, "k", 10, time.Hour)
			require.NoError(t, err)
			assert.True(t, res.Allowed)
		})
	}
}

func TestAllowRejectsInvalidRate(t *testing.T) {
	_, err := New(NewMemoryBackend()).Allow(context.Background(), "k", 0, time.Hour)
	assert.Error(t, err)
}

type brokenBackend struct{}

func (brokenBackend) Hit(context.Context, string, int64, time.Duration) (int64, int64, error) {
	return 0, 0, errors.New("connection refused")
}

func TestMiddleware(t *testing.T) {
	app := fiber.New()
	l := New(NewMemoryBackend())
	app.Post("/register", Middleware(l, Rule{Name: "register", Limit: 2, Window: time.Hour}), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusCreated)
	})

	for i := 0; i < 2; i++ {
		resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/register", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusCreated, resp.StatusCode)
	}

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/register", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(fiber.HeaderRetryAfter))
	assert.Equal(t, "0", resp.Header.Get("X-RateLimit-Remaining"))
}

func TestMiddlewareFailsOpen(t *testing.T) {
	app := fiber.New()
	app.Get("/", Middleware(New(brokenBackend{}), RuleLogin), func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}
