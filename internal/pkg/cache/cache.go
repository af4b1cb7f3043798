package cache

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2/log"
	redisstorage "github.com/gofiber/storage/redis"
	"github.com/redis/go-redis/v9"

	"github.com/ManuelReschke/ReportFox/internal/pkg/config"
)

// Logical databases on the cache server. Tokens, counters and the job
// queue share 0.
const (
	DatabaseMain       = 0
	DatabaseOAuthState = 2
	DatabaseLimiter    = 3
)

// SetupCache initializes the connection to the Redis-compatible cache server
func SetupCache(cfg config.CacheConfig) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       DatabaseMain,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	pong, err := client.Ping(ctx).Result()
	if err != nil {
		log.Warnf("[Cache] Could not connect to cache: %v", err)
	} else {
		log.Infof("[Cache] Successfully connected to cache: %s", pong)
	}
	return client
}

// NewFiberStorage opens a fiber.Storage on the same server as rdb, in the
// given logical database. A nil client falls back to 127.0.0.1:6379.
func NewFiberStorage(rdb *redis.Client, database int) *redisstorage.Storage {
	host, port := "127.0.0.1", 6379
	var username, password string
	if rdb != nil {
		opts := rdb.Options()
		username, password = opts.Username, opts.Password
		if h, p, err := net.SplitHostPort(opts.Addr); err == nil {
			host = h
			if parsed, e := strconv.Atoi(p); e == nil {
				port = parsed
			}
		} else if opts.Addr != "" {
			host = opts.Addr
		}
	}
	return redisstorage.New(redisstorage.Config{
		Host:     host,
		Port:     port,
		Username: username,
		Password: password,
		Database: database,
		Reset:    false,
	})
}
