package utils

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

var redisClient *redis.Client

// InitRedis connects the cache client. Callers pass explicit connection
// values so tests can point it at an embedded server.
func InitRedis(host string, port, db int, password string) *redis.Client {
	redisClient = redis.NewClient(&redis.Options{
		Addr:         net.JoinHostPort(host, strconv.Itoa(port)),
		Password:     password,
		DB:           db,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
	// Ping to validate; ignore error so the app can run without a cache.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := redisClient.Ping(ctx).Err(); err != nil && Sugar != nil {
		Sugar.Warnf("redis unreachable, caching disabled: %v", err)
	}
	return redisClient
}

// GetRedis returns the configured client, or nil when caching is disabled.
func GetRedis() *redis.Client {
	return redisClient
}
