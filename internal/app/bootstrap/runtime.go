package bootstrap

import (
	"context"
	"crypto/tls"
	"strings"

	"github.com/redis/go-redis/v9"

	appconfig "github.com/wolfman30/ecw-bridge/internal/config"
	"github.com/wolfman30/ecw-bridge/internal/sessions"
	"github.com/wolfman30/ecw-bridge/pkg/logging"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// BuildSessionStore returns the portal session store when Redis is available.
func BuildSessionStore(redisClient *redis.Client, cfg *appconfig.Config) *sessions.Store {
	if redisClient == nil {
		return nil
	}
	var ttl = sessions.DefaultTTL
	if cfg != nil && cfg.ECWSessionTTL > 0 {
		ttl = cfg.ECWSessionTTL
	}
	return sessions.NewStore(redisClient, ttl)
}

// RedisHealthCheck adapts a client to the health handler's check signature.
func RedisHealthCheck(redisClient *redis.Client) func(ctx context.Context) error {
	if redisClient == nil {
		return nil
	}
	return func(ctx context.Context) error {
		return redisClient.Ping(ctx).Err()
	}
}
