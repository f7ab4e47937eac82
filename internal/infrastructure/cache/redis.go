package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"scamguard/internal/config"
	"scamguard/pkg/logger"
)

// RedisCache wraps the Redis client with the typed operations the engine
// needs: the known-bad-sender blocklist, the daily AI review budget, and
// request rate limiting.
type RedisCache struct {
	client    *redis.Client
	keyPrefix string
	logger    *logger.Logger
}

// NewRedis creates a new Redis client
func NewRedis(ctx context.Context, cfg config.RedisConfig, log *logger.Logger) (*RedisCache, error) {
	log = log.WithComponent("redis")
	log.Info().Str("host", cfg.Host).Int("port", cfg.Port).Msg("connecting to Redis")

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	log.Info().Msg("connected to Redis successfully")

	return &RedisCache{
		client:    client,
		keyPrefix: cfg.KeyPrefix,
		logger:    log,
	}, nil
}

// Client returns the underlying Redis client
func (c *RedisCache) Client() *redis.Client {
	return c.client
}

// Close closes the Redis connection
func (c *RedisCache) Close() error {
	c.logger.Info().Msg("closing Redis connection")
	return c.client.Close()
}

// key prepends the namespace prefix to a key
func (c *RedisCache) key(k string) string {
	return c.keyPrefix + k
}

const blocklistKey = "blocklist:senders"

// IsBlocked reports whether a sender number is on the known-scam blocklist.
func (c *RedisCache) IsBlocked(ctx context.Context, number string) (bool, error) {
	return c.client.SIsMember(ctx, c.key(blocklistKey), number).Result()
}

// BlockSender adds a sender number to the known-scam blocklist.
func (c *RedisCache) BlockSender(ctx context.Context, number string) error {
	return c.client.SAdd(ctx, c.key(blocklistKey), number).Err()
}

// UnblockSender removes a sender number from the blocklist.
func (c *RedisCache) UnblockSender(ctx context.Context, number string) error {
	return c.client.SRem(ctx, c.key(blocklistKey), number).Err()
}

// AIQuota is a daily AI review budget counted in Redis, shared across
// processes. The counter key rolls over at midnight UTC.
type AIQuota struct {
	cache *RedisCache
	limit int
}

// NewAIQuota creates a quota of limit reviews per UTC day.
func (c *RedisCache) NewAIQuota(limit int) *AIQuota {
	return &AIQuota{cache: c, limit: limit}
}

// Consume takes one review from today's budget, reporting whether any
// remained.
func (q *AIQuota) Consume(ctx context.Context) (bool, error) {
	key := q.cache.key("ai:quota:" + time.Now().UTC().Format("2006-01-02"))

	count, err := q.cache.client.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to increment AI quota: %w", err)
	}
	if count == 1 {
		// First consumer of the day sets the expiry.
		q.cache.client.Expire(ctx, key, 48*time.Hour)
	}
	return count <= int64(q.limit), nil
}

// CheckRateLimit implements a fixed-window rate limit per client.
func (c *RedisCache) CheckRateLimit(ctx context.Context, clientID string, limit int64, window time.Duration) (allowed bool, remaining int64, resetTime time.Time, err error) {
	key := c.key(fmt.Sprintf("ratelimit:%s:%d", clientID, time.Now().Unix()/int64(window.Seconds())))

	count, err := c.client.Incr(ctx, key).Result()
	if err != nil {
		return false, 0, time.Time{}, err
	}
	if count == 1 {
		c.client.Expire(ctx, key, window)
	}

	resetTime = time.Now().Truncate(window).Add(window)
	remaining = limit - count
	if remaining < 0 {
		remaining = 0
	}
	return count <= limit, remaining, resetTime, nil
}
