package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"renobot/internal/config"
	"renobot/pkg/logger"
)

// ErrMiss is returned when a key is absent or the cache is disabled.
var ErrMiss = errors.New("cache miss")

// Cache wraps Redis for answer caching and rate limiting. A nil Cache
// is valid and behaves as if every lookup missed.
type Cache struct {
	client *redis.Client
}

// New connects to Redis per config. Returns nil (a disabled cache)
// when Redis is turned off in the config.
func New(cfg config.RedisConfig) (*Cache, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     100,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	logger.Info().Str("addr", cfg.Addr).Msg("redis connected")
	return &Cache{client: client}, nil
}

func (c *Cache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}

// GetAnswer returns a cached assistant answer for a project question.
func (c *Cache) GetAnswer(ctx context.Context, projectID uint, question string) (string, error) {
	if c == nil {
		return "", ErrMiss
	}
	val, err := c.client.Get(ctx, answerKey(projectID, question)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrMiss
	}
	return val, err
}

// SetAnswer caches an assistant answer with a TTL.
func (c *Cache) SetAnswer(ctx context.Context, projectID uint, question, answer string, ttl time.Duration) error {
	if c == nil {
		return nil
	}
	return c.client.Set(ctx, answerKey(projectID, question), answer, ttl).Err()
}

// InvalidateProject drops all cached answers for a project. Called
// after writes that change what an answer would say.
func (c *Cache) InvalidateProject(ctx context.Context, projectID uint) error {
	if c == nil {
		return nil
	}
	iter := c.client.Scan(ctx, 0, fmt.Sprintf("answer:%d:*", projectID), 100).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}

// CheckRateLimit counts calls per user in a sliding window. Returns
// true when the user is over the limit. Without Redis there is no
// limiting.
func (c *Cache) CheckRateLimit(ctx context.Context, userID int64, limit int, window time.Duration) (bool, error) {
	if c == nil {
		return false, nil
	}
	key := fmt.Sprintf("rate:%d", userID)
	count, err := c.client.Incr(ctx, key).Result()
	if err != nil {
		return false, err
	}
	if count == 1 {
		c.client.Expire(ctx, key, window)
	}
	return count > int64(limit), nil
}

func answerKey(projectID uint, question string) string {
	return fmt.Sprintf("answer:%d:%s", projectID, question)
}
