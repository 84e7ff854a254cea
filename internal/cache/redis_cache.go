package cache

import (
	"context"
	"encoding/json"
	"time"

	redis "github.com/redis/go-redis/v9"

	"dorixona/backend/internal/domain"
)

type RedisDebtSummaryCache struct {
	client *redis.Client
}

func NewRedisDebtSummaryCache(addr string, password string, db int) *RedisDebtSummaryCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisDebtSummaryCache{client: client}
}

func (c *RedisDebtSummaryCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisDebtSummaryCache) Close() error {
	return c.client.Close()
}

func (c *RedisDebtSummaryCache) Get(ctx context.Context, key string) (*domain.DebtSummary, bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var summary domain.DebtSummary
	if err := json.Unmarshal([]byte(val), &summary); err != nil {
		return nil, false, err
	}
	return &summary, true, nil
}

func (c *RedisDebtSummaryCache) Set(ctx context.Context, key string, value *domain.DebtSummary, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, payload, ttl).Err()
}

func (c *RedisDebtSummaryCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}
