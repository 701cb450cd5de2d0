package querycache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/quka-ai/kbcore/pkg/types"
)

// Redis is a types.Cache on top of a redis client.
type Redis struct {
	redis redis.UniversalClient
}

func NewRedis(cli redis.UniversalClient) *Redis {
	return &Redis{redis: cli}
}

func (c *Redis) Expire(ctx context.Context, key string, expiration time.Duration) error {
	return c.redis.Expire(ctx, key, expiration).Err()
}

func (c *Redis) SetEx(ctx context.Context, key, value string, expiresAt time.Duration) error {
	return c.redis.SetEx(ctx, key, value, expiresAt).Err()
}

func (c *Redis) Get(ctx context.Context, key string) (string, error) {
	res, err := c.redis.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", types.ErrCacheMiss
	}
	return res, err
}
