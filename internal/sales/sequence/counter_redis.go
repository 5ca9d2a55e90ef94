package sequence

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisCounter allocates with INCR. A missing key is first initialised to the seed with
// SETNX; racing initialisers all compute the same seed and only one write lands.
type RedisCounter struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisCounter constructs a RedisCounter. Keys are namespaced with keyPrefix.
func NewRedisCounter(client *redis.Client, keyPrefix string) *RedisCounter {
	if keyPrefix == "" {
		keyPrefix = "sales:seq:"
	}
	return &RedisCounter{client: client, keyPrefix: keyPrefix}
}

// Increment implements Counter.
func (c *RedisCounter) Increment(ctx context.Context, key Key, seed func(context.Context) (int64, error)) (int64, error) {
	rkey := c.keyPrefix + key.String()
	exists, err := c.client.Exists(ctx, rkey).Result()
	if err != nil {
		return 0, fmt.Errorf("redis exists: %w", err)
	}
	if exists == 0 {
		start, err := seed(ctx)
		if err != nil {
			return 0, err
		}
		if err := c.client.SetNX(ctx, rkey, start, 0).Err(); err != nil {
			return 0, fmt.Errorf("redis setnx: %w", err)
		}
	}
	value, err := c.client.Incr(ctx, rkey).Result()
	if err != nil {
		return 0, fmt.Errorf("redis incr: %w", err)
	}
	return value, nil
}
