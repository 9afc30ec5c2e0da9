package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const keyPrefix = "salonpos:catalog:"

type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) Get(ctx context.Context, key string, dest any) (bool, error) {
	val, err := c.client.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(val, dest); err != nil {
		return false, err
	}
	return true, nil
}

// Set stores the value and records its key in the owner's set. The set lives
// at least as long as its newest member.
func (c *RedisCache) Set(ctx context.Context, owner string, key string, value any, ttl time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	setKey := ownerSetKey(owner)
	pipe := c.client.TxPipeline()
	pipe.Set(ctx, keyPrefix+key, payload, ttl)
	pipe.SAdd(ctx, setKey, keyPrefix+key)
	if ttl > 0 {
		pipe.Expire(ctx, setKey, ttl)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (c *RedisCache) InvalidateOwner(ctx context.Context, owner string) error {
	setKey := ownerSetKey(owner)
	members, err := c.client.SMembers(ctx, setKey).Result()
	if err != nil {
		return err
	}
	keys := append(members, setKey)
	return c.client.Del(ctx, keys...).Err()
}

func ownerSetKey(owner string) string {
	return keyPrefix + "owner:" + owner
}
