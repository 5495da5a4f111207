package decision

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Deletes every key listed in the index set, then the set itself.
var redisInvalidateScript = redis.NewScript(`
local keys = redis.call("SMEMBERS", KEYS[1])
for i = 1, #keys, 500 do
  redis.call("DEL", unpack(keys, i, math.min(i + 499, #keys)))
end
redis.call("DEL", KEYS[1])
return #keys
`)

// RedisCache is a Cache shared by every process using the same Redis.
// Keys of one subject share a hash tag, so invalidation also works on a cluster.
type RedisCache struct {
	client   redis.UniversalClient
	prefix   string
	indexTTL time.Duration
}

// RedisCacheOption configures a RedisCache.
type RedisCacheOption func(*RedisCache)

// WithCachePrefix sets the key prefix. Defaults to "decision".
func WithCachePrefix(prefix string) RedisCacheOption {
	return func(c *RedisCache) {
		if p := strings.TrimSpace(prefix); p != "" {
			c.prefix = p
		}
	}
}

// WithIndexTTL bounds how long a subject index outlives its last write.
// It must be at least the longest decision TTL in use.
func WithIndexTTL(d time.Duration) RedisCacheOption {
	return func(c *RedisCache) {
		if d > 0 {
			c.indexTTL = d
		}
	}
}

// NewRedisCache creates a cache on client.
func NewRedisCache(client redis.UniversalClient, opts ...RedisCacheOption) *RedisCache {
	c := &RedisCache{
		client:   client,
		prefix:   "decision",
		indexTTL: 24 * time.Hour,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *RedisCache) Get(ctx context.Context, subject, key string) (Decision, bool, error) {
	raw, err := c.client.Get(ctx, c.valueKey(subject, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Decision{}, false, nil
	}
	if err != nil {
		return Decision{}, false, errors.Join(ErrCacheUnavailable, err)
	}

	var d Decision
	if err := json.Unmarshal(raw, &d); err != nil {
		// Corrupt entries count as a miss.
		_ = c.client.Del(ctx, c.valueKey(subject, key)).Err()
		return Decision{}, false, nil
	}
	return d, true, nil
}

func (c *RedisCache) Put(ctx context.Context, subject, key string, d Decision, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	raw, err := json.Marshal(d)
	if err != nil {
		return err
	}

	vk, ik := c.valueKey(subject, key), c.indexKey(subject)
	_, err = c.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, vk, raw, ttl)
		p.SAdd(ctx, ik, vk)
		p.PExpire(ctx, ik, max(c.indexTTL, ttl))
		return nil
	})
	if err != nil {
		return errors.Join(ErrCacheUnavailable, err)
	}
	return nil
}

func (c *RedisCache) Delete(ctx context.Context, subject string, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	vks := make([]string, len(keys))
	members := make([]any, len(keys))
	for i, k := range keys {
		vks[i] = c.valueKey(subject, k)
		members[i] = vks[i]
	}

	_, err := c.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, vks...)
		p.SRem(ctx, c.indexKey(subject), members...)
		return nil
	})
	if err != nil {
		return errors.Join(ErrCacheUnavailable, err)
	}
	return nil
}

func (c *RedisCache) InvalidateSubject(ctx context.Context, subject string) error {
	if err := redisInvalidateScript.Run(ctx, c.client, []string{c.indexKey(subject)}).Err(); err != nil {
		return errors.Join(ErrCacheUnavailable, err)
	}
	return nil
}

func (c *RedisCache) valueKey(subject, key string) string {
	return c.prefix + ":{" + subject + "}:" + key
}

func (c *RedisCache) indexKey(subject string) string {
	return c.prefix + ":{" + subject + "}:index"
}
