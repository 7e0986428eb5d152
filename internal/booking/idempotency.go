package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/AureaDrive/AureaDrive/internal/common/middleware"
	"github.com/redis/go-redis/v9"
)

// IdempotencyCache 幂等键 -> 预订 ID 的快路径缓存。
// 权威去重是 reservations 表上的唯一索引；缓存只为省一次条件写入，
// 不可用时直接降级，不影响正确性。
type IdempotencyCache interface {
	Get(ctx context.Context, key string) (string, error)
	Put(ctx context.Context, key, reservationID string, ttl time.Duration) error
}

const idemKeyPrefix = "booking:idem:"

// RedisIdempotencyCache 基于 Redis 的实现，外面包一层熔断器：
// Redis 故障时快速失败，调用方落回数据库唯一索引。
type RedisIdempotencyCache struct {
	client  *redis.Client
	breaker *middleware.CircuitBreaker
}

func NewRedisIdempotencyCache(client *redis.Client) *RedisIdempotencyCache {
	return &RedisIdempotencyCache{
		client:  client,
		breaker: middleware.NewCircuitBreaker("booking-idem-redis", 5, 30*time.Second),
	}
}

func (c *RedisIdempotencyCache) Get(ctx context.Context, key string) (string, error) {
	if c == nil || c.client == nil {
		return "", fmt.Errorf("idempotency cache not configured")
	}
	var val string
	err := c.breaker.Call(ctx, func() error {
		v, err := c.client.Get(ctx, idemKeyPrefix+key).Result()
		if err == redis.Nil {
			return nil
		}
		if err != nil {
			return err
		}
		val = v
		return nil
	})
	if err != nil {
		return "", err
	}
	return val, nil
}

func (c *RedisIdempotencyCache) Put(ctx context.Context, key, reservationID string, ttl time.Duration) error {
	if c == nil || c.client == nil {
		return fmt.Errorf("idempotency cache not configured")
	}
	return c.breaker.Call(ctx, func() error {
		return c.client.Set(ctx, idemKeyPrefix+key, reservationID, ttl).Err()
	})
}
