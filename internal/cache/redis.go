package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Domenick1991/esteticcore/config"
	"github.com/Domenick1991/esteticcore/internal/domain"
	"github.com/redis/go-redis/v9"
)

type RedisCache struct {
	client      *redis.Client
	productsTTL time.Duration
}

func NewRedisCache(cfg config.RedisConfig, productsTTL time.Duration) *RedisCache {
	return NewRedisCacheWithClient(
		redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}),
		productsTTL,
	)
}

func NewRedisCacheWithClient(client *redis.Client, productsTTL time.Duration) *RedisCache {
	return &RedisCache{client: client, productsTTL: productsTTL}
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

// GetProducts returns nil, nil on a cache miss.
func (c *RedisCache) GetProducts(ctx context.Context) ([]domain.Product, error) {
	data, err := c.client.Get(ctx, productsKey()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var products []domain.Product
	if err := json.Unmarshal(data, &products); err != nil {
		return nil, err
	}
	return products, nil
}

func (c *RedisCache) SetProducts(ctx context.Context, products []domain.Product) error {
	payload, err := json.Marshal(products)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, productsKey(), payload, c.productsTTL).Err()
}

func (c *RedisCache) InvalidateProducts(ctx context.Context) error {
	return c.client.Del(ctx, productsKey()).Err()
}

// AcquireSlotLock is advisory only. The row lock in the database decides.
func (c *RedisCache) AcquireSlotLock(ctx context.Context, slotID int64, ttl time.Duration) (bool, error) {
	return c.client.SetNX(ctx, slotLockKey(slotID), "locked", ttl).Result()
}

func (c *RedisCache) ReleaseSlotLock(ctx context.Context, slotID int64) error {
	return c.client.Del(ctx, slotLockKey(slotID)).Err()
}

func (c *RedisCache) AcquirePaymentLock(ctx context.Context, token string, ttl time.Duration) (bool, error) {
	return c.client.SetNX(ctx, paymentLockKey(token), "locked", ttl).Result()
}

func (c *RedisCache) ReleasePaymentLock(ctx context.Context, token string) error {
	return c.client.Del(ctx, paymentLockKey(token)).Err()
}

func productsKey() string {
	return "cache:products"
}

func slotLockKey(slotID int64) string {
	return fmt.Sprintf("lock:slot:%d", slotID)
}

func paymentLockKey(token string) string {
	return "lock:payment:" + token
}
