package cache

import (
	"context"
	"testing"
	"time"

	"github.com/Domenick1991/esteticcore/config"
	"github.com/stretchr/testify/assert"
)

func TestKeys(t *testing.T) {
	assert.Equal(t, "cache:products", productsKey())
	assert.Equal(t, "lock:slot:17", slotLockKey(17))
	assert.Equal(t, "lock:payment:01ab", paymentLockKey("01ab"))
}

func TestNewRedisCache(t *testing.T) {
	c := NewRedisCache(config.RedisConfig{Addr: "127.0.0.1:0"}, time.Minute)
	assert.NotNil(t, c)
	assert.Equal(t, time.Minute, c.productsTTL)
	assert.NoError(t, c.Close())
}

func TestPing_Unreachable(t *testing.T) {
	c := NewRedisCache(config.RedisConfig{Addr: "127.0.0.1:1"}, time.Minute)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.Error(t, c.Ping(ctx))
}
