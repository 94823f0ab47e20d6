package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/vibefunder/billing/internal/config"
)

func newTestCache(enabled bool) Cache {
	cfg := config.GetDefaultConfig()
	cfg.Cache.Enabled = enabled
	cfg.Cache.PriceTTL = time.Minute
	return NewInMemoryCache(cfg)
}

func TestGenerateKey(t *testing.T) {
	assert.Equal(t, "price:v1:active:camp_1:patron:monthly",
		GenerateKey(PrefixActivePrice, "camp_1", "patron", "monthly"))
	assert.Equal(t, "price:v1:price_1", GenerateKey(PrefixPrice, "price_1"))
}

func TestInMemoryCacheDeleteByPrefix(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(true)

	c.Set(ctx, GenerateKey(PrefixActivePrice, "camp_1", "patron", "monthly"), "a", 0)
	c.Set(ctx, GenerateKey(PrefixActivePrice, "camp_2", "patron", "monthly"), "b", 0)
	c.Set(ctx, "other:key", "c", 0)

	c.DeleteByPrefix(ctx, PrefixActivePrice)

	_, found := c.Get(ctx, GenerateKey(PrefixActivePrice, "camp_1", "patron", "monthly"))
	assert.False(t, found)
	_, found = c.Get(ctx, GenerateKey(PrefixActivePrice, "camp_2", "patron", "monthly"))
	assert.False(t, found)
	v, found := c.Get(ctx, "other:key")
	assert.True(t, found)
	assert.Equal(t, "c", v)
}

func TestInMemoryCacheDisabled(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(false)

	c.Set(ctx, "k", "v", time.Minute)
	_, found := c.Get(ctx, "k")
	assert.False(t, found)
}

func TestInMemoryCacheExpiry(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(true)

	c.Set(ctx, "k", "v", time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	_, found := c.Get(ctx, "k")
	assert.False(t, found)
}
