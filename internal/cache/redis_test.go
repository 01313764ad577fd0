package cache

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tillwise/pos/internal/domain"
)

func setupTestRedis(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewRedisCache(client), mr
}

func testProducts() []domain.Product {
	return []domain.Product{
		{ID: "p1", Name: "Cola", SKU: "SKU1", UnitPrice: decimal.RequireFromString("3.50"), Available: 12},
		{ID: "p2", Name: "Chips", SKU: "SKU2", UnitPrice: decimal.RequireFromString("2"), Available: 7},
	}
}

func TestCatalog_RoundTrip(t *testing.T) {
	cache, _ := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, cache.SetCatalog(ctx, "shop-1", testProducts()))

	got, err := cache.GetCatalog(ctx, "shop-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "p1", got[0].ID)
	assert.True(t, got[0].UnitPrice.Equal(decimal.RequireFromString("3.50")))
	assert.Equal(t, 7, got[1].Available)
}

func TestGetCatalog_Miss(t *testing.T) {
	cache, _ := setupTestRedis(t)

	_, err := cache.GetCatalog(context.Background(), "shop-1")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestGetCatalog_CorruptPayload(t *testing.T) {
	cache, mr := setupTestRedis(t)
	mr.Set(catalogKey("shop-1"), "not json")

	_, err := cache.GetCatalog(context.Background(), "shop-1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCacheMiss)
}

func TestCustomers_RoundTrip(t *testing.T) {
	cache, _ := setupTestRedis(t)
	ctx := context.Background()

	customers := []domain.Customer{{ID: "c1", Name: "Asha", Phone: "0770000001"}}
	require.NoError(t, cache.SetCustomers(ctx, "shop-1", customers))

	got, err := cache.GetCustomers(ctx, "shop-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Asha", got[0].Name)
}

func TestInvalidate_DropsBothSnapshots(t *testing.T) {
	cache, mr := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, cache.SetCatalog(ctx, "shop-1", testProducts()))
	require.NoError(t, cache.SetCustomers(ctx, "shop-1", []domain.Customer{{ID: "c1", Name: "Asha"}}))

	require.NoError(t, cache.Invalidate(ctx, "shop-1"))

	_, err := cache.GetCatalog(ctx, "shop-1")
	assert.ErrorIs(t, err, ErrCacheMiss)
	_, err = cache.GetCustomers(ctx, "shop-1")
	assert.ErrorIs(t, err, ErrCacheMiss)

	assert.False(t, mr.Exists(catalogKey("shop-1")))
	assert.False(t, mr.Exists(customersKey("shop-1")))
}

func TestSetCatalog_AppliesTTL(t *testing.T) {
	cache, mr := setupTestRedis(t)

	require.NoError(t, cache.SetCatalog(context.Background(), "shop-1", testProducts()))

	ttl := mr.TTL(catalogKey("shop-1"))
	assert.GreaterOrEqual(t, ttl, cache.baseTTL)

	// Payload is plain JSON, readable by other consumers.
	var products []domain.Product
	raw, err := mr.Get(catalogKey("shop-1"))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(raw), &products))
	assert.Len(t, products, 2)
}
