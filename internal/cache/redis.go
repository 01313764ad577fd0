package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tillwise/pos/internal/domain"
)

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{
		client:  client,
		baseTTL: 60 * time.Second,
	}
}

// RedisCache keeps catalog and customer snapshots with a short TTL plus
// jitter, so a fleet of terminals does not refetch in lockstep.
type RedisCache struct {
	client  *redis.Client
	baseTTL time.Duration
}

func (r *RedisCache) GetCatalog(ctx context.Context, shopID string) ([]domain.Product, error) {
	var products []domain.Product
	if err := r.get(ctx, catalogKey(shopID), &products); err != nil {
		return nil, err
	}
	return products, nil
}

func (r *RedisCache) SetCatalog(ctx context.Context, shopID string, products []domain.Product) error {
	return r.set(ctx, catalogKey(shopID), products)
}

func (r *RedisCache) GetCustomers(ctx context.Context, shopID string) ([]domain.Customer, error) {
	var customers []domain.Customer
	if err := r.get(ctx, customersKey(shopID), &customers); err != nil {
		return nil, err
	}
	return customers, nil
}

func (r *RedisCache) SetCustomers(ctx context.Context, shopID string, customers []domain.Customer) error {
	return r.set(ctx, customersKey(shopID), customers)
}

func (r *RedisCache) Invalidate(ctx context.Context, shopID string) error {
	if err := r.client.Del(ctx, catalogKey(shopID), customersKey(shopID)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func (r *RedisCache) get(ctx context.Context, key string, out any) error {
	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrCacheMiss
	}
	if err != nil {
		return fmt.Errorf("redis get failed: %w", err)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("unmarshal snapshot failed: %w", err)
	}
	return nil
}

func (r *RedisCache) set(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal snapshot failed: %w", err)
	}

	jitter := time.Duration(rand.Intn(30)) * time.Second
	if err := r.client.Set(ctx, key, data, r.baseTTL+jitter).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func catalogKey(shopID string) string {
	return fmt.Sprintf("catalog:%s", shopID)
}

func customersKey(shopID string) string {
	return fmt.Sprintf("customers:%s", shopID)
}
