package cache

import (
	"context"
	"errors"

	"github.com/tillwise/pos/internal/domain"
)

// SnapshotCache holds the most recent catalog and customer listings
// fetched from the backend. Snapshots go stale on their TTL or when a
// checkout (successful or failed) invalidates them.
type SnapshotCache interface {
	GetCatalog(ctx context.Context, shopID string) ([]domain.Product, error)
	SetCatalog(ctx context.Context, shopID string, products []domain.Product) error
	GetCustomers(ctx context.Context, shopID string) ([]domain.Customer, error)
	SetCustomers(ctx context.Context, shopID string, customers []domain.Customer) error
	Invalidate(ctx context.Context, shopID string) error
}

var ErrCacheMiss = errors.New("cache miss")
