// Package search keeps a product full-text index and queries it.
package search

import (
	"context"

	"github.com/Skotchmaster/inventory/internal/models"
)

type Index interface {
	Index(ctx context.Context, p models.Product) error
	Remove(ctx context.Context, id uint) error
	Search(ctx context.Context, q string, offset, limit int) (int64, []models.Product, error)
}

type productSearcher interface {
	SearchProducts(ctx context.Context, q string, offset, limit int) (int64, []models.Product, error)
}

// StoreIndex answers queries from the product store. Index and Remove are
// no-ops since the store is the source of truth.
type StoreIndex struct {
	Store productSearcher
}

func (StoreIndex) Index(context.Context, models.Product) error { return nil }

func (StoreIndex) Remove(context.Context, uint) error { return nil }

func (s StoreIndex) Search(ctx context.Context, q string, offset, limit int) (int64, []models.Product, error) {
	return s.Store.SearchProducts(ctx, q, offset, limit)
}
