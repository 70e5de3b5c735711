// internal/inventory/service.go
package inventory

import (
	"context"
)

// ItemInput carries the caller-supplied item fields.
type ItemInput struct {
	Code        string
	Name        string
	CategoryID  *int64
	Stock       int
	Location    string
	Description string
	Active      bool
}

// Service defines the interface for the item catalog.
type Service interface {
	CreateItem(ctx context.Context, in ItemInput) (*Item, error)
	GetItem(ctx context.Context, id int64) (*Item, error)
	ListItems(ctx context.Context, activeOnly bool) ([]Item, error)
	UpdateItem(ctx context.Context, id int64, in ItemInput) (*Item, error)
	DeleteItem(ctx context.Context, id int64) error
	ItemNames(ctx context.Context, ids []int64) (map[int64]string, error)

	CreateCategory(ctx context.Context, name string) (*Category, error)
	ListCategories(ctx context.Context) ([]Category, error)
	DeleteCategory(ctx context.Context, id int64) error
}
