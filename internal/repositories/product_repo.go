package repositories

import (
	"context"

	"bloomshop/internal/models"
)

// ProductRepository defines the interface for product data access.
// Stock is changed only through the conditional DecrementStock and IncrementStock.
type ProductRepository interface {
	GetAll(ctx context.Context) ([]models.Product, error)
	GetByID(ctx context.Context, id string) (*models.Product, error)
	Create(ctx context.Context, product *models.Product) error
	// DecrementStock subtracts qty iff stock >= qty. It reports false when the condition
	// did not hold (or the product does not exist) and leaves the row untouched.
	DecrementStock(ctx context.Context, id string, qty int) (bool, error)
	// IncrementStock adds qty. It reports false when the product does not exist.
	IncrementStock(ctx context.Context, id string, qty int) (bool, error)
	ListLowStock(ctx context.Context) ([]models.Product, error)
}
