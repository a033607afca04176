package repositories

import (
	"context"

	"bloomshop/internal/models"
)

// CartRepository defines the interface for cart data access.
type CartRepository interface {
	GetByUserID(ctx context.Context, userID string) (*models.Cart, error)
	// GetOrCreateForUpdate returns the user's cart, creating it when missing, and locks the
	// cart row for the rest of the surrounding transaction where the database supports it.
	GetOrCreateForUpdate(ctx context.Context, userID string) (*models.Cart, error)
	// Save persists the cart totals and every line item.
	Save(ctx context.Context, cart *models.Cart) error
}
