package repositories

import (
	"context"

	"bloomshop/internal/models"
)

// UserRepository defines the interface for user data access, including the wishlist that
// belongs to the user aggregate.
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)

	GetWishlist(ctx context.Context, userID string) ([]models.WishlistItem, error)
	HasWishlistItem(ctx context.Context, userID, productID string) (bool, error)
	// AddToWishlist is idempotent: adding a present product is a successful no-op.
	AddToWishlist(ctx context.Context, userID, productID string) error
	// RemoveFromWishlist reports whether a row was removed.
	RemoveFromWishlist(ctx context.Context, userID, productID string) (bool, error)
}
