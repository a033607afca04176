package repositories

import (
	"context"
	"errors"
	"fmt"

	"bloomshop/internal/apperr"
	"bloomshop/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GORMCartRepository is a GORM implementation of CartRepository.
type GORMCartRepository struct {
	db *gorm.DB
}

// NewGORMCartRepository creates a new instance of GORMCartRepository.
func NewGORMCartRepository(db *gorm.DB) *GORMCartRepository {
	return &GORMCartRepository{db: db}
}

// GetByUserID returns the user's cart with its items.
func (r *GORMCartRepository) GetByUserID(ctx context.Context, userID string) (*models.Cart, error) {
	var cart models.Cart
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		First(&cart, "user_id = ?", userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("cart for user %s not found", userID)
		}
		return nil, fmt.Errorf("failed to get cart for user %s: %w", userID, err)
	}
	return &cart, nil
}

// GetOrCreateForUpdate locks the cart row (SELECT ... FOR UPDATE on PostgreSQL; SQLite
// ignores the clause and relies on its single writer) and loads the items separately so
// the lock is not applied to the item query.
func (r *GORMCartRepository) GetOrCreateForUpdate(ctx context.Context, userID string) (*models.Cart, error) {
	db := r.db.WithContext(ctx)

	var cart models.Cart
	err := db.Clauses(clause.Locking{Strength: "UPDATE"}).First(&cart, "user_id = ?", userID).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		cart = models.Cart{ID: uuid.New().String(), UserID: userID}
		cart.Recalculate()
		if err := db.Omit(clause.Associations).Create(&cart).Error; err != nil {
			return nil, fmt.Errorf("failed to create cart for user %s: %w", userID, err)
		}
		return &cart, nil
	case err != nil:
		return nil, fmt.Errorf("failed to lock cart for user %s: %w", userID, err)
	}

	if err := db.Where("cart_id = ?", cart.ID).Order("id").Find(&cart.Items).Error; err != nil {
		return nil, fmt.Errorf("failed to load cart items for user %s: %w", userID, err)
	}
	return &cart, nil
}

// Save writes the cart header then each line (insert for new lines, update otherwise).
func (r *GORMCartRepository) Save(ctx context.Context, cart *models.Cart) error {
	db := r.db.WithContext(ctx)
	if err := db.Omit(clause.Associations).Save(cart).Error; err != nil {
		return fmt.Errorf("failed to save cart %s: %w", cart.ID, err)
	}
	for i := range cart.Items {
		cart.Items[i].CartID = cart.ID
		if err := db.Save(&cart.Items[i]).Error; err != nil {
			return fmt.Errorf("failed to save cart item for product %s: %w", cart.Items[i].ProductID, err)
		}
	}
	return nil
}
