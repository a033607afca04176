package repositories

import (
	"context"
	"errors"
	"fmt"

	"bloomshop/internal/apperr"
	"bloomshop/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GORMProductRepository is a GORM implementation of ProductRepository.
type GORMProductRepository struct {
	db *gorm.DB
}

// NewGORMProductRepository creates a new instance of GORMProductRepository.
func NewGORMProductRepository(db *gorm.DB) *GORMProductRepository {
	return &GORMProductRepository{
		db: db,
	}
}

// GetAll retrieves all products from the database.
func (r *GORMProductRepository) GetAll(ctx context.Context) ([]models.Product, error) {
	var products []models.Product
	if err := r.db.WithContext(ctx).Order("name").Find(&products).Error; err != nil {
		return nil, fmt.Errorf("failed to get all products: %w", err)
	}
	return products, nil
}

// GetByID retrieves a single product by its ID from the database.
func (r *GORMProductRepository) GetByID(ctx context.Context, id string) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).First(&product, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("product with ID %s not found", id)
		}
		return nil, fmt.Errorf("failed to get product by ID %s: %w", id, err)
	}
	return &product, nil
}

// Create creates a new product in the database.
func (r *GORMProductRepository) Create(ctx context.Context, product *models.Product) error {
	if product.ID == "" {
		product.ID = uuid.New().String()
	}
	product.Inventory.IsAvailable = product.Inventory.Stock > 0
	if err := r.db.WithContext(ctx).Create(product).Error; err != nil {
		return fmt.Errorf("failed to create product: %w", err)
	}
	return nil
}

// DecrementStock runs "decrement iff stock >= qty" as one UPDATE. Availability is derived
// in the same statement from the pre-update stock, so it can never drift from stock.
func (r *GORMProductRepository) DecrementStock(ctx context.Context, id string, qty int) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Product{}).
		Where("id = ? AND inventory_stock >= ?", id, qty).
		Updates(map[string]interface{}{
			"inventory_stock":        gorm.Expr("inventory_stock - ?", qty),
			"inventory_is_available": gorm.Expr("inventory_stock - ? > 0", qty),
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to decrement stock for product %s: %w", id, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// IncrementStock adds qty to the product's stock in one UPDATE.
func (r *GORMProductRepository) IncrementStock(ctx context.Context, id string, qty int) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Product{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"inventory_stock":        gorm.Expr("inventory_stock + ?", qty),
			"inventory_is_available": gorm.Expr("inventory_stock + ? > 0", qty),
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to increment stock for product %s: %w", id, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// ListLowStock returns products at or below their low-stock threshold.
func (r *GORMProductRepository) ListLowStock(ctx context.Context) ([]models.Product, error) {
	var products []models.Product
	err := r.db.WithContext(ctx).
		Where("inventory_stock <= inventory_low_stock_threshold").
		Order("inventory_stock").
		Find(&products).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list low stock products: %w", err)
	}
	return products, nil
}
