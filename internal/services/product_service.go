package services

import (
	"context"

	"bloomshop/internal/apperr"
	"bloomshop/internal/models"
	"bloomshop/internal/repositories"

	"github.com/google/uuid"
)

// ProductService handles business logic related to products. Stock is read here and only
// ever changed by the inventory ledger.
type ProductService struct {
	repo repositories.ProductRepository
}

// NewProductService creates a new ProductService.
func NewProductService(repo repositories.ProductRepository) *ProductService {
	return &ProductService{
		repo: repo,
	}
}

// GetAllProducts retrieves all products.
func (s *ProductService) GetAllProducts(ctx context.Context) ([]models.Product, error) {
	return s.repo.GetAll(ctx)
}

// GetProductByID retrieves a single product by its ID.
func (s *ProductService) GetProductByID(ctx context.Context, id string) (*models.Product, error) {
	return s.repo.GetByID(ctx, id)
}

// CreateProduct adds a product with its opening stock. It is used for catalogue seeding.
func (s *ProductService) CreateProduct(ctx context.Context, product *models.Product) error {
	if product.Price.IsNegative() {
		return apperr.Validation("price must not be negative")
	}
	if product.Inventory.Stock < 0 || product.Inventory.LowStockThreshold < 0 {
		return apperr.Validation("stock and low stock threshold must not be negative")
	}
	if product.ID == "" {
		product.ID = uuid.New().String()
	}
	return s.repo.Create(ctx, product)
}

// LowStockProducts lists products at or below their low-stock threshold.
func (s *ProductService) LowStockProducts(ctx context.Context) ([]models.Product, error) {
	return s.repo.ListLowStock(ctx)
}
