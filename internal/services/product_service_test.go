package services_test

import (
	"context"
	"fmt"
	"testing"

	"bloomshop/internal/apperr"
	"bloomshop/internal/models"
	"bloomshop/internal/services"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// MockProductRepository is a mock implementation of repositories.ProductRepository
type MockProductRepository struct {
	mock.Mock
}

func (m *MockProductRepository) GetAll(ctx context.Context) ([]models.Product, error) {
	args := m.Called()
	return args.Get(0).([]models.Product), args.Error(1)
}

func (m *MockProductRepository) GetByID(ctx context.Context, id string) (*models.Product, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Product), args.Error(1)
}

func (m *MockProductRepository) Create(ctx context.Context, product *models.Product) error {
	args := m.Called(product)
	return args.Error(0)
}

func (m *MockProductRepository) DecrementStock(ctx context.Context, id string, qty int) (bool, error) {
	args := m.Called(id, qty)
	return args.Bool(0), args.Error(1)
}

func (m *MockProductRepository) IncrementStock(ctx context.Context, id string, qty int) (bool, error) {
	args := m.Called(id, qty)
	return args.Bool(0), args.Error(1)
}

func (m *MockProductRepository) ListLowStock(ctx context.Context) ([]models.Product, error) {
	args := m.Called()
	return args.Get(0).([]models.Product), args.Error(1)
}

func rose(id string, stock int) models.Product {
	return models.Product{
		ID:        id,
		Name:      "Red Rose Bouquet",
		Price:     decimal.RequireFromString("49.99"),
		Inventory: models.Inventory{Stock: stock, LowStockThreshold: 5, IsAvailable: stock > 0},
	}
}

func TestProductService_GetAllProducts(t *testing.T) {
	mockRepo := new(MockProductRepository)
	service := services.NewProductService(mockRepo)

	expectedProducts := []models.Product{rose("1", 100), rose("2", 50)}
	mockRepo.On("GetAll").Return(expectedProducts, nil).Once()

	products, err := service.GetAllProducts(context.Background())

	assert.NoError(t, err)
	assert.Len(t, products, 2)
	assert.Equal(t, expectedProducts, products)
	mockRepo.AssertExpectations(t)
}

func TestProductService_GetProductByID(t *testing.T) {
	mockRepo := new(MockProductRepository)
	service := services.NewProductService(mockRepo)

	expectedProduct := rose("1", 100)
	mockRepo.On("GetByID", "1").Return(&expectedProduct, nil).Once()
	product, err := service.GetProductByID(context.Background(), "1")
	assert.NoError(t, err)
	assert.Equal(t, &expectedProduct, product)

	mockRepo.On("GetByID", "99").Return(nil, apperr.NotFound("product with ID 99 not found")).Once()
	product, err = service.GetProductByID(context.Background(), "99")
	assert.Error(t, err)
	assert.Nil(t, product)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	mockRepo.AssertExpectations(t)
}

func TestProductService_CreateProduct(t *testing.T) {
	mockRepo := new(MockProductRepository)
	service := services.NewProductService(mockRepo)

	newProduct := &models.Product{Name: "White Lilies", Price: decimal.NewFromInt(30), Inventory: models.Inventory{Stock: 20}}

	mockRepo.On("Create", newProduct).Return(nil).Once()
	err := service.CreateProduct(context.Background(), newProduct)
	assert.NoError(t, err)
	assert.NotEmpty(t, newProduct.ID)

	mockRepo.On("Create", newProduct).Return(fmt.Errorf("database error")).Once()
	err = service.CreateProduct(context.Background(), newProduct)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "database error")
	mockRepo.AssertExpectations(t)

	err = service.CreateProduct(context.Background(), &models.Product{Name: "Broken", Inventory: models.Inventory{Stock: -1}})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestProductService_LowStockProducts(t *testing.T) {
	mockRepo := new(MockProductRepository)
	service := services.NewProductService(mockRepo)

	mockRepo.On("ListLowStock").Return([]models.Product{rose("1", 2)}, nil).Once()
	products, err := service.LowStockProducts(context.Background())
	assert.NoError(t, err)
	assert.Len(t, products, 1)
	mockRepo.AssertExpectations(t)
}
