package handlers

import (
	"bloomshop/internal/middleware"
	"bloomshop/internal/services"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// ProductHandler serves the flower catalogue.
type ProductHandler struct {
	service *services.ProductService
	logger  *zap.Logger
}

func NewProductHandler(service *services.ProductService, logger *zap.Logger) *ProductHandler {
	return &ProductHandler{service: service, logger: logger}
}

// RegisterRoutes registers the public catalogue routes.
func (h *ProductHandler) RegisterRoutes(router fiber.Router) {
	products := router.Group("/products")
	products.Get("/", h.HandleGetProducts)
	products.Get("/:id", h.HandleGetProductByID)
}

// RegisterAdminRoutes registers the low-stock report. router must already require
// authentication.
func (h *ProductHandler) RegisterAdminRoutes(router fiber.Router) {
	router.Get("/inventory/low-stock", middleware.AdminOnly(), h.HandleLowStock)
}

func (h *ProductHandler) HandleGetProducts(c *fiber.Ctx) error {
	products, err := h.service.GetAllProducts(c.UserContext())
	if err != nil {
		return fail(c, h.logger, err)
	}
	return success(c, fiber.StatusOK, products)
}

func (h *ProductHandler) HandleGetProductByID(c *fiber.Ctx) error {
	product, err := h.service.GetProductByID(c.UserContext(), c.Params("id"))
	if err != nil {
		return fail(c, h.logger, err)
	}
	return success(c, fiber.StatusOK, product)
}

func (h *ProductHandler) HandleLowStock(c *fiber.Ctx) error {
	products, err := h.service.LowStockProducts(c.UserContext())
	if err != nil {
		return fail(c, h.logger, err)
	}
	return success(c, fiber.StatusOK, products)
}
