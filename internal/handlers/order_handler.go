package handlers

import (
	"bloomshop/internal/middleware"
	"bloomshop/internal/services"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// OrderHandler handles HTTP requests for orders.
type OrderHandler struct {
	service *services.OrderService
	logger  *zap.Logger
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(service *services.OrderService, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{
		service: service,
		logger:  logger,
	}
}

// RegisterRoutes registers the order routes. router must already require authentication.
func (h *OrderHandler) RegisterRoutes(router fiber.Router) {
	orderRoutes := router.Group("/orders")
	orderRoutes.Get("/", h.HandleGetOrders)
	orderRoutes.Post("/", h.HandleCreateOrder)
	// Registered before /:id so "bulk-status" is not taken for an id.
	orderRoutes.Put("/bulk-status", middleware.AdminOnly(), h.HandleBulkUpdateStatus)
	orderRoutes.Get("/:id", h.HandleGetOrderByID)
	orderRoutes.Put("/:id/status", middleware.AdminOnly(), h.HandleUpdateOrderStatus)
	orderRoutes.Put("/:id/cancel", h.HandleCancelOrder)
}

// HandleGetOrders lists the caller's orders, or every order for admins.
func (h *OrderHandler) HandleGetOrders(c *fiber.Ctx) error {
	orders, err := h.service.ListOrders(c.UserContext(), caller(c))
	if err != nil {
		return fail(c, h.logger, err)
	}
	return success(c, fiber.StatusOK, orders)
}

// HandleGetOrderByID retrieves a single order by its ID.
func (h *OrderHandler) HandleGetOrderByID(c *fiber.Ctx) error {
	order, err := h.service.GetOrder(c.UserContext(), caller(c), c.Params("id"))
	if err != nil {
		return fail(c, h.logger, err)
	}
	return success(c, fiber.StatusOK, order)
}

// HandleCreateOrder places an order for the caller.
func (h *OrderHandler) HandleCreateOrder(c *fiber.Ctx) error {
	var req services.CreateOrderRequest
	if err := bind(c, &req); err != nil {
		return fail(c, h.logger, err)
	}

	order, err := h.service.CreateOrder(c.UserContext(), caller(c), req)
	if err != nil {
		return fail(c, h.logger, err)
	}
	return success(c, fiber.StatusCreated, order)
}

// HandleUpdateOrderStatus updates the status of an existing order.
func (h *OrderHandler) HandleUpdateOrderStatus(c *fiber.Ctx) error {
	var req services.UpdateStatusRequest
	if err := bind(c, &req); err != nil {
		return fail(c, h.logger, err)
	}

	order, err := h.service.UpdateStatus(c.UserContext(), c.Params("id"), req)
	if err != nil {
		return fail(c, h.logger, err)
	}
	return success(c, fiber.StatusOK, order)
}

// HandleBulkUpdateStatus applies one status to many orders. Per-order failures are
// reported in the body, not as an error status.
func (h *OrderHandler) HandleBulkUpdateStatus(c *fiber.Ctx) error {
	var req services.BulkStatusRequest
	if err := bind(c, &req); err != nil {
		return fail(c, h.logger, err)
	}

	report, err := h.service.BulkUpdateStatus(c.UserContext(), req)
	if err != nil {
		return fail(c, h.logger, err)
	}
	return success(c, fiber.StatusOK, report)
}

func (h *OrderHandler) HandleCancelOrder(c *fiber.Ctx) error {
	var req services.CancelRequest
	if len(c.Body()) > 0 {
		if err := bind(c, &req); err != nil {
			return fail(c, h.logger, err)
		}
	}

	order, err := h.service.CancelOrder(c.UserContext(), caller(c), c.Params("id"), req)
	if err != nil {
		return fail(c, h.logger, err)
	}
	return success(c, fiber.StatusOK, order)
}
