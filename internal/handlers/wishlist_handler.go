package handlers

import (
	"bloomshop/internal/services"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// WishlistHandler serves the wishlist and cart of the authenticated user.
type WishlistHandler struct {
	service *services.WishlistService
	logger  *zap.Logger
}

func NewWishlistHandler(service *services.WishlistService, logger *zap.Logger) *WishlistHandler {
	return &WishlistHandler{service: service, logger: logger}
}

// RegisterRoutes registers the wishlist and cart routes. router must already require
// authentication.
func (h *WishlistHandler) RegisterRoutes(router fiber.Router) {
	wishlist := router.Group("/wishlist")
	wishlist.Get("/", h.HandleGetWishlist)
	wishlist.Post("/:productId", h.HandleAdd)
	wishlist.Delete("/:productId", h.HandleRemove)
	wishlist.Post("/:productId/move-to-cart", h.HandleMoveToCart)

	router.Get("/cart", h.HandleGetCart)
}

func (h *WishlistHandler) HandleGetWishlist(c *fiber.Ctx) error {
	items, err := h.service.Get(c.UserContext(), caller(c).UserID)
	if err != nil {
		return fail(c, h.logger, err)
	}
	return success(c, fiber.StatusOK, items)
}

func (h *WishlistHandler) HandleAdd(c *fiber.Ctx) error {
	items, err := h.service.Add(c.UserContext(), caller(c).UserID, c.Params("productId"))
	if err != nil {
		return fail(c, h.logger, err)
	}
	return success(c, fiber.StatusOK, items)
}

func (h *WishlistHandler) HandleRemove(c *fiber.Ctx) error {
	items, err := h.service.Remove(c.UserContext(), caller(c).UserID, c.Params("productId"))
	if err != nil {
		return fail(c, h.logger, err)
	}
	return success(c, fiber.StatusOK, items)
}

// HandleMoveToCart moves one wishlist product into the cart atomically.
func (h *WishlistHandler) HandleMoveToCart(c *fiber.Ctx) error {
	var req services.MoveToCartRequest
	if err := bind(c, &req); err != nil {
		return fail(c, h.logger, err)
	}

	result, err := h.service.MoveToCart(c.UserContext(), caller(c).UserID, c.Params("productId"), req)
	if err != nil {
		return fail(c, h.logger, err)
	}
	return success(c, fiber.StatusOK, result)
}

func (h *WishlistHandler) HandleGetCart(c *fiber.Ctx) error {
	cart, err := h.service.Cart(c.UserContext(), caller(c).UserID)
	if err != nil {
		return fail(c, h.logger, err)
	}
	return success(c, fiber.StatusOK, cart)
}
