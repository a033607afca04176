package handlers

import (
	"bloomshop/internal/middleware"
	"bloomshop/internal/services"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// SignatureHeader carries the gateway's HMAC of the webhook body.
const SignatureHeader = "X-Razorpay-Signature"

// PaymentHandler exposes the payment reconciler.
type PaymentHandler struct {
	reconciler *services.PaymentReconciler
	logger     *zap.Logger
}

func NewPaymentHandler(reconciler *services.PaymentReconciler, logger *zap.Logger) *PaymentHandler {
	return &PaymentHandler{reconciler: reconciler, logger: logger}
}

// RegisterWebhook registers the gateway callback, which authenticates by signature only.
func (h *PaymentHandler) RegisterWebhook(router fiber.Router) {
	router.Post("/payments/webhook", h.HandleWebhook)
}

// RegisterRoutes registers the caller-facing payment routes. router must already require
// authentication.
func (h *PaymentHandler) RegisterRoutes(router fiber.Router) {
	payments := router.Group("/payments")
	payments.Post("/create-order", h.HandleCreateOrder)
	payments.Post("/verify", h.HandleVerify)
	payments.Post("/refund", middleware.AdminOnly(), h.HandleRefund)
}

func (h *PaymentHandler) HandleCreateOrder(c *fiber.Ctx) error {
	var req services.CreateGatewayOrderRequest
	if err := bind(c, &req); err != nil {
		return fail(c, h.logger, err)
	}

	gwOrder, err := h.reconciler.CreateGatewayOrder(c.UserContext(), caller(c), req)
	if err != nil {
		return fail(c, h.logger, err)
	}
	return success(c, fiber.StatusCreated, gwOrder)
}

func (h *PaymentHandler) HandleVerify(c *fiber.Ctx) error {
	var req services.VerifyRequest
	if err := bind(c, &req); err != nil {
		return fail(c, h.logger, err)
	}

	order, err := h.reconciler.Verify(c.UserContext(), caller(c), req)
	if err != nil {
		return fail(c, h.logger, err)
	}
	return success(c, fiber.StatusOK, order)
}

// HandleWebhook verifies the signature over the exact bytes received. A non-2xx reply makes
// the gateway redeliver.
func (h *PaymentHandler) HandleWebhook(c *fiber.Ctx) error {
	// fasthttp reuses the request buffer once the handler returns.
	body := append([]byte(nil), c.Body()...)

	result, err := h.reconciler.HandleWebhook(c.UserContext(), body, c.Get(SignatureHeader))
	if err != nil {
		return fail(c, h.logger, err)
	}
	return success(c, fiber.StatusOK, result)
}

func (h *PaymentHandler) HandleRefund(c *fiber.Ctx) error {
	var req services.RefundRequest
	if err := bind(c, &req); err != nil {
		return fail(c, h.logger, err)
	}

	order, err := h.reconciler.Refund(c.UserContext(), req)
	if err != nil {
		return fail(c, h.logger, err)
	}
	return success(c, fiber.StatusOK, order)
}
