package services

import (
	"context"
	"fmt"
	"time"

	"bloomshop/internal/apperr"
	"bloomshop/internal/models"
	"bloomshop/internal/notifications"
	"bloomshop/internal/repositories"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// OrderItemRequest is one requested line at checkout.
type OrderItemRequest struct {
	ProductID string `json:"productId" validate:"required"`
	Quantity  int    `json:"quantity" validate:"required,min=1"`
}

// PaymentInfo selects the payment method at checkout.
type PaymentInfo struct {
	Method models.PaymentMethod `json:"method" validate:"required,oneof=razorpay cod"`
}

// CreateOrderRequest is the checkout payload.
type CreateOrderRequest struct {
	Items           []OrderItemRequest `json:"items" validate:"required,min=1,dive"`
	ShippingAddress models.Address     `json:"shippingAddress"`
	PaymentInfo     PaymentInfo        `json:"paymentInfo"`
	ShippingMethod  string             `json:"shippingMethod" validate:"omitempty,oneof=standard express same_day"`
	Notes           string             `json:"notes,omitempty" validate:"max=500"`
}

// UpdateStatusRequest is the admin status change payload.
type UpdateStatusRequest struct {
	Status         models.OrderStatus `json:"status" validate:"required"`
	TrackingNumber string             `json:"trackingNumber,omitempty" validate:"max=64"`
	Notes          string             `json:"notes,omitempty" validate:"max=500"`
}

// BulkStatusRequest applies one status to many orders.
type BulkStatusRequest struct {
	OrderIDs []string           `json:"orderIds" validate:"required,min=1,dive,required"`
	Status   models.OrderStatus `json:"status" validate:"required"`
}

// CancelRequest carries an optional cancellation reason.
type CancelRequest struct {
	Reason string `json:"reason,omitempty" validate:"max=500"`
}

// OrderService handles business logic related to orders.
type OrderService struct {
	store    repositories.Store
	machine  *OrderStateMachine
	pricing  *Pricing
	notifier notifications.Notifier
	logger   *zap.Logger
	now      func() time.Time
}

// NewOrderService creates a new OrderService.
func NewOrderService(store repositories.Store, machine *OrderStateMachine, pricing *Pricing, notifier notifications.Notifier, logger *zap.Logger) *OrderService {
	return &OrderService{
		store:    store,
		machine:  machine,
		pricing:  pricing,
		notifier: notifier,
		logger:   logger.Named("checkout"),
		now:      time.Now,
	}
}

// CreateOrder places an order for the caller.
//
// Stock is checked but not taken: it is committed when the order is confirmed, by payment
// or by an admin for cash on delivery.
func (s *OrderService) CreateOrder(ctx context.Context, caller models.Caller, req CreateOrderRequest) (*models.Order, error) {
	if caller.UserID == "" {
		return nil, apperr.Unauthorized("missing caller")
	}
	if len(req.Items) == 0 {
		return nil, apperr.Validation("order must contain at least one item")
	}
	method := req.PaymentInfo.Method
	if method != models.PaymentMethodOnline && method != models.PaymentMethodCOD {
		return nil, apperr.Validation("unsupported payment method %q", method)
	}

	orderID := uuid.New().String()
	items := make([]models.OrderItem, 0, len(req.Items))
	requested := map[string]int{}
	for _, line := range req.Items {
		if line.Quantity < 1 {
			return nil, apperr.Validation("quantity for product %s must be at least 1", line.ProductID)
		}
		product, err := s.store.Products().GetByID(ctx, line.ProductID)
		if err != nil {
			return nil, err
		}
		requested[product.ID] += line.Quantity
		if !product.Inventory.IsAvailable || product.Inventory.Stock < requested[product.ID] {
			return nil, apperr.InsufficientStock("insufficient stock for %s (requested: %d, available: %d)",
				product.Name, requested[product.ID], product.Inventory.Stock)
		}
		items = append(items, models.OrderItem{
			OrderID:   orderID,
			ProductID: product.ID,
			Name:      product.Name,
			Quantity:  line.Quantity,
			Price:     product.Price,
		})
	}

	totals, err := s.pricing.Quote(items, req.ShippingMethod, decimal.Zero)
	if err != nil {
		return nil, err
	}

	shippingMethod := req.ShippingMethod
	if shippingMethod == "" {
		shippingMethod = ShippingStandard
	}
	order := &models.Order{
		ID:              orderID,
		OrderNumber:     models.NewOrderNumber(s.now()),
		UserID:          caller.UserID,
		Items:           items,
		ShippingAddress: req.ShippingAddress,
		ShippingMethod:  shippingMethod,
		Payment: models.Payment{
			Method:       method,
			Status:       models.PaymentStatusPending,
			RefundAmount: decimal.Zero,
		},
		Status: models.OrderStatusPending,
		Notes:  req.Notes,
	}
	order.ApplyTotals(totals)
	if !order.TotalsConsistent() {
		return nil, fmt.Errorf("order totals do not add up: subtotal %s shipping %s tax %s discount %s total %s",
			order.Subtotal, order.ShippingFee, order.Tax, order.Discount, order.Total)
	}

	if err := s.store.Orders().Create(ctx, order); err != nil {
		return nil, err
	}

	s.logger.Info("order placed",
		zap.String("order_id", order.ID),
		zap.String("order_number", order.OrderNumber),
		zap.String("user_id", order.UserID),
		zap.String("total", order.Total.StringFixed(2)),
		zap.String("payment_method", string(method)),
	)
	notifications.Send(ctx, s.notifier, s.logger, notifications.NewOrderEvent(notifications.KindOrderPlaced, order, ""))
	return order, nil
}

// ListOrders returns every order for admins and the caller's own orders otherwise.
func (s *OrderService) ListOrders(ctx context.Context, caller models.Caller) ([]models.Order, error) {
	if caller.IsAdmin() {
		return s.store.Orders().List(ctx, "")
	}
	return s.store.Orders().List(ctx, caller.UserID)
}

// GetOrder returns one order the caller may see.
func (s *OrderService) GetOrder(ctx context.Context, caller models.Caller, id string) (*models.Order, error) {
	order, err := s.store.Orders().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !caller.CanAccess(order.UserID) {
		return nil, apperr.Forbidden("order %s belongs to another user", order.OrderNumber)
	}
	return order, nil
}

// UpdateStatus applies an admin status change.
func (s *OrderService) UpdateStatus(ctx context.Context, id string, req UpdateStatusRequest) (*models.Order, error) {
	return s.machine.Transition(ctx, id, TransitionRequest{
		Target:         req.Status,
		TrackingNumber: req.TrackingNumber,
		Notes:          req.Notes,
	})
}

// BulkUpdateStatus applies one status to many orders and reports each outcome.
func (s *OrderService) BulkUpdateStatus(ctx context.Context, req BulkStatusRequest) (BulkReport, error) {
	if !req.Status.Valid() {
		return BulkReport{}, apperr.Validation("unknown order status %q", req.Status)
	}
	report := s.machine.BulkTransition(ctx, req.OrderIDs, req.Status)
	s.logger.Info("bulk status update",
		zap.String("status", string(req.Status)),
		zap.Int("updated", len(report.Succeeded)),
		zap.Int("failed", len(report.Failed)),
	)
	return report, nil
}

// customerCancellable lists the statuses the cancel endpoint accepts.
var customerCancellable = []models.OrderStatus{models.OrderStatusPending, models.OrderStatusConfirmed}

func cancellable(status models.OrderStatus) bool {
	for _, s := range customerCancellable {
		if s == status {
			return true
		}
	}
	return false
}

// CancelOrder cancels an order that has not started processing. Owners and admins may
// cancel.
func (s *OrderService) CancelOrder(ctx context.Context, caller models.Caller, id string, req CancelRequest) (*models.Order, error) {
	order, err := s.GetOrder(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	if !cancellable(order.Status) {
		return nil, apperr.InvalidTransition("order %s is %s and can no longer be cancelled", order.OrderNumber, order.Status)
	}
	return s.machine.Transition(ctx, id, TransitionRequest{
		Target: models.OrderStatusCancelled,
		From:   customerCancellable,
		Notes:  req.Reason,
	})
}
