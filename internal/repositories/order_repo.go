package repositories

import (
	"context"
	"time"

	"bloomshop/internal/models"

	"github.com/shopspring/decimal"
)

// StatusChange describes a conditional order status write: it applies only while the
// stored status still equals From.
type StatusChange struct {
	OrderID        string
	From           models.OrderStatus
	To             models.OrderStatus
	At             time.Time
	TrackingNumber string
	Notes          string
}

// PaymentChange describes a conditional payment status write keyed on From.
type PaymentChange struct {
	OrderID           string
	From              models.PaymentStatus
	To                models.PaymentStatus
	ExternalPaymentID string
	ExternalSignature string
	FailureReason     string
	At                time.Time
}

// RefundChange records a refund. It applies only while the payment is still refundable and
// the stored refund amount still equals Previous, so fulfilment changes never block it.
type RefundChange struct {
	OrderID      string
	Previous     decimal.Decimal
	To           models.PaymentStatus
	RefundAmount decimal.Decimal // cumulative
	Reason       string
	At           time.Time
}

// OrderRepository defines the interface for order data access. Orders are never deleted and
// every mutation after creation is a conditional write that reports whether it applied.
type OrderRepository interface {
	Create(ctx context.Context, order *models.Order) error
	GetByID(ctx context.Context, id string) (*models.Order, error)
	GetByExternalOrderID(ctx context.Context, externalOrderID string) (*models.Order, error)
	// List returns the orders of userID, or every order when userID is empty.
	List(ctx context.Context, userID string) ([]models.Order, error)

	TransitionStatus(ctx context.Context, change StatusChange) (bool, error)
	TransitionPayment(ctx context.Context, change PaymentChange) (bool, error)
	RecordRefund(ctx context.Context, change RefundChange) (bool, error)
	// AttachExternalOrder stores the gateway order id while payment is still pending.
	AttachExternalOrder(ctx context.Context, id, externalOrderID string) (bool, error)

	// BackfillExternalPayment stores the gateway payment id on a completed payment that was
	// confirmed without one.
	BackfillExternalPayment(ctx context.Context, id, externalPaymentID string) (bool, error)

	// MarkInventoryCommitted flips inventory_committed false->true for a live, unrestored order.
	MarkInventoryCommitted(ctx context.Context, id string) (bool, error)
	// MarkInventoryRestored flips inventory_restored false->true for a committed order.
	MarkInventoryRestored(ctx context.Context, id string) (bool, error)
}
