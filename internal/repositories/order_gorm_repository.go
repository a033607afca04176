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

// Timestamp column stamped when an order or payment enters a status.
var (
	statusTimestampColumns = map[models.OrderStatus]string{
		models.OrderStatusConfirmed: "confirmed_at",
		models.OrderStatusShipped:   "shipped_at",
		models.OrderStatusDelivered: "delivered_at",
		models.OrderStatusCancelled: "cancelled_at",
	}
	paymentTimestampColumns = map[models.PaymentStatus]string{
		models.PaymentStatusCompleted:         "paid_at",
		models.PaymentStatusRefunded:          "refunded_at",
		models.PaymentStatusPartiallyRefunded: "refunded_at",
	}
)

// GORMOrderRepository is a GORM implementation of OrderRepository.
type GORMOrderRepository struct {
	db *gorm.DB
}

// NewGORMOrderRepository creates a new instance of GORMOrderRepository.
func NewGORMOrderRepository(db *gorm.DB) *GORMOrderRepository {
	return &GORMOrderRepository{db: db}
}

// Create inserts the order together with its line items.
func (r *GORMOrderRepository) Create(ctx context.Context, order *models.Order) error {
	if order.ID == "" {
		order.ID = uuid.New().String()
	}
	if order.Version == 0 {
		order.Version = 1
	}
	if err := r.db.WithContext(ctx).Create(order).Error; err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}
	return nil
}

// GetByID returns an order with its items.
func (r *GORMOrderRepository) GetByID(ctx context.Context, id string) (*models.Order, error) {
	return r.first(ctx, "id = ?", id)
}

// GetByExternalOrderID resolves an order by the gateway's order id.
func (r *GORMOrderRepository) GetByExternalOrderID(ctx context.Context, externalOrderID string) (*models.Order, error) {
	if externalOrderID == "" {
		return nil, apperr.NotFound("order with gateway order ID %q not found", externalOrderID)
	}
	return r.first(ctx, "payment_external_order_id = ?", externalOrderID)
}

func (r *GORMOrderRepository) first(ctx context.Context, query string, arg string) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		First(&order, query, arg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("order %s not found", arg)
		}
		return nil, fmt.Errorf("failed to get order %s: %w", arg, err)
	}
	return &order, nil
}

// List returns orders newest first.
func (r *GORMOrderRepository) List(ctx context.Context, userID string) ([]models.Order, error) {
	var orders []models.Order
	q := r.db.WithContext(ctx).Preload("Items").Order("created_at desc")
	if userID != "" {
		q = q.Where("user_id = ?", userID)
	}
	if err := q.Find(&orders).Error; err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return orders, nil
}

// TransitionStatus is the compare-and-swap on orders.status. The entry timestamp is written
// with COALESCE so an already-set value is never overwritten.
func (r *GORMOrderRepository) TransitionStatus(ctx context.Context, change StatusChange) (bool, error) {
	updates := map[string]interface{}{
		"status":  change.To,
		"version": gorm.Expr("version + 1"),
	}
	if col, ok := statusTimestampColumns[change.To]; ok {
		updates[col] = gorm.Expr("COALESCE("+col+", ?)", change.At)
	}
	if change.TrackingNumber != "" {
		updates["tracking_number"] = change.TrackingNumber
	}
	if change.Notes != "" {
		updates["notes"] = change.Notes
	}

	res := r.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND status = ?", change.OrderID, change.From).
		Updates(updates)
	if res.Error != nil {
		return false, fmt.Errorf("failed to transition order %s to %s: %w", change.OrderID, change.To, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// TransitionPayment is the compare-and-swap on orders.payment_status.
func (r *GORMOrderRepository) TransitionPayment(ctx context.Context, change PaymentChange) (bool, error) {
	updates := map[string]interface{}{
		"payment_status": change.To,
		"version":        gorm.Expr("version + 1"),
	}
	if col, ok := paymentTimestampColumns[change.To]; ok {
		updates[col] = gorm.Expr("COALESCE("+col+", ?)", change.At)
	}
	if change.ExternalPaymentID != "" {
		updates["payment_external_payment_id"] = change.ExternalPaymentID
	}
	if change.ExternalSignature != "" {
		updates["payment_external_signature"] = change.ExternalSignature
	}
	if change.FailureReason != "" {
		updates["payment_failure_reason"] = change.FailureReason
	}

	res := r.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND payment_status = ?", change.OrderID, change.From).
		Updates(updates)
	if res.Error != nil {
		return false, fmt.Errorf("failed to transition payment of order %s to %s: %w", change.OrderID, change.To, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// RecordRefund writes the cumulative refund amount, conditional on the refund amount the
// caller observed.
func (r *GORMOrderRepository) RecordRefund(ctx context.Context, change RefundChange) (bool, error) {
	col := paymentTimestampColumns[change.To]
	updates := map[string]interface{}{
		"payment_status":        change.To,
		"payment_refund_amount": change.RefundAmount,
		"version":               gorm.Expr("version + 1"),
	}
	if col != "" {
		updates[col] = gorm.Expr("COALESCE("+col+", ?)", change.At)
	}
	if change.Reason != "" {
		updates["payment_refund_reason"] = change.Reason
	}

	res := r.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND payment_status IN ? AND payment_refund_amount = ?",
			change.OrderID,
			[]models.PaymentStatus{models.PaymentStatusCompleted, models.PaymentStatusPartiallyRefunded},
			change.Previous).
		Updates(updates)
	if res.Error != nil {
		return false, fmt.Errorf("failed to record refund for order %s: %w", change.OrderID, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// AttachExternalOrder stores the gateway order id on a pending payment.
func (r *GORMOrderRepository) AttachExternalOrder(ctx context.Context, id, externalOrderID string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND payment_status = ?", id, models.PaymentStatusPending).
		Updates(map[string]interface{}{
			"payment_external_order_id": externalOrderID,
			"version":                   gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to attach gateway order to order %s: %w", id, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// BackfillExternalPayment sets the gateway payment id only where it is still empty.
func (r *GORMOrderRepository) BackfillExternalPayment(ctx context.Context, id, externalPaymentID string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND payment_status = ? AND (payment_external_payment_id = '' OR payment_external_payment_id IS NULL)",
			id, models.PaymentStatusCompleted).
		Updates(map[string]interface{}{
			"payment_external_payment_id": externalPaymentID,
			"version":                     gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to backfill gateway payment of order %s: %w", id, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// MarkInventoryCommitted sets the commit guard. Cancelled or restored orders never commit.
func (r *GORMOrderRepository) MarkInventoryCommitted(ctx context.Context, id string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND inventory_committed = ? AND inventory_restored = ? AND status <> ?",
			id, false, false, models.OrderStatusCancelled).
		Update("inventory_committed", true)
	if res.Error != nil {
		return false, fmt.Errorf("failed to mark inventory committed for order %s: %w", id, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// MarkInventoryRestored sets the restore guard on a committed order.
func (r *GORMOrderRepository) MarkInventoryRestored(ctx context.Context, id string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND inventory_committed = ? AND inventory_restored = ?", id, true, false).
		Update("inventory_restored", true)
	if res.Error != nil {
		return false, fmt.Errorf("failed to mark inventory restored for order %s: %w", id, res.Error)
	}
	return res.RowsAffected == 1, nil
}
