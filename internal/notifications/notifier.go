// Package notifications carries order events to customers. Delivery is best effort from the
// point of view of the order engine: a failed Enqueue never fails the state change that
// produced the event.
package notifications

import (
	"context"
	"time"

	"bloomshop/internal/models"
	"bloomshop/pkg/metrics"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Kind identifies the notification template.
type Kind string

const (
	KindOrderPlaced        Kind = "order.placed"
	KindOrderConfirmed     Kind = "order.confirmed"
	KindOrderStatusChanged Kind = "order.status_changed"
	KindOrderCancelled     Kind = "order.cancelled"
	KindPaymentFailed      Kind = "payment.failed"
	KindRefundProcessed    Kind = "payment.refunded"
)

// Event is the message handed to the notifier.
type Event struct {
	ID          string    `json:"id"`
	Kind        Kind      `json:"kind"`
	OrderID     string    `json:"orderId"`
	OrderNumber string    `json:"orderNumber"`
	UserID      string    `json:"userId"`
	Status      string    `json:"status,omitempty"`
	Message     string    `json:"message,omitempty"`
	OccurredAt  time.Time `json:"occurredAt"`
}

// NewOrderEvent builds an event describing order.
func NewOrderEvent(kind Kind, order *models.Order, message string) Event {
	return Event{
		ID:          uuid.New().String(),
		Kind:        kind,
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		Status:      string(order.Status),
		Message:     message,
		OccurredAt:  time.Now().UTC(),
	}
}

// Notifier queues an event for delivery.
type Notifier interface {
	Enqueue(ctx context.Context, event Event) error
}

// Send enqueues event and swallows any failure after logging it.
func Send(ctx context.Context, n Notifier, logger *zap.Logger, event Event) {
	if n == nil {
		return
	}
	if err := n.Enqueue(ctx, event); err != nil {
		metrics.RecordNotification(string(event.Kind), "enqueue_failed")
		logger.Warn("notification enqueue failed",
			zap.String("kind", string(event.Kind)),
			zap.String("order_id", event.OrderID),
			zap.Error(err),
		)
		return
	}
	metrics.RecordNotification(string(event.Kind), "enqueued")
}

// LogNotifier writes events to the log. It is used when no broker is configured.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.Named("notifier")}
}

func (n *LogNotifier) Enqueue(_ context.Context, event Event) error {
	n.logger.Info("notification",
		zap.String("event_id", event.ID),
		zap.String("kind", string(event.Kind)),
		zap.String("order_id", event.OrderID),
		zap.String("order_number", event.OrderNumber),
		zap.String("user_id", event.UserID),
		zap.String("status", event.Status),
	)
	return nil
}
