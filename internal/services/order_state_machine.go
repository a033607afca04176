package services

import (
	"context"
	"time"

	"bloomshop/internal/apperr"
	"bloomshop/internal/models"
	"bloomshop/internal/notifications"
	"bloomshop/internal/repositories"
	"bloomshop/pkg/metrics"

	"go.uber.org/zap"
)

// allowedTransitions is the only place order status changes are defined.
var allowedTransitions = map[models.OrderStatus][]models.OrderStatus{
	models.OrderStatusPending:    {models.OrderStatusConfirmed, models.OrderStatusCancelled},
	models.OrderStatusConfirmed:  {models.OrderStatusProcessing, models.OrderStatusCancelled},
	models.OrderStatusProcessing: {models.OrderStatusShipped, models.OrderStatusCancelled},
	models.OrderStatusShipped:    {models.OrderStatusDelivered},
	models.OrderStatusDelivered:  {},
	models.OrderStatusCancelled:  {},
}

// CanTransition reports whether an order in from may move to to.
func CanTransition(from, to models.OrderStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// TransitionRequest describes a status change. From, when set, restricts the statuses the
// order may be leaving; it is checked against the status the conditional write is keyed on.
// Silent suppresses the notification, for callers that send their own.
type TransitionRequest struct {
	Target         models.OrderStatus
	From           []models.OrderStatus
	TrackingNumber string
	Notes          string
	Silent         bool
}

// BulkFailure is one rejected order in a bulk transition.
type BulkFailure struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// BulkReport collects per-order results of a bulk transition.
type BulkReport struct {
	Succeeded []string      `json:"updated"`
	Failed    []BulkFailure `json:"errors"`
}

// OrderStateMachine applies order status transitions.
type OrderStateMachine struct {
	store    repositories.Store
	ledger   *InventoryLedger
	notifier notifications.Notifier
	logger   *zap.Logger
	now      func() time.Time
}

// NewOrderStateMachine creates a new OrderStateMachine.
func NewOrderStateMachine(store repositories.Store, ledger *InventoryLedger, notifier notifications.Notifier, logger *zap.Logger) *OrderStateMachine {
	return &OrderStateMachine{
		store:    store,
		ledger:   ledger,
		notifier: notifier,
		logger:   logger.Named("orders"),
		now:      time.Now,
	}
}

// Transition moves the order to req.Target.
//
// The status write is conditional on the status observed in the same transaction. Moving
// to cancelled restores committed stock; confirming a cash-on-delivery or already paid
// order commits it. Both ledger effects share the transaction with the status write.
func (m *OrderStateMachine) Transition(ctx context.Context, orderID string, req TransitionRequest) (*models.Order, error) {
	if !req.Target.Valid() {
		return nil, apperr.Validation("unknown order status %q", req.Target)
	}

	var updated *models.Order
	err := m.store.Transaction(ctx, func(tx repositories.Store) error {
		order, err := tx.Orders().GetByID(ctx, orderID)
		if err != nil {
			return err
		}
		if !CanTransition(order.Status, req.Target) || !req.leaves(order.Status) {
			return apperr.InvalidTransition("cannot change order %s from %s to %s", order.OrderNumber, order.Status, req.Target)
		}

		applied, err := tx.Orders().TransitionStatus(ctx, repositories.StatusChange{
			OrderID:        orderID,
			From:           order.Status,
			To:             req.Target,
			At:             m.now().UTC(),
			TrackingNumber: req.TrackingNumber,
			Notes:          req.Notes,
		})
		if err != nil {
			return err
		}
		if !applied {
			return apperr.Conflict("order %s changed concurrently", order.OrderNumber)
		}

		ledger := m.ledger.withStore(tx)
		switch {
		case req.Target == models.OrderStatusCancelled:
			if err := ledger.RestoreForOrder(ctx, orderID); err != nil {
				return err
			}
		case req.Target == models.OrderStatusConfirmed && commitsOnConfirm(order):
			if err := ledger.CommitForOrder(ctx, orderID); err != nil {
				return err
			}
		}

		updated, err = tx.Orders().GetByID(ctx, orderID)
		return err
	})
	if err != nil {
		metrics.RecordOrderTransition(string(req.Target), apperr.KindOf(err).String())
		return nil, err
	}
	metrics.RecordOrderTransition(string(req.Target), "applied")

	m.logger.Info("order status changed",
		zap.String("order_id", updated.ID),
		zap.String("order_number", updated.OrderNumber),
		zap.String("status", string(updated.Status)),
	)
	if !req.Silent {
		notifications.Send(ctx, m.notifier, m.logger, notifications.NewOrderEvent(transitionEventKind(req.Target), updated, req.Notes))
	}
	return updated, nil
}

func (req TransitionRequest) leaves(status models.OrderStatus) bool {
	if len(req.From) == 0 {
		return true
	}
	for _, from := range req.From {
		if from == status {
			return true
		}
	}
	return false
}

// BulkTransition applies the same target to each order independently.
func (m *OrderStateMachine) BulkTransition(ctx context.Context, orderIDs []string, target models.OrderStatus) BulkReport {
	report := BulkReport{Succeeded: []string{}, Failed: []BulkFailure{}}
	for _, id := range orderIDs {
		if _, err := m.Transition(ctx, id, TransitionRequest{Target: target}); err != nil {
			report.Failed = append(report.Failed, BulkFailure{ID: id, Reason: err.Error()})
			continue
		}
		report.Succeeded = append(report.Succeeded, id)
	}
	return report
}

// commitsOnConfirm reports whether confirming order takes its stock. Online orders normally
// commit through the payment reconciler.
func commitsOnConfirm(order *models.Order) bool {
	return order.Payment.Method == models.PaymentMethodCOD || order.Payment.Status == models.PaymentStatusCompleted
}

func transitionEventKind(target models.OrderStatus) notifications.Kind {
	switch target {
	case models.OrderStatusCancelled:
		return notifications.KindOrderCancelled
	case models.OrderStatusConfirmed:
		return notifications.KindOrderConfirmed
	default:
		return notifications.KindOrderStatusChanged
	}
}
