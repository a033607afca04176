package services

import (
	"context"
	"errors"
	"time"

	"bloomshop/internal/apperr"
	"bloomshop/internal/models"
	"bloomshop/internal/notifications"
	"bloomshop/internal/payment"
	"bloomshop/internal/repositories"
	"bloomshop/pkg/metrics"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Reconciliation outcomes reported to webhook callers and metrics.
const (
	OutcomeApplied      = "applied"
	OutcomeDuplicate    = "duplicate"
	OutcomeIgnored      = "ignored"
	OutcomeUnknownOrder = "unknown_order"
)

// maxRefundRecordAttempts bounds how often a refund is re-recorded after losing a race.
const maxRefundRecordAttempts = 3

// Reconciliation sources.
const (
	sourceVerify  = "verify"
	sourceWebhook = "webhook"
)

// ReconcilerConfig holds the gateway secrets.
type ReconcilerConfig struct {
	KeySecret     string
	WebhookSecret string
	Currency      string
}

// CreateGatewayOrderRequest asks the gateway for an order to pay against.
type CreateGatewayOrderRequest struct {
	OrderID  string          `json:"orderId" validate:"required"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency" validate:"omitempty,len=3"`
}

// VerifyRequest is forwarded by the client after checkout completes.
type VerifyRequest struct {
	OrderID           string `json:"orderId" validate:"required"`
	ExternalOrderID   string `json:"externalOrderId" validate:"required"`
	ExternalPaymentID string `json:"externalPaymentId" validate:"required"`
	ExternalSignature string `json:"externalSignature" validate:"required"`
}

// RefundRequest refunds part or all of a captured payment. A nil Amount refunds what is
// left.
type RefundRequest struct {
	OrderID string           `json:"orderId" validate:"required"`
	Amount  *decimal.Decimal `json:"amount,omitempty"`
	Reason  string           `json:"reason,omitempty" validate:"max=255"`
}

// WebhookResult is returned to the gateway.
type WebhookResult struct {
	Event   string `json:"event"`
	Outcome string `json:"outcome"`
}

// PaymentReconciler converges the verify call and the gateway webhook onto one payment
// outcome per order. The pending->completed and pending->failed writes are
// compare-and-swaps; only the caller whose write applied performs the follow-up effects.
type PaymentReconciler struct {
	store    repositories.Store
	machine  *OrderStateMachine
	ledger   *InventoryLedger
	gateway  payment.Gateway
	notifier notifications.Notifier
	cfg      ReconcilerConfig
	logger   *zap.Logger
	tracer   trace.Tracer
	now      func() time.Time
}

// NewPaymentReconciler creates a new PaymentReconciler.
func NewPaymentReconciler(
	store repositories.Store,
	machine *OrderStateMachine,
	ledger *InventoryLedger,
	gateway payment.Gateway,
	notifier notifications.Notifier,
	cfg ReconcilerConfig,
	logger *zap.Logger,
) *PaymentReconciler {
	if cfg.Currency == "" {
		cfg.Currency = "INR"
	}
	return &PaymentReconciler{
		store:    store,
		machine:  machine,
		ledger:   ledger,
		gateway:  gateway,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger.Named("payments"),
		tracer:   otel.Tracer("bloomshop/payments"),
		now:      time.Now,
	}
}

// CreateGatewayOrder opens a gateway order for a pending online payment. Calling it again
// for the same order returns the gateway order already attached.
func (r *PaymentReconciler) CreateGatewayOrder(ctx context.Context, caller models.Caller, req CreateGatewayOrderRequest) (gwOrder *payment.GatewayOrder, err error) {
	ctx, span := r.tracer.Start(ctx, "PaymentReconciler.CreateGatewayOrder",
		trace.WithAttributes(attribute.String("order.id", req.OrderID)))
	defer func() { endSpan(span, err) }()

	order, err := r.store.Orders().GetByID(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}
	if !caller.CanAccess(order.UserID) {
		return nil, apperr.Forbidden("order %s belongs to another user", order.OrderNumber)
	}
	if order.Payment.Method != models.PaymentMethodOnline {
		return nil, apperr.Validation("order %s is not paid online", order.OrderNumber)
	}
	if order.Status == models.OrderStatusCancelled || order.Payment.Status != models.PaymentStatusPending {
		return nil, apperr.Validation("order %s is not awaiting payment", order.OrderNumber)
	}
	if !req.Amount.IsZero() && !req.Amount.Round(2).Equal(order.Total) {
		return nil, apperr.Validation("amount %s does not match order total %s", req.Amount.StringFixed(2), order.Total.StringFixed(2))
	}
	currency := req.Currency
	if currency == "" {
		currency = r.cfg.Currency
	}

	if order.Payment.ExternalOrderID != "" {
		return &payment.GatewayOrder{
			ID:       order.Payment.ExternalOrderID,
			Amount:   order.Total,
			Currency: currency,
			Status:   "created",
		}, nil
	}

	gwOrder, err = r.gateway.CreateOrder(ctx, order.Total, currency, order.OrderNumber)
	if err != nil {
		return nil, err
	}
	applied, err := r.store.Orders().AttachExternalOrder(ctx, order.ID, gwOrder.ID)
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, apperr.Conflict("order %s changed while the payment was being created", order.OrderNumber)
	}

	r.logger.Info("gateway order created",
		zap.String("order_id", order.ID),
		zap.String("external_order_id", gwOrder.ID),
		zap.String("amount", order.Total.StringFixed(2)),
	)
	return gwOrder, nil
}

// Verify checks the client-forwarded signature and confirms the payment.
func (r *PaymentReconciler) Verify(ctx context.Context, caller models.Caller, req VerifyRequest) (order *models.Order, err error) {
	ctx, span := r.tracer.Start(ctx, "PaymentReconciler.Verify",
		trace.WithAttributes(attribute.String("payment.external_order_id", req.ExternalOrderID)))
	defer func() { endSpan(span, err) }()

	if !payment.VerifyPaymentSignature(r.cfg.KeySecret, req.ExternalOrderID, req.ExternalPaymentID, req.ExternalSignature) {
		metrics.RecordPaymentReconciliation(sourceVerify, "invalid_signature")
		return nil, apperr.InvalidSignature("payment signature mismatch")
	}

	order, err = r.store.Orders().GetByExternalOrderID(ctx, req.ExternalOrderID)
	if err != nil {
		return nil, err
	}
	if order.ID != req.OrderID {
		return nil, apperr.Validation("payment does not belong to order %s", req.OrderID)
	}
	if !caller.CanAccess(order.UserID) {
		return nil, apperr.Forbidden("order %s belongs to another user", order.OrderNumber)
	}

	if _, err := r.confirm(ctx, order, req.ExternalPaymentID, req.ExternalSignature, sourceVerify); err != nil {
		return nil, err
	}
	return r.store.Orders().GetByID(ctx, order.ID)
}

// HandleWebhook authenticates and applies a gateway event. Events for unknown orders and
// event types that are not acted upon are acknowledged so the gateway stops retrying.
func (r *PaymentReconciler) HandleWebhook(ctx context.Context, body []byte, signature string) (result *WebhookResult, err error) {
	ctx, span := r.tracer.Start(ctx, "PaymentReconciler.HandleWebhook")
	defer func() { endSpan(span, err) }()

	if !payment.VerifyWebhookSignature(r.cfg.WebhookSecret, body, signature) {
		metrics.RecordPaymentReconciliation(sourceWebhook, "invalid_signature")
		return nil, apperr.InvalidSignature("webhook signature mismatch")
	}
	event, err := payment.ParseWebhook(body)
	if err != nil {
		return nil, apperr.Validation("malformed webhook payload")
	}
	span.SetAttributes(attribute.String("payment.event", event.Event))
	result = &WebhookResult{Event: event.Event}

	switch event.Event {
	case payment.EventPaymentCaptured, payment.EventOrderPaid, payment.EventPaymentFailed:
	default:
		metrics.RecordPaymentReconciliation(sourceWebhook, OutcomeIgnored)
		result.Outcome = OutcomeIgnored
		return result, nil
	}

	order, err := r.store.Orders().GetByExternalOrderID(ctx, event.ExternalOrderID())
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			metrics.RecordPaymentReconciliation(sourceWebhook, OutcomeUnknownOrder)
			r.logger.Warn("webhook for unknown gateway order",
				zap.String("event", event.Event),
				zap.String("external_order_id", event.ExternalOrderID()),
			)
			result.Outcome = OutcomeUnknownOrder
			return result, nil
		}
		return nil, err
	}

	if event.Event == payment.EventPaymentFailed {
		result.Outcome, err = r.fail(ctx, order, event.ExternalPaymentID(), event.FailureReason(), sourceWebhook)
	} else {
		result.Outcome, err = r.confirm(ctx, order, event.ExternalPaymentID(), "", sourceWebhook)
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

// confirm performs the pending->completed swap and, when it applied, the one-time effects:
// confirm the order, commit its stock and notify the customer.
func (r *PaymentReconciler) confirm(ctx context.Context, order *models.Order, paymentID, signature, source string) (string, error) {
	logger := r.logger.With(
		zap.String("order_id", order.ID),
		zap.String("external_payment_id", paymentID),
		zap.String("source", source),
	)

	applied, err := r.store.Orders().TransitionPayment(ctx, repositories.PaymentChange{
		OrderID:           order.ID,
		From:              models.PaymentStatusPending,
		To:                models.PaymentStatusCompleted,
		ExternalPaymentID: paymentID,
		ExternalSignature: signature,
		At:                r.now().UTC(),
	})
	if err != nil {
		metrics.RecordPaymentReconciliation(source, "error")
		return "", err
	}
	if !applied {
		// An order.paid event can complete the payment without naming it; a later capture or
		// verify then supplies the id refunds need.
		if paymentID != "" {
			backfilled, err := r.store.Orders().BackfillExternalPayment(ctx, order.ID, paymentID)
			if err != nil {
				metrics.RecordPaymentReconciliation(source, "error")
				return "", err
			}
			if backfilled {
				logger.Info("gateway payment id recorded for completed payment")
			}
		}
		metrics.RecordPaymentReconciliation(source, OutcomeDuplicate)
		logger.Debug("payment confirmation already reconciled")
		return OutcomeDuplicate, nil
	}
	logger.Info("payment completed")

	_, err = r.machine.Transition(ctx, order.ID, TransitionRequest{Target: models.OrderStatusConfirmed, Silent: true})
	if err != nil {
		if !errors.Is(err, apperr.ErrInvalidTransition) && !errors.Is(err, apperr.ErrConflict) {
			metrics.RecordPaymentReconciliation(source, "confirm_failed")
			logger.Error("payment captured but order could not be confirmed", zap.Error(err))
			return "", err
		}
		// The order moved on underneath us; what matters is where it ended up.
		current, gerr := r.store.Orders().GetByID(ctx, order.ID)
		if gerr != nil {
			return "", gerr
		}
		switch current.Status {
		case models.OrderStatusCancelled:
			metrics.RecordPaymentReconciliation(source, "cancelled_order")
			logger.Error("payment captured for a cancelled order, manual refund required",
				zap.String("order_number", current.OrderNumber),
				zap.String("amount", current.Total.StringFixed(2)),
			)
			return OutcomeApplied, nil
		case models.OrderStatusPending:
			metrics.RecordPaymentReconciliation(source, "confirm_failed")
			logger.Error("payment captured but order could not be confirmed", zap.Error(err))
			return "", err
		}
	}

	if err := r.ledger.CommitForOrder(ctx, order.ID); err != nil {
		metrics.RecordPaymentReconciliation(source, "commit_failed")
		logger.Error("payment captured but stock could not be committed", zap.Error(err))
		return "", err
	}

	confirmed, err := r.store.Orders().GetByID(ctx, order.ID)
	if err != nil {
		return "", err
	}
	notifications.Send(ctx, r.notifier, logger, notifications.NewOrderEvent(notifications.KindOrderConfirmed, confirmed, "payment received"))
	metrics.RecordPaymentReconciliation(source, OutcomeApplied)
	return OutcomeApplied, nil
}

// fail records a failed payment. The order status and inventory are untouched.
func (r *PaymentReconciler) fail(ctx context.Context, order *models.Order, paymentID, reason, source string) (string, error) {
	applied, err := r.store.Orders().TransitionPayment(ctx, repositories.PaymentChange{
		OrderID:           order.ID,
		From:              models.PaymentStatusPending,
		To:                models.PaymentStatusFailed,
		ExternalPaymentID: paymentID,
		FailureReason:     reason,
		At:                r.now().UTC(),
	})
	if err != nil {
		metrics.RecordPaymentReconciliation(source, "error")
		return "", err
	}
	if !applied {
		metrics.RecordPaymentReconciliation(source, OutcomeDuplicate)
		return OutcomeDuplicate, nil
	}

	failed, err := r.store.Orders().GetByID(ctx, order.ID)
	if err != nil {
		return "", err
	}
	r.logger.Info("payment failed", zap.String("order_id", order.ID), zap.String("reason", reason))
	notifications.Send(ctx, r.notifier, r.logger, notifications.NewOrderEvent(notifications.KindPaymentFailed, failed, reason))
	metrics.RecordPaymentReconciliation(source, "failed")
	return OutcomeApplied, nil
}

// Refund returns money through the gateway and records the cumulative refunded amount.
// Stock is not restored; restocking is a separate decision.
func (r *PaymentReconciler) Refund(ctx context.Context, req RefundRequest) (order *models.Order, err error) {
	ctx, span := r.tracer.Start(ctx, "PaymentReconciler.Refund",
		trace.WithAttributes(attribute.String("order.id", req.OrderID)))
	defer func() { endSpan(span, err) }()

	order, err = r.store.Orders().GetByID(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}
	if !order.Payment.Status.Refundable() {
		return nil, apperr.InvalidTransition("payment of order %s is %s and cannot be refunded", order.OrderNumber, order.Payment.Status)
	}
	if order.Payment.ExternalPaymentID == "" {
		return nil, apperr.Validation("order %s has no gateway payment", order.OrderNumber)
	}

	remaining := order.RemainingRefundable()
	amount := remaining
	if req.Amount != nil {
		amount = req.Amount.Round(2)
	}
	if !amount.IsPositive() || amount.GreaterThan(remaining) {
		return nil, apperr.Validation("refund amount must be greater than 0 and at most %s", remaining.StringFixed(2))
	}

	refund, err := r.gateway.Refund(ctx, order.Payment.ExternalPaymentID, amount, req.Reason)
	if err != nil {
		return nil, err
	}

	status, err := r.recordRefund(ctx, order, amount, req.Reason)
	if err != nil {
		r.logger.Error("refund issued at gateway but could not be recorded",
			zap.String("order_id", order.ID),
			zap.String("refund_id", refund.ID),
			zap.String("amount", amount.StringFixed(2)),
			zap.Error(err),
		)
		return nil, err
	}

	r.logger.Info("refund recorded",
		zap.String("order_id", order.ID),
		zap.String("refund_id", refund.ID),
		zap.String("amount", amount.StringFixed(2)),
		zap.String("payment_status", string(status)),
	)
	updated, err := r.store.Orders().GetByID(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	notifications.Send(ctx, r.notifier, r.logger, notifications.NewOrderEvent(notifications.KindRefundProcessed, updated, req.Reason))
	return updated, nil
}

// recordRefund adds amount to the stored refund total. The money has already left through
// the gateway, so a lost race with another refund is retried against the fresh total
// instead of being dropped.
func (r *PaymentReconciler) recordRefund(ctx context.Context, order *models.Order, amount decimal.Decimal, reason string) (models.PaymentStatus, error) {
	current := order
	for attempt := 0; attempt < maxRefundRecordAttempts; attempt++ {
		cumulative := current.Payment.RefundAmount.Add(amount)
		if cumulative.GreaterThan(current.Total) {
			return "", apperr.Conflict("refunds for order %s exceed the captured amount", current.OrderNumber)
		}
		status := models.PaymentStatusPartiallyRefunded
		if cumulative.GreaterThanOrEqual(current.Total) {
			status = models.PaymentStatusRefunded
		}

		applied, err := r.store.Orders().RecordRefund(ctx, repositories.RefundChange{
			OrderID:      current.ID,
			Previous:     current.Payment.RefundAmount,
			To:           status,
			RefundAmount: cumulative,
			Reason:       reason,
			At:           r.now().UTC(),
		})
		if err != nil {
			return "", err
		}
		if applied {
			return status, nil
		}

		current, err = r.store.Orders().GetByID(ctx, order.ID)
		if err != nil {
			return "", err
		}
		if !current.Payment.Status.Refundable() {
			return "", apperr.Conflict("payment of order %s became %s while the refund was processed", current.OrderNumber, current.Payment.Status)
		}
	}
	return "", apperr.Conflict("order %s changed while the refund was processed", order.OrderNumber)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
