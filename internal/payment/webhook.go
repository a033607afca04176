package payment

import (
	"encoding/json"
	"fmt"
)

// Webhook event names acted upon. Any other event is acknowledged and ignored.
const (
	EventPaymentCaptured = "payment.captured"
	EventOrderPaid       = "order.paid"
	EventPaymentFailed   = "payment.failed"
)

// WebhookEvent is the envelope posted by the gateway.
type WebhookEvent struct {
	Event   string         `json:"event"`
	Payload WebhookPayload `json:"payload"`
}

type WebhookPayload struct {
	Payment struct {
		Entity PaymentEntity `json:"entity"`
	} `json:"payment"`
	Order struct {
		Entity OrderEntity `json:"entity"`
	} `json:"order"`
}

// PaymentEntity carries the fields of a gateway payment. Amount is in the minor unit.
type PaymentEntity struct {
	ID               string `json:"id"`
	OrderID          string `json:"order_id"`
	Status           string `json:"status"`
	Amount           int64  `json:"amount"`
	ErrorDescription string `json:"error_description"`
}

type OrderEntity struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// ParseWebhook decodes a webhook body.
func ParseWebhook(body []byte) (*WebhookEvent, error) {
	var event WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("failed to decode webhook: %w", err)
	}
	return &event, nil
}

// ExternalOrderID is the gateway order the event refers to. order.paid events may carry
// the order entity only.
func (e *WebhookEvent) ExternalOrderID() string {
	if id := e.Payload.Payment.Entity.OrderID; id != "" {
		return id
	}
	return e.Payload.Order.Entity.ID
}

// ExternalPaymentID is the gateway payment id, if present.
func (e *WebhookEvent) ExternalPaymentID() string {
	return e.Payload.Payment.Entity.ID
}

// FailureReason returns the gateway's description of a failed payment.
func (e *WebhookEvent) FailureReason() string {
	if d := e.Payload.Payment.Entity.ErrorDescription; d != "" {
		return d
	}
	return "payment failed"
}
