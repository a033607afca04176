package notifications

import (
	"context"
	"encoding/json"
	"fmt"

	"bloomshop/pkg/metrics"

	amqp "github.com/streadway/amqp"
	"go.uber.org/zap"
)

// Publisher is the subset of the RabbitMQ client used to enqueue events.
type Publisher interface {
	Publish(routingKey string, body []byte) error
}

// AMQPNotifier enqueues events on the durable notification queue. The event kind is the
// routing key.
type AMQPNotifier struct {
	publisher Publisher
}

func NewAMQPNotifier(publisher Publisher) *AMQPNotifier {
	return &AMQPNotifier{publisher: publisher}
}

func (n *AMQPNotifier) Enqueue(ctx context.Context, event Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal notification %s: %w", event.ID, err)
	}
	if err := n.publisher.Publish(string(event.Kind), body); err != nil {
		return fmt.Errorf("failed to enqueue notification %s: %w", event.ID, err)
	}
	return nil
}

// Sender delivers a decoded event to the customer (mail, SMS, push). Implementations live
// outside the order engine.
type Sender interface {
	Send(ctx context.Context, event Event) error
}

// LogSender is a Sender that only records the delivery.
type LogSender struct {
	Logger *zap.Logger
}

func (s LogSender) Send(_ context.Context, event Event) error {
	s.Logger.Info("notification delivered",
		zap.String("event_id", event.ID),
		zap.String("kind", string(event.Kind)),
		zap.String("order_number", event.OrderNumber),
	)
	return nil
}

// Dispatcher is the consumer side of the notification queue.
type Dispatcher struct {
	sender Sender
	logger *zap.Logger
}

func NewDispatcher(sender Sender, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{sender: sender, logger: logger.Named("dispatcher")}
}

// Handle decodes and delivers one message. Undecodable messages are returned as errors so
// that, once retries are exhausted, they end up in the dead-letter queue for inspection.
func (d *Dispatcher) Handle(msg amqp.Delivery) error {
	var event Event
	if err := json.Unmarshal(msg.Body, &event); err != nil {
		metrics.RecordNotification("unknown", "malformed")
		return fmt.Errorf("failed to decode notification: %w", err)
	}
	if err := d.sender.Send(context.Background(), event); err != nil {
		metrics.RecordNotification(string(event.Kind), "delivery_failed")
		d.logger.Warn("notification delivery failed",
			zap.String("event_id", event.ID),
			zap.String("kind", string(event.Kind)),
			zap.Error(err),
		)
		return err
	}
	metrics.RecordNotification(string(event.Kind), "delivered")
	return nil
}
