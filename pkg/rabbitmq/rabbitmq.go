package rabbitmq

import (
	"fmt"
	"sync"
	"time"

	"bloomshop/pkg/logging"

	amqp "github.com/streadway/amqp"
	"go.uber.org/zap"
)

// RetryHeader counts how many times a message has been re-published after a failed delivery.
const RetryHeader = "x-retry-count"

// Client holds the RabbitMQ connection and channel.
type Client struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	cfg     Config
	logger  *zap.Logger
	mu      sync.Mutex // amqp.Channel is not safe for concurrent publishing
}

// Config holds RabbitMQ connection details and the queue topology.
type Config struct {
	URL             string
	Exchange        string
	Queue           string
	DeadLetterQueue string
	MaxRetries      int
}

func (c Config) withDefaults() Config {
	if c.Exchange == "" {
		c.Exchange = "notifications"
	}
	if c.Queue == "" {
		c.Queue = "notification_queue"
	}
	if c.DeadLetterQueue == "" {
		c.DeadLetterQueue = c.Queue + ".dlq"
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	return c
}

// NewClient connects to RabbitMQ, opens a channel and declares the durable exchange, the
// work queue and its dead-letter queue. Messages rejected without requeue from the work
// queue are routed to the dead-letter queue by the broker.
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	cfg = cfg.withDefaults()
	logger = logging.OrDefault(logger)

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := declareTopology(ch, cfg); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	logger.Info("rabbitmq client connected",
		zap.String("exchange", cfg.Exchange),
		zap.String("queue", cfg.Queue),
		zap.String("dead_letter_queue", cfg.DeadLetterQueue),
	)

	return &Client{
		conn:    conn,
		channel: ch,
		cfg:     cfg,
		logger:  logger,
	}, nil
}

func declareTopology(ch *amqp.Channel, cfg Config) error {
	if err := ch.ExchangeDeclare(cfg.Exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare exchange %s: %w", cfg.Exchange, err)
	}
	if _, err := ch.QueueDeclare(cfg.DeadLetterQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare %s: %w", cfg.DeadLetterQueue, err)
	}
	args := amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": cfg.DeadLetterQueue,
	}
	if _, err := ch.QueueDeclare(cfg.Queue, true, false, false, false, args); err != nil {
		return fmt.Errorf("failed to declare %s: %w", cfg.Queue, err)
	}
	if err := ch.QueueBind(cfg.Queue, "#", cfg.Exchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind %s: %w", cfg.Queue, err)
	}
	return nil
}

// Close closes the RabbitMQ connection and channel.
func (c *Client) Close() error {
	var errs []error
	if c.channel != nil {
		if err := c.channel.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close channel: %w", err))
		}
	}
	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close connection: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("multiple errors occurred during RabbitMQ client close: %v", errs)
	}
	return nil
}

// Publish sends a persistent JSON message to the exchange with the given routing key.
func (c *Client) Publish(routingKey string, body []byte) error {
	return c.publish(routingKey, body, nil)
}

func (c *Client) publish(routingKey string, body []byte, headers amqp.Table) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.channel == nil {
		return fmt.Errorf("RabbitMQ channel is not available")
	}
	err := c.channel.Publish(
		c.cfg.Exchange,
		routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			Headers:      headers,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
		})
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

// Consume processes messages from the work queue in a goroutine. A handler error
// re-publishes the message with an incremented retry header until MaxRetries is reached;
// after that the message is rejected and dead-lettered.
func (c *Client) Consume(handler func(msg amqp.Delivery) error) error {
	if c.channel == nil {
		return fmt.Errorf("RabbitMQ channel is not available for consumption")
	}

	msgs, err := c.channel.Consume(c.cfg.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	c.logger.Info("waiting for notification events", zap.String("queue", c.cfg.Queue))

	go func() {
		for msg := range msgs {
			c.handle(msg, handler)
		}
	}()
	return nil
}

func (c *Client) handle(msg amqp.Delivery, handler func(msg amqp.Delivery) error) {
	err := handler(msg)
	if err == nil {
		if ackErr := msg.Ack(false); ackErr != nil {
			c.logger.Error("ack failed", zap.Uint64("delivery_tag", msg.DeliveryTag), zap.Error(ackErr))
		}
		return
	}

	attempt := RetryCount(msg.Headers)
	logger := c.logger.With(
		zap.Uint64("delivery_tag", msg.DeliveryTag),
		zap.String("routing_key", msg.RoutingKey),
		zap.Int("attempt", attempt),
		zap.Error(err),
	)

	if !ShouldRetry(attempt, c.cfg.MaxRetries) {
		logger.Warn("message dead-lettered after retries")
		if nackErr := msg.Nack(false, false); nackErr != nil {
			logger.Error("nack failed", zap.NamedError("nack_error", nackErr))
		}
		return
	}

	headers := amqp.Table{}
	for k, v := range msg.Headers {
		headers[k] = v
	}
	headers[RetryHeader] = int32(attempt + 1)

	if pubErr := c.publish(msg.RoutingKey, msg.Body, headers); pubErr != nil {
		// Could not re-publish: requeue the original so the message is not lost.
		logger.Error("retry publish failed, requeueing", zap.NamedError("publish_error", pubErr))
		if nackErr := msg.Nack(false, true); nackErr != nil {
			logger.Error("nack failed", zap.NamedError("nack_error", nackErr))
		}
		return
	}
	logger.Info("message scheduled for retry")
	if ackErr := msg.Ack(false); ackErr != nil {
		logger.Error("ack failed", zap.NamedError("ack_error", ackErr))
	}
}

// RetryCount reads the retry header. Brokers may hand integers back with any width.
func RetryCount(headers amqp.Table) int {
	switch v := headers[RetryHeader].(type) {
	case int:
		return v
	case int16:
		return int(v)
	case int32:
		return int(v)
	case int64:
		return int(v)
	case uint8:
		return int(v)
	default:
		return 0
	}
}

// ShouldRetry reports whether a message that failed attempt (0-based) gets another try.
func ShouldRetry(attempt, maxRetries int) bool {
	return attempt < maxRetries
}
