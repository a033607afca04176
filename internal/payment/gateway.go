package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"bloomshop/internal/apperr"
	"bloomshop/pkg/circuitbreaker"
	"bloomshop/pkg/metrics"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// GatewayOrder is the provider-side order a customer pays against.
type GatewayOrder struct {
	ID       string          `json:"id"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
	Status   string          `json:"status"`
}

// GatewayRefund is the provider's acknowledgement of a refund.
type GatewayRefund struct {
	ID     string          `json:"id"`
	Amount decimal.Decimal `json:"amount"`
	Status string          `json:"status"`
}

// Gateway is the payment provider.
//
// A returned apperr OutcomeUnknown means the request may or may not have taken effect at
// the provider; callers must not mutate local state on any error.
type Gateway interface {
	CreateOrder(ctx context.Context, amount decimal.Decimal, currency, receipt string) (*GatewayOrder, error)
	Refund(ctx context.Context, paymentID string, amount decimal.Decimal, reason string) (*GatewayRefund, error)
}

// ClientConfig configures RazorpayClient.
type ClientConfig struct {
	BaseURL         string
	KeyID           string
	KeySecret       string
	Timeout         time.Duration
	BreakerFailures int
	BreakerReset    time.Duration
}

// RazorpayClient talks to a Razorpay compatible REST API.
type RazorpayClient struct {
	cfg     ClientConfig
	breaker *circuitbreaker.CircuitBreaker
	logger  *zap.Logger
}

func NewRazorpayClient(cfg ClientConfig, logger *zap.Logger) *RazorpayClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.BreakerFailures <= 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerReset <= 0 {
		cfg.BreakerReset = 30 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &RazorpayClient{
		cfg:     cfg,
		breaker: circuitbreaker.NewCircuitBreaker(cfg.BreakerFailures, cfg.BreakerReset),
		logger:  logger.Named("gateway"),
	}
}

type createOrderRequest struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
}

type orderResponse struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
}

type refundRequest struct {
	Amount int64             `json:"amount"`
	Notes  map[string]string `json:"notes,omitempty"`
}

type refundResponse struct {
	ID     string `json:"id"`
	Amount int64  `json:"amount"`
	Status string `json:"status"`
}

func (c *RazorpayClient) CreateOrder(ctx context.Context, amount decimal.Decimal, currency, receipt string) (*GatewayOrder, error) {
	req := createOrderRequest{Amount: ToMinorUnits(amount), Currency: currency, Receipt: receipt}
	var resp orderResponse
	if err := c.call(ctx, "create_order", "/v1/orders", req, &resp); err != nil {
		return nil, err
	}
	return &GatewayOrder{
		ID:       resp.ID,
		Amount:   FromMinorUnits(resp.Amount),
		Currency: resp.Currency,
		Status:   resp.Status,
	}, nil
}

func (c *RazorpayClient) Refund(ctx context.Context, paymentID string, amount decimal.Decimal, reason string) (*GatewayRefund, error) {
	req := refundRequest{Amount: ToMinorUnits(amount)}
	if reason != "" {
		req.Notes = map[string]string{"reason": reason}
	}
	var resp refundResponse
	path := "/v1/payments/" + url.PathEscape(paymentID) + "/refund"
	if err := c.call(ctx, "refund", path, req, &resp); err != nil {
		return nil, err
	}
	return &GatewayRefund{ID: resp.ID, Amount: FromMinorUnits(resp.Amount), Status: resp.Status}, nil
}

// call posts body as JSON and decodes a 2xx response into out. Transport failures, timeouts
// and 5xx answers are OutcomeUnknown and count against the breaker.
func (c *RazorpayClient) call(ctx context.Context, operation, path string, body, out interface{}) error {
	if err := ctx.Err(); err != nil {
		return apperr.OutcomeUnknown(err, "payment gateway %s not attempted", operation)
	}

	start := time.Now()
	err := c.breaker.Execute(func() error {
		return c.post(ctx, operation, path, body, out)
	}, func(err error) bool {
		return apperr.KindOf(err) == apperr.KindOutcomeUnknown
	})

	outcome := "ok"
	switch {
	case errors.Is(err, circuitbreaker.ErrCircuitOpen):
		outcome = "circuit_open"
		err = apperr.Gateway(err, "payment gateway unavailable")
	case err != nil:
		outcome = apperr.KindOf(err).String()
	}
	metrics.ObserveGatewayCall(operation, outcome, time.Since(start))

	if err != nil {
		c.logger.Warn("payment gateway call failed",
			zap.String("operation", operation),
			zap.String("breaker", c.breaker.GetState().String()),
			zap.Error(err),
		)
	}
	return err
}

func (c *RazorpayClient) post(ctx context.Context, operation, path string, body, out interface{}) error {
	timeout := c.cfg.Timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	if timeout <= 0 {
		return apperr.OutcomeUnknown(context.DeadlineExceeded, "payment gateway %s not attempted", operation)
	}

	agent := fiber.Post(c.cfg.BaseURL + path)
	agent.BasicAuth(c.cfg.KeyID, c.cfg.KeySecret).
		JSON(body).
		Timeout(timeout)
	if err := agent.Parse(); err != nil {
		return fmt.Errorf("failed to build gateway request: %w", err)
	}

	code, respBody, errs := agent.Bytes()
	if len(errs) > 0 {
		return apperr.OutcomeUnknown(errors.Join(errs...), "payment gateway %s did not answer", operation)
	}
	switch {
	case code >= 500:
		return apperr.OutcomeUnknown(fmt.Errorf("status %d", code), "payment gateway %s failed upstream", operation)
	case code >= 400:
		return apperr.Gateway(fmt.Errorf("status %d: %s", code, gatewayErrorDescription(respBody)),
			"payment gateway rejected %s", operation)
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return apperr.OutcomeUnknown(err, "payment gateway %s returned an unreadable response", operation)
	}
	return nil
}

func gatewayErrorDescription(body []byte) string {
	var payload struct {
		Error struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error.Description != "" {
		return payload.Error.Description
	}
	return strings.TrimSpace(string(body))
}

// ToMinorUnits converts a 2-decimal amount to paise.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

// FromMinorUnits converts paise back to a decimal amount.
func FromMinorUnits(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}
