package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	paymentReconciliationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_reconciliations_total",
			Help: "Payment confirmations and failures by entry point and outcome",
		},
		[]string{"source", "outcome"},
	)

	orderTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "order_transitions_total",
			Help: "Order status transitions by target status and outcome",
		},
		[]string{"to", "outcome"},
	)

	inventoryMutationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inventory_mutations_total",
			Help: "Inventory ledger operations by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	lowStockTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inventory_low_stock_total",
			Help: "Decrements that left a product at or below its low-stock threshold",
		},
		[]string{"product_id"},
	)

	notificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_total",
			Help: "Notification enqueue and delivery attempts by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	gatewayCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "payment_gateway_call_duration_seconds",
			Help:    "Payment gateway call latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal)
	prometheus.MustRegister(httpRequestDuration)
	prometheus.MustRegister(paymentReconciliationsTotal)
	prometheus.MustRegister(orderTransitionsTotal)
	prometheus.MustRegister(inventoryMutationsTotal)
	prometheus.MustRegister(lowStockTotal)
	prometheus.MustRegister(notificationsTotal)
	prometheus.MustRegister(gatewayCallDuration)
}

// Middleware records request count and latency per matched route.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		route := c.Route().Path
		if route == "" {
			route = c.Path()
		}
		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			}
		}

		httpRequestsTotal.WithLabelValues(c.Method(), route, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(c.Method(), route).Observe(time.Since(start).Seconds())
		return err
	}
}

// Handler exposes the default registry in the Prometheus text format.
func Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}

func RecordPaymentReconciliation(source, outcome string) {
	paymentReconciliationsTotal.WithLabelValues(source, outcome).Inc()
}

func RecordOrderTransition(to, outcome string) {
	orderTransitionsTotal.WithLabelValues(to, outcome).Inc()
}

func RecordInventoryMutation(operation, outcome string) {
	inventoryMutationsTotal.WithLabelValues(operation, outcome).Inc()
}

func RecordLowStock(productID string) {
	lowStockTotal.WithLabelValues(productID).Inc()
}

func RecordNotification(kind, outcome string) {
	notificationsTotal.WithLabelValues(kind, outcome).Inc()
}

func ObserveGatewayCall(operation, outcome string, d time.Duration) {
	gatewayCallDuration.WithLabelValues(operation, outcome).Observe(d.Seconds())
}
