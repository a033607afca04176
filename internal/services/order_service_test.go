package services_test

import (
	"context"
	"testing"

	"bloomshop/internal/apperr"
	"bloomshop/internal/models"
	"bloomshop/internal/notifications"
	"bloomshop/internal/services"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func checkoutRequest(method models.PaymentMethod, items ...services.OrderItemRequest) services.CreateOrderRequest {
	return services.CreateOrderRequest{
		Items: items,
		ShippingAddress: models.Address{
			FullName:   "Rose Tyler",
			Phone:      "+91 98765 43210",
			Line1:      "12 Garden Lane",
			City:       "Pune",
			PostalCode: "411001",
			Country:    "IN",
		},
		PaymentInfo:    services.PaymentInfo{Method: method},
		ShippingMethod: services.ShippingStandard,
	}
}

func TestOrderService_CreateOrder(t *testing.T) {
	e := newEngine(t)
	customer := e.seedUser(t, "daisy", models.RoleCustomer)
	roses := e.seedProduct(t, "Red Roses", "100.00", 10)
	caller := models.Caller{UserID: customer.ID, Role: models.RoleCustomer}

	order, err := e.orders.CreateOrder(context.Background(), caller,
		checkoutRequest(models.PaymentMethodOnline, services.OrderItemRequest{ProductID: roses.ID, Quantity: 2}))
	require.NoError(t, err)

	assert.Regexp(t, `^FS-\d{8}-[0-9A-F]{8}$`, order.OrderNumber)
	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.Equal(t, models.PaymentStatusPending, order.Payment.Status)
	assert.Equal(t, "Red Roses", order.Items[0].Name)
	assert.True(t, order.Subtotal.Equal(decimal.NewFromInt(200)))
	assert.True(t, order.ShippingFee.Equal(decimal.NewFromInt(10)))
	assert.True(t, order.Tax.Equal(decimal.NewFromInt(8)))
	assert.True(t, order.Total.Equal(decimal.NewFromInt(218)))
	assert.True(t, order.TotalsConsistent())

	assert.Equal(t, 10, e.stock(t, roses.ID), "checkout does not take stock")
	assert.Equal(t, 1, e.notifier.count(notifications.KindOrderPlaced, order.ID))

	stored := e.reload(t, order.ID)
	assert.True(t, stored.TotalsConsistent())
	assert.Equal(t, "Pune", stored.ShippingAddress.City)
}

func TestOrderService_CreateOrderRejectsBadInput(t *testing.T) {
	e := newEngine(t)
	roses := e.seedProduct(t, "Red Roses", "100.00", 3)
	caller := models.Caller{UserID: "u1", Role: models.RoleCustomer}
	ctx := context.Background()

	_, err := e.orders.CreateOrder(ctx, caller, checkoutRequest(models.PaymentMethodCOD,
		services.OrderItemRequest{ProductID: roses.ID, Quantity: 2},
		services.OrderItemRequest{ProductID: roses.ID, Quantity: 2}))
	assert.ErrorIs(t, err, apperr.ErrInsufficientStock)

	_, err = e.orders.CreateOrder(ctx, caller, checkoutRequest(models.PaymentMethodCOD, services.OrderItemRequest{ProductID: "missing", Quantity: 1}))
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	_, err = e.orders.CreateOrder(ctx, caller, checkoutRequest(models.PaymentMethodCOD, services.OrderItemRequest{ProductID: roses.ID, Quantity: 0}))
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = e.orders.CreateOrder(ctx, caller, checkoutRequest("barter", services.OrderItemRequest{ProductID: roses.ID, Quantity: 1}))
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	req := checkoutRequest(models.PaymentMethodCOD, services.OrderItemRequest{ProductID: roses.ID, Quantity: 1})
	req.ShippingMethod = "drone"
	_, err = e.orders.CreateOrder(ctx, caller, req)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	orders, err := e.orders.ListOrders(ctx, models.Caller{Role: models.RoleAdmin})
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestOrderService_Visibility(t *testing.T) {
	e := newEngine(t)
	roses := e.seedProduct(t, "Red Roses", "100.00", 10)
	mine := e.seedOrder(t, "u1", models.PaymentMethodCOD, "0", "0", "0", line{roses, 1})
	e.seedOrder(t, "u2", models.PaymentMethodCOD, "0", "0", "0", line{roses, 1})
	ctx := context.Background()

	owner := models.Caller{UserID: "u1", Role: models.RoleCustomer}
	stranger := models.Caller{UserID: "u2", Role: models.RoleCustomer}
	admin := models.Caller{UserID: "a1", Role: models.RoleAdmin}

	got, err := e.orders.GetOrder(ctx, owner, mine.ID)
	require.NoError(t, err)
	assert.Equal(t, mine.ID, got.ID)

	_, err = e.orders.GetOrder(ctx, stranger, mine.ID)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = e.orders.GetOrder(ctx, admin, mine.ID)
	assert.NoError(t, err)

	own, err := e.orders.ListOrders(ctx, owner)
	require.NoError(t, err)
	assert.Len(t, own, 1)

	all, err := e.orders.ListOrders(ctx, admin)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = e.orders.CancelOrder(ctx, stranger, mine.ID, services.CancelRequest{})
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestOrderService_CancelOnlyBeforeProcessing(t *testing.T) {
	e := newEngine(t)
	roses := e.seedProduct(t, "Red Roses", "100.00", 10)
	order := e.seedOrder(t, "u1", models.PaymentMethodCOD, "0", "0", "0", line{roses, 2})
	ctx := context.Background()

	_, err := e.orders.UpdateStatus(ctx, order.ID, services.UpdateStatusRequest{Status: models.OrderStatusConfirmed})
	require.NoError(t, err)
	_, err = e.orders.UpdateStatus(ctx, order.ID, services.UpdateStatusRequest{Status: models.OrderStatusProcessing})
	require.NoError(t, err)

	_, err = e.orders.CancelOrder(ctx, models.Caller{UserID: "u1"}, order.ID, services.CancelRequest{})
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)
	assert.Equal(t, 8, e.stock(t, roses.ID))

	// Admins may still cancel a processing order through the status endpoint.
	cancelled, err := e.orders.UpdateStatus(ctx, order.ID, services.UpdateStatusRequest{Status: models.OrderStatusCancelled, Notes: "out of season"})
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, cancelled.Status)
	assert.Equal(t, 10, e.stock(t, roses.ID))
}

func TestOrderService_CancelRejectedWhenProcessingStartsConcurrently(t *testing.T) {
	e := newEngine(t)
	roses := e.seedProduct(t, "Red Roses", "100.00", 10)
	order := e.seedOrder(t, "u1", models.PaymentMethodCOD, "0", "0", "0", line{roses, 2})
	ctx := context.Background()

	_, err := e.orders.UpdateStatus(ctx, order.ID, services.UpdateStatusRequest{Status: models.OrderStatusConfirmed})
	require.NoError(t, err)

	// The florist starts processing after the customer's cancel has read the order.
	store := &interleavingStore{Store: e.store, afterRead: func() {
		_, err := e.machine.Transition(ctx, order.ID, services.TransitionRequest{Target: models.OrderStatusProcessing})
		assert.NoError(t, err)
	}}
	orders := services.NewOrderService(store, e.machine, services.NewPricing(services.DefaultPricingConfig()), e.notifier, zaptest.NewLogger(t))

	_, err = orders.CancelOrder(ctx, models.Caller{UserID: "u1"}, order.ID, services.CancelRequest{})
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)
	assert.Equal(t, models.OrderStatusProcessing, e.reload(t, order.ID).Status)
	assert.Equal(t, 8, e.stock(t, roses.ID))
}

func TestTransition_FromRestrictsSourceStatus(t *testing.T) {
	e := newEngine(t)
	roses := e.seedProduct(t, "Red Roses", "100.00", 10)
	order := e.seedOrder(t, "u1", models.PaymentMethodCOD, "0", "0", "0", line{roses, 1})
	ctx := context.Background()

	_, err := e.machine.Transition(ctx, order.ID, services.TransitionRequest{
		Target: models.OrderStatusCancelled,
		From:   []models.OrderStatus{models.OrderStatusConfirmed},
	})
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)
	assert.Equal(t, models.OrderStatusPending, e.reload(t, order.ID).Status)
}

func TestPricing_Quote(t *testing.T) {
	items := []models.OrderItem{{ProductID: "p1", Quantity: 3, Price: decimal.RequireFromString("33.33")}}

	cfg := services.DefaultPricingConfig()
	cfg.FreeShippingThreshold = decimal.NewFromInt(150)
	pricing := services.NewPricing(cfg)

	totals, err := pricing.Quote(items, services.ShippingExpress, decimal.Zero)
	require.NoError(t, err)
	assert.True(t, totals.Subtotal.Equal(decimal.RequireFromString("99.99")))
	assert.True(t, totals.ShippingFee.Equal(decimal.NewFromInt(25)))
	assert.True(t, totals.Tax.Equal(decimal.NewFromInt(4)))
	assert.True(t, totals.Total.Equal(decimal.RequireFromString("128.99")))

	big := []models.OrderItem{{ProductID: "p1", Quantity: 5, Price: decimal.NewFromInt(40)}}
	totals, err = pricing.Quote(big, services.ShippingSameDay, decimal.NewFromInt(5))
	require.NoError(t, err)
	assert.True(t, totals.ShippingFee.IsZero())
	assert.True(t, totals.Total.Equal(decimal.NewFromInt(203)))

	_, err = pricing.Quote(items, "pigeon", decimal.Zero)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = pricing.Quote(items, "", decimal.NewFromInt(1000))
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}
