package services_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"bloomshop/internal/models"
	"bloomshop/internal/notifications"
	"bloomshop/internal/payment"
	"bloomshop/internal/repositories"
	"bloomshop/internal/services"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const (
	testKeySecret     = "rzp_key_secret"
	testWebhookSecret = "rzp_webhook_secret"
)

func testNow() time.Time {
	return time.Date(2026, time.February, 14, 9, 0, 0, 0, time.UTC)
}

// MockNotifier records enqueued events.
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Enqueue(ctx context.Context, event notifications.Event) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func newMockNotifier() *MockNotifier {
	n := new(MockNotifier)
	n.On("Enqueue", mock.Anything, mock.Anything).Return(nil)
	return n
}

// count returns how many events of kind were enqueued for orderID.
func (m *MockNotifier) count(kind notifications.Kind, orderID string) int {
	n := 0
	for _, call := range m.Calls {
		if call.Method != "Enqueue" {
			continue
		}
		event := call.Arguments.Get(1).(notifications.Event)
		if event.Kind == kind && event.OrderID == orderID {
			n++
		}
	}
	return n
}

// MockGateway is a mock implementation of payment.Gateway.
type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) CreateOrder(ctx context.Context, amount decimal.Decimal, currency, receipt string) (*payment.GatewayOrder, error) {
	args := m.Called(amount.StringFixed(2), currency, receipt)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.GatewayOrder), args.Error(1)
}

func (m *MockGateway) Refund(ctx context.Context, paymentID string, amount decimal.Decimal, reason string) (*payment.GatewayRefund, error) {
	args := m.Called(paymentID, amount.StringFixed(2), reason)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.GatewayRefund), args.Error(1)
}

// engine bundles the order engine wired against an in-memory SQLite database.
type engine struct {
	store      *repositories.GORMStore
	notifier   *MockNotifier
	gateway    *MockGateway
	ledger     *services.InventoryLedger
	machine    *services.OrderStateMachine
	reconciler *services.PaymentReconciler
	orders     *services.OrderService
	wishlist   *services.WishlistService
}

func newTestStore(t *testing.T) *repositories.GORMStore {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := repositories.Open(repositories.DriverSQLite, dsn, nil)
	require.NoError(t, err)
	require.NoError(t, repositories.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return repositories.NewGORMStore(db)
}

func newEngine(t *testing.T) *engine {
	t.Helper()
	logger := zaptest.NewLogger(t)
	store := newTestStore(t)
	notifier := newMockNotifier()
	gateway := new(MockGateway)

	ledger := services.NewInventoryLedger(store, logger)
	machine := services.NewOrderStateMachine(store, ledger, notifier, logger)
	reconciler := services.NewPaymentReconciler(store, machine, ledger, gateway, notifier, services.ReconcilerConfig{
		KeySecret:     testKeySecret,
		WebhookSecret: testWebhookSecret,
		Currency:      "INR",
	}, logger)
	return &engine{
		store:      store,
		notifier:   notifier,
		gateway:    gateway,
		ledger:     ledger,
		machine:    machine,
		reconciler: reconciler,
		orders:     services.NewOrderService(store, machine, services.NewPricing(services.DefaultPricingConfig()), notifier, logger),
		wishlist:   services.NewWishlistService(store, logger),
	}
}

func (e *engine) seedProduct(t *testing.T, name, price string, stock int) *models.Product {
	t.Helper()
	product := &models.Product{
		Name:      name,
		Price:     decimal.RequireFromString(price),
		Inventory: models.Inventory{Stock: stock, LowStockThreshold: 1},
	}
	require.NoError(t, e.store.Products().Create(context.Background(), product))
	return product
}

func (e *engine) seedUser(t *testing.T, username string, role models.Role) *models.User {
	t.Helper()
	user := &models.User{Username: username, Email: username + "@example.com", Password: "x", Role: role}
	require.NoError(t, e.store.Users().Create(context.Background(), user))
	return user
}

type line struct {
	product *models.Product
	qty     int
}

// seedOrder inserts a pending order with explicit charges, bypassing checkout pricing.
func (e *engine) seedOrder(t *testing.T, userID string, method models.PaymentMethod, shipping, tax, discount string, lines ...line) *models.Order {
	t.Helper()
	orderID := uuid.NewString()
	items := make([]models.OrderItem, 0, len(lines))
	for _, l := range lines {
		items = append(items, models.OrderItem{
			OrderID:   orderID,
			ProductID: l.product.ID,
			Name:      l.product.Name,
			Quantity:  l.qty,
			Price:     l.product.Price,
		})
	}
	order := &models.Order{
		ID:          orderID,
		OrderNumber: models.NewOrderNumber(testNow()),
		UserID:      userID,
		Items:       items,
		Payment: models.Payment{
			Method:       method,
			Status:       models.PaymentStatusPending,
			RefundAmount: decimal.Zero,
		},
		Status: models.OrderStatusPending,
	}
	order.ApplyTotals(models.ComputeTotals(items,
		decimal.RequireFromString(shipping), decimal.RequireFromString(tax), decimal.RequireFromString(discount)))
	require.NoError(t, e.store.Orders().Create(context.Background(), order))
	return order
}

// seedOnlineOrder creates an online order already attached to externalOrderID.
func (e *engine) seedOnlineOrder(t *testing.T, userID, externalOrderID string, lines ...line) *models.Order {
	t.Helper()
	order := e.seedOrder(t, userID, models.PaymentMethodOnline, "10", "8", "5", lines...)
	applied, err := e.store.Orders().AttachExternalOrder(context.Background(), order.ID, externalOrderID)
	require.NoError(t, err)
	require.True(t, applied)
	return e.reload(t, order.ID)
}

func (e *engine) reload(t *testing.T, orderID string) *models.Order {
	t.Helper()
	order, err := e.store.Orders().GetByID(context.Background(), orderID)
	require.NoError(t, err)
	return order
}

func (e *engine) stock(t *testing.T, productID string) int {
	t.Helper()
	product, err := e.store.Products().GetByID(context.Background(), productID)
	require.NoError(t, err)
	return product.Inventory.Stock
}

func webhookBody(event, externalOrderID, paymentID string) []byte {
	return []byte(fmt.Sprintf(
		`{"event":%q,"payload":{"payment":{"entity":{"id":%q,"order_id":%q,"status":"captured","amount":21300,"error_description":"card declined"}}}}`,
		event, paymentID, externalOrderID))
}

// interleavingStore runs afterRead once, right after the first order read made outside a
// transaction, to interleave a concurrent writer between a read and the write that follows.
type interleavingStore struct {
	repositories.Store
	afterRead func()
	once      sync.Once
}

func (s *interleavingStore) Orders() repositories.OrderRepository {
	return &interleavingOrders{OrderRepository: s.Store.Orders(), store: s}
}

type interleavingOrders struct {
	repositories.OrderRepository
	store *interleavingStore
}

func (r *interleavingOrders) GetByID(ctx context.Context, id string) (*models.Order, error) {
	order, err := r.OrderRepository.GetByID(ctx, id)
	r.store.once.Do(r.store.afterRead)
	return order, err
}

// staleStore serves order reads inside transactions with status replaced by staleStatus, as
// if another transaction changed the row after it was read.
type staleStore struct {
	repositories.Store
	staleStatus models.OrderStatus
}

func (s *staleStore) Transaction(ctx context.Context, fn func(tx repositories.Store) error) error {
	return s.Store.Transaction(ctx, func(tx repositories.Store) error {
		return fn(&staleTx{Store: tx, staleStatus: s.staleStatus})
	})
}

type staleTx struct {
	repositories.Store
	staleStatus models.OrderStatus
}

func (s *staleTx) Orders() repositories.OrderRepository {
	return &staleOrders{OrderRepository: s.Store.Orders(), staleStatus: s.staleStatus}
}

type staleOrders struct {
	repositories.OrderRepository
	staleStatus models.OrderStatus
}

func (r *staleOrders) GetByID(ctx context.Context, id string) (*models.Order, error) {
	order, err := r.OrderRepository.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	order.Status = r.staleStatus
	return order, nil
}
