package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"bloomshop/internal/handlers"
	"bloomshop/internal/middleware"
	"bloomshop/internal/models"
	"bloomshop/internal/notifications"
	"bloomshop/internal/payment"
	"bloomshop/internal/repositories"
	"bloomshop/internal/services"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const (
	testJWTSecret     = "test_jwt_secret"
	testWebhookSecret = "test_webhook_secret"
)

type testEnv struct {
	app   *fiber.App
	store *repositories.GORMStore
	auth  *services.AuthService
}

type envelope struct {
	Status  string          `json:"status"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

// setupApp sets up a Fiber app for testing with in-memory SQLite and all handlers/services.
func setupApp(t *testing.T) *testEnv {
	t.Helper()
	logger := zaptest.NewLogger(t)

	db, err := repositories.Open(repositories.DriverSQLite, fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()), nil)
	require.NoError(t, err)
	require.NoError(t, repositories.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	store := repositories.NewGORMStore(db)
	notifier := notifications.NewLogNotifier(logger)
	ledger := services.NewInventoryLedger(store, logger)
	machine := services.NewOrderStateMachine(store, ledger, notifier, logger)
	gateway := payment.NewRazorpayClient(payment.ClientConfig{BaseURL: "http://127.0.0.1:1"}, logger)

	authService := services.NewAuthService(store.Users(), testJWTSecret, logger)
	productHandler := handlers.NewProductHandler(services.NewProductService(store.Products()), logger)
	paymentHandler := handlers.NewPaymentHandler(services.NewPaymentReconciler(store, machine, ledger, gateway, notifier,
		services.ReconcilerConfig{KeySecret: "key_secret", WebhookSecret: testWebhookSecret}, logger), logger)
	orderHandler := handlers.NewOrderHandler(services.NewOrderService(store, machine,
		services.NewPricing(services.DefaultPricingConfig()), notifier, logger), logger)
	wishlistHandler := handlers.NewWishlistHandler(services.NewWishlistService(store, logger), logger)

	app := fiber.New(fiber.Config{ErrorHandler: handlers.ErrorHandler(logger)})
	apiV1 := app.Group("/api/v1")

	// Public routes
	handlers.NewAuthHandler(authService, logger).RegisterRoutes(apiV1)
	productHandler.RegisterRoutes(apiV1)
	paymentHandler.RegisterWebhook(apiV1)

	// Protected routes (require JWT authentication)
	protected := apiV1.Group("", middleware.AuthRequired(authService, logger))
	productHandler.RegisterAdminRoutes(protected)
	paymentHandler.RegisterRoutes(protected)
	orderHandler.RegisterRoutes(protected)
	wishlistHandler.RegisterRoutes(protected)

	return &testEnv{app: app, store: store, auth: authService}
}

func (e *testEnv) request(t *testing.T, method, path, token string, body interface{}) (int, envelope) {
	t.Helper()
	var raw []byte
	if body != nil {
		var err error
		raw, err = json.Marshal(body)
		require.NoError(t, err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := e.app.Test(req, -1) // -1 for no timeout
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

func (e *testEnv) seedProduct(t *testing.T, name string, stock int) *models.Product {
	t.Helper()
	product := &models.Product{Name: name, Price: decimal.RequireFromString("30.00"), Inventory: models.Inventory{Stock: stock, LowStockThreshold: 2}}
	require.NoError(t, e.store.Products().Create(context.Background(), product))
	return product
}

func (e *testEnv) registerAndLogin(t *testing.T, username string) string {
	t.Helper()
	code, _ := e.request(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"username": username,
		"email":    username + "@example.com",
		"password": "password123",
	})
	require.Equal(t, http.StatusCreated, code)

	code, env := e.request(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": username,
		"password": "password123",
	})
	require.Equal(t, http.StatusOK, code)
	var data map[string]string
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.NotEmpty(t, data["token"])
	return data["token"]
}

func TestAuthRegisterAndLogin(t *testing.T) {
	env := setupApp(t)

	userToRegister := map[string]string{
		"username": "testuser",
		"email":    "test@example.com",
		"password": "password123",
	}
	code, resp := env.request(t, http.MethodPost, "/api/v1/auth/register", "", userToRegister)
	assert.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "success", resp.Status)
	assert.NotContains(t, string(resp.Data), "password123")
	assert.Contains(t, string(resp.Data), `"role":"customer"`)

	// Test Duplicate Registration (username)
	code, resp = env.request(t, http.MethodPost, "/api/v1/auth/register", "", userToRegister)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "error", resp.Status)

	code, resp = env.request(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{"username": "x", "email": "not-an-email"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, resp.Message, "validation failed")

	code, _ = env.request(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"username": "testuser", "password": "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, code)

	code, resp = env.request(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"username": "testuser", "password": "password123"})
	require.Equal(t, http.StatusOK, code)
	var data map[string]string
	require.NoError(t, json.Unmarshal(resp.Data, &data))

	claims, err := env.auth.ValidateToken(data["token"])
	assert.NoError(t, err)
	assert.Equal(t, "testuser", claims["username"])
	assert.Equal(t, "customer", claims["role"])
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	env := setupApp(t)

	code, resp := env.request(t, http.MethodGet, "/api/v1/orders", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "Authorization header is required", resp.Message)

	code, _ = env.request(t, http.MethodGet, "/api/v1/wishlist", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	token := env.registerAndLogin(t, "customer")
	code, resp = env.request(t, http.MethodGet, "/api/v1/inventory/low-stock", token, nil)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "admin role required", resp.Message)

	// The catalogue stays public.
	env.seedProduct(t, "Peony Bunch", 4)
	code, resp = env.request(t, http.MethodGet, "/api/v1/products", "", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(resp.Data), "Peony Bunch")
}

func TestWishlistMoveToCartEndpoint(t *testing.T) {
	env := setupApp(t)
	token := env.registerAndLogin(t, "florence")
	peony := env.seedProduct(t, "Peony Bunch", 4)
	moveURL := "/api/v1/wishlist/" + peony.ID + "/move-to-cart"

	code, resp := env.request(t, http.MethodPost, moveURL, token, map[string]interface{}{"quantity": 1})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, resp.Message, "not in the wishlist")

	code, _ = env.request(t, http.MethodPost, "/api/v1/wishlist/"+peony.ID, token, nil)
	require.Equal(t, http.StatusOK, code)

	code, resp = env.request(t, http.MethodPost, moveURL, token, map[string]interface{}{"quantity": 0})
	assert.Equal(t, http.StatusBadRequest, code)

	code, resp = env.request(t, http.MethodPost, moveURL, token, map[string]interface{}{"quantity": 9})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, resp.Message, "insufficient stock for Peony Bunch (requested: 9, available: 4)")

	code, resp = env.request(t, http.MethodPost, moveURL, token, map[string]interface{}{"quantity": 2, "vase": "ceramic"})
	require.Equal(t, http.StatusOK, code, resp.Message)
	var result services.MoveToCartResult
	require.NoError(t, json.Unmarshal(resp.Data, &result))
	assert.Empty(t, result.Wishlist)
	assert.Equal(t, 2, result.Cart.Quantity(peony.ID))
	assert.True(t, result.Cart.Total.Equal(decimal.NewFromInt(60)))

	code, resp = env.request(t, http.MethodGet, "/api/v1/cart", token, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(resp.Data), `"vase":"ceramic"`)

	code, _ = env.request(t, http.MethodDelete, "/api/v1/wishlist/"+peony.ID, token, nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	env := setupApp(t)
	body := []byte(`{"event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_1","order_id":"order_ext_1"}}}}`)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/webhook", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(handlers.SignatureHeader, payment.Sign("not-the-secret", body))
	resp, err := env.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	// A correctly signed event for an order this shop never created is acknowledged.
	req = httptest.NewRequest(http.MethodPost, "/api/v1/payments/webhook", bytes.NewReader(body))
	req.Header.Set(handlers.SignatureHeader, payment.Sign(testWebhookSecret, body))
	resp, err = env.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestCheckoutValidation(t *testing.T) {
	env := setupApp(t)
	token := env.registerAndLogin(t, "rosalind")
	peony := env.seedProduct(t, "Peony Bunch", 4)

	code, resp := env.request(t, http.MethodPost, "/api/v1/orders", token, map[string]interface{}{
		"items":       []map[string]interface{}{{"productId": peony.ID, "quantity": 1}},
		"paymentInfo": map[string]string{"method": "cod"},
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, resp.Message, "ShippingAddress.FullName")

	code, resp = env.request(t, http.MethodPost, "/api/v1/orders", token, map[string]interface{}{
		"items": []map[string]interface{}{{"productId": peony.ID, "quantity": 5}},
		"shippingAddress": map[string]string{
			"fullName": "Rosalind", "phone": "555", "line1": "3 Stem St", "city": "Delhi", "postalCode": "110001",
		},
		"paymentInfo": map[string]string{"method": "cod"},
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, resp.Message, "insufficient stock")
}
