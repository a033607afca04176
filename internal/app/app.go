// Package app wires configuration, storage, messaging and HTTP routes into one server.
package app

import (
	"context"
	"fmt"
	"time"

	"bloomshop/internal/config"
	"bloomshop/internal/handlers"
	"bloomshop/internal/middleware"
	"bloomshop/internal/notifications"
	"bloomshop/internal/payment"
	"bloomshop/internal/repositories"
	"bloomshop/internal/services"
	"bloomshop/pkg/logging"
	"bloomshop/pkg/metrics"
	"bloomshop/pkg/rabbitmq"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// App is the assembled shop server.
type App struct {
	Fiber *fiber.App

	cfg    *config.Config
	db     *gorm.DB
	mq     *rabbitmq.Client
	logger *zap.Logger

	Store      *repositories.GORMStore
	Auth       *services.AuthService
	Products   *services.ProductService
	Orders     *services.OrderService
	Reconciler *services.PaymentReconciler
	Wishlist   *services.WishlistService
}

// New opens the database, connects the notification queue when configured and registers
// every route.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	logger = logging.OrDefault(logger)
	db, err := repositories.Open(cfg.DatabaseDriver, cfg.DatabaseDSN, logger)
	if err != nil {
		return nil, err
	}
	if err := repositories.Migrate(db); err != nil {
		closeDB(db)
		return nil, err
	}

	a := &App{cfg: cfg, db: db, logger: logger}

	notifier, err := a.notifier()
	if err != nil {
		closeDB(db)
		return nil, err
	}

	store := repositories.NewGORMStore(db)
	gateway := payment.NewRazorpayClient(payment.ClientConfig{
		BaseURL:         cfg.Payment.GatewayURL,
		KeyID:           cfg.Payment.KeyID,
		KeySecret:       cfg.Payment.KeySecret,
		Timeout:         cfg.Payment.Timeout,
		BreakerFailures: cfg.Payment.BreakerFailures,
		BreakerReset:    cfg.Payment.BreakerReset,
	}, logger)
	pricing := services.NewPricing(services.PricingConfig{
		ShippingFees:          cfg.Pricing.ShippingFees,
		FreeShippingThreshold: cfg.Pricing.FreeShippingThreshold,
		TaxRate:               cfg.Pricing.TaxRate,
	})

	ledger := services.NewInventoryLedger(store, logger)
	machine := services.NewOrderStateMachine(store, ledger, notifier, logger)
	a.Store = store
	a.Auth = services.NewAuthService(store.Users(), cfg.JWTSecret, logger)
	a.Products = services.NewProductService(store.Products())
	a.Orders = services.NewOrderService(store, machine, pricing, notifier, logger)
	a.Reconciler = services.NewPaymentReconciler(store, machine, ledger, gateway, notifier, services.ReconcilerConfig{
		KeySecret:     cfg.Payment.KeySecret,
		WebhookSecret: cfg.Payment.WebhookSecret,
		Currency:      cfg.Payment.Currency,
	}, logger)
	a.Wishlist = services.NewWishlistService(store, logger)

	a.Fiber = a.routes()
	return a, nil
}

// notifier returns the durable queue notifier when RabbitMQ is configured and starts its
// consumer. Without a broker, events are only logged.
func (a *App) notifier() (notifications.Notifier, error) {
	if a.cfg.RabbitMQURL == "" {
		a.logger.Warn("RABBITMQ_URL not set, notifications are logged only")
		return notifications.NewLogNotifier(a.logger), nil
	}

	mq, err := rabbitmq.NewClient(rabbitmq.Config{
		URL:        a.cfg.RabbitMQURL,
		MaxRetries: a.cfg.NotificationMaxRetries,
	}, a.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize RabbitMQ client: %w", err)
	}
	dispatcher := notifications.NewDispatcher(notifications.LogSender{Logger: a.logger}, a.logger)
	if err := mq.Consume(dispatcher.Handle); err != nil {
		mq.Close()
		return nil, fmt.Errorf("failed to start notification consumer: %w", err)
	}
	a.mq = mq
	return notifications.NewAMQPNotifier(mq), nil
}

func (a *App) routes() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "bloomshop",
		ErrorHandler: handlers.ErrorHandler(a.logger),
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(metrics.Middleware())

	app.Get("/health", a.health)
	app.Get("/metrics", metrics.Handler())

	productHandler := handlers.NewProductHandler(a.Products, a.logger)
	paymentHandler := handlers.NewPaymentHandler(a.Reconciler, a.logger)

	// Public routes go first: the protected group installs its middleware on the whole
	// /api/v1 prefix.
	apiV1 := app.Group("/api/v1")
	handlers.NewAuthHandler(a.Auth, a.logger).RegisterRoutes(apiV1)
	productHandler.RegisterRoutes(apiV1)
	paymentHandler.RegisterWebhook(apiV1)

	protected := apiV1.Group("", middleware.AuthRequired(a.Auth, a.logger))
	productHandler.RegisterAdminRoutes(protected)
	paymentHandler.RegisterRoutes(protected)
	handlers.NewOrderHandler(a.Orders, a.logger).RegisterRoutes(protected)
	handlers.NewWishlistHandler(a.Wishlist, a.logger).RegisterRoutes(protected)

	return app
}

func (a *App) health(c *fiber.Ctx) error {
	status, health, database := fiber.StatusOK, "healthy", "connected"
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()
	if sqlDB, err := a.db.DB(); err != nil || sqlDB.PingContext(ctx) != nil {
		status, health, database = fiber.StatusServiceUnavailable, "unhealthy", "unreachable"
	}

	broker := "disabled"
	if a.mq != nil {
		broker = "connected"
	}
	return c.Status(status).JSON(fiber.Map{
		"status":   health,
		"time":     time.Now().Format(time.RFC3339),
		"database": database,
		"rabbitmq": broker,
	})
}

// Listen serves HTTP on the configured port until Shutdown is called.
func (a *App) Listen() error {
	return a.Fiber.Listen(a.cfg.Port)
}

// Shutdown stops accepting requests, waits for in-flight ones up to ctx's deadline and
// releases the broker and database connections.
func (a *App) Shutdown(ctx context.Context) error {
	err := a.Fiber.ShutdownWithContext(ctx)
	if a.mq != nil {
		a.mq.Close()
	}
	closeDB(a.db)
	return err
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
}
