package app

import (
	"context"

	"bloomshop/internal/apperr"
	"bloomshop/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var demoCatalogue = []models.Product{
	{Name: "Red Rose Bouquet", Description: "Twelve long-stem red roses", Price: decimal.RequireFromString("49.99"), Inventory: models.Inventory{Stock: 40, LowStockThreshold: 5}},
	{Name: "Sunflower Bunch", Description: "Five sunflowers wrapped in kraft paper", Price: decimal.RequireFromString("24.50"), Inventory: models.Inventory{Stock: 25, LowStockThreshold: 5}},
	{Name: "White Lily Arrangement", Description: "Oriental lilies in a glass vase", Price: decimal.RequireFromString("64.00"), Inventory: models.Inventory{Stock: 12, LowStockThreshold: 3}},
	{Name: "Orchid Pot", Description: "Phalaenopsis orchid in a ceramic pot", Price: decimal.RequireFromString("79.00"), Inventory: models.Inventory{Stock: 6, LowStockThreshold: 2}},
	{Name: "Tulip Mix", Description: "Seasonal tulips, mixed colours", Price: decimal.RequireFromString("32.00"), Inventory: models.Inventory{Stock: 30, LowStockThreshold: 5}},
}

// SeedDemoData adds the demo catalogue to an empty store and creates the admin account
// when adminPassword is set. Running it again changes nothing.
func (a *App) SeedDemoData(ctx context.Context, adminPassword string) error {
	existing, err := a.Products.GetAllProducts(ctx)
	if err != nil {
		return err
	}
	if len(existing) == 0 {
		for i := range demoCatalogue {
			product := demoCatalogue[i]
			if err := a.Products.CreateProduct(ctx, &product); err != nil {
				return err
			}
			a.logger.Info("seeded product", zap.String("id", product.ID), zap.String("name", product.Name))
		}
	}

	if adminPassword == "" {
		return nil
	}
	admin := &models.User{Username: "admin", Email: "admin@bloomshop.local", Password: adminPassword}
	err = a.Auth.RegisterAdmin(ctx, admin)
	if apperr.KindOf(err) == apperr.KindConflict {
		return nil
	}
	if err != nil {
		return err
	}
	a.logger.Info("seeded admin user", zap.String("id", admin.ID))
	return nil
}
