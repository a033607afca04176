package services

import (
	"context"
	"fmt"

	"bloomshop/internal/apperr"
	"bloomshop/internal/repositories"
	"bloomshop/pkg/metrics"

	"go.uber.org/zap"
)

// InventoryLedger owns every stock mutation. Stock only moves through a conditional
// decrement or an increment, and per-order commits and restores are guarded by durable
// flags on the order so that retries never apply them twice.
type InventoryLedger struct {
	store  repositories.Store
	logger *zap.Logger
}

// NewInventoryLedger creates a new InventoryLedger.
func NewInventoryLedger(store repositories.Store, logger *zap.Logger) *InventoryLedger {
	return &InventoryLedger{store: store, logger: logger.Named("ledger")}
}

// withStore returns a ledger bound to st, typically an open transaction.
func (l *InventoryLedger) withStore(st repositories.Store) *InventoryLedger {
	return &InventoryLedger{store: st, logger: l.logger}
}

// Decrement removes qty units of productID iff at least qty are in stock.
func (l *InventoryLedger) Decrement(ctx context.Context, productID string, qty int) error {
	return l.decrement(ctx, l.store, productID, qty)
}

func (l *InventoryLedger) decrement(ctx context.Context, st repositories.Store, productID string, qty int) error {
	if qty < 1 {
		return apperr.Validation("quantity must be at least 1")
	}

	applied, err := st.Products().DecrementStock(ctx, productID, qty)
	if err != nil {
		metrics.RecordInventoryMutation("decrement", "error")
		return err
	}
	if !applied {
		product, err := st.Products().GetByID(ctx, productID)
		if err != nil {
			metrics.RecordInventoryMutation("decrement", "not_found")
			return err
		}
		metrics.RecordInventoryMutation("decrement", "insufficient")
		return apperr.InsufficientStock("insufficient stock for %s (requested: %d, available: %d)",
			product.Name, qty, product.Inventory.Stock)
	}
	metrics.RecordInventoryMutation("decrement", "applied")

	product, err := st.Products().GetByID(ctx, productID)
	if err != nil {
		return err
	}
	if product.LowOnStock() {
		metrics.RecordLowStock(product.ID)
		l.logger.Warn("product low on stock",
			zap.String("product_id", product.ID),
			zap.String("name", product.Name),
			zap.Int("stock", product.Inventory.Stock),
			zap.Int("threshold", product.Inventory.LowStockThreshold),
		)
	}
	return nil
}

// CommitForOrder decrements stock for every line of the order, once. The commit flag and
// the decrements share one transaction, so a shortfall on any line rolls back all of them
// and leaves the order uncommitted. Orders already committed, restored or cancelled are
// left alone.
func (l *InventoryLedger) CommitForOrder(ctx context.Context, orderID string) error {
	return l.store.Transaction(ctx, func(tx repositories.Store) error {
		order, err := tx.Orders().GetByID(ctx, orderID)
		if err != nil {
			return err
		}
		applied, err := tx.Orders().MarkInventoryCommitted(ctx, orderID)
		if err != nil {
			return err
		}
		if !applied {
			metrics.RecordInventoryMutation("commit", "noop")
			l.logger.Debug("inventory commit skipped", zap.String("order_id", orderID))
			return nil
		}
		for _, item := range order.Items {
			if err := l.decrement(ctx, tx, item.ProductID, item.Quantity); err != nil {
				return err
			}
		}
		metrics.RecordInventoryMutation("commit", "applied")
		l.logger.Info("inventory committed", zap.String("order_id", orderID), zap.Int("lines", len(order.Items)))
		return nil
	})
}

// RestoreForOrder returns the stock of a committed order, once. Uncommitted orders never
// took stock and are left alone.
func (l *InventoryLedger) RestoreForOrder(ctx context.Context, orderID string) error {
	return l.store.Transaction(ctx, func(tx repositories.Store) error {
		order, err := tx.Orders().GetByID(ctx, orderID)
		if err != nil {
			return err
		}
		applied, err := tx.Orders().MarkInventoryRestored(ctx, orderID)
		if err != nil {
			return err
		}
		if !applied {
			metrics.RecordInventoryMutation("restore", "noop")
			l.logger.Debug("inventory restore skipped", zap.String("order_id", orderID))
			return nil
		}
		for _, item := range order.Items {
			ok, err := tx.Products().IncrementStock(ctx, item.ProductID, item.Quantity)
			if err != nil {
				metrics.RecordInventoryMutation("restore", "error")
				return err
			}
			if !ok {
				metrics.RecordInventoryMutation("restore", "not_found")
				return fmt.Errorf("failed to restore stock for order %s: %w",
					orderID, apperr.NotFound("product %s not found", item.ProductID))
			}
		}
		metrics.RecordInventoryMutation("restore", "applied")
		l.logger.Info("inventory restored", zap.String("order_id", orderID), zap.Int("lines", len(order.Items)))
		return nil
	})
}
