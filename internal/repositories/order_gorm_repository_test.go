package repositories_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"bloomshop/internal/models"
	"bloomshop/internal/repositories"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOrderRepo(t *testing.T) repositories.OrderRepository {
	t.Helper()
	db, err := repositories.Open(repositories.DriverSQLite, fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()), nil)
	require.NoError(t, err)
	require.NoError(t, repositories.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return repositories.NewGORMStore(db).Orders()
}

func createPendingOrder(t *testing.T, repo repositories.OrderRepository) *models.Order {
	t.Helper()
	order := &models.Order{
		OrderNumber: "FS-20260214-" + uuid.NewString()[:8],
		UserID:      uuid.NewString(),
		Payment:     models.Payment{Method: models.PaymentMethodOnline, Status: models.PaymentStatusPending, RefundAmount: decimal.Zero},
		Status:      models.OrderStatusPending,
		Subtotal:    decimal.NewFromInt(100),
		ShippingFee: decimal.Zero,
		Tax:         decimal.Zero,
		Discount:    decimal.Zero,
		Total:       decimal.NewFromInt(100),
	}
	require.NoError(t, repo.Create(context.Background(), order))
	return order
}

func TestTransitionStatus_IsCompareAndSwap(t *testing.T) {
	repo := newOrderRepo(t)
	ctx := context.Background()
	order := createPendingOrder(t, repo)
	first := time.Date(2026, time.February, 14, 9, 0, 0, 0, time.UTC)

	var wg sync.WaitGroup
	results := make([]bool, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			applied, err := repo.TransitionStatus(ctx, repositories.StatusChange{
				OrderID: order.ID, From: models.OrderStatusPending, To: models.OrderStatusConfirmed, At: first,
			})
			assert.NoError(t, err)
			results[i] = applied
		}(i)
	}
	wg.Wait()

	applied := 0
	for _, ok := range results {
		if ok {
			applied++
		}
	}
	assert.Equal(t, 1, applied)

	stored, err := repo.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusConfirmed, stored.Status)
	require.NotNil(t, stored.ConfirmedAt)
	assert.True(t, stored.ConfirmedAt.Equal(first))
	assert.Equal(t, 2, stored.Version)

	ok, err := repo.TransitionStatus(ctx, repositories.StatusChange{
		OrderID: order.ID, From: models.OrderStatusPending, To: models.OrderStatusCancelled, At: first,
	})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTransitionPayment_CompletesOnce(t *testing.T) {
	repo := newOrderRepo(t)
	ctx := context.Background()
	order := createPendingOrder(t, repo)

	change := repositories.PaymentChange{
		OrderID: order.ID, From: models.PaymentStatusPending, To: models.PaymentStatusCompleted,
		ExternalPaymentID: "pay_1", At: time.Now().UTC(),
	}
	ok, err := repo.TransitionPayment(ctx, change)
	require.NoError(t, err)
	assert.True(t, ok)

	change.ExternalPaymentID = "pay_2"
	ok, err = repo.TransitionPayment(ctx, change)
	require.NoError(t, err)
	assert.False(t, ok)

	stored, err := repo.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, "pay_1", stored.Payment.ExternalPaymentID)
	assert.NotNil(t, stored.PaidAt)
}

func TestInventoryGuards(t *testing.T) {
	repo := newOrderRepo(t)
	ctx := context.Background()
	order := createPendingOrder(t, repo)

	ok, err := repo.MarkInventoryRestored(ctx, order.ID)
	require.NoError(t, err)
	assert.False(t, ok, "nothing to restore before a commit")

	ok, err = repo.MarkInventoryCommitted(ctx, order.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = repo.MarkInventoryCommitted(ctx, order.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.MarkInventoryRestored(ctx, order.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = repo.MarkInventoryRestored(ctx, order.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	cancelled := createPendingOrder(t, repo)
	_, err = repo.TransitionStatus(ctx, repositories.StatusChange{
		OrderID: cancelled.ID, From: models.OrderStatusPending, To: models.OrderStatusCancelled, At: time.Now().UTC(),
	})
	require.NoError(t, err)
	ok, err = repo.MarkInventoryCommitted(ctx, cancelled.ID)
	require.NoError(t, err)
	assert.False(t, ok, "a cancelled order never commits stock")
}

func TestRecordRefund_GuardedByObservedAmount(t *testing.T) {
	repo := newOrderRepo(t)
	ctx := context.Background()
	order := createPendingOrder(t, repo)

	refund := repositories.RefundChange{
		OrderID: order.ID, Previous: decimal.Zero, To: models.PaymentStatusPartiallyRefunded,
		RefundAmount: decimal.RequireFromString("40.00"), Reason: "wilted", At: time.Now().UTC(),
	}
	ok, err := repo.RecordRefund(ctx, refund)
	require.NoError(t, err)
	assert.False(t, ok, "nothing captured yet")

	ok, err = repo.TransitionPayment(ctx, repositories.PaymentChange{
		OrderID: order.ID, From: models.PaymentStatusPending, To: models.PaymentStatusCompleted,
		ExternalPaymentID: "pay_1", At: time.Now().UTC(),
	})
	require.NoError(t, err)
	require.True(t, ok)

	// Fulfilment moving on does not block the refund.
	ok, err = repo.TransitionStatus(ctx, repositories.StatusChange{
		OrderID: order.ID, From: models.OrderStatusPending, To: models.OrderStatusConfirmed, At: time.Now().UTC(),
	})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = repo.RecordRefund(ctx, refund)
	require.NoError(t, err)
	assert.True(t, ok)

	// A second writer that still observed zero loses.
	refund.RefundAmount = decimal.RequireFromString("80.00")
	ok, err = repo.RecordRefund(ctx, refund)
	require.NoError(t, err)
	assert.False(t, ok)

	stored, err := repo.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.True(t, stored.Payment.RefundAmount.Equal(decimal.NewFromInt(40)))
	assert.Equal(t, models.PaymentStatusPartiallyRefunded, stored.Payment.Status)
	assert.True(t, stored.RemainingRefundable().Equal(decimal.NewFromInt(60)))

	refund.Previous = stored.Payment.RefundAmount
	refund.To = models.PaymentStatusRefunded
	refund.RefundAmount = decimal.NewFromInt(100)
	ok, err = repo.RecordRefund(ctx, refund)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestBackfillExternalPayment_OnlyFillsEmptyID(t *testing.T) {
	repo := newOrderRepo(t)
	ctx := context.Background()
	order := createPendingOrder(t, repo)

	ok, err := repo.BackfillExternalPayment(ctx, order.ID, "pay_1")
	require.NoError(t, err)
	assert.False(t, ok, "pending payments are filled by the completing write")

	ok, err = repo.TransitionPayment(ctx, repositories.PaymentChange{
		OrderID: order.ID, From: models.PaymentStatusPending, To: models.PaymentStatusCompleted, At: time.Now().UTC(),
	})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = repo.BackfillExternalPayment(ctx, order.ID, "pay_1")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = repo.BackfillExternalPayment(ctx, order.ID, "pay_2")
	require.NoError(t, err)
	assert.False(t, ok)

	stored, err := repo.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, "pay_1", stored.Payment.ExternalPaymentID)
}
