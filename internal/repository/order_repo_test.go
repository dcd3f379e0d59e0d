package repository

import (
	"context"
	"strings"
	"testing"
	"time"

	"commissionledger/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderRepository(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	repo := NewOrderRepository(db)

	order := testutil.CreateOrder(t, db, 1, nil, 1000)

	t.Run("Processed flag flips once", func(t *testing.T) {
		now := time.Now()
		require.NoError(t, repo.MarkCommissionProcessed(ctx, nil, order.ID, now))
		assert.ErrorIs(t, repo.MarkCommissionProcessed(ctx, nil, order.ID, now), ErrAlreadyProcessed)

		got, err := repo.GetByID(ctx, nil, order.ID)
		require.NoError(t, err)
		assert.True(t, got.CommissionProcessed)
		assert.NotNil(t, got.CommissionProcessedAt)
	})

	t.Run("Paid timestamp is kept from the first confirmation", func(t *testing.T) {
		first := time.Now().Add(-time.Hour).Truncate(time.Second)
		require.NoError(t, repo.MarkPaid(ctx, nil, order.ID, first))
		require.NoError(t, repo.MarkPaid(ctx, nil, order.ID, time.Now()))

		got, err := repo.GetByID(ctx, nil, order.ID)
		require.NoError(t, err)
		require.NotNil(t, got.PaidAt)
		assert.True(t, first.Equal(*got.PaidAt))
	})

	t.Run("Stale query skips processed orders", func(t *testing.T) {
		stale := testutil.CreateOrder(t, db, 1, nil, 1000)
		require.NoError(t, repo.MarkPaid(ctx, nil, stale.ID, time.Now().Add(-time.Hour)))

		orders, err := repo.GetStaleUnprocessed(ctx, time.Now().Add(-time.Minute), 10)
		require.NoError(t, err)
		require.Len(t, orders, 1)
		assert.Equal(t, stale.ID, orders[0].ID)
	})

	t.Run("Failed orders are parked until cleared", func(t *testing.T) {
		db := testutil.NewDB(t)
		repo := NewOrderRepository(db)
		parked := testutil.CreateOrder(t, db, 1, nil, 1000)
		require.NoError(t, repo.MarkPaid(ctx, nil, parked.ID, time.Now().Add(-time.Hour)))

		long := strings.Repeat("x", 600)
		require.NoError(t, repo.MarkCommissionFailed(ctx, parked.ID, time.Now(), long))

		stale, err := repo.GetStaleUnprocessed(ctx, time.Now().Add(-time.Minute), 10)
		require.NoError(t, err)
		assert.Empty(t, stale)

		failed, err := repo.ListCommissionFailed(ctx, 10)
		require.NoError(t, err)
		require.Len(t, failed, 1)
		assert.Len(t, failed[0].CommissionFailure, 512)
		assert.NotNil(t, failed[0].CommissionFailedAt)

		require.NoError(t, repo.ClearCommissionFailure(ctx, nil, parked.ID))
		assert.ErrorIs(t, repo.ClearCommissionFailure(ctx, nil, parked.ID), ErrNotFailed)

		stale, err = repo.GetStaleUnprocessed(ctx, time.Now().Add(-time.Minute), 10)
		require.NoError(t, err)
		require.Len(t, stale, 1)
		assert.Empty(t, stale[0].CommissionFailure)

		// a processed order never becomes failed, and processing clears a marker
		require.NoError(t, repo.MarkCommissionFailed(ctx, parked.ID, time.Now(), "boom"))
		require.NoError(t, repo.MarkCommissionProcessed(ctx, nil, parked.ID, time.Now()))
		require.NoError(t, repo.MarkCommissionFailed(ctx, parked.ID, time.Now(), "late"))
		got, err := repo.GetByID(ctx, nil, parked.ID)
		require.NoError(t, err)
		assert.Nil(t, got.CommissionFailedAt)
		assert.Empty(t, got.CommissionFailure)
	})

	t.Run("Not found", func(t *testing.T) {
		_, err := repo.GetByID(ctx, nil, 12345)
		assert.ErrorIs(t, err, ErrOrderNotFound)
	})
}

func TestPage(t *testing.T) {
	p, s := Page(0, 0)
	assert.Equal(t, 1, p)
	assert.Equal(t, 20, s)

	p, s = Page(3, 500)
	assert.Equal(t, 3, p)
	assert.Equal(t, 100, s)
}
