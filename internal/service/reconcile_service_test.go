package service

import (
	"context"
	"testing"

	"commissionledger/internal/model"
	"commissionledger/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestReconcile(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	for userID := int64(1); userID <= 5; userID++ {
		testutil.CreateWallet(t, env.db, userID, userID*1000)
	}
	_, err := env.wallets.Debit(ctx, 2, 500, DebitMetadata{Type: model.TransactionTypeWithdrawal})
	require.NoError(t, err)

	report, err := env.reconcile.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, report.Checked)
	assert.Empty(t, report.Mismatches)

	require.NoError(t, env.db.Model(&model.Wallet{}).
		Where("user_id = ?", 4).
		Update("balance", gorm.Expr("balance + 1")).Error)

	report, err = env.reconcile.Run(ctx)
	require.NoError(t, err)
	require.Len(t, report.Mismatches, 1)
	assert.Equal(t, int64(4), report.Mismatches[0].UserID)
	assert.Equal(t, int64(4001), report.Mismatches[0].Balance)
	assert.Equal(t, int64(4000), report.Mismatches[0].LedgerBalance)
}
