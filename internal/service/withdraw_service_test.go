package service

import (
	"context"
	"encoding/json"
	"testing"

	"commissionledger/internal/model"
	"commissionledger/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithdraw(t *testing.T) {
	ctx := context.Background()

	request := func(amount int64) *WithdrawRequest {
		return &WithdrawRequest{
			UserID:        1,
			Amount:        amount,
			BankName:      "First Bank",
			BankAccount:   "001122334455",
			AccountHolder: "Ada",
		}
	}

	t.Run("Queues a payout with the debit", func(t *testing.T) {
		env := newTestEnv(t)
		testutil.CreateWallet(t, env.db, 1, 250000)

		resp, err := env.withdraw.Withdraw(ctx, request(150000))
		require.NoError(t, err)
		assert.Equal(t, WithdrawPendingMessage, resp.Message)
		assert.Equal(t, model.TransactionStatusPending, resp.Status)
		assert.Equal(t, int64(100000), resp.BalanceAfter)
		assert.NotEmpty(t, resp.WithdrawalNo)

		var trans model.WalletTransaction
		require.NoError(t, env.db.First(&trans, resp.TransactionID).Error)
		assert.Equal(t, resp.WithdrawalNo, trans.ReferenceID)
		assert.Equal(t, "Withdrawal to ********4455", trans.Description)

		var msg model.OutboxMessage
		require.NoError(t, env.db.Where("topic = ?", "payout_request").First(&msg).Error)
		assert.Equal(t, resp.TransactionNo, msg.MessageKey)

		var payout model.PayoutRequest
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &payout))
		assert.Equal(t, resp.TransactionID, payout.WalletTransactionID)
		assert.Equal(t, int64(150000), payout.Amount)
		assert.Equal(t, "001122334455", payout.Destination.BankAccount)
	})

	t.Run("Below minimum", func(t *testing.T) {
		env := newTestEnv(t)
		testutil.CreateWallet(t, env.db, 1, 250000)

		_, err := env.withdraw.Withdraw(ctx, request(99999))
		assert.ErrorIs(t, err, ErrBelowMinimum)
		assert.ErrorIs(t, err, ErrValidation)
		assert.Equal(t, int64(250000), env.wallet(t, 1).Balance)
	})

	t.Run("Non-positive amount", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.withdraw.Withdraw(ctx, request(0))
		assert.ErrorIs(t, err, ErrValidation)
		assert.NotErrorIs(t, err, ErrBelowMinimum)
	})

	t.Run("Destination required", func(t *testing.T) {
		env := newTestEnv(t)
		req := request(150000)
		req.BankAccount = " "
		_, err := env.withdraw.Withdraw(ctx, req)
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("Insufficient funds writes nothing", func(t *testing.T) {
		env := newTestEnv(t)
		testutil.CreateWallet(t, env.db, 1, 120000)

		_, err := env.withdraw.Withdraw(ctx, request(150000))
		assert.ErrorIs(t, err, ErrInsufficientFunds)
		assert.Equal(t, int64(120000), env.wallet(t, 1).Balance)
		assert.Equal(t, int64(0), env.count(t, &model.OutboxMessage{}, ""))
	})
}
