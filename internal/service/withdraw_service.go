package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"commissionledger/internal/config"
	"commissionledger/internal/infrastructure/lock"
	"commissionledger/internal/metrics"
	"commissionledger/internal/model"
	"commissionledger/internal/repository"
	"commissionledger/pkg/idgen"
	"commissionledger/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const WithdrawPendingMessage = "Withdrawal request received. Funds will arrive within 1-3 business days."

type WithdrawService struct {
	wallets       *WalletService
	outboxRepo    *repository.OutboxRepository
	locker        lock.Locker
	minWithdrawal int64
	payoutTopic   string
	log           *zap.Logger
}

func NewWithdrawService(db *gorm.DB, wallets *WalletService, locker lock.Locker, cfg *config.Config) *WithdrawService {
	return &WithdrawService{
		wallets:       wallets,
		outboxRepo:    repository.NewOutboxRepository(db),
		locker:        locker,
		minWithdrawal: cfg.Business.MinWithdrawal,
		payoutTopic:   cfg.Kafka.Topic.PayoutRequest,
		log:           logger.L().Named("WithdrawService"),
	}
}

type WithdrawRequest struct {
	UserID        int64  `json:"user_id" binding:"required"`
	Amount        int64  `json:"amount"`
	BankName      string `json:"bank_name"`
	BankAccount   string `json:"bank_account"`
	AccountHolder string `json:"account_holder"`
}

type WithdrawResponse struct {
	TransactionID int64  `json:"transaction_id"`
	TransactionNo string `json:"transaction_no"`
	WithdrawalNo  string `json:"withdrawal_no"`
	Amount        int64  `json:"amount"`
	BalanceAfter  int64  `json:"balance_after"`
	Status        string `json:"status"`
	Message       string `json:"message"`
}

// Withdraw debits the wallet and queues the payout request in the same transaction.
func (s *WithdrawService) Withdraw(ctx context.Context, req *WithdrawRequest) (*WithdrawResponse, error) {
	if err := s.validate(req); err != nil {
		metrics.WithdrawalsTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}

	if s.locker != nil {
		release, err := s.locker.Obtain(ctx, lock.WithdrawKey(req.UserID))
		if err != nil {
			metrics.WithdrawalsTotal.WithLabelValues("busy").Inc()
			return nil, fmt.Errorf("%w: %v", ErrTransient, err)
		}
		defer release()
	}

	withdrawalNo := idgen.GenerateWithdrawalNo()
	trans, err := s.wallets.Debit(ctx, req.UserID, req.Amount, DebitMetadata{
		Type:          model.TransactionTypeWithdrawal,
		ReferenceType: model.ReferenceTypeWithdrawal,
		ReferenceID:   withdrawalNo,
		Description:   fmt.Sprintf("Withdrawal to %s", maskAccount(req.BankAccount)),
		Attach: func(ctx context.Context, tx *gorm.DB, trans *model.WalletTransaction) error {
			return s.queuePayout(ctx, tx, req, trans)
		},
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrInsufficientFunds):
			metrics.WithdrawalsTotal.WithLabelValues("insufficient_funds").Inc()
		case errors.Is(err, ErrWalletNotFound):
			metrics.WithdrawalsTotal.WithLabelValues("wallet_missing").Inc()
		default:
			metrics.WithdrawalsTotal.WithLabelValues("error").Inc()
		}
		return nil, err
	}

	metrics.WithdrawalsTotal.WithLabelValues("accepted").Inc()
	s.log.Info("withdrawal accepted",
		zap.Int64("user_id", req.UserID),
		zap.Int64("amount", req.Amount),
		zap.String("transaction_no", trans.TransactionNo))

	return &WithdrawResponse{
		TransactionID: trans.ID,
		TransactionNo: trans.TransactionNo,
		WithdrawalNo:  withdrawalNo,
		Amount:        trans.Amount,
		BalanceAfter:  trans.BalanceAfter,
		Status:        trans.Status,
		Message:       WithdrawPendingMessage,
	}, nil
}

func (s *WithdrawService) validate(req *WithdrawRequest) error {
	if req.UserID <= 0 {
		return validationf("user_id must be positive")
	}
	if req.Amount <= 0 {
		return validationf("amount must be positive, got %d", req.Amount)
	}
	if req.Amount < s.minWithdrawal {
		return fmt.Errorf("%w: minimum is %d", ErrBelowMinimum, s.minWithdrawal)
	}
	if strings.TrimSpace(req.BankName) == "" || strings.TrimSpace(req.BankAccount) == "" {
		return validationf("bank_name and bank_account are required")
	}
	return nil
}

func (s *WithdrawService) queuePayout(ctx context.Context, tx *gorm.DB, req *WithdrawRequest, trans *model.WalletTransaction) error {
	payload, err := json.Marshal(model.PayoutRequest{
		WalletTransactionID: trans.ID,
		TransactionNo:       trans.TransactionNo,
		UserID:              req.UserID,
		Amount:              trans.Amount,
		Destination: model.PayoutDestination{
			BankName:      req.BankName,
			BankAccount:   req.BankAccount,
			AccountHolder: req.AccountHolder,
		},
		RequestedAt: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("encode payout request: %w", err)
	}

	return s.outboxRepo.Create(ctx, tx, &model.OutboxMessage{
		MessageKey: trans.TransactionNo,
		Topic:      s.payoutTopic,
		Payload:    string(payload),
		Status:     model.OutboxStatusPending,
	})
}

// maskAccount keeps the last four characters.
func maskAccount(account string) string {
	if len(account) <= 4 {
		return account
	}
	return strings.Repeat("*", len(account)-4) + account[len(account)-4:]
}
