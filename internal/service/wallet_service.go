package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"commissionledger/internal/model"
	"commissionledger/internal/repository"
	"commissionledger/pkg/idgen"
	"commissionledger/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultDebitAttempts = 3

// CreditMetadata describes the ledger entry written by Credit.
type CreditMetadata struct {
	Type          string
	ReferenceType string
	ReferenceID   string
	Description   string
}

// DebitMetadata describes the ledger entry written by Debit. Attach, when set, runs
// inside the debit transaction after the entry is written; an error from it rolls
// the debit back.
type DebitMetadata struct {
	Type          string
	ReferenceType string
	ReferenceID   string
	Description   string
	Attach        func(ctx context.Context, tx *gorm.DB, trans *model.WalletTransaction) error
}

type WalletService struct {
	db            *gorm.DB
	walletRepo    *repository.WalletRepository
	transRepo     *repository.WalletTransactionRepository
	debitAttempts int
	now           func() time.Time
	log           *zap.Logger
}

func NewWalletService(db *gorm.DB) *WalletService {
	return &WalletService{
		db:            db,
		walletRepo:    repository.NewWalletRepository(db),
		transRepo:     repository.NewWalletTransactionRepository(db),
		debitAttempts: defaultDebitAttempts,
		now:           time.Now,
		log:           logger.L().Named("WalletService"),
	}
}

// Credit adds amount to userID's wallet inside the caller's transaction. It never
// opens its own transaction and never creates a wallet.
func (s *WalletService) Credit(ctx context.Context, tx *gorm.DB, userID, amount int64, meta CreditMetadata) (*model.WalletTransaction, error) {
	if tx == nil {
		return nil, ErrTxRequired
	}
	if amount <= 0 {
		return nil, validationf("credit amount must be positive, got %d", amount)
	}

	wallet, err := s.walletRepo.GetByUserIDForUpdate(ctx, tx, userID)
	if err != nil {
		return nil, fmt.Errorf("lock wallet of user %d: %w", userID, err)
	}

	if err := s.walletRepo.Credit(ctx, tx, wallet.ID, amount, wallet.Version); err != nil {
		if errors.Is(err, repository.ErrOptimisticLock) {
			return nil, fmt.Errorf("%w: wallet %d changed under lock", ErrTransient, wallet.ID)
		}
		return nil, fmt.Errorf("credit wallet %d: %w", wallet.ID, err)
	}

	now := s.now()
	trans := &model.WalletTransaction{
		TransactionNo: idgen.GenerateTransactionNo(),
		WalletID:      wallet.ID,
		UserID:        userID,
		Type:          meta.Type,
		Direction:     model.DirectionCredit,
		Amount:        amount,
		BalanceBefore: wallet.Balance,
		BalanceAfter:  wallet.Balance + amount,
		ReferenceType: meta.ReferenceType,
		ReferenceID:   meta.ReferenceID,
		Description:   meta.Description,
		Status:        model.TransactionStatusCompleted,
		CompletedAt:   &now,
	}
	if err := s.transRepo.Create(ctx, tx, trans); err != nil {
		return nil, fmt.Errorf("append credit transaction: %w", err)
	}

	if err := s.verifyBalance(ctx, tx, wallet.ID, trans.BalanceAfter); err != nil {
		return nil, err
	}
	return trans, nil
}

// Debit removes amount from userID's wallet in its own transaction. The entry stays
// pending until CompleteWithdrawal settles it.
func (s *WalletService) Debit(ctx context.Context, userID, amount int64, meta DebitMetadata) (*model.WalletTransaction, error) {
	if amount <= 0 {
		return nil, validationf("debit amount must be positive, got %d", amount)
	}

	for attempt := 1; attempt <= s.debitAttempts; attempt++ {
		trans, err := s.debitOnce(ctx, userID, amount, meta)
		if errors.Is(err, repository.ErrOptimisticLock) {
			s.log.Warn("debit version conflict, retrying",
				zap.Int64("user_id", userID), zap.Int("attempt", attempt))
			continue
		}
		return trans, err
	}
	return nil, fmt.Errorf("%w: debit of user %d kept conflicting", ErrTransient, userID)
}

func (s *WalletService) debitOnce(ctx context.Context, userID, amount int64, meta DebitMetadata) (*model.WalletTransaction, error) {
	var trans *model.WalletTransaction
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		wallet, err := s.walletRepo.GetByUserIDForUpdate(ctx, tx, userID)
		if err != nil {
			return fmt.Errorf("lock wallet of user %d: %w", userID, err)
		}
		if wallet.Balance < amount {
			return fmt.Errorf("%w: balance %d, requested %d", ErrInsufficientFunds, wallet.Balance, amount)
		}

		if err := s.walletRepo.Debit(ctx, tx, wallet.ID, amount, wallet.Version); err != nil {
			if errors.Is(err, repository.ErrBalanceNotEnough) {
				return fmt.Errorf("%w: requested %d", ErrInsufficientFunds, amount)
			}
			return err
		}

		trans = &model.WalletTransaction{
			TransactionNo: idgen.GenerateTransactionNo(),
			WalletID:      wallet.ID,
			UserID:        userID,
			Type:          meta.Type,
			Direction:     model.DirectionDebit,
			Amount:        amount,
			BalanceBefore: wallet.Balance,
			BalanceAfter:  wallet.Balance - amount,
			ReferenceType: meta.ReferenceType,
			ReferenceID:   meta.ReferenceID,
			Description:   meta.Description,
			Status:        model.TransactionStatusPending,
		}
		if err := s.transRepo.Create(ctx, tx, trans); err != nil {
			return fmt.Errorf("append debit transaction: %w", err)
		}

		if err := s.verifyBalance(ctx, tx, wallet.ID, trans.BalanceAfter); err != nil {
			return err
		}

		if meta.Attach != nil {
			if err := meta.Attach(ctx, tx, trans); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return trans, nil
}

func (s *WalletService) verifyBalance(ctx context.Context, tx *gorm.DB, walletID, expected int64) error {
	after, err := s.walletRepo.GetByID(ctx, tx, walletID)
	if err != nil {
		return fmt.Errorf("re-read wallet %d: %w", walletID, err)
	}
	if after.Balance != expected || after.Balance < 0 {
		s.log.Error("wallet balance diverged from ledger entry",
			zap.Int64("wallet_id", walletID),
			zap.Int64("stored", after.Balance),
			zap.Int64("expected", expected))
		return fmt.Errorf("%w: wallet %d stored %d, expected %d", ErrInvariantViolation, walletID, after.Balance, expected)
	}
	return nil
}

func (s *WalletService) GetWallet(ctx context.Context, userID int64) (*model.Wallet, error) {
	return s.walletRepo.GetByUserID(ctx, userID)
}

type TransactionPage struct {
	Items    []*model.WalletTransaction `json:"items"`
	Total    int64                      `json:"total"`
	Page     int                        `json:"page"`
	PageSize int                        `json:"page_size"`
}

// ListTransactions returns userID's ledger newest first.
func (s *WalletService) ListTransactions(ctx context.Context, userID int64, page, pageSize int) (*TransactionPage, error) {
	wallet, err := s.walletRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	items, total, err := s.transRepo.ListByWalletID(ctx, wallet.ID, page, pageSize)
	if err != nil {
		return nil, err
	}
	page, pageSize = repository.Page(page, pageSize)
	return &TransactionPage{Items: items, Total: total, Page: page, PageSize: pageSize}, nil
}

// Provision creates an empty wallet for userID. Repeated calls return the existing one.
func (s *WalletService) Provision(ctx context.Context, userID int64) (*model.Wallet, bool, error) {
	if userID <= 0 {
		return nil, false, validationf("user id must be positive, got %d", userID)
	}
	wallet, created, err := s.walletRepo.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	if created {
		s.log.Info("wallet provisioned", zap.Int64("user_id", userID), zap.Int64("wallet_id", wallet.ID))
	}
	return wallet, created, nil
}

// CompleteWithdrawal settles a pending withdrawal debit once the payout has gone out.
// Completing an already completed entry is a no-op.
func (s *WalletService) CompleteWithdrawal(ctx context.Context, transactionNo string) (*model.WalletTransaction, error) {
	if transactionNo == "" {
		return nil, validationf("transaction_no is required")
	}

	var trans *model.WalletTransaction
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		trans, err = s.transRepo.GetByTransactionNo(ctx, tx, transactionNo, true)
		if err != nil {
			return err
		}
		if trans.Type != model.TransactionTypeWithdrawal || trans.Direction != model.DirectionDebit {
			return validationf("transaction %s is not a withdrawal", transactionNo)
		}
		if trans.Status == model.TransactionStatusCompleted {
			return nil
		}

		now := s.now()
		if err := s.transRepo.MarkCompleted(ctx, tx, trans.ID, now); err != nil {
			if errors.Is(err, repository.ErrAlreadyCompleted) {
				return nil
			}
			return err
		}
		if err := s.walletRepo.ReleasePending(ctx, tx, trans.WalletID, trans.Amount); err != nil {
			if errors.Is(err, repository.ErrOptimisticLock) {
				return fmt.Errorf("%w: pending balance of wallet %d below %d", ErrInvariantViolation, trans.WalletID, trans.Amount)
			}
			return err
		}
		trans.Status = model.TransactionStatusCompleted
		trans.CompletedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	return trans, nil
}
