package repository

import (
	"context"
	"errors"
	"time"

	"commissionledger/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// WalletTransactionRepository is the append-only transaction log.
type WalletTransactionRepository struct {
	db *gorm.DB
}

func NewWalletTransactionRepository(db *gorm.DB) *WalletTransactionRepository {
	return &WalletTransactionRepository{db: db}
}

func (r *WalletTransactionRepository) Create(ctx context.Context, tx *gorm.DB, trans *model.WalletTransaction) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(trans).Error
}

func (r *WalletTransactionRepository) GetByTransactionNo(ctx context.Context, tx *gorm.DB, transactionNo string, forUpdate bool) (*model.WalletTransaction, error) {
	if tx == nil {
		tx = r.db
	}
	q := tx.WithContext(ctx)
	if forUpdate {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var trans model.WalletTransaction
	err := q.Where("transaction_no = ?", transactionNo).First(&trans).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return &trans, nil
}

// MarkCompleted advances a pending entry to completed. Only the status columns change.
func (r *WalletTransactionRepository) MarkCompleted(ctx context.Context, tx *gorm.DB, id int64, at time.Time) error {
	result := tx.WithContext(ctx).
		Model(&model.WalletTransaction{}).
		Where("id = ? AND status = ?", id, model.TransactionStatusPending).
		Updates(map[string]interface{}{
			"status":       model.TransactionStatusCompleted,
			"completed_at": at,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrAlreadyCompleted
	}
	return nil
}

// ListByWalletID returns one page, newest first.
func (r *WalletTransactionRepository) ListByWalletID(ctx context.Context, walletID int64, page, pageSize int) ([]*model.WalletTransaction, int64, error) {
	page, pageSize = Page(page, pageSize)
	var transactions []*model.WalletTransaction
	var total int64

	query := r.db.WithContext(ctx).Model(&model.WalletTransaction{}).Where("wallet_id = ?", walletID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Order("created_at DESC").
		Order("id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&transactions).Error

	return transactions, total, err
}

func (r *WalletTransactionRepository) ListByReference(ctx context.Context, referenceType, referenceID string) ([]*model.WalletTransaction, error) {
	var transactions []*model.WalletTransaction
	err := r.db.WithContext(ctx).
		Where("reference_type = ? AND reference_id = ?", referenceType, referenceID).
		Order("id ASC").
		Find(&transactions).Error
	return transactions, err
}

// LedgerTotals aggregates a wallet's log for reconciliation.
type LedgerTotals struct {
	Credits        int64
	Debits         int64
	PendingDebits  int64
	EntryCount     int64
	LastBalance    int64
	HasLastBalance bool
}

func (r *WalletTransactionRepository) SumByWalletID(ctx context.Context, walletID int64) (*LedgerTotals, error) {
	var row struct {
		Credits       int64
		Debits        int64
		PendingDebits int64
		EntryCount    int64
	}
	err := r.db.WithContext(ctx).
		Model(&model.WalletTransaction{}).
		Select(
			"COALESCE(SUM(CASE WHEN direction = ? THEN amount ELSE 0 END), 0) AS credits, "+
				"COALESCE(SUM(CASE WHEN direction = ? THEN amount ELSE 0 END), 0) AS debits, "+
				"COALESCE(SUM(CASE WHEN direction = ? AND status = ? THEN amount ELSE 0 END), 0) AS pending_debits, "+
				"COUNT(*) AS entry_count",
			model.DirectionCredit, model.DirectionDebit, model.DirectionDebit, model.TransactionStatusPending,
		).
		Where("wallet_id = ?", walletID).
		Scan(&row).Error
	if err != nil {
		return nil, err
	}

	totals := &LedgerTotals{
		Credits:       row.Credits,
		Debits:        row.Debits,
		PendingDebits: row.PendingDebits,
		EntryCount:    row.EntryCount,
	}

	var last model.WalletTransaction
	err = r.db.WithContext(ctx).Where("wallet_id = ?", walletID).Order("id DESC").First(&last).Error
	switch {
	case err == nil:
		totals.LastBalance = last.BalanceAfter
		totals.HasLastBalance = true
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, err
	}
	return totals, nil
}
