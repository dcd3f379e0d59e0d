package repository

import (
	"context"
	"errors"

	"commissionledger/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type WalletRepository struct {
	db *gorm.DB
}

func NewWalletRepository(db *gorm.DB) *WalletRepository {
	return &WalletRepository{db: db}
}

func (r *WalletRepository) GetByUserID(ctx context.Context, userID int64) (*model.Wallet, error) {
	var wallet model.Wallet
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&wallet).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWalletNotFound
		}
		return nil, err
	}
	return &wallet, nil
}

// GetByUserIDForUpdate reads the wallet inside tx holding a row lock until commit.
// sqlite ignores the locking clause; writers are serialised there instead.
func (r *WalletRepository) GetByUserIDForUpdate(ctx context.Context, tx *gorm.DB, userID int64) (*model.Wallet, error) {
	var wallet model.Wallet
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		First(&wallet).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWalletNotFound
		}
		return nil, err
	}
	return &wallet, nil
}

// GetByID reads inside tx without locking, used to verify a write.
func (r *WalletRepository) GetByID(ctx context.Context, tx *gorm.DB, id int64) (*model.Wallet, error) {
	if tx == nil {
		tx = r.db
	}
	var wallet model.Wallet
	err := tx.WithContext(ctx).Where("id = ?", id).First(&wallet).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWalletNotFound
		}
		return nil, err
	}
	return &wallet, nil
}

// Credit adds amount to balance and total_earned if the row still carries version.
func (r *WalletRepository) Credit(ctx context.Context, tx *gorm.DB, walletID, amount int64, version int) error {
	result := tx.WithContext(ctx).
		Model(&model.Wallet{}).
		Where("id = ? AND version = ?", walletID, version).
		Updates(map[string]interface{}{
			"balance":      gorm.Expr("balance + ?", amount),
			"total_earned": gorm.Expr("total_earned + ?", amount),
			"version":      gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrOptimisticLock
	}
	return nil
}

// Debit moves amount out of balance into the pending and withdrawn totals. The
// balance guard makes the sufficiency check and the decrement a single statement.
func (r *WalletRepository) Debit(ctx context.Context, tx *gorm.DB, walletID, amount int64, version int) error {
	result := tx.WithContext(ctx).
		Model(&model.Wallet{}).
		Where("id = ? AND version = ? AND balance >= ?", walletID, version, amount).
		Updates(map[string]interface{}{
			"balance":         gorm.Expr("balance - ?", amount),
			"pending_balance": gorm.Expr("pending_balance + ?", amount),
			"total_withdrawn": gorm.Expr("total_withdrawn + ?", amount),
			"version":         gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		var current model.Wallet
		if err := tx.WithContext(ctx).Where("id = ?", walletID).First(&current).Error; err != nil {
			return err
		}
		if current.Balance < amount {
			return ErrBalanceNotEnough
		}
		return ErrOptimisticLock
	}
	return nil
}

// ReleasePending settles amount out of pending_balance.
func (r *WalletRepository) ReleasePending(ctx context.Context, tx *gorm.DB, walletID, amount int64) error {
	result := tx.WithContext(ctx).
		Model(&model.Wallet{}).
		Where("id = ? AND pending_balance >= ?", walletID, amount).
		Updates(map[string]interface{}{
			"pending_balance": gorm.Expr("pending_balance - ?", amount),
			"version":         gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrOptimisticLock
	}
	return nil
}

// GetOrCreate inserts a zero-balance wallet for userID unless one exists, then returns it.
func (r *WalletRepository) GetOrCreate(ctx context.Context, userID int64) (*model.Wallet, bool, error) {
	wallet, err := r.GetByUserID(ctx, userID)
	if err == nil {
		return wallet, false, nil
	}
	if !errors.Is(err, ErrWalletNotFound) {
		return nil, false, err
	}

	newWallet := &model.Wallet{UserID: userID}
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoNothing: true,
		}).
		Create(newWallet)
	if result.Error != nil {
		return nil, false, result.Error
	}

	wallet, err = r.GetByUserID(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	return wallet, result.RowsAffected == 1, nil
}

// ListAfter pages through wallets by id for batch jobs.
func (r *WalletRepository) ListAfter(ctx context.Context, afterID int64, limit int) ([]*model.Wallet, error) {
	var wallets []*model.Wallet
	err := r.db.WithContext(ctx).
		Where("id > ?", afterID).
		Order("id ASC").
		Limit(limit).
		Find(&wallets).Error
	return wallets, err
}
