package repository

import (
	"context"

	"commissionledger/internal/model"

	"gorm.io/gorm"
)

type CommissionRepository struct {
	db *gorm.DB
}

func NewCommissionRepository(db *gorm.DB) *CommissionRepository {
	return &CommissionRepository{db: db}
}

func (r *CommissionRepository) Create(ctx context.Context, tx *gorm.DB, c *model.Commission) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(c).Error
}

// LinkWalletTransaction stores the credit entry that paid out commission id.
func (r *CommissionRepository) LinkWalletTransaction(ctx context.Context, tx *gorm.DB, id, walletTransactionID int64) error {
	return tx.WithContext(ctx).
		Model(&model.Commission{}).
		Where("id = ? AND wallet_transaction_id IS NULL", id).
		Update("wallet_transaction_id", walletTransactionID).Error
}

func (r *CommissionRepository) ListByOrderID(ctx context.Context, orderID int64) ([]*model.Commission, error) {
	var commissions []*model.Commission
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("tier ASC").
		Find(&commissions).Error
	return commissions, err
}

func (r *CommissionRepository) ListByAffiliateID(ctx context.Context, affiliateID int64, page, pageSize int) ([]*model.Commission, int64, error) {
	page, pageSize = Page(page, pageSize)
	var commissions []*model.Commission
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Commission{}).Where("affiliate_id = ?", affiliateID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Order("created_at DESC").
		Order("id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&commissions).Error

	return commissions, total, err
}

type TierAggregate struct {
	Tier  int
	Total int64
	Count int64
}

// AggregateByTier sums an affiliate's commissions per tier.
func (r *CommissionRepository) AggregateByTier(ctx context.Context, affiliateID int64) ([]TierAggregate, error) {
	var rows []TierAggregate
	err := r.db.WithContext(ctx).
		Model(&model.Commission{}).
		Select("tier, COALESCE(SUM(commission_amount), 0) AS total, COUNT(*) AS count").
		Where("affiliate_id = ?", affiliateID).
		Group("tier").
		Order("tier ASC").
		Scan(&rows).Error
	return rows, err
}
