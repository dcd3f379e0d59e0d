package repository

import (
	"context"
	"errors"
	"time"

	"commissionledger/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const maxFailureLen = 512

type OrderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) GetByID(ctx context.Context, tx *gorm.DB, id int64) (*model.Order, error) {
	if tx == nil {
		tx = r.db
	}
	var order model.Order
	err := tx.WithContext(ctx).Where("id = ?", id).First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

// GetByIDForUpdate locks the order row until tx ends.
func (r *OrderRepository) GetByIDForUpdate(ctx context.Context, tx *gorm.DB, id int64) (*model.Order, error) {
	var order model.Order
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

// MarkCommissionProcessed flips commission_processed false -> true and clears any
// failure marker. It fails with ErrAlreadyProcessed when another writer got there first.
func (r *OrderRepository) MarkCommissionProcessed(ctx context.Context, tx *gorm.DB, id int64, at time.Time) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.Order{}).
		Where("id = ? AND commission_processed = ?", id, false).
		Updates(map[string]interface{}{
			"commission_processed":    true,
			"commission_processed_at": at,
			"commission_failed_at":    nil,
			"commission_failure":      "",
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrAlreadyProcessed
	}
	return nil
}

// MarkPaid records the first payment confirmation. Later confirmations leave paid_at alone.
func (r *OrderRepository) MarkPaid(ctx context.Context, tx *gorm.DB, id int64, at time.Time) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).
		Model(&model.Order{}).
		Where("id = ? AND paid_at IS NULL", id).
		Update("paid_at", at).Error
}

// MarkCommissionFailed parks an unprocessed order after its job was given up on.
// Processed orders are left alone.
func (r *OrderRepository) MarkCommissionFailed(ctx context.Context, id int64, at time.Time, reason string) error {
	if len(reason) > maxFailureLen {
		reason = reason[:maxFailureLen]
	}
	return r.db.WithContext(ctx).
		Model(&model.Order{}).
		Where("id = ? AND commission_processed = ?", id, false).
		Updates(map[string]interface{}{
			"commission_failed_at": at,
			"commission_failure":   reason,
		}).Error
}

// ClearCommissionFailure removes the failure marker inside tx so the order can be
// queued again. ErrNotFailed means there was nothing to clear.
func (r *OrderRepository) ClearCommissionFailure(ctx context.Context, tx *gorm.DB, id int64) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.Order{}).
		Where("id = ? AND commission_failed_at IS NOT NULL", id).
		Updates(map[string]interface{}{
			"commission_failed_at": nil,
			"commission_failure":   "",
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFailed
	}
	return nil
}

// ListCommissionFailed returns parked orders, oldest failure first.
func (r *OrderRepository) ListCommissionFailed(ctx context.Context, limit int) ([]*model.Order, error) {
	var orders []*model.Order
	err := r.db.WithContext(ctx).
		Where("commission_processed = ? AND commission_failed_at IS NOT NULL", false).
		Order("commission_failed_at ASC").
		Limit(limit).
		Find(&orders).Error
	return orders, err
}

// GetStaleUnprocessed returns paid orders whose commission is still outstanding after
// paidBefore. Parked orders are excluded.
func (r *OrderRepository) GetStaleUnprocessed(ctx context.Context, paidBefore time.Time, limit int) ([]*model.Order, error) {
	var orders []*model.Order
	err := r.db.WithContext(ctx).
		Where("commission_processed = ? AND commission_failed_at IS NULL AND paid_at IS NOT NULL AND paid_at < ?", false, paidBefore).
		Order("paid_at ASC").
		Limit(limit).
		Find(&orders).Error
	return orders, err
}
