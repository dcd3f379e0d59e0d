package service

import (
	"context"
	"time"

	"commissionledger/internal/model"
	"commissionledger/internal/repository"

	"gorm.io/gorm"
)

// IdempotencyGuard makes commission processing at-most-once per order on top of an
// at-least-once queue. The commission_processed flag is the only source of truth.
type IdempotencyGuard struct {
	orderRepo *repository.OrderRepository
	now       func() time.Time
}

func NewIdempotencyGuard(db *gorm.DB) *IdempotencyGuard {
	return &IdempotencyGuard{
		orderRepo: repository.NewOrderRepository(db),
		now:       time.Now,
	}
}

// IsProcessed is the unlocked fast path, checked before any transaction is opened.
func (g *IdempotencyGuard) IsProcessed(ctx context.Context, orderID int64) (bool, error) {
	order, err := g.orderRepo.GetByID(ctx, nil, orderID)
	if err != nil {
		return false, err
	}
	return order.CommissionProcessed, nil
}

// Acquire locks the order row inside tx. The caller must re-check CommissionProcessed
// on the returned order.
func (g *IdempotencyGuard) Acquire(ctx context.Context, tx *gorm.DB, orderID int64) (*model.Order, error) {
	return g.orderRepo.GetByIDForUpdate(ctx, tx, orderID)
}

// MarkProcessed sets the flag inside tx. repository.ErrAlreadyProcessed means a
// concurrent job won and tx must be rolled back.
func (g *IdempotencyGuard) MarkProcessed(ctx context.Context, tx *gorm.DB, orderID int64) error {
	return g.orderRepo.MarkCommissionProcessed(ctx, tx, orderID, g.now())
}

// Park marks the order's commission as given up. It does not touch processed orders.
func (g *IdempotencyGuard) Park(ctx context.Context, orderID int64, reason string) error {
	return g.orderRepo.MarkCommissionFailed(ctx, orderID, g.now(), reason)
}
