package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"commissionledger/internal/model"
	"commissionledger/internal/repository"
	"commissionledger/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// PaymentService is the entry point for payment confirmations. It records the payment
// and queues the commission job; the job itself runs asynchronously.
type PaymentService struct {
	db         *gorm.DB
	orderRepo  *repository.OrderRepository
	outboxRepo *repository.OutboxRepository
	jobTopic   string
	now        func() time.Time
	log        *zap.Logger
}

func NewPaymentService(db *gorm.DB, commissionJobTopic string) *PaymentService {
	return &PaymentService{
		db:         db,
		orderRepo:  repository.NewOrderRepository(db),
		outboxRepo: repository.NewOutboxRepository(db),
		jobTopic:   commissionJobTopic,
		now:        time.Now,
		log:        logger.L().Named("PaymentService"),
	}
}

type PaymentConfirmedRequest struct {
	OrderID int64 `json:"order_id" binding:"required"`
}

type PaymentConfirmedResponse struct {
	OrderID  int64 `json:"order_id"`
	Enqueued bool  `json:"enqueued"`
}

// ConfirmPayment marks the order paid and, unless its commission is already settled or
// parked for an operator, writes a commission job to the outbox in the same transaction.
func (s *PaymentService) ConfirmPayment(ctx context.Context, orderID int64) (*PaymentConfirmedResponse, error) {
	if orderID <= 0 {
		return nil, validationf("order_id must be positive")
	}

	resp := &PaymentConfirmedResponse{OrderID: orderID}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := s.orderRepo.GetByIDForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if order.TotalAmount <= 0 {
			return validationf("order %d has non-positive amount %d", order.ID, order.TotalAmount)
		}
		if err := s.orderRepo.MarkPaid(ctx, tx, order.ID, s.now()); err != nil {
			return fmt.Errorf("mark order %d paid: %w", order.ID, err)
		}
		if order.CommissionProcessed || order.CommissionFailedAt != nil {
			return nil
		}
		if err := s.Enqueue(ctx, tx, order); err != nil {
			return err
		}
		resp.Enqueued = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("payment confirmed", zap.Int64("order_id", orderID), zap.Bool("enqueued", resp.Enqueued))
	return resp, nil
}

// Enqueue writes a commission job for order to the outbox. tx may be nil.
func (s *PaymentService) Enqueue(ctx context.Context, tx *gorm.DB, order *model.Order) error {
	payload, err := json.Marshal(model.CommissionJob{
		OrderID:      order.ID,
		OrderAmount:  order.TotalAmount,
		SourceUserID: order.SourceUserID,
		ReferrerID:   order.ReferrerID,
	})
	if err != nil {
		return fmt.Errorf("encode commission job: %w", err)
	}
	return s.outboxRepo.Create(ctx, tx, &model.OutboxMessage{
		MessageKey: strconv.FormatInt(order.ID, 10),
		Topic:      s.jobTopic,
		Payload:    string(payload),
		Status:     model.OutboxStatusPending,
	})
}

// RequeueStale re-enqueues paid orders whose commission is still outstanding after
// delay, skipping those that already have an undelivered job. Parked orders are never
// picked up; RetryFailed releases them.
func (s *PaymentService) RequeueStale(ctx context.Context, delay time.Duration, limit int) (int, error) {
	orders, err := s.orderRepo.GetStaleUnprocessed(ctx, s.now().Add(-delay), limit)
	if err != nil {
		return 0, err
	}

	requeued := 0
	for _, order := range orders {
		key := strconv.FormatInt(order.ID, 10)
		pending, err := s.outboxRepo.HasPending(ctx, s.jobTopic, key)
		if err != nil {
			return requeued, err
		}
		if pending {
			continue
		}
		if err := s.Enqueue(ctx, nil, order); err != nil {
			s.log.Error("requeue commission job failed", zap.Int64("order_id", order.ID), zap.Error(err))
			continue
		}
		requeued++
	}
	return requeued, nil
}

// RetryFailed clears the failure marker of a parked order and queues its commission
// job again.
func (s *PaymentService) RetryFailed(ctx context.Context, orderID int64) (*PaymentConfirmedResponse, error) {
	if orderID <= 0 {
		return nil, validationf("order_id must be positive")
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := s.orderRepo.GetByIDForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if order.CommissionProcessed {
			return validationf("order %d commission already processed", order.ID)
		}
		if err := s.orderRepo.ClearCommissionFailure(ctx, tx, order.ID); err != nil {
			if errors.Is(err, repository.ErrNotFailed) {
				return validationf("order %d commission is not parked", order.ID)
			}
			return err
		}
		return s.Enqueue(ctx, tx, order)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("parked commission job released", zap.Int64("order_id", orderID))
	return &PaymentConfirmedResponse{OrderID: orderID, Enqueued: true}, nil
}

// FailureReport lists commission work that needs an operator: orders whose job was
// given up on, and jobs the outbox never managed to deliver.
type FailureReport struct {
	ParkedOrders    []*model.Order         `json:"parked_orders"`
	UndeliveredJobs []*model.OutboxMessage `json:"undelivered_jobs"`
}

func (s *PaymentService) Failures(ctx context.Context, limit int) (*FailureReport, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	orders, err := s.orderRepo.ListCommissionFailed(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list parked orders: %w", err)
	}
	undelivered, err := s.outboxRepo.ListFailed(ctx, s.jobTopic, limit)
	if err != nil {
		return nil, fmt.Errorf("list undelivered jobs: %w", err)
	}
	return &FailureReport{ParkedOrders: orders, UndeliveredJobs: undelivered}, nil
}
