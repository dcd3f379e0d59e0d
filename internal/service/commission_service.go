package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
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

type JobState string

const (
	StateReceived        JobState = "received"
	StateValidating      JobState = "validating"
	StateTier1Processing JobState = "tier1_processing"
	StateTier2Processing JobState = "tier2_processing"
	StateFinalizing      JobState = "finalizing"
	StateDone            JobState = "done"
	StateFailed          JobState = "failed"
)

// ProcessResult reports how far a job got. Commissions and Skipped describe the
// committed run; both are empty for duplicates and failures.
type ProcessResult struct {
	OrderID     int64               `json:"order_id"`
	State       JobState            `json:"state"`
	Duplicate   bool                `json:"duplicate"`
	Commissions []*model.Commission `json:"commissions"`
	Skipped     []SkippedTier       `json:"skipped,omitempty"`
}

type CommissionService struct {
	db             *gorm.DB
	calc           *Calculator
	referral       *ReferralLookup
	guard          *IdempotencyGuard
	wallets        *WalletService
	walletRepo     *repository.WalletRepository
	commissionRepo *repository.CommissionRepository
	locker         lock.Locker
	jobTimeout     time.Duration
	now            func() time.Time
	log            *zap.Logger
}

// NewCommissionService wires the processing job. locker may be nil, in which case
// only the database row lock serialises concurrent deliveries of one order.
func NewCommissionService(db *gorm.DB, calc *Calculator, wallets *WalletService, locker lock.Locker, cfg *config.BusinessConfig) *CommissionService {
	return &CommissionService{
		db:             db,
		calc:           calc,
		referral:       NewReferralLookup(db),
		guard:          NewIdempotencyGuard(db),
		wallets:        wallets,
		walletRepo:     repository.NewWalletRepository(db),
		commissionRepo: repository.NewCommissionRepository(db),
		locker:         locker,
		jobTimeout:     cfg.JobTimeout(),
		now:            time.Now,
		log:            logger.L().Named("CommissionService"),
	}
}

// Process credits the order's referral chain exactly once. Errors are returned
// unclassified; use IsRetryable to decide between retry and dead letter.
func (s *CommissionService) Process(ctx context.Context, job model.CommissionJob) (*ProcessResult, error) {
	start := time.Now()
	defer func() { metrics.CommissionJobDuration.Observe(time.Since(start).Seconds()) }()

	result := &ProcessResult{OrderID: job.OrderID, State: StateReceived}
	if s.jobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.jobTimeout)
		defer cancel()
	}

	err := s.process(ctx, job, result)
	if err != nil {
		result.State = StateFailed
		result.Commissions = nil
		result.Skipped = nil
		metrics.CommissionJobsTotal.WithLabelValues("failed").Inc()
		s.log.Error("commission job failed",
			zap.Int64("order_id", job.OrderID),
			zap.Bool("retryable", IsRetryable(err)),
			zap.Error(err))
		return result, err
	}

	result.State = StateDone
	if result.Duplicate {
		metrics.CommissionJobsTotal.WithLabelValues("duplicate").Inc()
		s.log.Info("commission already processed", zap.Int64("order_id", job.OrderID))
		return result, nil
	}

	metrics.CommissionJobsTotal.WithLabelValues("done").Inc()
	for _, sk := range result.Skipped {
		metrics.CommissionSkippedTotal.WithLabelValues(sk.Reason).Inc()
		s.log.Error("commission tier skipped",
			zap.Int64("order_id", job.OrderID),
			zap.Int("tier", sk.Tier),
			zap.Int64("affiliate_id", sk.AffiliateID),
			zap.String("reason", sk.Reason))
	}
	for _, c := range result.Commissions {
		metrics.CommissionCreditedAmount.WithLabelValues(strconv.Itoa(c.Tier)).Add(float64(c.CommissionAmount))
		s.log.Info("commission credited",
			zap.Int64("order_id", c.OrderID),
			zap.Int("tier", c.Tier),
			zap.Int64("affiliate_id", c.AffiliateID),
			zap.Int64("amount", c.CommissionAmount))
	}
	return result, nil
}

func (s *CommissionService) process(ctx context.Context, job model.CommissionJob, result *ProcessResult) error {
	result.State = StateValidating
	if job.OrderID <= 0 || job.SourceUserID <= 0 {
		return validationf("job needs order_id and source_user_id")
	}
	if job.OrderAmount <= 0 {
		return validationf("order amount must be positive, got %d", job.OrderAmount)
	}

	processed, err := s.guard.IsProcessed(ctx, job.OrderID)
	if err != nil {
		return fmt.Errorf("check order %d: %w", job.OrderID, err)
	}
	if processed {
		result.Duplicate = true
		return nil
	}

	if s.locker != nil {
		release, err := s.locker.Obtain(ctx, lock.CommissionKey(job.OrderID))
		if err != nil {
			return fmt.Errorf("%w: %v", ErrTransient, err)
		}
		defer release()
	}

	var (
		written []*model.Commission
		skipped []SkippedTier
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		written, skipped = nil, nil

		order, err := s.guard.Acquire(ctx, tx, job.OrderID)
		if err != nil {
			return fmt.Errorf("lock order %d: %w", job.OrderID, err)
		}
		if order.CommissionProcessed {
			result.Duplicate = true
			return nil
		}
		if order.TotalAmount != job.OrderAmount {
			return validationf("order %d amount %d does not match job amount %d", order.ID, order.TotalAmount, job.OrderAmount)
		}
		if order.SourceUserID != job.SourceUserID {
			return validationf("order %d belongs to user %d, job says %d", order.ID, order.SourceUserID, job.SourceUserID)
		}
		if !sameReferrer(order.ReferrerID, job.ReferrerID) {
			return validationf("order %d referrer %s does not match job referrer %s",
				order.ID, formatReferrer(order.ReferrerID), formatReferrer(job.ReferrerID))
		}

		if order.ReferrerID != nil {
			chain, err := s.referral.ResolveChain(ctx, tx, order.SourceUserID, *order.ReferrerID)
			if err != nil {
				return fmt.Errorf("resolve referral chain: %w", err)
			}
			skipped = append(skipped, chain.Skipped...)

			result.State = StateTier1Processing
			if chain.Tier1 != nil {
				c, reason, err := s.creditTier(ctx, tx, order, model.Tier1, chain.Tier1.ID)
				if err != nil {
					return err
				}
				if c != nil {
					written = append(written, c)
				} else {
					skipped = append(skipped, SkippedTier{Tier: model.Tier1, AffiliateID: chain.Tier1.ID, Reason: reason})
				}
			}

			result.State = StateTier2Processing
			if chain.Tier2 != nil {
				c, reason, err := s.creditTier(ctx, tx, order, model.Tier2, chain.Tier2.ID)
				if err != nil {
					return err
				}
				if c != nil {
					written = append(written, c)
				} else {
					skipped = append(skipped, SkippedTier{Tier: model.Tier2, AffiliateID: chain.Tier2.ID, Reason: reason})
				}
			}
		}

		result.State = StateFinalizing
		return s.guard.MarkProcessed(ctx, tx, order.ID)
	})
	if errors.Is(err, repository.ErrAlreadyProcessed) {
		result.Duplicate = true
		return nil
	}
	if err != nil {
		return err
	}
	if !result.Duplicate {
		result.Commissions = written
		result.Skipped = skipped
	}
	return nil
}

func sameReferrer(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func formatReferrer(id *int64) string {
	if id == nil {
		return "none"
	}
	return strconv.FormatInt(*id, 10)
}

// MarkFailed parks the order after its job was given up on, so the stale sweep
// leaves it for an operator.
func (s *CommissionService) MarkFailed(ctx context.Context, orderID int64, cause error) error {
	if orderID <= 0 {
		return nil
	}
	if err := s.guard.Park(ctx, orderID, cause.Error()); err != nil {
		return fmt.Errorf("park order %d: %w", orderID, err)
	}
	s.log.Warn("commission job parked", zap.Int64("order_id", orderID), zap.Error(cause))
	return nil
}

// creditTier writes one tier's commission and credit. A nil commission comes with
// the reason the tier was skipped.
func (s *CommissionService) creditTier(ctx context.Context, tx *gorm.DB, order *model.Order, tier int, affiliateID int64) (*model.Commission, string, error) {
	rate := s.calc.Rate(tier)
	amount, err := Commission(order.TotalAmount, rate)
	if err != nil {
		return nil, "", err
	}
	if amount == 0 {
		return nil, SkipZeroAmount, nil
	}

	if _, err := s.walletRepo.GetByUserIDForUpdate(ctx, tx, affiliateID); err != nil {
		if errors.Is(err, repository.ErrWalletNotFound) {
			return nil, SkipWalletMissing, nil
		}
		return nil, "", fmt.Errorf("lock wallet of affiliate %d: %w", affiliateID, err)
	}

	commission := &model.Commission{
		CommissionNo:      idgen.GenerateCommissionNo(),
		OrderID:           order.ID,
		Tier:              tier,
		AffiliateID:       affiliateID,
		SourceUserID:      order.SourceUserID,
		OrderAmount:       order.TotalAmount,
		CommissionRateBps: RateBps(rate),
		CommissionAmount:  amount,
		Status:            model.CommissionStatusApproved,
		ApprovedAt:        s.now(),
	}
	if err := s.commissionRepo.Create(ctx, tx, commission); err != nil {
		return nil, "", fmt.Errorf("insert tier %d commission: %w", tier, err)
	}

	trans, err := s.wallets.Credit(ctx, tx, affiliateID, amount, CreditMetadata{
		Type:          model.TransactionTypeCommission,
		ReferenceType: model.ReferenceTypeCommission,
		ReferenceID:   strconv.FormatInt(commission.ID, 10),
		Description:   fmt.Sprintf("Tier %d commission from order %s", tier, order.OrderNo),
	})
	if err != nil {
		return nil, "", fmt.Errorf("credit tier %d affiliate %d: %w", tier, affiliateID, err)
	}

	if err := s.commissionRepo.LinkWalletTransaction(ctx, tx, commission.ID, trans.ID); err != nil {
		return nil, "", fmt.Errorf("link commission %d: %w", commission.ID, err)
	}
	commission.WalletTransactionID = &trans.ID
	return commission, "", nil
}

type TierStats struct {
	Total int64 `json:"total"`
	Count int64 `json:"count"`
}

type CommissionStats struct {
	AffiliateID int64     `json:"affiliate_id"`
	Tier1       TierStats `json:"tier1"`
	Tier2       TierStats `json:"tier2"`
	Total       int64     `json:"total"`
}

// Stats aggregates an affiliate's earned commissions per tier.
func (s *CommissionService) Stats(ctx context.Context, affiliateID int64) (*CommissionStats, error) {
	rows, err := s.commissionRepo.AggregateByTier(ctx, affiliateID)
	if err != nil {
		return nil, err
	}
	stats := &CommissionStats{AffiliateID: affiliateID}
	for _, row := range rows {
		switch row.Tier {
		case model.Tier1:
			stats.Tier1 = TierStats{Total: row.Total, Count: row.Count}
		case model.Tier2:
			stats.Tier2 = TierStats{Total: row.Total, Count: row.Count}
		}
		stats.Total += row.Total
	}
	return stats, nil
}

type CommissionPage struct {
	Items    []*model.Commission `json:"items"`
	Total    int64               `json:"total"`
	Page     int                 `json:"page"`
	PageSize int                 `json:"page_size"`
}

func (s *CommissionService) List(ctx context.Context, affiliateID int64, page, pageSize int) (*CommissionPage, error) {
	items, total, err := s.commissionRepo.ListByAffiliateID(ctx, affiliateID, page, pageSize)
	if err != nil {
		return nil, err
	}
	page, pageSize = repository.Page(page, pageSize)
	return &CommissionPage{Items: items, Total: total, Page: page, PageSize: pageSize}, nil
}

// ListByOrder returns the commissions paid for one order, tier 1 first.
func (s *CommissionService) ListByOrder(ctx context.Context, orderID int64) ([]*model.Commission, error) {
	return s.commissionRepo.ListByOrderID(ctx, orderID)
}
