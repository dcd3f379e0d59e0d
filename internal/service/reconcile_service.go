package service

import (
	"context"
	"fmt"

	"commissionledger/internal/metrics"
	"commissionledger/internal/repository"
	"commissionledger/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// WalletMismatch is one wallet whose stored totals disagree with its ledger.
type WalletMismatch struct {
	WalletID      int64  `json:"wallet_id"`
	UserID        int64  `json:"user_id"`
	Balance       int64  `json:"balance"`
	LedgerBalance int64  `json:"ledger_balance"`
	Pending       int64  `json:"pending_balance"`
	LedgerPending int64  `json:"ledger_pending"`
	Reason        string `json:"reason"`
}

type ReconcileReport struct {
	Checked    int              `json:"checked"`
	Mismatches []WalletMismatch `json:"mismatches"`
}

// ReconcileService re-derives every wallet from its transaction log.
type ReconcileService struct {
	walletRepo *repository.WalletRepository
	transRepo  *repository.WalletTransactionRepository
	batchSize  int
	log        *zap.Logger
}

func NewReconcileService(db *gorm.DB, batchSize int) *ReconcileService {
	if batchSize <= 0 {
		batchSize = 200
	}
	return &ReconcileService{
		walletRepo: repository.NewWalletRepository(db),
		transRepo:  repository.NewWalletTransactionRepository(db),
		batchSize:  batchSize,
		log:        logger.L().Named("ReconcileService"),
	}
}

// Run checks all wallets. Mismatches are reported and logged, not repaired.
func (s *ReconcileService) Run(ctx context.Context) (*ReconcileReport, error) {
	report := &ReconcileReport{}
	var afterID int64
	for {
		wallets, err := s.walletRepo.ListAfter(ctx, afterID, s.batchSize)
		if err != nil {
			return report, fmt.Errorf("list wallets after %d: %w", afterID, err)
		}
		if len(wallets) == 0 {
			break
		}

		for _, w := range wallets {
			totals, err := s.transRepo.SumByWalletID(ctx, w.ID)
			if err != nil {
				return report, fmt.Errorf("sum ledger of wallet %d: %w", w.ID, err)
			}
			report.Checked++

			ledgerBalance := totals.Credits - totals.Debits
			mismatch := WalletMismatch{
				WalletID:      w.ID,
				UserID:        w.UserID,
				Balance:       w.Balance,
				LedgerBalance: ledgerBalance,
				Pending:       w.PendingBalance,
				LedgerPending: totals.PendingDebits,
			}
			switch {
			case w.Balance < 0:
				mismatch.Reason = "negative balance"
			case w.Balance != ledgerBalance:
				mismatch.Reason = "balance differs from ledger sum"
			case totals.HasLastBalance && w.Balance != totals.LastBalance:
				mismatch.Reason = "balance differs from last balance_after"
			case w.PendingBalance != totals.PendingDebits:
				mismatch.Reason = "pending balance differs from pending debits"
			default:
				continue
			}

			report.Mismatches = append(report.Mismatches, mismatch)
			metrics.ReconcileMismatches.Inc()
			s.log.Error("wallet reconciliation mismatch",
				zap.Error(ErrInvariantViolation),
				zap.Int64("wallet_id", w.ID),
				zap.Int64("user_id", w.UserID),
				zap.Int64("balance", w.Balance),
				zap.Int64("ledger_balance", ledgerBalance),
				zap.String("reason", mismatch.Reason))
		}
		afterID = wallets[len(wallets)-1].ID
	}

	s.log.Info("wallet reconciliation finished",
		zap.Int("checked", report.Checked),
		zap.Int("mismatches", len(report.Mismatches)))
	return report, nil
}
