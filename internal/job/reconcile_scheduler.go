package job

import (
	"context"
	"fmt"

	"commissionledger/internal/service"
	"commissionledger/pkg/logger"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// ReconcileScheduler runs wallet reconciliation on a cron schedule with seconds.
type ReconcileScheduler struct {
	cron      *cron.Cron
	reconcile *service.ReconcileService
	log       *zap.Logger
}

func NewReconcileScheduler(reconcile *service.ReconcileService) *ReconcileScheduler {
	return &ReconcileScheduler{
		cron:      cron.New(cron.WithSeconds()),
		reconcile: reconcile,
		log:       logger.L().Named("ReconcileScheduler"),
	}
}

func (s *ReconcileScheduler) Start(ctx context.Context, schedule string) error {
	_, err := s.cron.AddFunc(schedule, func() {
		s.RunOnce(ctx)
	})
	if err != nil {
		return fmt.Errorf("schedule reconciliation %q: %w", schedule, err)
	}
	s.cron.Start()
	s.log.Info("reconciliation scheduled", zap.String("schedule", schedule))
	return nil
}

func (s *ReconcileScheduler) RunOnce(ctx context.Context) {
	report, err := s.reconcile.Run(ctx)
	if err != nil {
		s.log.Error("reconciliation failed", zap.Error(err))
		return
	}
	if len(report.Mismatches) > 0 {
		s.log.Error("reconciliation found mismatched wallets", zap.Int("count", len(report.Mismatches)))
	}
}

// Stop waits for a running reconciliation to finish.
func (s *ReconcileScheduler) Stop() {
	<-s.cron.Stop().Done()
}
