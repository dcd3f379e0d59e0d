package job

import (
	"context"
	"time"

	"commissionledger/internal/service"
	"commissionledger/pkg/logger"

	"go.uber.org/zap"
)

// CommissionSweepJob re-enqueues paid orders whose commission job was lost between
// the payment confirmation and the consumer.
type CommissionSweepJob struct {
	payment   *service.PaymentService
	delay     time.Duration
	stopCh    chan struct{}
	interval  time.Duration
	batchSize int
	log       *zap.Logger
}

func NewCommissionSweepJob(payment *service.PaymentService, delay time.Duration) *CommissionSweepJob {
	return &CommissionSweepJob{
		payment:   payment,
		delay:     delay,
		stopCh:    make(chan struct{}),
		interval:  time.Minute,
		batchSize: 100,
		log:       logger.L().Named("CommissionSweepJob"),
	}
}

func (j *CommissionSweepJob) Start(ctx context.Context) {
	j.log.Info("commission sweep started", zap.Duration("delay", j.delay))

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.log.Info("context cancelled, commission sweep exiting")
			return
		case <-j.stopCh:
			j.log.Info("commission sweep stopped")
			return
		case <-ticker.C:
			j.sweep(ctx)
		}
	}
}

func (j *CommissionSweepJob) Stop() {
	close(j.stopCh)
}

func (j *CommissionSweepJob) sweep(ctx context.Context) {
	n, err := j.payment.RequeueStale(ctx, j.delay, j.batchSize)
	if err != nil {
		j.log.Error("sweep stale orders failed", zap.Error(err))
		return
	}
	if n > 0 {
		j.log.Warn("re-enqueued stale commission jobs", zap.Int("count", n))
	}
}
