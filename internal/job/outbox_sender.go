package job

import (
	"context"
	"time"

	"commissionledger/internal/infrastructure/mq"
	"commissionledger/internal/metrics"
	"commissionledger/internal/model"
	"commissionledger/internal/repository"
	"commissionledger/pkg/logger"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// OutboxSender relays PENDING outbox rows to Kafka. A row is SENT once the broker
// acknowledges it and FAILED after maxRetry unsuccessful attempts.
type OutboxSender struct {
	outboxRepo *repository.OutboxRepository
	producer   sarama.SyncProducer
	maxRetry   int
	stopCh     chan struct{}
	interval   time.Duration
	batchSize  int
	log        *zap.Logger
}

func NewOutboxSender(db *gorm.DB, producer sarama.SyncProducer, maxRetry int) *OutboxSender {
	return &OutboxSender{
		outboxRepo: repository.NewOutboxRepository(db),
		producer:   producer,
		maxRetry:   maxRetry,
		stopCh:     make(chan struct{}),
		interval:   100 * time.Millisecond,
		batchSize:  100,
		log:        logger.L().Named("OutboxSender"),
	}
}

func (s *OutboxSender) Start(ctx context.Context) {
	s.log.Info("outbox sender started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("context cancelled, outbox sender exiting")
			return
		case <-s.stopCh:
			s.log.Info("outbox sender stopped")
			return
		case <-ticker.C:
			s.processPendingMessages(ctx)
		}
	}
}

func (s *OutboxSender) Stop() {
	close(s.stopCh)
}

func (s *OutboxSender) processPendingMessages(ctx context.Context) {
	messages, err := s.outboxRepo.ListPending(ctx, s.batchSize)
	if err != nil {
		s.log.Error("query pending messages failed", zap.Error(err))
		return
	}

	for _, msg := range messages {
		s.sendMessage(ctx, msg)
	}
}

func (s *OutboxSender) sendMessage(ctx context.Context, msg *model.OutboxMessage) {
	err := mq.SendMessage(s.producer, msg.Topic, msg.MessageKey, msg.Payload)

	if err == nil {
		metrics.OutboxSendsTotal.WithLabelValues(msg.Topic, "sent").Inc()
		if updateErr := s.outboxRepo.MarkSent(ctx, msg.ID); updateErr != nil {
			s.log.Error("mark message sent failed", zap.Int64("id", msg.ID), zap.Error(updateErr))
		} else {
			s.log.Debug("message sent", zap.Int64("id", msg.ID), zap.String("topic", msg.Topic), zap.String("key", msg.MessageKey))
		}
		return
	}

	metrics.OutboxSendsTotal.WithLabelValues(msg.Topic, "error").Inc()
	s.log.Warn("message send failed", zap.Int64("id", msg.ID), zap.Error(err))

	giveUp := msg.RetryCount+1 >= s.maxRetry
	if err := s.outboxRepo.RecordSendFailure(ctx, msg.ID, giveUp); err != nil {
		s.log.Error("record send failure failed", zap.Int64("id", msg.ID), zap.Error(err))
		return
	}
	if giveUp {
		s.log.Error("message exceeded max retries, marked failed", zap.Int64("id", msg.ID), zap.String("topic", msg.Topic))
	}
}
