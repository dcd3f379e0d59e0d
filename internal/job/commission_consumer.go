package job

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"commissionledger/internal/infrastructure/mq"
	"commissionledger/internal/metrics"
	"commissionledger/internal/model"
	"commissionledger/internal/service"
	"commissionledger/pkg/logger"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

// CommissionProcessor is the part of the commission service the consumer drives.
type CommissionProcessor interface {
	Process(ctx context.Context, job model.CommissionJob) (*service.ProcessResult, error)
	MarkFailed(ctx context.Context, orderID int64, cause error) error
}

// DeadLetter is published when a commission job cannot be completed.
type DeadLetter struct {
	Topic     string `json:"topic"`
	Partition int32  `json:"partition"`
	Offset    int64  `json:"offset"`
	Key       string `json:"key"`
	Payload   string `json:"payload"`
	Error     string `json:"error"`
	Attempts  int    `json:"attempts"`
	FailedAt  string `json:"failed_at"`
}

// CommissionConsumer implements sarama.ConsumerGroupHandler. Each message is retried
// in process with exponential backoff, then its order is parked and the message
// dead-lettered. The offset is marked only after one of those outcomes, so a crash or
// shutdown mid-job redelivers it.
type CommissionConsumer struct {
	processor       CommissionProcessor
	producer        sarama.SyncProducer
	deadLetterTopic string
	maxAttempts     int
	backoff         time.Duration
	sleep           func(ctx context.Context, d time.Duration) error
	log             *zap.Logger
}

func NewCommissionConsumer(processor CommissionProcessor, producer sarama.SyncProducer, deadLetterTopic string, maxAttempts int, backoff time.Duration) *CommissionConsumer {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &CommissionConsumer{
		processor:       processor,
		producer:        producer,
		deadLetterTopic: deadLetterTopic,
		maxAttempts:     maxAttempts,
		backoff:         backoff,
		sleep:           sleepCtx,
		log:             logger.L().Named("CommissionConsumer"),
	}
}

func (c *CommissionConsumer) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (c *CommissionConsumer) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (c *CommissionConsumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if err := c.Handle(session.Context(), msg); err != nil {
				// leave the offset unmarked; the message is redelivered after rebalance
				return err
			}
			session.MarkMessage(msg, "")
		case <-session.Context().Done():
			return nil
		}
	}
}

// Handle runs one message to a terminal outcome. It returns an error when the message
// must be redelivered: the consumer is shutting down, or the failure could not be
// recorded.
func (c *CommissionConsumer) Handle(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var job model.CommissionJob
	if err := json.Unmarshal(msg.Value, &job); err != nil {
		return c.deadLetter(msg, fmt.Errorf("decode commission job: %w", err), 0)
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		_, err := c.processor.Process(ctx, job)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return fmt.Errorf("commission job for order %d interrupted: %w", job.OrderID, err)
		}
		lastErr = err
		if !service.IsRetryable(err) {
			return c.giveUp(ctx, msg, job, err, attempt)
		}
		if attempt == c.maxAttempts {
			break
		}

		wait := c.backoff << (attempt - 1)
		c.log.Warn("commission job failed, retrying",
			zap.Int64("order_id", job.OrderID),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait),
			zap.Error(err))
		if err := c.sleep(ctx, wait); err != nil {
			return err
		}
	}
	return c.giveUp(ctx, msg, job, lastErr, c.maxAttempts)
}

// giveUp parks the order before publishing the dead letter, so a redelivery after a
// failed publish still finds it parked.
func (c *CommissionConsumer) giveUp(ctx context.Context, msg *sarama.ConsumerMessage, job model.CommissionJob, cause error, attempts int) error {
	if err := c.processor.MarkFailed(ctx, job.OrderID, cause); err != nil {
		c.log.Error("park order failed", zap.Int64("order_id", job.OrderID), zap.Error(err))
		return err
	}
	return c.deadLetter(msg, cause, attempts)
}

func (c *CommissionConsumer) deadLetter(msg *sarama.ConsumerMessage, cause error, attempts int) error {
	payload, err := json.Marshal(DeadLetter{
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Key:       string(msg.Key),
		Payload:   string(msg.Value),
		Error:     cause.Error(),
		Attempts:  attempts,
		FailedAt:  time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("encode dead letter: %w", err)
	}

	if err := mq.SendMessage(c.producer, c.deadLetterTopic, string(msg.Key), string(payload)); err != nil {
		c.log.Error("publish dead letter failed", zap.Int64("offset", msg.Offset), zap.Error(err))
		return fmt.Errorf("publish dead letter: %w", err)
	}

	metrics.CommissionJobsTotal.WithLabelValues("dead_letter").Inc()
	c.log.Error("commission job dead-lettered",
		zap.String("key", string(msg.Key)),
		zap.Int64("offset", msg.Offset),
		zap.Int("attempts", attempts),
		zap.Error(cause))
	return nil
}

// Run consumes topic until ctx is cancelled, rejoining after every rebalance.
func (c *CommissionConsumer) Run(ctx context.Context, group sarama.ConsumerGroup, topic string) {
	go func() {
		for err := range group.Errors() {
			c.log.Error("consumer group error", zap.Error(err))
		}
	}()

	for {
		if err := group.Consume(ctx, []string{topic}, c); err != nil {
			c.log.Error("consume session ended with error", zap.Error(err))
			if sleepCtx(ctx, time.Second) != nil {
				return
			}
		}
		if ctx.Err() != nil {
			c.log.Info("commission consumer exiting")
			return
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
