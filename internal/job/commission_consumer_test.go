package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"commissionledger/internal/model"
	"commissionledger/internal/service"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProcessor struct {
	errs    []error
	calls   int
	jobs    []model.CommissionJob
	parked  []int64
	parkErr error
}

func (f *fakeProcessor) MarkFailed(ctx context.Context, orderID int64, cause error) error {
	if f.parkErr != nil {
		return f.parkErr
	}
	f.parked = append(f.parked, orderID)
	return nil
}

func (f *fakeProcessor) Process(ctx context.Context, job model.CommissionJob) (*service.ProcessResult, error) {
	f.calls++
	f.jobs = append(f.jobs, job)
	if len(f.errs) >= f.calls {
		if err := f.errs[f.calls-1]; err != nil {
			return &service.ProcessResult{OrderID: job.OrderID, State: service.StateFailed}, err
		}
	}
	return &service.ProcessResult{OrderID: job.OrderID, State: service.StateDone}, nil
}

func newConsumer(t *testing.T, p CommissionProcessor, producer sarama.SyncProducer) (*CommissionConsumer, *[]time.Duration) {
	t.Helper()
	c := NewCommissionConsumer(p, producer, "commission_job_dead_letter", 3, 10*time.Millisecond)
	waits := &[]time.Duration{}
	c.sleep = func(ctx context.Context, d time.Duration) error {
		*waits = append(*waits, d)
		return nil
	}
	return c, waits
}

func jobMessage(t *testing.T, job model.CommissionJob) *sarama.ConsumerMessage {
	t.Helper()
	value, err := json.Marshal(job)
	require.NoError(t, err)
	return &sarama.ConsumerMessage{
		Topic:  "commission_job",
		Key:    []byte(fmt.Sprint(job.OrderID)),
		Value:  value,
		Offset: 17,
	}
}

func deadLetterChecker(t *testing.T, wantAttempts int, wantErr string) func([]byte) error {
	return func(val []byte) error {
		var dl DeadLetter
		if err := json.Unmarshal(val, &dl); err != nil {
			return err
		}
		if dl.Attempts != wantAttempts {
			return fmt.Errorf("attempts = %d, want %d", dl.Attempts, wantAttempts)
		}
		if !assert.Contains(t, dl.Error, wantErr) {
			return errors.New("dead letter error mismatch")
		}
		return nil
	}
}

func TestCommissionConsumerHandle(t *testing.T) {
	ctx := context.Background()
	job := model.CommissionJob{OrderID: 9, OrderAmount: 1000, SourceUserID: 3, ReferrerID: nil}

	t.Run("Success on first attempt", func(t *testing.T) {
		producer := mocks.NewSyncProducer(t, nil)
		defer producer.Close()
		p := &fakeProcessor{}
		c, waits := newConsumer(t, p, producer)

		require.NoError(t, c.Handle(ctx, jobMessage(t, job)))
		assert.Equal(t, 1, p.calls)
		assert.Equal(t, job, p.jobs[0])
		assert.Empty(t, *waits)
	})

	t.Run("Transient failure is retried with backoff", func(t *testing.T) {
		producer := mocks.NewSyncProducer(t, nil)
		defer producer.Close()
		p := &fakeProcessor{errs: []error{errors.New("deadlock found"), service.ErrTransient}}
		c, waits := newConsumer(t, p, producer)

		require.NoError(t, c.Handle(ctx, jobMessage(t, job)))
		assert.Equal(t, 3, p.calls)
		assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}, *waits)
	})

	t.Run("Retries exhausted go to dead letter", func(t *testing.T) {
		producer := mocks.NewSyncProducer(t, nil)
		defer producer.Close()
		producer.ExpectSendMessageWithCheckerFunctionAndSucceed(deadLetterChecker(t, 3, "lock wait timeout"))
		timeout := errors.New("lock wait timeout")
		p := &fakeProcessor{errs: []error{timeout, timeout, timeout}}
		c, _ := newConsumer(t, p, producer)

		require.NoError(t, c.Handle(ctx, jobMessage(t, job)))
		assert.Equal(t, 3, p.calls)
		assert.Equal(t, []int64{9}, p.parked)
	})

	t.Run("Permanent failure skips retries", func(t *testing.T) {
		producer := mocks.NewSyncProducer(t, nil)
		defer producer.Close()
		producer.ExpectSendMessageWithCheckerFunctionAndSucceed(deadLetterChecker(t, 1, "order not found"))
		p := &fakeProcessor{errs: []error{fmt.Errorf("check order 9: %w", service.ErrOrderNotFound)}}
		c, waits := newConsumer(t, p, producer)

		require.NoError(t, c.Handle(ctx, jobMessage(t, job)))
		assert.Equal(t, 1, p.calls)
		assert.Empty(t, *waits)
		assert.Equal(t, []int64{9}, p.parked)
	})

	t.Run("Undecodable payload", func(t *testing.T) {
		producer := mocks.NewSyncProducer(t, nil)
		defer producer.Close()
		producer.ExpectSendMessageWithCheckerFunctionAndSucceed(deadLetterChecker(t, 0, "decode commission job"))
		p := &fakeProcessor{}
		c, _ := newConsumer(t, p, producer)

		msg := &sarama.ConsumerMessage{Topic: "commission_job", Value: []byte("{not json")}
		require.NoError(t, c.Handle(ctx, msg))
		assert.Equal(t, 0, p.calls)
		assert.Empty(t, p.parked)
	})

	t.Run("Dead letter publish failure keeps the offset", func(t *testing.T) {
		producer := mocks.NewSyncProducer(t, nil)
		defer producer.Close()
		producer.ExpectSendMessageAndFail(errors.New("broker down"))
		p := &fakeProcessor{errs: []error{service.ErrInvariantViolation}}
		c, _ := newConsumer(t, p, producer)

		assert.Error(t, c.Handle(ctx, jobMessage(t, job)))
	})

	t.Run("Shutdown on the last attempt is not a dead letter", func(t *testing.T) {
		producer := mocks.NewSyncProducer(t, nil)
		defer producer.Close()
		p := &fakeProcessor{errs: []error{context.Canceled}}
		c := NewCommissionConsumer(p, producer, "commission_job_dead_letter", 1, time.Millisecond)

		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		err := c.Handle(cancelled, jobMessage(t, job))
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, p.calls)
		assert.Empty(t, p.parked)
	})

	t.Run("Park failure keeps the offset and skips the dead letter", func(t *testing.T) {
		producer := mocks.NewSyncProducer(t, nil)
		defer producer.Close()
		p := &fakeProcessor{
			errs:    []error{service.ErrInvariantViolation},
			parkErr: errors.New("connection reset"),
		}
		c, _ := newConsumer(t, p, producer)

		assert.Error(t, c.Handle(ctx, jobMessage(t, job)))
	})
}
