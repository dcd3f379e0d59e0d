package job

import (
	"context"
	"errors"
	"testing"

	"commissionledger/internal/model"
	"commissionledger/internal/testutil"

	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func seedOutbox(t *testing.T, db *gorm.DB, retryCount int) *model.OutboxMessage {
	t.Helper()
	msg := &model.OutboxMessage{
		MessageKey: "42",
		Topic:      "commission_job",
		Payload:    `{"order_id":42}`,
		Status:     model.OutboxStatusPending,
		RetryCount: retryCount,
	}
	require.NoError(t, db.Create(msg).Error)
	return msg
}

func reload(t *testing.T, db *gorm.DB, id int64) *model.OutboxMessage {
	t.Helper()
	var msg model.OutboxMessage
	require.NoError(t, db.First(&msg, id).Error)
	return &msg
}

func TestOutboxSender(t *testing.T) {
	ctx := context.Background()

	t.Run("Marks sent on ack", func(t *testing.T) {
		db := testutil.NewDB(t)
		producer := mocks.NewSyncProducer(t, nil)
		defer producer.Close()
		producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
			if string(val) != `{"order_id":42}` {
				return errors.New("unexpected payload " + string(val))
			}
			return nil
		})

		msg := seedOutbox(t, db, 0)
		NewOutboxSender(db, producer, 3).processPendingMessages(ctx)

		assert.Equal(t, model.OutboxStatusSent, reload(t, db, msg.ID).Status)
	})

	t.Run("Counts a failed attempt", func(t *testing.T) {
		db := testutil.NewDB(t)
		producer := mocks.NewSyncProducer(t, nil)
		defer producer.Close()
		producer.ExpectSendMessageAndFail(errors.New("broker down"))

		msg := seedOutbox(t, db, 0)
		NewOutboxSender(db, producer, 3).processPendingMessages(ctx)

		got := reload(t, db, msg.ID)
		assert.Equal(t, model.OutboxStatusPending, got.Status)
		assert.Equal(t, 1, got.RetryCount)
	})

	t.Run("Gives up after max retries", func(t *testing.T) {
		db := testutil.NewDB(t)
		producer := mocks.NewSyncProducer(t, nil)
		defer producer.Close()
		producer.ExpectSendMessageAndFail(errors.New("broker down"))

		msg := seedOutbox(t, db, 2)
		NewOutboxSender(db, producer, 3).processPendingMessages(ctx)

		got := reload(t, db, msg.ID)
		assert.Equal(t, model.OutboxStatusFailed, got.Status)
		assert.Equal(t, 3, got.RetryCount)
	})
}
