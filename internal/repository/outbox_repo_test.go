package repository

import (
	"context"
	"testing"

	"commissionledger/internal/model"
	"commissionledger/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutboxRepository(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	repo := NewOutboxRepository(db)

	job := &model.OutboxMessage{MessageKey: "7", Topic: "commission_job", Payload: "{}", Status: model.OutboxStatusPending}
	payout := &model.OutboxMessage{MessageKey: "TXN1", Topic: "payout_request", Payload: "{}", Status: model.OutboxStatusPending}
	require.NoError(t, repo.Create(ctx, nil, job))
	require.NoError(t, repo.Create(ctx, nil, payout))

	pending, err := repo.HasPending(ctx, "commission_job", "7")
	require.NoError(t, err)
	assert.True(t, pending)

	msgs, err := repo.ListPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, job.ID, msgs[0].ID)

	require.NoError(t, repo.RecordSendFailure(ctx, job.ID, false))
	require.NoError(t, repo.RecordSendFailure(ctx, job.ID, true))
	require.NoError(t, repo.RecordSendFailure(ctx, payout.ID, true))

	failed, err := repo.ListFailed(ctx, "commission_job", 10)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, job.ID, failed[0].ID)
	assert.Equal(t, 2, failed[0].RetryCount)

	// a parked message is not counted again or resurrected by a late ack
	require.NoError(t, repo.RecordSendFailure(ctx, job.ID, false))
	require.NoError(t, repo.MarkSent(ctx, job.ID))
	failed, err = repo.ListFailed(ctx, "commission_job", 10)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, 2, failed[0].RetryCount)

	pending, err = repo.HasPending(ctx, "commission_job", "7")
	require.NoError(t, err)
	assert.False(t, pending)
}
