package repository

import (
	"context"

	"commissionledger/internal/model"

	"gorm.io/gorm"
)

// OutboxRepository stores messages that must reach Kafka together with the ledger
// change that produced them.
type OutboxRepository struct {
	db *gorm.DB
}

func NewOutboxRepository(db *gorm.DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

// Create queues msg. Pass the ledger transaction as tx so the message commits with it.
func (r *OutboxRepository) Create(ctx context.Context, tx *gorm.DB, msg *model.OutboxMessage) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(msg).Error
}

// ListPending returns up to limit undelivered messages in insertion order.
func (r *OutboxRepository) ListPending(ctx context.Context, limit int) ([]*model.OutboxMessage, error) {
	var messages []*model.OutboxMessage
	err := r.db.WithContext(ctx).
		Where("status = ?", model.OutboxStatusPending).
		Order("id ASC").
		Limit(limit).
		Find(&messages).Error
	return messages, err
}

// MarkSent records the broker acknowledgement. Rows that already left PENDING are untouched.
func (r *OutboxRepository) MarkSent(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).
		Model(&model.OutboxMessage{}).
		Where("id = ? AND status = ?", id, model.OutboxStatusPending).
		Update("status", model.OutboxStatusSent).Error
}

// RecordSendFailure counts one failed delivery. With giveUp set the message is parked
// as FAILED and the sender stops picking it up.
func (r *OutboxRepository) RecordSendFailure(ctx context.Context, id int64, giveUp bool) error {
	updates := map[string]interface{}{
		"retry_count": gorm.Expr("retry_count + 1"),
	}
	if giveUp {
		updates["status"] = model.OutboxStatusFailed
	}
	return r.db.WithContext(ctx).
		Model(&model.OutboxMessage{}).
		Where("id = ? AND status = ?", id, model.OutboxStatusPending).
		Updates(updates).Error
}

// ListFailed returns messages on topic that were never delivered, oldest first.
func (r *OutboxRepository) ListFailed(ctx context.Context, topic string, limit int) ([]*model.OutboxMessage, error) {
	var messages []*model.OutboxMessage
	err := r.db.WithContext(ctx).
		Where("topic = ? AND status = ?", topic, model.OutboxStatusFailed).
		Order("id ASC").
		Limit(limit).
		Find(&messages).Error
	return messages, err
}

// HasPending reports whether an undelivered message with key is queued on topic.
func (r *OutboxRepository) HasPending(ctx context.Context, topic, key string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.OutboxMessage{}).
		Where("topic = ? AND message_key = ? AND status = ?", topic, key, model.OutboxStatusPending).
		Count(&count).Error
	return count > 0, err
}
