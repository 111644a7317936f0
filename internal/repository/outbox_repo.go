package repository

import (
	"context"

	"fanpoints/internal/model"

	"gorm.io/gorm"
)

type OutboxRepository struct {
	db *gorm.DB
}

func NewOutboxRepository(db *gorm.DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

func (r *OutboxRepository) Create(ctx context.Context, tx *gorm.DB, msg *model.OutboxMessage) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(msg).Error
}

// GetPendingMessages 按写入顺序取待发送消息，保证同一用户的事件按提交顺序投递
func (r *OutboxRepository) GetPendingMessages(ctx context.Context, limit int) ([]*model.OutboxMessage, error) {
	var messages []*model.OutboxMessage
	err := r.db.WithContext(ctx).
		Where("status = ?", model.OutboxStatusPending).
		Order("id ASC").
		Limit(limit).
		Find(&messages).Error
	return messages, err
}

func (r *OutboxRepository) MarkAsSent(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).
		Model(&model.OutboxMessage{}).
		Where("id = ?", id).
		Update("status", model.OutboxStatusSent).Error
}

// MarkRetry 记录一次发送失败，达到 maxRetry 后标记为 FAILED
func (r *OutboxRepository) MarkRetry(ctx context.Context, id int64, maxRetry int) (failed bool, err error) {
	var msg model.OutboxMessage
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.OutboxMessage{}).
			Where("id = ?", id).
			UpdateColumn("retry_count", gorm.Expr("retry_count + 1")).Error; err != nil {
			return err
		}
		if err := tx.Where("id = ?", id).First(&msg).Error; err != nil {
			return err
		}
		if msg.RetryCount >= maxRetry {
			failed = true
			return tx.Model(&model.OutboxMessage{}).
				Where("id = ?", id).
				Update("status", model.OutboxStatusFailed).Error
		}
		return nil
	})
	return failed, err
}

func (r *OutboxRepository) CountByStatus(ctx context.Context, status string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.OutboxMessage{}).
		Where("status = ?", status).
		Count(&count).Error
	return count, err
}
