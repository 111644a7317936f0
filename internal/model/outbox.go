package model

import (
	"encoding/json"
	"time"
)

const (
	OutboxStatusPending = "PENDING"
	OutboxStatusSent    = "SENT"
	OutboxStatusFailed  = "FAILED"
)

// OutboxMessage 本地消息表
// 与积分流水在同一个事务中写入，由 OutboxSender 异步投递到 Kafka
type OutboxMessage struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	MessageKey string    `gorm:"type:varchar(64);not null" json:"message_key"` // 使用 user_id，保证同一用户消息分区有序
	EntryNo    string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"entry_no"`
	Topic      string    `gorm:"type:varchar(64);not null" json:"topic"`
	Payload    string    `gorm:"type:text;not null" json:"payload"`
	Status     string    `gorm:"type:varchar(20);index;not null;default:PENDING" json:"status"`
	RetryCount int       `gorm:"not null;default:0" json:"retry_count"`
	CreatedAt  time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (OutboxMessage) TableName() string {
	return "outbox_message"
}

// LedgerEvent 发送到 Kafka 的积分变动事件
type LedgerEvent struct {
	EntryNo      string         `json:"entry_no"`
	UserID       string         `json:"user_id"`
	Kind         string         `json:"kind"`
	Delta        int64          `json:"delta"`
	BalanceAfter int64          `json:"balance_after"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	CreatedAt    string         `json:"created_at"`
}

// NewLedgerOutboxMessage 根据流水生成待投递消息
func NewLedgerOutboxMessage(topic string, entry *LedgerEntry) (*OutboxMessage, error) {
	payload, err := json.Marshal(LedgerEvent{
		EntryNo:      entry.EntryNo,
		UserID:       entry.UserID,
		Kind:         entry.Kind,
		Delta:        entry.Delta,
		BalanceAfter: entry.BalanceAfter,
		Metadata:     entry.Metadata,
		CreatedAt:    entry.CreatedAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return nil, err
	}

	return &OutboxMessage{
		MessageKey: entry.UserID,
		EntryNo:    entry.EntryNo,
		Topic:      topic,
		Payload:    string(payload),
		Status:     OutboxStatusPending,
	}, nil
}
