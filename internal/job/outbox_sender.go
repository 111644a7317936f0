package job

import (
	"context"
	"log/slog"
	"time"

	"fanpoints/internal/config"
	"fanpoints/internal/infrastructure/metrics"
	"fanpoints/internal/model"
	"fanpoints/internal/repository"

	"gorm.io/gorm"
)

// Publisher 消息投递目标，mq.Producer 实现了它
type Publisher interface {
	Publish(topic, key, value string) error
}

// OutboxSender 把 outbox 表中待发送的积分事件投递到 Kafka
//
// 同一用户的消息按写入顺序投递：某条发送失败后，本轮跳过该用户后续的消息，
// 等下一轮从失败的那条开始重试。
type OutboxSender struct {
	outboxRepo *repository.OutboxRepository
	publisher  Publisher
	stopCh     chan struct{}
	interval   time.Duration
	batchSize  int
	maxRetry   int
}

func NewOutboxSender(db *gorm.DB, publisher Publisher, cfg *config.JobsConfig) *OutboxSender {
	s := &OutboxSender{
		outboxRepo: repository.NewOutboxRepository(db),
		publisher:  publisher,
		stopCh:     make(chan struct{}),
		interval:   cfg.OutboxInterval,
		batchSize:  cfg.OutboxBatchSize,
		maxRetry:   cfg.OutboxMaxRetry,
	}
	if s.interval <= 0 {
		s.interval = 500 * time.Millisecond
	}
	if s.batchSize <= 0 {
		s.batchSize = 100
	}
	if s.maxRetry <= 0 {
		s.maxRetry = 5
	}
	return s
}

func (s *OutboxSender) Start(ctx context.Context) {
	slog.Info("[OutboxSender] 消息发送任务启动", "interval", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("[OutboxSender] 收到停止信号，任务退出")
			return
		case <-s.stopCh:
			slog.Info("[OutboxSender] 任务停止")
			return
		case <-ticker.C:
			s.ProcessPendingMessages(ctx)
		}
	}
}

func (s *OutboxSender) Stop() {
	close(s.stopCh)
}

// ProcessPendingMessages 发送一批待投递消息，返回成功条数
func (s *OutboxSender) ProcessPendingMessages(ctx context.Context) int {
	messages, err := s.outboxRepo.GetPendingMessages(ctx, s.batchSize)
	if err != nil {
		slog.Error("[OutboxSender] 查询消息失败", "error", err)
		return 0
	}

	sent := 0
	blocked := make(map[string]bool)
	for _, msg := range messages {
		if blocked[msg.MessageKey] {
			continue
		}
		if s.sendMessage(ctx, msg) {
			sent++
			continue
		}
		blocked[msg.MessageKey] = true
	}
	return sent
}

func (s *OutboxSender) sendMessage(ctx context.Context, msg *model.OutboxMessage) bool {
	err := s.publisher.Publish(msg.Topic, msg.MessageKey, msg.Payload)
	if err == nil {
		metrics.OutboxPublishedTotal.WithLabelValues("sent").Inc()
		if updateErr := s.outboxRepo.MarkAsSent(ctx, msg.ID); updateErr != nil {
			// 已经投递成功，下一轮会重复投递，消费方按 entry_no 去重
			slog.Error("[OutboxSender] 更新消息状态失败", "id", msg.ID, "entry_no", msg.EntryNo, "error", updateErr)
		} else {
			slog.Debug("[OutboxSender] 消息发送成功", "id", msg.ID, "topic", msg.Topic, "key", msg.MessageKey)
		}
		return true
	}

	metrics.OutboxPublishedTotal.WithLabelValues("error").Inc()
	slog.Warn("[OutboxSender] 消息发送失败", "id", msg.ID, "entry_no", msg.EntryNo, "error", err)

	failed, retryErr := s.outboxRepo.MarkRetry(ctx, msg.ID, s.maxRetry)
	if retryErr != nil {
		slog.Error("[OutboxSender] 增加重试次数失败", "id", msg.ID, "error", retryErr)
		return false
	}
	if failed {
		metrics.OutboxPublishedTotal.WithLabelValues("failed").Inc()
		slog.Error("[OutboxSender] 消息超过最大重试次数，标记为失败", "id", msg.ID, "entry_no", msg.EntryNo)
	}
	return false
}
