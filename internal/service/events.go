package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"tokensale/internal/model"
	"tokensale/internal/repository"

	"gorm.io/gorm"
)

// enqueueEvent 在业务事务内写入一条对外事件（发件箱模式）
// payload 统一带 event 类型和发生时间，投递由后台任务完成
func enqueueEvent(ctx context.Context, tx *gorm.DB, outboxRepo *repository.OutboxRepository,
	topic, key, event string, fields map[string]interface{}) error {

	payload := map[string]interface{}{
		"event":       event,
		"occurred_at": time.Now().Format(time.RFC3339),
	}
	for k, v := range fields {
		payload[k] = v
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("序列化事件失败: %w", err)
	}

	msg := &model.OutboxMessage{
		MessageKey: key,
		Topic:      topic,
		Payload:    string(payloadBytes),
		Status:     model.OutboxStatusPending,
	}
	return outboxRepo.Create(ctx, tx, msg)
}
