package model

import (
	"time"
)

const (
	OutboxStatusPending = "PENDING"
	OutboxStatusSent    = "SENT"
	OutboxStatusFailed  = "FAILED"
)

// 对外可观测事件类型（outbox payload 的 event 字段）
const (
	EventTransfer             = "TRANSFER"
	EventApproval             = "APPROVAL"
	EventBurn                 = "BURN"
	EventTransfersEnabled     = "TRANSFERS_ENABLED"
	EventSaleBound            = "SALE_BOUND"
	EventOwnershipTransferred = "OWNERSHIP_TRANSFERRED"
	EventSaleOpened           = "SALE_OPENED"
	EventSaleClosed           = "SALE_CLOSED"
	EventRefundingStarted     = "REFUNDING_STARTED"
	EventTokenPurchase        = "TOKEN_PURCHASE"
	EventRefund               = "REFUND"
	EventPaused               = "PAUSED"
	EventUnpaused             = "UNPAUSED"
)

// OutboxMessage 事务性发件箱
// 业务事务内落库，由后台任务异步投递到 Kafka，保证事件与状态变更同生共死
type OutboxMessage struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	MessageKey string    `gorm:"type:varchar(64);not null" json:"message_key"`
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
