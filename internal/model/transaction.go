package model

import (
	"time"
)

// ============================================================================
// 账本流水
// ============================================================================

const (
	LedgerEntryTransfer     = "TRANSFER"      // 普通转账
	LedgerEntryTransferFrom = "TRANSFER_FROM" // 授权代扣转账
	LedgerEntryBurn         = "BURN"          // 销毁
	LedgerEntryPurchase     = "PURCHASE"      // 销售购买发放
	LedgerEntryRefund       = "REFUND"        // 退款
	LedgerEntryDeposit      = "DEPOSIT"       // 价值入金
	LedgerEntrySweep        = "SWEEP"         // 所有者清扫
)

const (
	LedgerKindToken = "TOKEN" // 代币账本
	LedgerKindFunds = "FUNDS" // 价值账本
)

// LedgerEntry 账本流水表
// 记录两类账本（代币、价值）的每一笔变动，是对账和守恒校验的核心依据
//
// 【重要】流水表设计原则：
// 1. 只追加，不修改，不删除 —— 保证审计可追溯
// 2. 记录交易前后余额 —— 便于校验余额一致性
type LedgerEntry struct {
	ID            int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	TransactionNo string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"transaction_no"`
	Kind          string    `gorm:"type:varchar(10);index;not null" json:"kind"`
	Type          string    `gorm:"type:varchar(20);index;not null" json:"type"`
	Address       string    `gorm:"type:varchar(42);index;not null" json:"address"` // 变动账户
	Counterparty  string    `gorm:"type:varchar(42)" json:"counterparty"`           // 对手方（销毁时为空）
	Amount        string    `gorm:"type:varchar(80);not null" json:"amount"`        // 绝对值
	Direction     int       `gorm:"not null" json:"direction"`                      // +1 入账 / -1 出账
	BalanceBefore string    `gorm:"type:varchar(80);not null" json:"balance_before"`
	BalanceAfter  string    `gorm:"type:varchar(80);not null" json:"balance_after"`
	RefNo         string    `gorm:"type:varchar(64);index" json:"ref_no"` // 关联购买/退款单号
	Remark        string    `gorm:"type:varchar(256)" json:"remark"`
	CreatedAt     time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (LedgerEntry) TableName() string {
	return "ledger_entry"
}

// Purchase 购买单表
// 购买请求带幂等ID，相同 request_id 只会成交一次
const (
	PurchaseStatusDone = "DONE"
)

type Purchase struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	PurchaseNo string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"purchase_no"`
	RequestID  string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"request_id"`
	Buyer      string    `gorm:"type:varchar(42);index;not null" json:"buyer"`
	Value      string    `gorm:"type:varchar(80);not null" json:"value"`  // 投入价值
	Tokens     string    `gorm:"type:varchar(80);not null" json:"tokens"` // 获得代币数
	Status     string    `gorm:"type:varchar(20);not null" json:"status"`
	CreatedAt  time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (Purchase) TableName() string {
	return "purchase"
}
