package model

import (
	"time"
)

// Allowance 授权额度表
// (owner, spender) → spender 可代为转出 owner 余额的额度上限
// 每次授权转账后扣减，永不为负
//
// 【已知问题】Approve 是绝对值覆盖而非增量调整，与代扣并发时存在经典的
// 授权重置竞态。此处不做修复：调用方应先归零再重设，或改用
// IncreaseApproval / DecreaseApproval
type Allowance struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Owner     string    `gorm:"type:varchar(42);uniqueIndex:idx_owner_spender;not null" json:"owner"`
	Spender   string    `gorm:"type:varchar(42);uniqueIndex:idx_owner_spender;not null" json:"spender"`
	Amount    string    `gorm:"type:varchar(80);not null;default:0" json:"amount"`
	Version   int       `gorm:"not null;default:0" json:"version"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Allowance) TableName() string {
	return "allowance"
}
