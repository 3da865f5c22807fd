package model

import (
	"time"
)

// TokenAccount 代币账户表
// 记录每个地址持有的代币余额，全表余额之和恒等于代币总供应量（守恒不变式）
type TokenAccount struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Address   string    `gorm:"type:varchar(42);uniqueIndex;not null" json:"address"`
	Balance   string    `gorm:"type:varchar(80);not null;default:0" json:"balance"` // 十进制字符串，256位无符号
	Version   int       `gorm:"not null;default:0" json:"version"`                  // 乐观锁版本号
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (TokenAccount) TableName() string {
	return "token_account"
}

// FundsAccount 价值账户表
// 记录每个地址持有的原生价值余额（wei）。购买时从买家价值账户扣款并
// 转交受益人，退款时从销售方价值账户返还
type FundsAccount struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Address   string    `gorm:"type:varchar(42);uniqueIndex;not null" json:"address"`
	Balance   string    `gorm:"type:varchar(80);not null;default:0" json:"balance"`
	Version   int       `gorm:"not null;default:0" json:"version"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (FundsAccount) TableName() string {
	return "funds_account"
}
