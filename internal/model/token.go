package model

import (
	"time"
)

// TokenState 代币全局状态表（单行）
// 总供应量在服务首次启动时铸造给管理员账户，此后只能通过销毁减少。
// TransfersEnabled 为单向开关（false→true），开启前只有 owner/admin/sale
// 三个特权地址可以转移代币
type TokenState struct {
	ID               int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name             string    `gorm:"type:varchar(64);not null" json:"name"`
	Symbol           string    `gorm:"type:varchar(16);not null" json:"symbol"`
	Decimals         int       `gorm:"not null" json:"decimals"`
	TotalSupply      string    `gorm:"type:varchar(80);not null" json:"total_supply"`
	TransfersEnabled bool      `gorm:"not null;default:false" json:"transfers_enabled"`
	OwnerAddress     string    `gorm:"type:varchar(42);not null" json:"owner_address"`
	AdminAddress     string    `gorm:"type:varchar(42);not null" json:"admin_address"`
	SaleAddress      string    `gorm:"type:varchar(42);not null;default:''" json:"sale_address"` // 空串表示尚未绑定（一次性写入单元）
	Version          int       `gorm:"not null;default:0" json:"version"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (TokenState) TableName() string {
	return "token_state"
}

// SaleBound 销售方地址是否已绑定
func (t *TokenState) SaleBound() bool {
	return t.SaleAddress != ""
}
