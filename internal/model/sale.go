package model

import (
	"time"
)

// 销售阶段，只允许单向推进，REFUNDING 为终态
const (
	SaleStageSetup     = "SETUP"
	SaleStageStarted   = "STARTED"
	SaleStageEnded     = "ENDED"
	SaleStageRefunding = "REFUNDING"
)

var ValidStageTransitions = map[string][]string{
	SaleStageSetup:   {SaleStageStarted},
	SaleStageStarted: {SaleStageEnded},
	SaleStageEnded:   {SaleStageRefunding},
}

func CanTransitionTo(currentStage, targetStage string) bool {
	allowedStages, exists := ValidStageTransitions[currentStage]
	if !exists {
		return false
	}
	for _, s := range allowedStages {
		if s == targetStage {
			return true
		}
	}
	return false
}

// Sale 销售全局状态表（单行）
// WeiRaised 单调不减且永不超过 HardCap；Paused 是阶段之外的独立开关，
// 只拦截购买和退款，不影响管理侧的阶段推进
type Sale struct {
	ID              int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	Stage           string     `gorm:"type:varchar(20);index;not null;default:SETUP" json:"stage"`
	Rate            uint64     `gorm:"not null" json:"rate"` // 每单位价值兑换的代币数，仅 SETUP 阶段可改
	HardCap         string     `gorm:"type:varchar(80);not null" json:"hard_cap"`
	MinContribution string     `gorm:"type:varchar(80);not null" json:"min_contribution"`
	ParticipantCap  string     `gorm:"type:varchar(80);not null" json:"participant_cap"`
	WeiRaised       string     `gorm:"type:varchar(80);not null;default:0" json:"wei_raised"`
	StartAt         *time.Time `json:"start_at"` // 进入 REFUNDING 时复用为退款开始时间
	EndAt           *time.Time `json:"end_at"`
	Beneficiary     string     `gorm:"type:varchar(42);not null" json:"beneficiary"`
	SaleAddress     string     `gorm:"type:varchar(42);not null" json:"sale_address"`
	OwnerAddress    string     `gorm:"type:varchar(42);not null" json:"owner_address"`
	Paused          bool       `gorm:"not null;default:false" json:"paused"`
	Version         int        `gorm:"not null;default:0" json:"version"`
	CreatedAt       time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Sale) TableName() string {
	return "sale"
}

// Contribution 出资记录表
// 记录每个参与者累计投入的价值，退款时先归零再打款（checks-effects-interactions）
type Contribution struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Address   string    `gorm:"type:varchar(42);uniqueIndex;not null" json:"address"`
	Amount    string    `gorm:"type:varchar(80);not null;default:0" json:"amount"`
	Version   int       `gorm:"not null;default:0" json:"version"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Contribution) TableName() string {
	return "contribution"
}

// WhitelistEntry 购买白名单
type WhitelistEntry struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Address   string    `gorm:"type:varchar(42);uniqueIndex;not null" json:"address"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (WhitelistEntry) TableName() string {
	return "whitelist_entry"
}
