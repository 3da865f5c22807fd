package service

import (
	"errors"
	"time"

	"tokensale/internal/model"
	"tokensale/pkg/addr"
)

// ============================================================================
// 前置校验谓词
// ============================================================================
//
// 所有资产操作都先跑一串守卫再落库：守卫只读不写，失败返回带类型的
// 业务错误，整个操作不产生任何状态变更。校验顺序固定，不可调换。
//
// ============================================================================

var (
	ErrNotOwner           = errors.New("仅所有者可操作")
	ErrInvalidRecipient   = errors.New("接收方不能是零地址")
	ErrForbiddenRecipient = errors.New("接收方为受保护地址，禁止转入")
	ErrTransfersDisabled  = errors.New("转账尚未开放，仅特权地址可操作")
	ErrBalanceNotEnough   = errors.New("代币余额不足")
	ErrAllowanceNotEnough = errors.New("授权额度不足")
	ErrFundsNotEnough     = errors.New("价值余额不足")
	ErrSalePaused         = errors.New("销售已暂停")
	ErrWrongStage         = errors.New("当前销售阶段不允许该操作")
	ErrOutsideSaleWindow  = errors.New("不在销售时间窗口内")
	ErrBelowMinContrib    = errors.New("低于单笔最小出资额")
	ErrHardCapExceeded    = errors.New("超出销售硬顶")
	ErrParticipantCapHit  = errors.New("超出单人累计出资上限")
	ErrNotWhitelisted     = errors.New("地址不在购买白名单内")
	ErrInvalidRate        = errors.New("兑换比例必须大于0")
)

// isPrivileged 判断调用方是否特权地址（owner / admin / sale）
func isPrivileged(state *model.TokenState, caller string) bool {
	if addr.Equal(caller, state.OwnerAddress) || addr.Equal(caller, state.AdminAddress) {
		return true
	}
	return state.SaleBound() && addr.Equal(caller, state.SaleAddress)
}

// guardRecipient 转账目标守卫：拒绝零地址和特权地址（防自环、防资产滞留）
func guardRecipient(state *model.TokenState, to string) error {
	if addr.IsZero(to) {
		return ErrInvalidRecipient
	}
	if isPrivileged(state, to) {
		return ErrForbiddenRecipient
	}
	return nil
}

// guardTransferAuthority 全局转账开关守卫：未开放时仅特权地址可转移代币
func guardTransferAuthority(state *model.TokenState, caller string) error {
	if state.TransfersEnabled {
		return nil
	}
	if !isPrivileged(state, caller) {
		return ErrTransfersDisabled
	}
	return nil
}

// guardTokenOwner 代币所有者守卫
func guardTokenOwner(state *model.TokenState, caller string) error {
	if !addr.Equal(caller, state.OwnerAddress) {
		return ErrNotOwner
	}
	return nil
}

// guardSaleOwner 销售所有者守卫
func guardSaleOwner(sale *model.Sale, caller string) error {
	if !addr.Equal(caller, sale.OwnerAddress) {
		return ErrNotOwner
	}
	return nil
}

// guardSaleWindow 购买时间窗口守卫：阶段必须是 STARTED 且当前时间落在区间内
func guardSaleWindow(sale *model.Sale, now time.Time) error {
	if sale.Stage != model.SaleStageStarted {
		return ErrWrongStage
	}
	if sale.StartAt == nil || sale.EndAt == nil {
		return ErrOutsideSaleWindow
	}
	if now.Before(*sale.StartAt) || now.After(*sale.EndAt) {
		return ErrOutsideSaleWindow
	}
	return nil
}
