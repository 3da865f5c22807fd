package handler

import (
	"context"
	"errors"
	"strconv"

	"tokensale/internal/config"
	"tokensale/internal/repository"
	"tokensale/internal/service"
	"tokensale/pkg/addr"
	"tokensale/pkg/amount"
	"tokensale/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// Handler 统一处理器，包含所有服务依赖
type Handler struct {
	ledgerService *service.LedgerService
	tokenService  *service.TokenService
	saleService   *service.SaleService
	fundsService  *service.FundsService
}

// NewHandler 创建处理器实例
func NewHandler(db *gorm.DB, rdb *redis.Client, cfg *config.Config) *Handler {
	return &Handler{
		ledgerService: service.NewLedgerService(db, cfg),
		tokenService:  service.NewTokenService(db, cfg),
		saleService:   service.NewSaleService(db, rdb, cfg),
		fundsService:  service.NewFundsService(db, cfg),
	}
}

// writeError 业务错误按哨兵映射到错误码，其余按服务端错误返回
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, addr.ErrInvalidAddress):
		response.BusinessError(c, response.CodeInvalidAddress, err.Error())
	case errors.Is(err, amount.ErrInvalidAmount):
		response.ParamError(c, err.Error())
	case errors.Is(err, repository.ErrAccountNotFound):
		response.BusinessError(c, response.CodeAccountNotFound, err.Error())
	case errors.Is(err, repository.ErrSaleAlreadyBound):
		response.BusinessError(c, response.CodeSaleAlreadyBound, err.Error())
	case errors.Is(err, service.ErrBalanceNotEnough):
		response.BusinessError(c, response.CodeBalanceNotEnough, err.Error())
	case errors.Is(err, service.ErrAllowanceNotEnough):
		response.BusinessError(c, response.CodeAllowanceNotEnough, err.Error())
	case errors.Is(err, service.ErrFundsNotEnough):
		response.BusinessError(c, response.CodeBalanceNotEnough, err.Error())
	case errors.Is(err, service.ErrTransfersDisabled):
		response.BusinessError(c, response.CodeTransfersDisabled, err.Error())
	case errors.Is(err, service.ErrInvalidRecipient),
		errors.Is(err, service.ErrForbiddenRecipient):
		response.BusinessError(c, response.CodeForbiddenRecipient, err.Error())
	case errors.Is(err, service.ErrNotOwner):
		response.Error(c, response.CodeForbidden, err.Error())
	case errors.Is(err, service.ErrSalePaused):
		response.BusinessError(c, response.CodeSalePaused, err.Error())
	case errors.Is(err, service.ErrWrongStage),
		errors.Is(err, repository.ErrStageInvalid):
		response.BusinessError(c, response.CodeWrongStage, err.Error())
	case errors.Is(err, service.ErrOutsideSaleWindow):
		response.BusinessError(c, response.CodeOutsideSaleWindow, err.Error())
	case errors.Is(err, service.ErrBelowMinContrib):
		response.BusinessError(c, response.CodeBelowMinContrib, err.Error())
	case errors.Is(err, service.ErrHardCapExceeded):
		response.BusinessError(c, response.CodeHardCapExceeded, err.Error())
	case errors.Is(err, service.ErrParticipantCapHit):
		response.BusinessError(c, response.CodeParticipantCapHit, err.Error())
	case errors.Is(err, service.ErrNotWhitelisted):
		response.BusinessError(c, response.CodeNotWhitelisted, err.Error())
	case errors.Is(err, service.ErrInvalidRate):
		response.ParamError(c, err.Error())
	default:
		response.ServerError(c, err.Error())
	}
}

// ============================================================
// 代币相关接口
// ============================================================

// GetTokenInfo 查询代币基本信息
// GET /api/v1/token/info
func (h *Handler) GetTokenInfo(c *gin.Context) {
	state, err := h.tokenService.Info(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, gin.H{
		"name":              state.Name,
		"symbol":            state.Symbol,
		"decimals":          state.Decimals,
		"total_supply":      state.TotalSupply,
		"transfers_enabled": state.TransfersEnabled,
		"owner":             state.OwnerAddress,
		"admin":             state.AdminAddress,
		"sale":              state.SaleAddress,
	})
}

// GetTokenBalance 查询代币余额
// GET /api/v1/token/balance?address=0x...
func (h *Handler) GetTokenBalance(c *gin.Context) {
	address := c.Query("address")
	if address == "" {
		response.ParamError(c, "address 参数不能为空")
		return
	}

	balance, err := h.ledgerService.BalanceOf(c.Request.Context(), address)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, gin.H{
		"address": address,
		"balance": balance,
	})
}

// GetAllowance 查询授权额度
// GET /api/v1/token/allowance?owner=0x...&spender=0x...
func (h *Handler) GetAllowance(c *gin.Context) {
	owner := c.Query("owner")
	spender := c.Query("spender")
	if owner == "" || spender == "" {
		response.ParamError(c, "owner 和 spender 参数不能为空")
		return
	}

	allowance, err := h.ledgerService.AllowanceOf(c.Request.Context(), owner, spender)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, gin.H{
		"owner":     owner,
		"spender":   spender,
		"allowance": allowance,
	})
}

// TransferRequest 转账请求
type TransferRequest struct {
	Caller string `json:"caller" binding:"required"` // 调用方地址
	To     string `json:"to" binding:"required"`
	Value  string `json:"value" binding:"required"` // 十进制字符串
}

// Transfer 转账
// POST /api/v1/token/transfer
func (h *Handler) Transfer(c *gin.Context) {
	var req TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	if err := h.ledgerService.Transfer(c.Request.Context(), req.Caller, req.To, req.Value); err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, gin.H{"message": "转账成功"})
}

// TransferFromRequest 授权转账请求
type TransferFromRequest struct {
	Caller string `json:"caller" binding:"required"` // 动用额度的一方
	From   string `json:"from" binding:"required"`
	To     string `json:"to" binding:"required"`
	Value  string `json:"value" binding:"required"`
}

// TransferFrom 授权转账
// POST /api/v1/token/transfer-from
func (h *Handler) TransferFrom(c *gin.Context) {
	var req TransferFromRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	if err := h.ledgerService.TransferFrom(c.Request.Context(), req.Caller, req.From, req.To, req.Value); err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, gin.H{"message": "转账成功"})
}

// ApprovalRequest 授权请求
type ApprovalRequest struct {
	Caller  string `json:"caller" binding:"required"`
	Spender string `json:"spender" binding:"required"`
	Value   string `json:"value" binding:"required"`
}

// Approve 设置授权额度
// POST /api/v1/token/approve
func (h *Handler) Approve(c *gin.Context) {
	h.handleApproval(c, h.ledgerService.Approve)
}

// IncreaseApproval 增加授权额度
// POST /api/v1/token/increase-approval
func (h *Handler) IncreaseApproval(c *gin.Context) {
	h.handleApproval(c, h.ledgerService.IncreaseApproval)
}

// DecreaseApproval 减少授权额度（减到零为止）
// POST /api/v1/token/decrease-approval
func (h *Handler) DecreaseApproval(c *gin.Context) {
	h.handleApproval(c, h.ledgerService.DecreaseApproval)
}

func (h *Handler) handleApproval(c *gin.Context, fn func(ctx context.Context, caller, spender, value string) error) {
	var req ApprovalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	if err := fn(c.Request.Context(), req.Caller, req.Spender, req.Value); err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, gin.H{"message": "授权成功"})
}

// BurnRequest 销毁请求
type BurnRequest struct {
	Caller string `json:"caller" binding:"required"`
	Value  string `json:"value" binding:"required"`
}

// Burn 销毁代币
// POST /api/v1/token/burn
func (h *Handler) Burn(c *gin.Context) {
	var req BurnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	if err := h.ledgerService.Burn(c.Request.Context(), req.Caller, req.Value); err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, gin.H{"message": "销毁成功"})
}

// SetSaleRequest 绑定销售方请求
type SetSaleRequest struct {
	Caller      string `json:"caller" binding:"required"`
	SaleAddress string `json:"sale_address" binding:"required"`
	Allocation  string `json:"allocation"` // 留空使用配置的默认销售额度
}

// SetSale 绑定销售方地址（只允许一次）
// POST /api/v1/token/set-sale
func (h *Handler) SetSale(c *gin.Context) {
	var req SetSaleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	if err := h.tokenService.BindSale(c.Request.Context(), req.Caller, req.SaleAddress, req.Allocation); err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, gin.H{"message": "销售方已绑定"})
}

// EnableTransfers 开启自由转账（单向开关）
// POST /api/v1/token/enable-transfers
func (h *Handler) EnableTransfers(c *gin.Context) {
	var req struct {
		Caller string `json:"caller" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	if err := h.tokenService.EnableTransfers(c.Request.Context(), req.Caller); err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, gin.H{"message": "转账已开启"})
}

// OwnershipRequest 所有权转移请求
type OwnershipRequest struct {
	Caller   string `json:"caller" binding:"required"`
	NewOwner string `json:"new_owner" binding:"required"`
}

// TransferTokenOwnership 转移代币所有权
// POST /api/v1/token/transfer-ownership
func (h *Handler) TransferTokenOwnership(c *gin.Context) {
	var req OwnershipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	if err := h.tokenService.TransferOwnership(c.Request.Context(), req.Caller, req.NewOwner); err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, gin.H{"message": "所有权已转移"})
}

// ListLedgerEntries 查询地址流水
// GET /api/v1/token/entries?address=0x...&page=1&page_size=10
func (h *Handler) ListLedgerEntries(c *gin.Context) {
	address := c.Query("address")
	if address == "" {
		response.ParamError(c, "address 参数不能为空")
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))

	entries, total, err := h.ledgerService.ListEntries(c.Request.Context(), address, page, pageSize)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, gin.H{
		"list":      entries,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// ============================================================
// 销售相关接口
// ============================================================

// GetSaleInfo 查询销售状态
// GET /api/v1/sale/info
func (h *Handler) GetSaleInfo(c *gin.Context) {
	sale, err := h.saleService.Info(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, gin.H{
		"stage":            sale.Stage,
		"rate":             sale.Rate,
		"hard_cap":         sale.HardCap,
		"min_contribution": sale.MinContribution,
		"participant_cap":  sale.ParticipantCap,
		"wei_raised":       sale.WeiRaised,
		"start_at":         sale.StartAt,
		"end_at":           sale.EndAt,
		"beneficiary":      sale.Beneficiary,
		"paused":           sale.Paused,
	})
}

type callerRequest struct {
	Caller string `json:"caller" binding:"required"`
}

// OpenSale 开盘
// POST /api/v1/sale/open
func (h *Handler) OpenSale(c *gin.Context) {
	h.handleSaleAction(c, h.saleService.Open, "销售已开盘")
}

// CloseSale 收盘
// POST /api/v1/sale/close
func (h *Handler) CloseSale(c *gin.Context) {
	h.handleSaleAction(c, h.saleService.Close, "销售已收盘")
}

// StartRefunding 进入退款阶段
// POST /api/v1/sale/start-refunding
func (h *Handler) StartRefunding(c *gin.Context) {
	h.handleSaleAction(c, h.saleService.StartRefunding, "已进入退款阶段")
}

// PauseSale 暂停
// POST /api/v1/sale/pause
func (h *Handler) PauseSale(c *gin.Context) {
	h.handleSaleAction(c, h.saleService.Pause, "已暂停")
}

// UnpauseSale 恢复
// POST /api/v1/sale/unpause
func (h *Handler) UnpauseSale(c *gin.Context) {
	h.handleSaleAction(c, h.saleService.Unpause, "已恢复")
}

func (h *Handler) handleSaleAction(c *gin.Context, fn func(ctx context.Context, caller string) error, message string) {
	var req callerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	if err := fn(c.Request.Context(), req.Caller); err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, gin.H{"message": message})
}

// Buy 购买
// POST /api/v1/sale/buy
//
// 【关键点】购买是整个系统最核心的操作，需要保证：
// 1. 幂等性：相同的 request_id 只会成交一次
// 2. 原子性：价值扣款、代币发放、计数更新必须同时成功或同时失败
// 3. 并发安全：通过分布式锁防止同一买家重复提交
func (h *Handler) Buy(c *gin.Context) {
	var req service.BuyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.saleService.Buy(c.Request.Context(), &req)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, result)
}

// WithdrawRefund 提取退款
// POST /api/v1/sale/refund
//
// 【关键点】退款流程：
// 1. 只在收盘阶段开放
// 2. 先归零出资记录再打款
// 3. 重复调用第二次退零
func (h *Handler) WithdrawRefund(c *gin.Context) {
	var req callerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.saleService.WithdrawRefund(c.Request.Context(), req.Caller)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, result)
}

// UpdateRateRequest 修改兑换比例请求
type UpdateRateRequest struct {
	Caller string `json:"caller" binding:"required"`
	Rate   uint64 `json:"rate" binding:"required"`
}

// UpdateRate 修改兑换比例（仅开盘前）
// POST /api/v1/sale/rate
func (h *Handler) UpdateRate(c *gin.Context) {
	var req UpdateRateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	if err := h.saleService.UpdateRate(c.Request.Context(), req.Caller, req.Rate); err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, gin.H{"message": "兑换比例已更新"})
}

// AddWhitelistRequest 白名单添加请求
type AddWhitelistRequest struct {
	Caller    string   `json:"caller" binding:"required"`
	Addresses []string `json:"addresses" binding:"required"`
}

// AddToWhitelist 批量加入白名单
// POST /api/v1/sale/whitelist/add
func (h *Handler) AddToWhitelist(c *gin.Context) {
	var req AddWhitelistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	if err := h.saleService.AddToWhitelist(c.Request.Context(), req.Caller, req.Addresses); err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, gin.H{"message": "白名单已更新"})
}

// CheckWhitelist 查询地址是否在白名单
// GET /api/v1/sale/whitelist/check?address=0x...
func (h *Handler) CheckWhitelist(c *gin.Context) {
	address := c.Query("address")
	if address == "" {
		response.ParamError(c, "address 参数不能为空")
		return
	}

	whitelisted, err := h.saleService.IsWhitelisted(c.Request.Context(), address)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, gin.H{
		"address":     address,
		"whitelisted": whitelisted,
	})
}

// ListPurchases 查询买家购买单列表
// GET /api/v1/sale/purchases?buyer=0x...&page=1&page_size=10
func (h *Handler) ListPurchases(c *gin.Context) {
	buyer := c.Query("buyer")
	if buyer == "" {
		response.ParamError(c, "buyer 参数不能为空")
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))

	purchases, total, err := h.saleService.ListPurchases(c.Request.Context(), buyer, page, pageSize)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, gin.H{
		"list":      purchases,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// GetContribution 查询累计出资
// GET /api/v1/sale/contribution?address=0x...
func (h *Handler) GetContribution(c *gin.Context) {
	address := c.Query("address")
	if address == "" {
		response.ParamError(c, "address 参数不能为空")
		return
	}

	contributed, err := h.saleService.GetContribution(c.Request.Context(), address)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, gin.H{
		"address":     address,
		"contributed": contributed,
	})
}

// OwnerWithdraw 所有者清扫销售方价值账户
// POST /api/v1/sale/withdraw
func (h *Handler) OwnerWithdraw(c *gin.Context) {
	var req callerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	swept, err := h.saleService.OwnerWithdraw(c.Request.Context(), req.Caller)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, gin.H{
		"message": "清扫完成",
		"amount":  swept,
	})
}

// TransferSaleOwnership 转移销售所有权
// POST /api/v1/sale/transfer-ownership
func (h *Handler) TransferSaleOwnership(c *gin.Context) {
	var req OwnershipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	if err := h.saleService.TransferOwnership(c.Request.Context(), req.Caller, req.NewOwner); err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, gin.H{"message": "所有权已转移"})
}

// ============================================================
// 价值账户相关接口
// ============================================================

// Deposit 充值（简化版，实际应该对接出入金渠道）
// POST /api/v1/funds/deposit
func (h *Handler) Deposit(c *gin.Context) {
	var req service.DepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	balance, err := h.fundsService.Deposit(c.Request.Context(), &req)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, gin.H{
		"address": req.Address,
		"balance": balance,
	})
}

// GetFundsBalance 查询价值余额
// GET /api/v1/funds/balance?address=0x...
func (h *Handler) GetFundsBalance(c *gin.Context) {
	address := c.Query("address")
	if address == "" {
		response.ParamError(c, "address 参数不能为空")
		return
	}

	balance, err := h.fundsService.BalanceOf(c.Request.Context(), address)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, gin.H{
		"address": address,
		"balance": balance,
	})
}
