package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"tokensale/internal/config"
	"tokensale/internal/infrastructure/lock"
	"tokensale/internal/model"
	"tokensale/internal/repository"
	"tokensale/pkg/addr"
	"tokensale/pkg/amount"
	"tokensale/pkg/idgen"

	"github.com/go-redis/redis/v8"
	"github.com/holiman/uint256"
	"gorm.io/gorm"
)

// ============================================================================
// 销售状态机
// ============================================================================
//
// 阶段线性推进：SETUP → STARTED → ENDED → REFUNDING，全部由所有者触发，
// 唯一例外是购买把累计筹集额推到硬顶时在同一事务内自动收盘。
//
// 购买是系统最核心的操作：
//   1. 幂等性：相同 request_id 只成交一次
//   2. 原子性：价值扣款、代币发放、计数更新、转交受益人同生共死
//   3. 校验顺序固定，任一条不过整体无副作用
//
// ============================================================================

type SaleService struct {
	db               *gorm.DB
	redisClient      *redis.Client
	cfg              *config.Config
	saleRepo         *repository.SaleRepository
	tokenRepo        *repository.TokenRepository
	contributionRepo *repository.ContributionRepository
	whitelistRepo    *repository.WhitelistRepository
	purchaseRepo     *repository.PurchaseRepository
	fundsRepo        *repository.FundsRepository
	ledgerRepo       *repository.LedgerRepository
	outboxRepo       *repository.OutboxRepository
	ledger           *LedgerService
}

// NewSaleService 创建销售服务
// redisClient 可为 nil（单实例部署 / 测试），此时跳过分布式锁
func NewSaleService(db *gorm.DB, redisClient *redis.Client, cfg *config.Config) *SaleService {
	return &SaleService{
		db:               db,
		redisClient:      redisClient,
		cfg:              cfg,
		saleRepo:         repository.NewSaleRepository(db),
		tokenRepo:        repository.NewTokenRepository(db),
		contributionRepo: repository.NewContributionRepository(db),
		whitelistRepo:    repository.NewWhitelistRepository(db),
		purchaseRepo:     repository.NewPurchaseRepository(db),
		fundsRepo:        repository.NewFundsRepository(db),
		ledgerRepo:       repository.NewLedgerRepository(db),
		outboxRepo:       repository.NewOutboxRepository(db),
		ledger:           NewLedgerService(db, cfg),
	}
}

// Info 查询销售状态
func (s *SaleService) Info(ctx context.Context) (*model.Sale, error) {
	return s.saleRepo.Get(ctx)
}

// Open 开盘：SETUP → STARTED，起止时间取当前时间加配置时长
func (s *SaleService) Open(ctx context.Context, caller string) error {
	sale, err := s.ownedSale(ctx, caller)
	if err != nil {
		return err
	}

	startAt := time.Now()
	endAt := startAt.Add(time.Duration(s.cfg.Sale.DurationHours) * time.Hour)

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.saleRepo.UpdateStage(ctx, tx, model.SaleStageSetup, model.SaleStageStarted, &startAt, &endAt); err != nil {
			return err
		}
		return enqueueEvent(ctx, tx, s.outboxRepo, s.cfg.Kafka.Topic.SaleEvents,
			sale.SaleAddress, model.EventSaleOpened, map[string]interface{}{
				"start_at": startAt.Format(time.RFC3339),
				"end_at":   endAt.Format(time.RFC3339),
			})
	})
	if err != nil {
		return err
	}

	log.Printf("销售已开盘: start=%s, end=%s", startAt.Format(time.RFC3339), endAt.Format(time.RFC3339))
	return nil
}

// Close 收盘：STARTED → ENDED（所有者显式触发；达到硬顶时购买内自动触发）
func (s *SaleService) Close(ctx context.Context, caller string) error {
	sale, err := s.ownedSale(ctx, caller)
	if err != nil {
		return err
	}

	now := time.Now()
	err = s.db.Transaction(func(tx *gorm.DB) error {
		return s.closeTx(ctx, tx, sale, now)
	})
	if err != nil {
		return err
	}

	log.Printf("销售已收盘: totalRaised=%s", sale.WeiRaised)
	return nil
}

// closeTx 收盘落库（事务内，购买的自动收盘复用）
func (s *SaleService) closeTx(ctx context.Context, tx *gorm.DB, sale *model.Sale, now time.Time) error {
	if err := s.saleRepo.UpdateStage(ctx, tx, model.SaleStageStarted, model.SaleStageEnded, nil, &now); err != nil {
		return err
	}
	return enqueueEvent(ctx, tx, s.outboxRepo, s.cfg.Kafka.Topic.SaleEvents,
		sale.SaleAddress, model.EventSaleClosed, map[string]interface{}{
			"end_at":       now.Format(time.RFC3339),
			"total_raised": sale.WeiRaised,
		})
}

// StartRefunding 进入退款阶段：ENDED → REFUNDING（终态）
func (s *SaleService) StartRefunding(ctx context.Context, caller string) error {
	sale, err := s.ownedSale(ctx, caller)
	if err != nil {
		return err
	}

	// 复用 start_at 记录退款开始时间
	now := time.Now()
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.saleRepo.UpdateStage(ctx, tx, model.SaleStageEnded, model.SaleStageRefunding, &now, nil); err != nil {
			return err
		}
		return enqueueEvent(ctx, tx, s.outboxRepo, s.cfg.Kafka.Topic.SaleEvents,
			sale.SaleAddress, model.EventRefundingStarted, map[string]interface{}{
				"start_at": now.Format(time.RFC3339),
			})
	})
	if err != nil {
		return err
	}

	log.Println("已进入退款阶段")
	return nil
}

// AddToWhitelist 批量加入购买白名单（仅 SETUP 阶段，幂等）
func (s *SaleService) AddToWhitelist(ctx context.Context, caller string, addresses []string) error {
	sale, err := s.ownedSale(ctx, caller)
	if err != nil {
		return err
	}
	if sale.Stage != model.SaleStageSetup {
		return ErrWrongStage
	}
	if len(addresses) == 0 {
		return nil
	}

	normalized := make([]string, 0, len(addresses))
	for _, a := range addresses {
		na, err := addr.Normalize(a)
		if err != nil {
			return err
		}
		if addr.IsZero(na) {
			return ErrInvalidRecipient
		}
		normalized = append(normalized, na)
	}

	if err := s.whitelistRepo.Add(ctx, nil, normalized); err != nil {
		return err
	}

	log.Printf("白名单已更新: %d 个地址", len(normalized))
	return nil
}

// IsWhitelisted 查询地址是否在白名单内
func (s *SaleService) IsWhitelisted(ctx context.Context, address string) (bool, error) {
	address, err := addr.Normalize(address)
	if err != nil {
		return false, err
	}
	return s.whitelistRepo.Exists(ctx, address)
}

// UpdateRate 修改兑换比例（仅 SETUP 阶段）
func (s *SaleService) UpdateRate(ctx context.Context, caller string, rate uint64) error {
	if _, err := s.ownedSale(ctx, caller); err != nil {
		return err
	}
	if rate == 0 {
		return ErrInvalidRate
	}
	return s.saleRepo.UpdateRate(ctx, nil, rate)
}

// Pause 暂停购买与退款（不影响阶段推进）
func (s *SaleService) Pause(ctx context.Context, caller string) error {
	return s.setPaused(ctx, caller, true, model.EventPaused)
}

// Unpause 恢复购买与退款
func (s *SaleService) Unpause(ctx context.Context, caller string) error {
	return s.setPaused(ctx, caller, false, model.EventUnpaused)
}

func (s *SaleService) setPaused(ctx context.Context, caller string, paused bool, event string) error {
	sale, err := s.ownedSale(ctx, caller)
	if err != nil {
		return err
	}
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.saleRepo.SetPaused(ctx, tx, paused); err != nil {
			return err
		}
		return enqueueEvent(ctx, tx, s.outboxRepo, s.cfg.Kafka.Topic.SaleEvents,
			sale.SaleAddress, event, nil)
	})
	return err
}

// TransferOwnership 转移销售所有权
func (s *SaleService) TransferOwnership(ctx context.Context, caller, newOwner string) error {
	newOwner, err := addr.Normalize(newOwner)
	if err != nil {
		return err
	}
	if addr.IsZero(newOwner) {
		return ErrInvalidRecipient
	}
	sale, err := s.ownedSale(ctx, caller)
	if err != nil {
		return err
	}
	return s.saleRepo.UpdateOwner(ctx, nil, newOwner, sale.Version)
}

type BuyRequest struct {
	RequestID string `json:"request_id" binding:"required"` // 幂等ID，客户端生成
	Buyer     string `json:"buyer" binding:"required"`      // 买家地址
	Value     string `json:"value" binding:"required"`      // 附带价值（十进制字符串）
}

type BuyResponse struct {
	PurchaseNo string `json:"purchase_no"`
	Buyer      string `json:"buyer"`
	Value      string `json:"value"`
	Tokens     string `json:"tokens"`
	Message    string `json:"message,omitempty"`
}

// Buy 购买
// 前置校验逐条顺序执行，任一条失败整体无副作用；白名单是最后一道业务闸门。
// 成功路径在一个事务内完成：买家价值入账销售方 → 代币按授权额度从管理员
// 划转给买家 → 更新计数 → 价值转交受益人 → 达到硬顶自动收盘
func (s *SaleService) Buy(ctx context.Context, req *BuyRequest) (*BuyResponse, error) {
	buyer, err := addr.Normalize(req.Buyer)
	if err != nil {
		return nil, err
	}
	value, err := amount.Parse(req.Value)
	if err != nil {
		return nil, err
	}

	// 幂等校验
	existing, err := s.purchaseRepo.GetByRequestID(ctx, req.RequestID)
	if err != nil {
		return nil, fmt.Errorf("查询购买单失败: %w", err)
	}
	if existing != nil {
		return purchaseResponse(existing, "购买单已存在"), nil
	}

	// 多实例部署时对同一买家的并发请求串行化
	if s.redisClient != nil {
		buyLock := lock.NewBuyLock(s.redisClient, buyer, req.RequestID)
		if err := buyLock.Lock(ctx, 100*time.Millisecond, 30); err != nil {
			return nil, fmt.Errorf("系统繁忙，请稍后重试: %w", err)
		}
		defer buyLock.Unlock(ctx)

		// 获取锁后再次检查幂等
		existing, err = s.purchaseRepo.GetByRequestID(ctx, req.RequestID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return purchaseResponse(existing, "购买单已存在"), nil
		}
	}

	sale, err := s.saleRepo.Get(ctx)
	if err != nil {
		return nil, err
	}
	state, err := s.tokenRepo.Get(ctx)
	if err != nil {
		return nil, err
	}

	// 前置校验（顺序固定）
	if sale.Paused {
		return nil, ErrSalePaused
	}
	if err := guardSaleWindow(sale, time.Now()); err != nil {
		return nil, err
	}
	if addr.IsZero(buyer) {
		return nil, ErrInvalidRecipient
	}
	minContribution, err := amount.Parse(sale.MinContribution)
	if err != nil {
		return nil, err
	}
	if amount.Lt(value, minContribution) {
		return nil, ErrBelowMinContrib
	}

	raised, err := amount.Parse(sale.WeiRaised)
	if err != nil {
		return nil, err
	}
	hardCap, err := amount.Parse(sale.HardCap)
	if err != nil {
		return nil, err
	}
	newRaised, err := amount.Add(raised, value)
	if err != nil {
		return nil, err
	}
	if amount.Gt(newRaised, hardCap) {
		return nil, ErrHardCapExceeded
	}

	// 出资记录缺行按零处理，建行推迟到事务内：校验不过不留任何痕迹
	contribution, err := s.contributionRepo.Get(ctx, nil, buyer)
	if err != nil {
		return nil, err
	}
	contributed := amount.Zero()
	if contribution != nil {
		if contributed, err = amount.Parse(contribution.Amount); err != nil {
			return nil, err
		}
	}
	participantCap, err := amount.Parse(sale.ParticipantCap)
	if err != nil {
		return nil, err
	}
	newContributed, err := amount.Add(contributed, value)
	if err != nil {
		return nil, err
	}
	if amount.Gt(newContributed, participantCap) {
		return nil, ErrParticipantCapHit
	}

	// 白名单最后校验：不在名单内的请求无条件失败，不留任何痕迹
	whitelisted, err := s.whitelistRepo.Exists(ctx, buyer)
	if err != nil {
		return nil, err
	}
	if !whitelisted {
		return nil, ErrNotWhitelisted
	}

	// 受检乘法：value × rate
	tokens, err := amount.Mul(value, uint256.NewInt(sale.Rate))
	if err != nil {
		return nil, err
	}

	purchaseNo := idgen.GeneratePurchaseNo()
	hitHardCap := newRaised.Eq(hardCap)

	err = s.db.Transaction(func(tx *gorm.DB) error {
		// 买家附带价值入账到销售方
		if err := s.moveFundsTx(ctx, tx, buyer, sale.SaleAddress, value, model.LedgerEntryPurchase, purchaseNo); err != nil {
			return err
		}

		// 代币发放：admin → buyer，动用销售方授权额度；失败则整笔购买回滚
		if err := s.ledger.TransferFromForSale(ctx, tx, sale.SaleAddress, state.AdminAddress, buyer, tokens, purchaseNo); err != nil {
			return fmt.Errorf("代币发放失败: %w", err)
		}

		// 计数更新先于对外打款（checks-effects-interactions）
		if err := s.saleRepo.UpdateRaised(ctx, tx, amount.Format(newRaised), sale.Version); err != nil {
			return err
		}
		if err := s.contributionRepo.EnsureExists(ctx, tx, buyer); err != nil {
			return err
		}
		fresh, err := s.contributionRepo.Get(ctx, tx, buyer)
		if err != nil {
			return err
		}
		if err := s.contributionRepo.UpdateAmount(ctx, tx, buyer, amount.Format(newContributed), fresh.Version); err != nil {
			return err
		}

		// 收到的价值即时转交受益人
		if err := s.moveFundsTx(ctx, tx, sale.SaleAddress, sale.Beneficiary, value, model.LedgerEntryPurchase, purchaseNo); err != nil {
			return err
		}

		purchase := &model.Purchase{
			PurchaseNo: purchaseNo,
			RequestID:  req.RequestID,
			Buyer:      buyer,
			Value:      amount.Format(value),
			Tokens:     amount.Format(tokens),
			Status:     model.PurchaseStatusDone,
		}
		if err := s.purchaseRepo.Create(ctx, tx, purchase); err != nil {
			return fmt.Errorf("创建购买单失败: %w", err)
		}

		if err := enqueueEvent(ctx, tx, s.outboxRepo, s.cfg.Kafka.Topic.SaleEvents,
			purchaseNo, model.EventTokenPurchase, map[string]interface{}{
				"purchase_no": purchaseNo,
				"purchaser":   buyer,
				"value":       amount.Format(value),
				"tokens":      amount.Format(tokens),
			}); err != nil {
			return err
		}

		// 恰好打满硬顶：同一事务内自动收盘
		if hitHardCap {
			closing := *sale
			closing.WeiRaised = amount.Format(newRaised)
			if err := s.closeTx(ctx, tx, &closing, time.Now()); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("购买成功: purchaseNo=%s, buyer=%s, value=%s, tokens=%s",
		purchaseNo, buyer, amount.Format(value), amount.Format(tokens))

	return &BuyResponse{
		PurchaseNo: purchaseNo,
		Buyer:      buyer,
		Value:      amount.Format(value),
		Tokens:     amount.Format(tokens),
		Message:    "购买成功",
	}, nil
}

type RefundResponse struct {
	RefundNo string `json:"refund_no,omitempty"`
	Address  string `json:"address"`
	Amount   string `json:"amount"`
	Message  string `json:"message,omitempty"`
}

// WithdrawRefund 提取退款
// 仅 ENDED 阶段开放且未暂停。先把出资记录归零，再从销售方价值账户打款
// （checks-effects-interactions），重复调用第二次退零
func (s *SaleService) WithdrawRefund(ctx context.Context, caller string) (*RefundResponse, error) {
	caller, err := addr.Normalize(caller)
	if err != nil {
		return nil, err
	}

	sale, err := s.saleRepo.Get(ctx)
	if err != nil {
		return nil, err
	}
	if sale.Paused {
		return nil, ErrSalePaused
	}
	if sale.Stage != model.SaleStageEnded {
		return nil, ErrWrongStage
	}

	refundNo := idgen.GenerateRefundNo()

	if s.redisClient != nil {
		refundLock := lock.NewRefundLock(s.redisClient, caller, refundNo)
		if err := refundLock.Lock(ctx, 100*time.Millisecond, 30); err != nil {
			return nil, fmt.Errorf("系统繁忙，请稍后重试: %w", err)
		}
		defer refundLock.Unlock(ctx)
	}

	contribution, err := s.contributionRepo.Get(ctx, nil, caller)
	if err != nil {
		return nil, err
	}
	if contribution == nil || contribution.Amount == "0" {
		return &RefundResponse{Address: caller, Amount: "0", Message: "无可退出资"}, nil
	}
	refundAmount, err := amount.Parse(contribution.Amount)
	if err != nil {
		return nil, err
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		// 先归零再打款：失败整体回滚，出资记录随之恢复
		if err := s.contributionRepo.UpdateAmount(ctx, tx, caller, "0", contribution.Version); err != nil {
			return err
		}
		if err := s.moveFundsTx(ctx, tx, sale.SaleAddress, caller, refundAmount, model.LedgerEntryRefund, refundNo); err != nil {
			return err
		}
		return enqueueEvent(ctx, tx, s.outboxRepo, s.cfg.Kafka.Topic.SaleEvents,
			refundNo, model.EventRefund, map[string]interface{}{
				"refund_no": refundNo,
				"address":   caller,
				"amount":    amount.Format(refundAmount),
			})
	})
	if err != nil {
		return nil, err
	}

	log.Printf("退款成功: refundNo=%s, address=%s, amount=%s", refundNo, caller, amount.Format(refundAmount))

	return &RefundResponse{
		RefundNo: refundNo,
		Address:  caller,
		Amount:   amount.Format(refundAmount),
		Message:  "退款成功",
	}, nil
}

// ListPurchases 查询买家的购买单列表
func (s *SaleService) ListPurchases(ctx context.Context, buyer string, page, pageSize int) ([]*model.Purchase, int64, error) {
	buyer, err := addr.Normalize(buyer)
	if err != nil {
		return nil, 0, err
	}
	return s.purchaseRepo.ListByBuyer(ctx, buyer, page, pageSize)
}

// GetContribution 查询累计出资（无记录视为零）
func (s *SaleService) GetContribution(ctx context.Context, address string) (string, error) {
	address, err := addr.Normalize(address)
	if err != nil {
		return "", err
	}
	contribution, err := s.contributionRepo.Get(ctx, nil, address)
	if err != nil {
		return "", err
	}
	if contribution == nil {
		return "0", nil
	}
	return contribution.Amount, nil
}

// OwnerWithdraw 所有者保险阀：清扫销售方价值账户全部余额到受益人，不限阶段
// 绕过正常记账流程，与待退款项的关系由运营方自行负责
func (s *SaleService) OwnerWithdraw(ctx context.Context, caller string) (string, error) {
	sale, err := s.ownedSale(ctx, caller)
	if err != nil {
		return "", err
	}

	account, err := s.fundsRepo.GetByAddress(ctx, nil, sale.SaleAddress)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return "0", nil
		}
		return "", err
	}
	balance, err := amount.Parse(account.Balance)
	if err != nil {
		return "", err
	}
	if balance.IsZero() {
		return "0", nil
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		return s.moveFundsTx(ctx, tx, sale.SaleAddress, sale.Beneficiary, balance,
			model.LedgerEntrySweep, idgen.GenerateTransactionNo())
	})
	if err != nil {
		return "", err
	}

	log.Printf("所有者清扫完成: amount=%s → %s", amount.Format(balance), sale.Beneficiary)
	return amount.Format(balance), nil
}

// moveFundsTx 价值账本移动（事务内）：校验余额、受检加减、双边流水
func (s *SaleService) moveFundsTx(ctx context.Context, tx *gorm.DB, from, to string, v *uint256.Int, entryType, refNo string) error {
	fromAccount, err := s.fundsRepo.GetByAddress(ctx, tx, from)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return ErrFundsNotEnough
		}
		return err
	}
	fromBalance, err := amount.Parse(fromAccount.Balance)
	if err != nil {
		return err
	}
	if amount.Lt(fromBalance, v) {
		return ErrFundsNotEnough
	}

	newFromBalance, err := amount.Sub(fromBalance, v)
	if err != nil {
		return err
	}
	if err := s.fundsRepo.UpdateBalance(ctx, tx, from, amount.Format(newFromBalance), fromAccount.Version); err != nil {
		return err
	}

	if err := s.fundsRepo.EnsureExists(ctx, tx, to); err != nil {
		return err
	}
	toAccount, err := s.fundsRepo.GetByAddress(ctx, tx, to)
	if err != nil {
		return err
	}
	toBalance, err := amount.Parse(toAccount.Balance)
	if err != nil {
		return err
	}
	newToBalance, err := amount.Add(toBalance, v)
	if err != nil {
		return err
	}
	if err := s.fundsRepo.UpdateBalance(ctx, tx, to, amount.Format(newToBalance), toAccount.Version); err != nil {
		return err
	}

	if err := appendEntry(ctx, tx, s.ledgerRepo, model.LedgerKindFunds, entryType, from, to, v, -1,
		fromBalance, newFromBalance, refNo, ""); err != nil {
		return err
	}
	return appendEntry(ctx, tx, s.ledgerRepo, model.LedgerKindFunds, entryType, to, from, v, +1,
		toBalance, newToBalance, refNo, "")
}

// ownedSale 读取销售状态并校验调用方是所有者
func (s *SaleService) ownedSale(ctx context.Context, caller string) (*model.Sale, error) {
	caller, err := addr.Normalize(caller)
	if err != nil {
		return nil, err
	}
	sale, err := s.saleRepo.Get(ctx)
	if err != nil {
		return nil, err
	}
	if err := guardSaleOwner(sale, caller); err != nil {
		return nil, err
	}
	return sale, nil
}

func purchaseResponse(p *model.Purchase, message string) *BuyResponse {
	return &BuyResponse{
		PurchaseNo: p.PurchaseNo,
		Buyer:      p.Buyer,
		Value:      p.Value,
		Tokens:     p.Tokens,
		Message:    message,
	}
}
