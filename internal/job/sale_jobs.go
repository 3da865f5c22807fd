package job

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"tokensale/internal/config"
	"tokensale/internal/model"
	"tokensale/internal/repository"
	"tokensale/pkg/amount"

	"github.com/holiman/uint256"
	"gorm.io/gorm"
)

// SaleExpiryJob 到期收盘任务：进行中的销售越过截止时间后自动收盘
type SaleExpiryJob struct {
	db         *gorm.DB
	saleRepo   *repository.SaleRepository
	outboxRepo *repository.OutboxRepository
	cfg        *config.Config
	stopCh     chan struct{}
	interval   time.Duration
}

func NewSaleExpiryJob(db *gorm.DB, cfg *config.Config) *SaleExpiryJob {
	return &SaleExpiryJob{
		db:         db,
		saleRepo:   repository.NewSaleRepository(db),
		outboxRepo: repository.NewOutboxRepository(db),
		cfg:        cfg,
		stopCh:     make(chan struct{}),
		interval:   10 * time.Second,
	}
}

func (j *SaleExpiryJob) Start(ctx context.Context) {
	log.Println("[SaleExpiryJob] 到期收盘任务启动")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[SaleExpiryJob] 收到停止信号，任务退出")
			return
		case <-j.stopCh:
			log.Println("[SaleExpiryJob] 任务停止")
			return
		case <-ticker.C:
			j.closeExpiredSale(ctx)
		}
	}
}

func (j *SaleExpiryJob) Stop() {
	close(j.stopCh)
}

func (j *SaleExpiryJob) closeExpiredSale(ctx context.Context) {
	sale, err := j.saleRepo.Get(ctx)
	if err != nil {
		log.Printf("[SaleExpiryJob] 查询销售状态失败: %v", err)
		return
	}

	if sale.Stage != model.SaleStageStarted || sale.EndAt == nil || time.Now().Before(*sale.EndAt) {
		return
	}

	err = j.db.Transaction(func(tx *gorm.DB) error {
		if err := j.saleRepo.UpdateStage(ctx, tx, model.SaleStageStarted, model.SaleStageEnded, nil, sale.EndAt); err != nil {
			return err
		}

		payload, err := json.Marshal(map[string]interface{}{
			"event":        model.EventSaleClosed,
			"occurred_at":  time.Now().Format(time.RFC3339),
			"end_at":       sale.EndAt.Format(time.RFC3339),
			"total_raised": sale.WeiRaised,
		})
		if err != nil {
			return err
		}
		return j.outboxRepo.Create(ctx, tx, &model.OutboxMessage{
			MessageKey: sale.SaleAddress,
			Topic:      j.cfg.Kafka.Topic.SaleEvents,
			Payload:    string(payload),
			Status:     model.OutboxStatusPending,
		})
	})
	if err != nil {
		// 并发收盘（人工 / 打满硬顶）时条件更新落空，下一轮自然跳过
		log.Printf("[SaleExpiryJob] 自动收盘失败: %v", err)
		return
	}

	log.Printf("[SaleExpiryJob] 销售已到期自动收盘: endAt=%s, totalRaised=%s",
		sale.EndAt.Format(time.RFC3339), sale.WeiRaised)
}

// LedgerAuditJob 对账任务
// 两条守恒式：
//   1. 账户余额之和 == 当前总供给
//   2. 当前总供给 + 累计销毁额 == 创世供给
type LedgerAuditJob struct {
	db          *gorm.DB
	accountRepo *repository.AccountRepository
	tokenRepo   *repository.TokenRepository
	ledgerRepo  *repository.LedgerRepository
	cfg         *config.Config
	stopCh      chan struct{}
	interval    time.Duration
	batchSize   int
}

func NewLedgerAuditJob(db *gorm.DB, cfg *config.Config) *LedgerAuditJob {
	return &LedgerAuditJob{
		db:          db,
		accountRepo: repository.NewAccountRepository(db),
		tokenRepo:   repository.NewTokenRepository(db),
		ledgerRepo:  repository.NewLedgerRepository(db),
		cfg:         cfg,
		stopCh:      make(chan struct{}),
		interval:    time.Minute,
		batchSize:   500,
	}
}

func (j *LedgerAuditJob) Start(ctx context.Context) {
	log.Println("[LedgerAuditJob] 对账任务启动")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[LedgerAuditJob] 收到停止信号，任务退出")
			return
		case <-j.stopCh:
			log.Println("[LedgerAuditJob] 任务停止")
			return
		case <-ticker.C:
			j.audit(ctx)
		}
	}
}

func (j *LedgerAuditJob) Stop() {
	close(j.stopCh)
}

func (j *LedgerAuditJob) audit(ctx context.Context) {
	state, err := j.tokenRepo.Get(ctx)
	if err != nil {
		log.Printf("[LedgerAuditJob] 查询代币状态失败: %v", err)
		return
	}
	totalSupply, err := amount.Parse(state.TotalSupply)
	if err != nil {
		log.Printf("[LedgerAuditJob] 总供给解析失败: %v", err)
		return
	}

	sum := amount.Zero()
	offset := 0
	for {
		accounts, err := j.accountRepo.ListAll(ctx, offset, j.batchSize)
		if err != nil {
			log.Printf("[LedgerAuditJob] 查询账户失败: %v", err)
			return
		}
		if len(accounts) == 0 {
			break
		}
		for _, account := range accounts {
			balance, err := amount.Parse(account.Balance)
			if err != nil {
				log.Printf("[LedgerAuditJob] 余额解析失败: address=%s, err=%v", account.Address, err)
				return
			}
			sum, err = amount.Add(sum, balance)
			if err != nil {
				log.Printf("[LedgerAuditJob] 余额累加溢出: address=%s, err=%v", account.Address, err)
				return
			}
		}
		offset += len(accounts)
	}

	if !sum.Eq(totalSupply) {
		log.Printf("[LedgerAuditJob] 【告警】账本失衡: 余额之和=%s, 总供给=%s",
			amount.Format(sum), amount.Format(totalSupply))
		return
	}

	// 销毁回溯：当前总供给 + 累计销毁额必须还原创世供给
	genesisSupply, err := amount.Parse(j.cfg.Token.TotalSupply)
	if err != nil {
		log.Printf("[LedgerAuditJob] 创世供给解析失败: %v", err)
		return
	}
	burned, burnCount, err := j.sumBurned(ctx)
	if err != nil {
		log.Printf("[LedgerAuditJob] 汇总销毁流水失败: %v", err)
		return
	}
	restored, err := amount.Add(totalSupply, burned)
	if err != nil {
		log.Printf("[LedgerAuditJob] 销毁回溯累加溢出: %v", err)
		return
	}
	if !restored.Eq(genesisSupply) {
		log.Printf("[LedgerAuditJob] 【告警】销毁回溯失衡: 总供给=%s + 销毁=%s != 创世=%s",
			amount.Format(totalSupply), amount.Format(burned), amount.Format(genesisSupply))
		return
	}

	log.Printf("[LedgerAuditJob] 对账通过: 总供给=%s, 销毁流水=%d笔", amount.Format(totalSupply), burnCount)
}

func (j *LedgerAuditJob) sumBurned(ctx context.Context) (*uint256.Int, int64, error) {
	count, err := j.ledgerRepo.CountByType(ctx, model.LedgerKindToken, model.LedgerEntryBurn)
	if err != nil {
		return nil, 0, err
	}

	burned := amount.Zero()
	offset := 0
	for {
		entries, err := j.ledgerRepo.ListByType(ctx, model.LedgerKindToken, model.LedgerEntryBurn, offset, j.batchSize)
		if err != nil {
			return nil, 0, err
		}
		if len(entries) == 0 {
			break
		}
		for _, entry := range entries {
			v, err := amount.Parse(entry.Amount)
			if err != nil {
				return nil, 0, err
			}
			if burned, err = amount.Add(burned, v); err != nil {
				return nil, 0, err
			}
		}
		offset += len(entries)
	}
	return burned, count, nil
}
