package service

import (
	"context"
	"log"

	"tokensale/internal/config"
	"tokensale/internal/model"
	"tokensale/internal/repository"
	"tokensale/pkg/addr"
	"tokensale/pkg/amount"

	"gorm.io/gorm"
)

// TokenService 代币治理服务
// 管理三个特权地址（owner / admin / sale）、一次性销售绑定和全局转账开关
type TokenService struct {
	db            *gorm.DB
	cfg           *config.Config
	tokenRepo     *repository.TokenRepository
	allowanceRepo *repository.AllowanceRepository
	outboxRepo    *repository.OutboxRepository
}

func NewTokenService(db *gorm.DB, cfg *config.Config) *TokenService {
	return &TokenService{
		db:            db,
		cfg:           cfg,
		tokenRepo:     repository.NewTokenRepository(db),
		allowanceRepo: repository.NewAllowanceRepository(db),
		outboxRepo:    repository.NewOutboxRepository(db),
	}
}

// Info 查询代币状态
func (s *TokenService) Info(ctx context.Context) (*model.TokenState, error) {
	return s.tokenRepo.Get(ctx)
}

// BindSale 绑定销售方地址并授予销售额度（一次性操作）
// 在同一事务内：写入 sale_address（已绑定则整体失败）+ 授予 admin→sale
// 的代币额度。allocation 为空时采用配置的默认销售配额
func (s *TokenService) BindSale(ctx context.Context, caller, saleAddress, allocation string) error {
	caller, err := addr.Normalize(caller)
	if err != nil {
		return err
	}
	saleAddress, err = addr.Normalize(saleAddress)
	if err != nil {
		return err
	}
	if addr.IsZero(saleAddress) {
		return ErrInvalidRecipient
	}
	if allocation == "" {
		allocation = s.cfg.Token.SaleAllocation
	}
	alloc, err := amount.Parse(allocation)
	if err != nil {
		return err
	}

	state, err := s.tokenRepo.Get(ctx)
	if err != nil {
		return err
	}
	if err := guardTokenOwner(state, caller); err != nil {
		return err
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.tokenRepo.BindSale(ctx, tx, saleAddress); err != nil {
			return err
		}
		if err := s.allowanceRepo.EnsureExists(ctx, tx, state.AdminAddress, saleAddress); err != nil {
			return err
		}
		allowance, err := s.allowanceRepo.Get(ctx, tx, state.AdminAddress, saleAddress)
		if err != nil {
			return err
		}
		if err := s.allowanceRepo.UpdateAmount(ctx, tx, state.AdminAddress, saleAddress,
			amount.Format(alloc), allowance.Version); err != nil {
			return err
		}
		return enqueueEvent(ctx, tx, s.outboxRepo, s.cfg.Kafka.Topic.TokenEvents,
			saleAddress, model.EventSaleBound, map[string]interface{}{
				"sale_address": saleAddress,
				"allocation":   amount.Format(alloc),
			})
	})
	if err != nil {
		return err
	}

	log.Printf("销售方已绑定: sale=%s, allocation=%s", saleAddress, amount.Format(alloc))
	return nil
}

// EnableTransfers 开启全局转账（单向，不可回退）
// 同一事务内收回销售方剩余的授权额度：公开交易开放后销售通道即告关闭
func (s *TokenService) EnableTransfers(ctx context.Context, caller string) error {
	caller, err := addr.Normalize(caller)
	if err != nil {
		return err
	}

	state, err := s.tokenRepo.Get(ctx)
	if err != nil {
		return err
	}
	if err := guardTokenOwner(state, caller); err != nil {
		return err
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.tokenRepo.EnableTransfers(ctx, tx); err != nil {
			return err
		}

		if state.SaleBound() {
			allowance, err := s.allowanceRepo.Get(ctx, tx, state.AdminAddress, state.SaleAddress)
			if err != nil {
				return err
			}
			if allowance != nil && allowance.Amount != "0" {
				if err := s.allowanceRepo.UpdateAmount(ctx, tx, state.AdminAddress, state.SaleAddress,
					"0", allowance.Version); err != nil {
					return err
				}
			}
		}

		return enqueueEvent(ctx, tx, s.outboxRepo, s.cfg.Kafka.Topic.TokenEvents,
			state.OwnerAddress, model.EventTransfersEnabled, nil)
	})
	if err != nil {
		return err
	}

	log.Println("全局转账已开启，销售方剩余额度已收回")
	return nil
}

// TransferOwnership 转移代币所有权
func (s *TokenService) TransferOwnership(ctx context.Context, caller, newOwner string) error {
	caller, err := addr.Normalize(caller)
	if err != nil {
		return err
	}
	newOwner, err = addr.Normalize(newOwner)
	if err != nil {
		return err
	}
	if addr.IsZero(newOwner) {
		return ErrInvalidRecipient
	}

	state, err := s.tokenRepo.Get(ctx)
	if err != nil {
		return err
	}
	if err := guardTokenOwner(state, caller); err != nil {
		return err
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.tokenRepo.UpdateOwner(ctx, tx, newOwner, state.Version); err != nil {
			return err
		}
		return enqueueEvent(ctx, tx, s.outboxRepo, s.cfg.Kafka.Topic.TokenEvents,
			newOwner, model.EventOwnershipTransferred, map[string]interface{}{
				"previous_owner": state.OwnerAddress,
				"new_owner":      newOwner,
			})
	})
	if err != nil {
		return err
	}

	log.Printf("代币所有权已转移: %s → %s", state.OwnerAddress, newOwner)
	return nil
}
