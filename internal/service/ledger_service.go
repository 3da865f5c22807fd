package service

import (
	"context"
	"log"

	"tokensale/internal/config"
	"tokensale/internal/model"
	"tokensale/internal/repository"
	"tokensale/pkg/addr"
	"tokensale/pkg/amount"

	"github.com/holiman/uint256"
	"gorm.io/gorm"
)

// LedgerService 代币账本服务
// 承载余额表和授权额度表上的全部变更：转账、授权代扣、授权调整、销毁。
// 每个操作是一个数据库事务，校验全部通过后才落库，任一步失败整体回滚
type LedgerService struct {
	db            *gorm.DB
	cfg           *config.Config
	tokenRepo     *repository.TokenRepository
	accountRepo   *repository.AccountRepository
	allowanceRepo *repository.AllowanceRepository
	ledgerRepo    *repository.LedgerRepository
	outboxRepo    *repository.OutboxRepository
}

func NewLedgerService(db *gorm.DB, cfg *config.Config) *LedgerService {
	return &LedgerService{
		db:            db,
		cfg:           cfg,
		tokenRepo:     repository.NewTokenRepository(db),
		accountRepo:   repository.NewAccountRepository(db),
		allowanceRepo: repository.NewAllowanceRepository(db),
		ledgerRepo:    repository.NewLedgerRepository(db),
		outboxRepo:    repository.NewOutboxRepository(db),
	}
}

// Transfer 普通转账：caller → to
func (s *LedgerService) Transfer(ctx context.Context, caller, to, value string) error {
	caller, err := addr.Normalize(caller)
	if err != nil {
		return err
	}
	to, err = addr.Normalize(to)
	if err != nil {
		return err
	}
	v, err := amount.Parse(value)
	if err != nil {
		return err
	}

	state, err := s.tokenRepo.Get(ctx)
	if err != nil {
		return err
	}
	if err := guardRecipient(state, to); err != nil {
		return err
	}
	if err := guardTransferAuthority(state, caller); err != nil {
		return err
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.moveTokensTx(ctx, tx, caller, to, v, model.LedgerEntryTransfer, ""); err != nil {
			return err
		}
		return enqueueEvent(ctx, tx, s.outboxRepo, s.cfg.Kafka.Topic.TokenEvents,
			caller, model.EventTransfer, map[string]interface{}{
				"from":  caller,
				"to":    to,
				"value": amount.Format(v),
			})
	})
	if err != nil {
		return err
	}

	log.Printf("转账成功: from=%s, to=%s, value=%s", caller, to, amount.Format(v))
	return nil
}

// TransferFrom 授权代扣转账：caller 动用 from 授予的额度，把代币转给 to
func (s *LedgerService) TransferFrom(ctx context.Context, caller, from, to, value string) error {
	caller, err := addr.Normalize(caller)
	if err != nil {
		return err
	}
	from, err = addr.Normalize(from)
	if err != nil {
		return err
	}
	to, err = addr.Normalize(to)
	if err != nil {
		return err
	}
	v, err := amount.Parse(value)
	if err != nil {
		return err
	}

	state, err := s.tokenRepo.Get(ctx)
	if err != nil {
		return err
	}
	if err := guardRecipient(state, to); err != nil {
		return err
	}
	if err := guardTransferAuthority(state, caller); err != nil {
		return err
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.transferFromTx(ctx, tx, caller, from, to, v, model.LedgerEntryTransferFrom, ""); err != nil {
			return err
		}
		return enqueueEvent(ctx, tx, s.outboxRepo, s.cfg.Kafka.Topic.TokenEvents,
			from, model.EventTransfer, map[string]interface{}{
				"from":    from,
				"to":      to,
				"value":   amount.Format(v),
				"spender": caller,
			})
	})
	if err != nil {
		return err
	}

	log.Printf("代扣转账成功: spender=%s, from=%s, to=%s, value=%s", caller, from, to, amount.Format(v))
	return nil
}

// TransferFromForSale 销售购买发放专用入口：在调用方的事务内执行代扣转账。
// 购买和发放必须同生共死 —— 这里失败，整笔购买回滚，买家价值分文不失
func (s *LedgerService) TransferFromForSale(ctx context.Context, tx *gorm.DB, spender, from, to string, value *uint256.Int, refNo string) error {
	state, err := s.tokenRepo.Get(ctx)
	if err != nil {
		return err
	}
	// 收款方守卫与普通代扣一致：特权地址（owner/admin/sale）即使在白名单内也不能购买
	if err := guardRecipient(state, to); err != nil {
		return err
	}
	if err := guardTransferAuthority(state, spender); err != nil {
		return err
	}
	return s.transferFromTx(ctx, tx, spender, from, to, value, model.LedgerEntryPurchase, refNo)
}

// transferFromTx 额度扣减 + 余额移动（事务内）
func (s *LedgerService) transferFromTx(ctx context.Context, tx *gorm.DB, spender, from, to string, v *uint256.Int, entryType, refNo string) error {
	allowance, err := s.allowanceRepo.Get(ctx, tx, from, spender)
	if err != nil {
		return err
	}
	if allowance == nil {
		return ErrAllowanceNotEnough
	}
	current, err := amount.Parse(allowance.Amount)
	if err != nil {
		return err
	}
	if amount.Lt(current, v) {
		return ErrAllowanceNotEnough
	}

	remaining, err := amount.Sub(current, v)
	if err != nil {
		return err
	}
	if err := s.allowanceRepo.UpdateAmount(ctx, tx, from, spender, amount.Format(remaining), allowance.Version); err != nil {
		return err
	}

	return s.moveTokensTx(ctx, tx, from, to, v, entryType, refNo)
}

// moveTokensTx 余额移动（事务内）：校验余额、受检加减、双边流水
func (s *LedgerService) moveTokensTx(ctx context.Context, tx *gorm.DB, from, to string, v *uint256.Int, entryType, refNo string) error {
	fromAccount, err := s.accountRepo.GetByAddress(ctx, tx, from)
	if err != nil {
		if err == repository.ErrAccountNotFound {
			return ErrBalanceNotEnough
		}
		return err
	}
	fromBalance, err := amount.Parse(fromAccount.Balance)
	if err != nil {
		return err
	}
	if amount.Lt(fromBalance, v) {
		return ErrBalanceNotEnough
	}

	// 自转：余额不变，只留一条流水
	if addr.Equal(from, to) {
		return appendEntry(ctx, tx, s.ledgerRepo, model.LedgerKindToken, entryType, from, to, v, +1,
			fromBalance, fromBalance, refNo, "自转")
	}

	newFromBalance, err := amount.Sub(fromBalance, v)
	if err != nil {
		return err
	}
	if err := s.accountRepo.UpdateBalance(ctx, tx, from, amount.Format(newFromBalance), fromAccount.Version); err != nil {
		return err
	}

	if err := s.accountRepo.EnsureExists(ctx, tx, to); err != nil {
		return err
	}
	toAccount, err := s.accountRepo.GetByAddress(ctx, tx, to)
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
	if err := s.accountRepo.UpdateBalance(ctx, tx, to, amount.Format(newToBalance), toAccount.Version); err != nil {
		return err
	}

	if err := appendEntry(ctx, tx, s.ledgerRepo, model.LedgerKindToken, entryType, from, to, v, -1,
		fromBalance, newFromBalance, refNo, ""); err != nil {
		return err
	}
	return appendEntry(ctx, tx, s.ledgerRepo, model.LedgerKindToken, entryType, to, from, v, +1,
		toBalance, newToBalance, refNo, "")
}

// Approve 绝对值授权
// 与并发代扣之间存在授权重置竞态：调用方应先授权归零再重设，
// 或改用增量接口
func (s *LedgerService) Approve(ctx context.Context, caller, spender, value string) error {
	return s.setApproval(ctx, caller, spender, value, func(_, v *uint256.Int) (*uint256.Int, error) {
		return v, nil
	})
}

// IncreaseApproval 增量提升授权额度（规避重置竞态）
func (s *LedgerService) IncreaseApproval(ctx context.Context, caller, spender, value string) error {
	return s.setApproval(ctx, caller, spender, value, amount.Add)
}

// DecreaseApproval 增量降低授权额度，降到负数时截断为零
func (s *LedgerService) DecreaseApproval(ctx context.Context, caller, spender, value string) error {
	return s.setApproval(ctx, caller, spender, value, func(current, v *uint256.Int) (*uint256.Int, error) {
		if amount.Gt(v, current) {
			return amount.Zero(), nil
		}
		return amount.Sub(current, v)
	})
}

func (s *LedgerService) setApproval(ctx context.Context, caller, spender, value string,
	compute func(current, v *uint256.Int) (*uint256.Int, error)) error {

	caller, err := addr.Normalize(caller)
	if err != nil {
		return err
	}
	spender, err = addr.Normalize(spender)
	if err != nil {
		return err
	}
	v, err := amount.Parse(value)
	if err != nil {
		return err
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.allowanceRepo.EnsureExists(ctx, tx, caller, spender); err != nil {
			return err
		}
		allowance, err := s.allowanceRepo.Get(ctx, tx, caller, spender)
		if err != nil {
			return err
		}
		current, err := amount.Parse(allowance.Amount)
		if err != nil {
			return err
		}
		next, err := compute(current, v)
		if err != nil {
			return err
		}
		if err := s.allowanceRepo.UpdateAmount(ctx, tx, caller, spender, amount.Format(next), allowance.Version); err != nil {
			return err
		}
		return enqueueEvent(ctx, tx, s.outboxRepo, s.cfg.Kafka.Topic.TokenEvents,
			caller, model.EventApproval, map[string]interface{}{
				"owner":   caller,
				"spender": spender,
				"value":   amount.Format(next),
			})
	})
	if err != nil {
		return err
	}

	log.Printf("授权已更新: owner=%s, spender=%s", caller, spender)
	return nil
}

// Burn 销毁：同时扣减持有者余额与总供应量，不可逆
func (s *LedgerService) Burn(ctx context.Context, caller, value string) error {
	caller, err := addr.Normalize(caller)
	if err != nil {
		return err
	}
	v, err := amount.Parse(value)
	if err != nil {
		return err
	}

	state, err := s.tokenRepo.Get(ctx)
	if err != nil {
		return err
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		account, err := s.accountRepo.GetByAddress(ctx, tx, caller)
		if err != nil {
			if err == repository.ErrAccountNotFound {
				return ErrBalanceNotEnough
			}
			return err
		}
		balance, err := amount.Parse(account.Balance)
		if err != nil {
			return err
		}
		if amount.Lt(balance, v) {
			return ErrBalanceNotEnough
		}

		newBalance, err := amount.Sub(balance, v)
		if err != nil {
			return err
		}
		if err := s.accountRepo.UpdateBalance(ctx, tx, caller, amount.Format(newBalance), account.Version); err != nil {
			return err
		}

		totalSupply, err := amount.Parse(state.TotalSupply)
		if err != nil {
			return err
		}
		newSupply, err := amount.Sub(totalSupply, v)
		if err != nil {
			return err
		}
		if err := s.tokenRepo.UpdateTotalSupply(ctx, tx, amount.Format(newSupply), state.Version); err != nil {
			return err
		}

		if err := appendEntry(ctx, tx, s.ledgerRepo, model.LedgerKindToken, model.LedgerEntryBurn,
			caller, "", v, -1, balance, newBalance, "", "销毁"); err != nil {
			return err
		}
		return enqueueEvent(ctx, tx, s.outboxRepo, s.cfg.Kafka.Topic.TokenEvents,
			caller, model.EventBurn, map[string]interface{}{
				"burner": caller,
				"value":  amount.Format(v),
			})
	})
	if err != nil {
		return err
	}

	log.Printf("销毁成功: burner=%s, value=%s", caller, amount.Format(v))
	return nil
}

// BalanceOf 查询余额（未开户视为零）
func (s *LedgerService) BalanceOf(ctx context.Context, address string) (string, error) {
	address, err := addr.Normalize(address)
	if err != nil {
		return "", err
	}
	account, err := s.accountRepo.GetByAddress(ctx, nil, address)
	if err != nil {
		if err == repository.ErrAccountNotFound {
			return "0", nil
		}
		return "", err
	}
	return account.Balance, nil
}

// AllowanceOf 查询授权额度（未授权视为零）
func (s *LedgerService) AllowanceOf(ctx context.Context, owner, spender string) (string, error) {
	owner, err := addr.Normalize(owner)
	if err != nil {
		return "", err
	}
	spender, err = addr.Normalize(spender)
	if err != nil {
		return "", err
	}
	allowance, err := s.allowanceRepo.Get(ctx, nil, owner, spender)
	if err != nil {
		return "", err
	}
	if allowance == nil {
		return "0", nil
	}
	return allowance.Amount, nil
}

// ListEntries 查询地址的账本流水
func (s *LedgerService) ListEntries(ctx context.Context, address string, page, pageSize int) ([]*model.LedgerEntry, int64, error) {
	address, err := addr.Normalize(address)
	if err != nil {
		return nil, 0, err
	}
	return s.ledgerRepo.ListByAddress(ctx, address, page, pageSize)
}

