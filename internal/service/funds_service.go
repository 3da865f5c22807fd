package service

import (
	"context"
	"errors"
	"log"

	"tokensale/internal/config"
	"tokensale/internal/model"
	"tokensale/internal/repository"
	"tokensale/pkg/addr"
	"tokensale/pkg/amount"
	"tokensale/pkg/idgen"

	"gorm.io/gorm"
)

// FundsService 价值账本（购买附带价值的入口）
type FundsService struct {
	db         *gorm.DB
	cfg        *config.Config
	fundsRepo  *repository.FundsRepository
	ledgerRepo *repository.LedgerRepository
}

func NewFundsService(db *gorm.DB, cfg *config.Config) *FundsService {
	return &FundsService{
		db:         db,
		cfg:        cfg,
		fundsRepo:  repository.NewFundsRepository(db),
		ledgerRepo: repository.NewLedgerRepository(db),
	}
}

type DepositRequest struct {
	Address string `json:"address" binding:"required"`
	Amount  string `json:"amount" binding:"required"`
}

// Deposit 充值：为地址的价值账户入账
func (s *FundsService) Deposit(ctx context.Context, req *DepositRequest) (string, error) {
	address, err := addr.Normalize(req.Address)
	if err != nil {
		return "", err
	}
	if addr.IsZero(address) {
		return "", ErrInvalidRecipient
	}
	v, err := amount.Parse(req.Amount)
	if err != nil {
		return "", err
	}

	account, err := s.fundsRepo.GetOrCreate(ctx, address)
	if err != nil {
		return "", err
	}
	balance, err := amount.Parse(account.Balance)
	if err != nil {
		return "", err
	}
	newBalance, err := amount.Add(balance, v)
	if err != nil {
		return "", err
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.fundsRepo.UpdateBalance(ctx, tx, address, amount.Format(newBalance), account.Version); err != nil {
			return err
		}
		return appendEntry(ctx, tx, s.ledgerRepo, model.LedgerKindFunds, model.LedgerEntryDeposit,
			address, "", v, +1, balance, newBalance, idgen.GenerateTransactionNo(), "充值")
	})
	if err != nil {
		return "", err
	}

	log.Printf("充值成功: address=%s, amount=%s, balance=%s", address, amount.Format(v), amount.Format(newBalance))
	return amount.Format(newBalance), nil
}

// BalanceOf 查询价值余额（无账户视为零）
func (s *FundsService) BalanceOf(ctx context.Context, address string) (string, error) {
	address, err := addr.Normalize(address)
	if err != nil {
		return "", err
	}
	account, err := s.fundsRepo.GetByAddress(ctx, nil, address)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return "0", nil
		}
		return "", err
	}
	return account.Balance, nil
}
