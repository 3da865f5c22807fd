package repository

import (
	"context"
	"errors"

	"tokensale/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FundsRepository 价值账户仓储，结构与代币账户一致但记账在独立账本
type FundsRepository struct {
	db *gorm.DB
}

func NewFundsRepository(db *gorm.DB) *FundsRepository {
	return &FundsRepository{db: db}
}

func (r *FundsRepository) GetByAddress(ctx context.Context, tx *gorm.DB, address string) (*model.FundsAccount, error) {
	if tx == nil {
		tx = r.db
	}
	var account model.FundsAccount
	err := tx.WithContext(ctx).Where("address = ?", address).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

func (r *FundsRepository) GetOrCreate(ctx context.Context, address string) (*model.FundsAccount, error) {
	account, err := r.GetByAddress(ctx, nil, address)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, ErrAccountNotFound) {
		return nil, err
	}

	newAccount := &model.FundsAccount{
		Address: address,
		Balance: "0",
	}

	err = r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "address"}},
			DoNothing: true,
		}).
		Create(newAccount).Error
	if err != nil {
		return nil, err
	}

	return r.GetByAddress(ctx, nil, address)
}

// EnsureExists 在事务内确保账户行存在（零余额，冲突跳过）
func (r *FundsRepository) EnsureExists(ctx context.Context, tx *gorm.DB, address string) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "address"}},
			DoNothing: true,
		}).
		Create(&model.FundsAccount{Address: address, Balance: "0"}).Error
}

func (r *FundsRepository) UpdateBalance(ctx context.Context, tx *gorm.DB, address, newBalance string, version int) error {
	if tx == nil {
		tx = r.db
	}

	result := tx.WithContext(ctx).
		Model(&model.FundsAccount{}).
		Where("address = ? AND version = ?", address, version).
		Updates(map[string]interface{}{
			"balance": newBalance,
			"version": gorm.Expr("version + 1"),
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrOptimisticLock
	}
	return nil
}
