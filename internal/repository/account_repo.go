package repository

import (
	"context"
	"errors"

	"tokensale/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrAccountNotFound = errors.New("账户不存在")
	ErrOptimisticLock  = errors.New("乐观锁冲突，请重试")
)

// AccountRepository 代币账户仓储
// 余额是 256 位十进制字符串，比较和加减在服务层完成；仓储只负责
// 带版本号的条件更新，版本不匹配视为并发冲突
type AccountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) GetByAddress(ctx context.Context, tx *gorm.DB, address string) (*model.TokenAccount, error) {
	if tx == nil {
		tx = r.db
	}
	var account model.TokenAccount
	err := tx.WithContext(ctx).Where("address = ?", address).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

// GetOrCreate 查询账户，不存在则以零余额创建
func (r *AccountRepository) GetOrCreate(ctx context.Context, address string) (*model.TokenAccount, error) {
	account, err := r.GetByAddress(ctx, nil, address)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, ErrAccountNotFound) {
		return nil, err
	}

	newAccount := &model.TokenAccount{
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
func (r *AccountRepository) EnsureExists(ctx context.Context, tx *gorm.DB, address string) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "address"}},
			DoNothing: true,
		}).
		Create(&model.TokenAccount{Address: address, Balance: "0"}).Error
}

// UpdateBalance 按版本号条件写入新余额
// RowsAffected == 0 说明版本已被其他事务推进，调用方整体回滚重试
func (r *AccountRepository) UpdateBalance(ctx context.Context, tx *gorm.DB, address, newBalance string, version int) error {
	if tx == nil {
		tx = r.db
	}

	result := tx.WithContext(ctx).
		Model(&model.TokenAccount{}).
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

// ListAll 分批列出全部账户（守恒审计用）
func (r *AccountRepository) ListAll(ctx context.Context, offset, limit int) ([]*model.TokenAccount, error) {
	var accounts []*model.TokenAccount
	err := r.db.WithContext(ctx).
		Order("id ASC").
		Offset(offset).
		Limit(limit).
		Find(&accounts).Error
	return accounts, err
}
