package repository

import (
	"context"
	"errors"

	"tokensale/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AllowanceRepository struct {
	db *gorm.DB
}

func NewAllowanceRepository(db *gorm.DB) *AllowanceRepository {
	return &AllowanceRepository{db: db}
}

// Get 查询授权额度，不存在时返回 nil（视为零额度）
func (r *AllowanceRepository) Get(ctx context.Context, tx *gorm.DB, owner, spender string) (*model.Allowance, error) {
	if tx == nil {
		tx = r.db
	}
	var allowance model.Allowance
	err := tx.WithContext(ctx).
		Where("owner = ? AND spender = ?", owner, spender).
		First(&allowance).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &allowance, nil
}

func (r *AllowanceRepository) GetOrCreate(ctx context.Context, owner, spender string) (*model.Allowance, error) {
	allowance, err := r.Get(ctx, nil, owner, spender)
	if err != nil {
		return nil, err
	}
	if allowance != nil {
		return allowance, nil
	}

	newAllowance := &model.Allowance{
		Owner:   owner,
		Spender: spender,
		Amount:  "0",
	}

	err = r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "owner"}, {Name: "spender"}},
			DoNothing: true,
		}).
		Create(newAllowance).Error
	if err != nil {
		return nil, err
	}

	allowance, err = r.Get(ctx, nil, owner, spender)
	if err != nil {
		return nil, err
	}
	if allowance == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return allowance, nil
}

// EnsureExists 在事务内确保额度行存在（零额度，冲突跳过）
func (r *AllowanceRepository) EnsureExists(ctx context.Context, tx *gorm.DB, owner, spender string) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "owner"}, {Name: "spender"}},
			DoNothing: true,
		}).
		Create(&model.Allowance{Owner: owner, Spender: spender, Amount: "0"}).Error
}

// UpdateAmount 按版本号条件写入新额度
func (r *AllowanceRepository) UpdateAmount(ctx context.Context, tx *gorm.DB, owner, spender, newAmount string, version int) error {
	if tx == nil {
		tx = r.db
	}

	result := tx.WithContext(ctx).
		Model(&model.Allowance{}).
		Where("owner = ? AND spender = ? AND version = ?", owner, spender, version).
		Updates(map[string]interface{}{
			"amount":  newAmount,
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
