package repository

import (
	"context"
	"errors"

	"tokensale/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ContributionRepository struct {
	db *gorm.DB
}

func NewContributionRepository(db *gorm.DB) *ContributionRepository {
	return &ContributionRepository{db: db}
}

// Get 查询出资记录，不存在时返回 nil（视为零出资）
func (r *ContributionRepository) Get(ctx context.Context, tx *gorm.DB, address string) (*model.Contribution, error) {
	if tx == nil {
		tx = r.db
	}
	var contribution model.Contribution
	err := tx.WithContext(ctx).Where("address = ?", address).First(&contribution).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &contribution, nil
}

func (r *ContributionRepository) GetOrCreate(ctx context.Context, address string) (*model.Contribution, error) {
	contribution, err := r.Get(ctx, nil, address)
	if err != nil {
		return nil, err
	}
	if contribution != nil {
		return contribution, nil
	}

	newContribution := &model.Contribution{
		Address: address,
		Amount:  "0",
	}

	err = r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "address"}},
			DoNothing: true,
		}).
		Create(newContribution).Error
	if err != nil {
		return nil, err
	}

	contribution, err = r.Get(ctx, nil, address)
	if err != nil {
		return nil, err
	}
	if contribution == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return contribution, nil
}

// EnsureExists 幂等建行（零出资），并发重复创建由唯一索引兜底
func (r *ContributionRepository) EnsureExists(ctx context.Context, tx *gorm.DB, address string) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "address"}},
			DoNothing: true,
		}).
		Create(&model.Contribution{Address: address, Amount: "0"}).Error
}

// UpdateAmount 按版本号条件写入累计出资额
// 购买时只增不减；退款时一次性归零，归零先于打款（checks-effects-interactions）
func (r *ContributionRepository) UpdateAmount(ctx context.Context, tx *gorm.DB, address, newAmount string, version int) error {
	if tx == nil {
		tx = r.db
	}

	result := tx.WithContext(ctx).
		Model(&model.Contribution{}).
		Where("address = ? AND version = ?", address, version).
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
