package repository

import (
	"context"
	"errors"
	"time"

	"tokensale/internal/model"

	"gorm.io/gorm"
)

var (
	ErrSaleNotInitialized = errors.New("销售状态未初始化")
	ErrStageInvalid       = errors.New("销售阶段不允许该操作")
)

type SaleRepository struct {
	db *gorm.DB
}

func NewSaleRepository(db *gorm.DB) *SaleRepository {
	return &SaleRepository{db: db}
}

func (r *SaleRepository) Get(ctx context.Context) (*model.Sale, error) {
	var sale model.Sale
	err := r.db.WithContext(ctx).First(&sale).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSaleNotInitialized
		}
		return nil, err
	}
	return &sale, nil
}

// UpdateStage 推进销售阶段
// 先查转移表拒绝非法流转，再用条件更新保证并发下只成功一次；
// RowsAffected == 0 说明阶段已被其他事务推进
func (r *SaleRepository) UpdateStage(ctx context.Context, tx *gorm.DB, fromStage, toStage string, startAt, endAt *time.Time) error {
	if !model.CanTransitionTo(fromStage, toStage) {
		return ErrStageInvalid
	}

	if tx == nil {
		tx = r.db
	}

	updates := map[string]interface{}{
		"stage":   toStage,
		"version": gorm.Expr("version + 1"),
	}
	if startAt != nil {
		updates["start_at"] = startAt
	}
	if endAt != nil {
		updates["end_at"] = endAt
	}

	result := tx.WithContext(ctx).
		Model(&model.Sale{}).
		Where("stage = ?", fromStage).
		Updates(updates)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrStageInvalid
	}
	return nil
}

// UpdateRate 修改兑换比例，仅 SETUP 阶段允许
func (r *SaleRepository) UpdateRate(ctx context.Context, tx *gorm.DB, rate uint64) error {
	if tx == nil {
		tx = r.db
	}

	result := tx.WithContext(ctx).
		Model(&model.Sale{}).
		Where("stage = ?", model.SaleStageSetup).
		Updates(map[string]interface{}{
			"rate":    rate,
			"version": gorm.Expr("version + 1"),
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrStageInvalid
	}
	return nil
}

// UpdateRaised 写入新的累计筹集额（按版本号条件更新）
func (r *SaleRepository) UpdateRaised(ctx context.Context, tx *gorm.DB, newRaised string, version int) error {
	if tx == nil {
		tx = r.db
	}

	result := tx.WithContext(ctx).
		Model(&model.Sale{}).
		Where("version = ?", version).
		Updates(map[string]interface{}{
			"wei_raised": newRaised,
			"version":    gorm.Expr("version + 1"),
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrOptimisticLock
	}
	return nil
}

// SetPaused 切换暂停开关（不影响阶段）
func (r *SaleRepository) SetPaused(ctx context.Context, tx *gorm.DB, paused bool) error {
	if tx == nil {
		tx = r.db
	}

	result := tx.WithContext(ctx).
		Model(&model.Sale{}).
		Where("paused = ?", !paused).
		Updates(map[string]interface{}{
			"paused":  paused,
			"version": gorm.Expr("version + 1"),
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrStageInvalid
	}
	return nil
}

// UpdateOwner 转移销售所有权
func (r *SaleRepository) UpdateOwner(ctx context.Context, tx *gorm.DB, newOwner string, version int) error {
	if tx == nil {
		tx = r.db
	}

	result := tx.WithContext(ctx).
		Model(&model.Sale{}).
		Where("version = ?", version).
		Updates(map[string]interface{}{
			"owner_address": newOwner,
			"version":       gorm.Expr("version + 1"),
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrOptimisticLock
	}
	return nil
}
