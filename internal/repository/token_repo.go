package repository

import (
	"context"
	"errors"

	"tokensale/internal/model"

	"gorm.io/gorm"
)

var (
	ErrTokenNotInitialized     = errors.New("代币状态未初始化")
	ErrSaleAlreadyBound        = errors.New("销售方地址已绑定，禁止重复设置")
	ErrTransfersAlreadyEnabled = errors.New("转账开关已开启")
)

type TokenRepository struct {
	db *gorm.DB
}

func NewTokenRepository(db *gorm.DB) *TokenRepository {
	return &TokenRepository{db: db}
}

// Get 读取单行代币状态
func (r *TokenRepository) Get(ctx context.Context) (*model.TokenState, error) {
	var state model.TokenState
	err := r.db.WithContext(ctx).First(&state).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTokenNotInitialized
		}
		return nil, err
	}
	return &state, nil
}

// BindSale 绑定销售方地址（一次性写入单元）
// 条件更新要求 sale_address 仍为空串，已绑定时 RowsAffected == 0
func (r *TokenRepository) BindSale(ctx context.Context, tx *gorm.DB, saleAddress string) error {
	if tx == nil {
		tx = r.db
	}

	result := tx.WithContext(ctx).
		Model(&model.TokenState{}).
		Where("sale_address = ''").
		Updates(map[string]interface{}{
			"sale_address": saleAddress,
			"version":      gorm.Expr("version + 1"),
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrSaleAlreadyBound
	}
	return nil
}

// EnableTransfers 开启全局转账（单向 false→true）
func (r *TokenRepository) EnableTransfers(ctx context.Context, tx *gorm.DB) error {
	if tx == nil {
		tx = r.db
	}

	result := tx.WithContext(ctx).
		Model(&model.TokenState{}).
		Where("transfers_enabled = ?", false).
		Updates(map[string]interface{}{
			"transfers_enabled": true,
			"version":           gorm.Expr("version + 1"),
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrTransfersAlreadyEnabled
	}
	return nil
}

// UpdateTotalSupply 销毁后写入新的总供应量
func (r *TokenRepository) UpdateTotalSupply(ctx context.Context, tx *gorm.DB, newSupply string, version int) error {
	if tx == nil {
		tx = r.db
	}

	result := tx.WithContext(ctx).
		Model(&model.TokenState{}).
		Where("version = ?", version).
		Updates(map[string]interface{}{
			"total_supply": newSupply,
			"version":      gorm.Expr("version + 1"),
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrOptimisticLock
	}
	return nil
}

// UpdateOwner 转移代币所有权
func (r *TokenRepository) UpdateOwner(ctx context.Context, tx *gorm.DB, newOwner string, version int) error {
	if tx == nil {
		tx = r.db
	}

	result := tx.WithContext(ctx).
		Model(&model.TokenState{}).
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
