package repository

import (
	"context"

	"tokensale/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type WhitelistRepository struct {
	db *gorm.DB
}

func NewWhitelistRepository(db *gorm.DB) *WhitelistRepository {
	return &WhitelistRepository{db: db}
}

// Add 批量加入白名单，重复地址静默跳过（幂等）
func (r *WhitelistRepository) Add(ctx context.Context, tx *gorm.DB, addresses []string) error {
	if tx == nil {
		tx = r.db
	}

	entries := make([]*model.WhitelistEntry, 0, len(addresses))
	for _, address := range addresses {
		entries = append(entries, &model.WhitelistEntry{Address: address})
	}

	return tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "address"}},
			DoNothing: true,
		}).
		Create(&entries).Error
}

// Exists 判断地址是否在白名单内
func (r *WhitelistRepository) Exists(ctx context.Context, address string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.WhitelistEntry{}).
		Where("address = ?", address).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
