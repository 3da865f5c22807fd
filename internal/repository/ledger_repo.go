package repository

import (
	"context"

	"tokensale/internal/model"

	"gorm.io/gorm"
)

// LedgerRepository 账本流水仓储，只追加不修改
type LedgerRepository struct {
	db *gorm.DB
}

func NewLedgerRepository(db *gorm.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

func (r *LedgerRepository) Create(ctx context.Context, tx *gorm.DB, entry *model.LedgerEntry) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(entry).Error
}

func (r *LedgerRepository) ListByAddress(ctx context.Context, address string, page, pageSize int) ([]*model.LedgerEntry, int64, error) {
	var entries []*model.LedgerEntry
	var total int64

	query := r.db.WithContext(ctx).Model(&model.LedgerEntry{}).Where("address = ?", address)

	err := query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	err = query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&entries).Error

	return entries, total, err
}

// CountByType 按类型统计流水条数（审计侧快速检查用）
func (r *LedgerRepository) CountByType(ctx context.Context, kind, entryType string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.LedgerEntry{}).
		Where("kind = ? AND type = ?", kind, entryType).
		Count(&count).Error
	return count, err
}

// ListByType 按类型分批取流水（守恒审计累加销毁额用）
func (r *LedgerRepository) ListByType(ctx context.Context, kind, entryType string, offset, limit int) ([]*model.LedgerEntry, error) {
	var entries []*model.LedgerEntry
	err := r.db.WithContext(ctx).
		Where("kind = ? AND type = ?", kind, entryType).
		Order("id ASC").
		Offset(offset).
		Limit(limit).
		Find(&entries).Error
	return entries, err
}
