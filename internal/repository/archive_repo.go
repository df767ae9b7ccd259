package repository

import (
	"context"
	"fmt"

	"github.com/yuqie6/ActivityRank/internal/schema"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ArchiveRepository 冷存储仓储（只追加）
type ArchiveRepository struct {
	db *gorm.DB
}

// NewArchiveRepository 创建冷存储仓储
func NewArchiveRepository(db *gorm.DB) *ArchiveRepository {
	return &ArchiveRepository{db: db}
}

// BatchInsert 写入归档行；同一次归档中已存在的行跳过
func (r *ArchiveRepository) BatchInsert(ctx context.Context, rows []schema.ArchivedActivity) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(&rows, 100)
	if res.Error != nil {
		return 0, fmt.Errorf("写入归档失败: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// CountByOperation 统计某次归档写入的行数
func (r *ArchiveRepository) CountByOperation(ctx context.Context, opID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&schema.ArchivedActivity{}).
		Where("archive_operation_id = ?", opID).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("统计归档失败: %w", err)
	}
	return count, nil
}
