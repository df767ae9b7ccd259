package repository

import (
	"context"
	"fmt"

	"github.com/yuqie6/ActivityRank/internal/schema"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ReferralRepository 邀请记录仓储
type ReferralRepository struct {
	db *gorm.DB
}

// NewReferralRepository 创建邀请记录仓储
func NewReferralRepository(db *gorm.DB) *ReferralRepository {
	return &ReferralRepository{db: db}
}

// ExistsForReferred 被邀请人是否已有记录
func (r *ReferralRepository) ExistsForReferred(ctx context.Context, referredID int64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&schema.ReferralRecord{}).
		Where("referred_id = ?", referredID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("查询邀请记录失败: %w", err)
	}
	return count > 0, nil
}

// Create 写入邀请记录；被邀请人已存在时返回 false（先到先得）
func (r *ReferralRepository) Create(ctx context.Context, rec *schema.ReferralRecord) (bool, error) {
	if rec == nil {
		return false, fmt.Errorf("referral is nil")
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(rec)
	if res.Error != nil {
		return false, fmt.Errorf("写入邀请记录失败: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// CountByReferrer 邀请人成功邀请数
func (r *ReferralRepository) CountByReferrer(ctx context.Context, referrerID int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&schema.ReferralRecord{}).
		Where("referrer_id = ?", referrerID).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("统计邀请数失败: %w", err)
	}
	return count, nil
}
