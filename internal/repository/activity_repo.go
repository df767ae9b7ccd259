package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/yuqie6/ActivityRank/internal/schema"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrDuplicate 唯一约束命中：同一评论去重键已存在
var ErrDuplicate = errors.New("duplicate activity")

const deleteChunkSize = 500

// ActivityRepository 积分流水仓储
type ActivityRepository struct {
	db *gorm.DB
}

// NewActivityRepository 创建流水仓储
func NewActivityRepository(db *gorm.DB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

// Insert 写入单条流水
// 带去重键的行走条件插入，冲突时返回 ErrDuplicate。
func (r *ActivityRepository) Insert(ctx context.Context, event *schema.ActivityEvent) error {
	if event == nil {
		return fmt.Errorf("event is nil")
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(event)
	if res.Error != nil {
		return fmt.Errorf("写入积分流水失败: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrDuplicate
	}
	return nil
}

// BatchInsert 批量写入流水（事务包裹），返回实际写入行数
func (r *ActivityRepository) BatchInsert(ctx context.Context, events []schema.ActivityEvent) (int64, error) {
	if len(events) == 0 {
		return 0, nil
	}

	start := time.Now()
	var inserted int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(&events, 100)
		inserted = res.RowsAffected
		return res.Error
	})
	if err != nil {
		slog.Error("批量写入积分流水失败", "count", len(events), "error", err)
		return 0, fmt.Errorf("批量写入积分流水失败: %w", err)
	}

	slog.Debug("批量写入积分流水成功", "count", inserted, "duration", time.Since(start))
	return inserted, nil
}

// ExistsComment 用户是否已评论过该帖子
func (r *ActivityRepository) ExistsComment(ctx context.Context, userID, postID int64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&schema.ActivityEvent{}).
		Where("user_id = ? AND post_id = ? AND activity_type = ?", userID, postID, schema.KindComment).
		Limit(1).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("查询评论记录失败: %w", err)
	}
	return count > 0, nil
}

// CountComments 统计帖子下已计分的评论数
func (r *ActivityRepository) CountComments(ctx context.Context, postID int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&schema.ActivityEvent{}).
		Where("post_id = ? AND activity_type = ?", postID, schema.KindComment).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("统计评论数失败: %w", err)
	}
	return count, nil
}

// FindPostTimestamp 从已有流水中找帖子发布时间，找不到返回 nil
func (r *ActivityRepository) FindPostTimestamp(ctx context.Context, postID int64) (*int64, error) {
	var rows []schema.ActivityEvent
	err := r.db.WithContext(ctx).
		Select("post_timestamp").
		Where("post_id = ? AND post_timestamp IS NOT NULL", postID).
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("查询帖子时间失败: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0].PostTimestamp, nil
}

// ListSince 查询 sinceMs 之后的流水；sinceMs<=0 表示全部。按写入顺序返回。
func (r *ActivityRepository) ListSince(ctx context.Context, sinceMs int64) ([]schema.ActivityEvent, error) {
	var events []schema.ActivityEvent
	query := r.db.WithContext(ctx).Order("id ASC")
	if sinceMs > 0 {
		query = query.Where("timestamp >= ?", sinceMs)
	}
	if err := query.Find(&events).Error; err != nil {
		return nil, fmt.Errorf("查询积分流水失败: %w", err)
	}
	return events, nil
}

// ListAll 全量流水
func (r *ActivityRepository) ListAll(ctx context.Context) ([]schema.ActivityEvent, error) {
	return r.ListSince(ctx, 0)
}

// Count 统计流水总数
func (r *ActivityRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&schema.ActivityEvent{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("统计积分流水失败: %w", err)
	}
	return count, nil
}

// DeleteByIDs 按 ID 删除（分批，避免 IN 参数过多）
func (r *ActivityRepository) DeleteByIDs(ctx context.Context, ids []int64) (int64, error) {
	var deleted int64
	for start := 0; start < len(ids); start += deleteChunkSize {
		end := min(start+deleteChunkSize, len(ids))
		res := r.db.WithContext(ctx).
			Where("id IN ?", ids[start:end]).
			Delete(&schema.ActivityEvent{})
		if res.Error != nil {
			return deleted, fmt.Errorf("删除积分流水失败: %w", res.Error)
		}
		deleted += res.RowsAffected
	}
	return deleted, nil
}

// DeleteByUserIDs 删除指定用户的全部流水（清理机器人账号）
func (r *ActivityRepository) DeleteByUserIDs(ctx context.Context, userIDs []int64) (int64, error) {
	if len(userIDs) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).
		Where("user_id IN ?", userIDs).
		Delete(&schema.ActivityEvent{})
	if res.Error != nil {
		return 0, fmt.Errorf("删除用户流水失败: %w", res.Error)
	}
	slog.Info("清理用户流水", "deleted", res.RowsAffected, "users", len(userIDs))
	return res.RowsAffected, nil
}

// BackfillNames 为缺少展示名的历史流水补齐 username / first_name
func (r *ActivityRepository) BackfillNames(ctx context.Context, userID int64, username, firstName string) (int64, error) {
	var updated int64
	if u := schema.StrPtr(username); u != nil {
		res := r.db.WithContext(ctx).
			Model(&schema.ActivityEvent{}).
			Where("user_id = ? AND username IS NULL", userID).
			Update("username", *u)
		if res.Error != nil {
			return 0, fmt.Errorf("回填 username 失败: %w", res.Error)
		}
		updated += res.RowsAffected
	}
	if f := schema.StrPtr(firstName); f != nil {
		res := r.db.WithContext(ctx).
			Model(&schema.ActivityEvent{}).
			Where("user_id = ? AND first_name IS NULL", userID).
			Update("first_name", *f)
		if res.Error != nil {
			return updated, fmt.Errorf("回填 first_name 失败: %w", res.Error)
		}
		updated += res.RowsAffected
	}
	return updated, nil
}
