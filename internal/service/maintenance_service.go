package service

import (
	"context"
	"log/slog"
	"time"
)

// MaintenanceService 运维操作：清理机器人流水、回填展示名
type MaintenanceService struct {
	ledger      LedgerStore
	callTimeout time.Duration
}

// NewMaintenanceService 创建运维服务
func NewMaintenanceService(ledger LedgerStore, callTimeout time.Duration) *MaintenanceService {
	if callTimeout <= 0 {
		callTimeout = defaultCallTimeout
	}
	return &MaintenanceService{ledger: ledger, callTimeout: callTimeout}
}

// PurgeSubjects 删除指定用户（机器人账号）的全部流水
func (s *MaintenanceService) PurgeSubjects(ctx context.Context, userIDs []int64) (int64, error) {
	if len(userIDs) == 0 {
		return 0, nil
	}
	deleted, err := s.ledger.DeleteByUserIDs(ctx, userIDs)
	if err != nil {
		slog.Error("清理机器人流水失败", "users", len(userIDs), "error", err)
		return 0, storeErr("delete_users", err)
	}
	return deleted, nil
}

// BackfillDisplayName 为缺名字的历史流水补齐 username / first_name，尽力而为
func (s *MaintenanceService) BackfillDisplayName(ctx context.Context, p Profile) (int64, error) {
	if p.UserID == 0 || (p.Username == "" && p.FirstName == "") {
		return 0, nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()
	n, err := s.ledger.BackfillNames(ctx, p.UserID, p.Username, p.FirstName)
	if err != nil {
		slog.Warn("回填展示名失败", "user_id", p.UserID, "error", err)
		return 0, storeErr("backfill_names", err)
	}
	if n > 0 {
		slog.Debug("回填展示名", "user_id", p.UserID, "rows", n)
	}
	return n, nil
}
