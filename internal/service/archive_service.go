package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/yuqie6/ActivityRank/internal/schema"
)

// ArchiveTimestampLayout 归档时间戳格式，同一次归档共享
const ArchiveTimestampLayout = "2006-01-02_15-04-05"

// ArchiveResult 归档结果
type ArchiveResult struct {
	Count       int    `json:"count"`
	Deleted     int64  `json:"deleted"`
	OperationID string `json:"operation_id,omitempty"`
	ArchivedAt  string `json:"archived_at,omitempty"`
}

// ArchiveService 归档并清空线上流水（管理员手动触发，需维护窗口）
type ArchiveService struct {
	ledger LedgerStore
	cold   ArchiveStore
	now    func() time.Time
	newID  func() string
}

// NewArchiveService 创建归档服务
func NewArchiveService(ledger LedgerStore, cold ArchiveStore) *ArchiveService {
	return &ArchiveService{
		ledger: ledger,
		cold:   cold,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// ArchiveAndClear 复制全部流水到冷表后删除已归档的行
// 两阶段之间崩溃会留下两份数据；同一 operation 重跑不会重复归档。
func (s *ArchiveService) ArchiveAndClear(ctx context.Context) (ArchiveResult, error) {
	rows, err := s.ledger.ListAll(ctx)
	if err != nil {
		slog.Error("读取待归档流水失败", "error", err)
		return ArchiveResult{}, storeErr("list_all", err)
	}
	if len(rows) == 0 {
		slog.Info("流水为空，无需归档")
		return ArchiveResult{}, nil
	}

	res := ArchiveResult{
		Count:       len(rows),
		OperationID: s.newID(),
		ArchivedAt:  s.now().Format(ArchiveTimestampLayout),
	}

	cold := make([]schema.ArchivedActivity, 0, len(rows))
	ids := make([]int64, 0, len(rows))
	for _, r := range rows {
		cold = append(cold, schema.NewArchivedActivity(r, res.OperationID, res.ArchivedAt))
		ids = append(ids, r.ID)
	}

	if _, err := s.cold.BatchInsert(ctx, cold); err != nil {
		slog.Error("写入归档表失败，未清空流水", "operation_id", res.OperationID, "error", err)
		return ArchiveResult{}, storeErr("archive_insert", err)
	}

	deleted, err := s.ledger.DeleteByIDs(ctx, ids)
	res.Deleted = deleted
	if err != nil {
		slog.Error("清空流水失败，归档副本已写入", "operation_id", res.OperationID, "deleted", deleted, "error", err)
		return res, storeErr("delete", err)
	}

	slog.Info("归档完成", "operation_id", res.OperationID, "archived_at", res.ArchivedAt, "count", res.Count)
	return res, nil
}
