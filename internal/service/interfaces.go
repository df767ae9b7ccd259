package service

import (
	"context"
	"time"

	"github.com/yuqie6/ActivityRank/internal/eventbus"
	"github.com/yuqie6/ActivityRank/internal/schema"
)

// 仓储/外部依赖的最小接口集合（ISP）

type LedgerStore interface {
	Insert(ctx context.Context, event *schema.ActivityEvent) error
	BatchInsert(ctx context.Context, events []schema.ActivityEvent) (int64, error)
	ExistsComment(ctx context.Context, userID, postID int64) (bool, error)
	CountComments(ctx context.Context, postID int64) (int64, error)
	FindPostTimestamp(ctx context.Context, postID int64) (*int64, error)
	ListSince(ctx context.Context, sinceMs int64) ([]schema.ActivityEvent, error)
	ListAll(ctx context.Context) ([]schema.ActivityEvent, error)
	DeleteByIDs(ctx context.Context, ids []int64) (int64, error)
	DeleteByUserIDs(ctx context.Context, userIDs []int64) (int64, error)
	BackfillNames(ctx context.Context, userID int64, username, firstName string) (int64, error)
}

type ArchiveStore interface {
	BatchInsert(ctx context.Context, rows []schema.ArchivedActivity) (int64, error)
}

type ReferralStore interface {
	ExistsForReferred(ctx context.Context, referredID int64) (bool, error)
	Create(ctx context.Context, record *schema.ReferralRecord) (bool, error)
	CountByReferrer(ctx context.Context, referrerID int64) (int64, error)
}

// PendingStore 待确认邀请表（subject -> {referrer, expiry}）
type PendingStore interface {
	Put(ctx context.Context, userID int64, p schema.PendingReferral, ttl time.Duration) error
	Get(ctx context.Context, userID int64) (*schema.PendingReferral, error)
	Delete(ctx context.Context, userID int64) error
}

// MembershipChecker 群成员检查，任何错误都应视为 false
type MembershipChecker interface {
	IsMember(ctx context.Context, userID int64) bool
}

// Notifier 私信通知
type Notifier interface {
	Notify(ctx context.Context, userID int64, text string) error
}

type EventPublisher interface {
	Publish(evt eventbus.Event)
}
