package service

import (
	"context"
	"fmt"

	"github.com/yuqie6/ActivityRank/internal/schema"
)

// Gate 去重闸门：写入前的读检查
// 读写之间存在竞态窗口，评论由 dedup_key 唯一索引兜底。
type Gate struct {
	ledger    LedgerStore
	referrals ReferralStore
}

// NewGate 创建去重闸门
func NewGate(ledger LedgerStore, referrals ReferralStore) *Gate {
	return &Gate{ledger: ledger, referrals: referrals}
}

// IsEligible 判断候选事件是否可以计分
// joining/referral 时 userID 为被邀请人。
func (g *Gate) IsEligible(ctx context.Context, userID int64, kind schema.Kind, postID int64) (bool, error) {
	switch kind {
	case schema.KindComment:
		exists, err := g.ledger.ExistsComment(ctx, userID, postID)
		if err != nil {
			return false, storeErr("exists_comment", err)
		}
		return !exists, nil
	case schema.KindReaction:
		return true, nil
	case schema.KindJoining, schema.KindReferral:
		if g.referrals == nil {
			return false, fmt.Errorf("referral store not configured")
		}
		exists, err := g.referrals.ExistsForReferred(ctx, userID)
		if err != nil {
			return false, storeErr("exists_referral", err)
		}
		return !exists, nil
	default:
		return false, fmt.Errorf("%w: unknown kind %q", ErrValidation, kind)
	}
}
