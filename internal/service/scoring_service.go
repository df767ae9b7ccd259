package service

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/yuqie6/ActivityRank/internal/eventbus"
	"github.com/yuqie6/ActivityRank/internal/schema"
)

const (
	EventPointsAwarded = "points.awarded"

	defaultCallTimeout = 10 * time.Second
)

// 跳过原因
const (
	SkipBot           = "bot"
	SkipAnonymous     = "anonymous"
	SkipNotReply      = "not_reply"
	SkipDuplicate     = "duplicate"
	SkipNoNewReaction = "no_new_reaction"
	SkipStoreError    = "store_error"
)

// Profile 参与者资料
type Profile struct {
	UserID    int64
	Username  string
	FirstName string
	IsBot     bool
}

// DisplayName 展示名
func (p Profile) DisplayName() string {
	return schema.DisplayName(p.UserID, p.Username, p.FirstName)
}

// CommentEvent 群内消息；只有回复帖子的消息才计为评论
type CommentEvent struct {
	Author      Profile
	ReplyToID   int64     // 被回复消息 ID，0 表示不是回复
	ReplyToDate time.Time // 被回复消息的发布时间，未知为零值
	Date        time.Time
}

// ReactionEvent 表情回应变更
type ReactionEvent struct {
	Reactor  *Profile // nil 表示匿名回应
	PostID   int64
	PostDate time.Time // 通常未知
	Added    int       // 新增的表情个数，只移除时为 0
	Date     time.Time
}

// Outcome 单个事件的处理结果
type Outcome struct {
	Scored  bool
	Kind    schema.Kind
	Points  int
	Skipped string
}

// ScoringOptions 计分流水线参数
type ScoringOptions struct {
	BotIDs      []int64
	CallTimeout time.Duration
}

// ScoringService 计分流水线：闸门 -> 策略 -> 写入
type ScoringService struct {
	ledger      LedgerStore
	gate        *Gate
	bus         EventPublisher
	botIDs      map[int64]struct{}
	callTimeout time.Duration
	policies    atomic.Pointer[PolicySet]
	now         func() time.Time
}

// NewScoringService 创建计分服务
func NewScoringService(ledger LedgerStore, gate *Gate, policies *PolicySet, bus EventPublisher, opts ScoringOptions) *ScoringService {
	s := &ScoringService{
		ledger:      ledger,
		gate:        gate,
		bus:         bus,
		botIDs:      make(map[int64]struct{}, len(opts.BotIDs)),
		callTimeout: opts.CallTimeout,
		now:         time.Now,
	}
	if s.callTimeout <= 0 {
		s.callTimeout = defaultCallTimeout
	}
	for _, id := range opts.BotIDs {
		s.botIDs[id] = struct{}{}
	}
	if policies == nil {
		decay := DefaultTimeDecayPolicy()
		policies = &PolicySet{Mode: PolicyTimeDecay, Comment: decay, Reaction: decay, Referral: ReferralPolicy{ReferrerPoints: 5, JoiningPoints: 3}}
	}
	s.policies.Store(policies)
	return s
}

// Policies 当前策略
func (s *ScoringService) Policies() *PolicySet {
	return s.policies.Load()
}

// SetPolicies 热更新策略；已写入的分值不受影响
func (s *ScoringService) SetPolicies(p *PolicySet) {
	if p == nil {
		return
	}
	s.policies.Store(p)
	slog.Info("计分策略已更新", "comment_policy", p.Mode)
}

// IsBot 是否为机器人账号（标记或配置列表）
func (s *ScoringService) IsBot(p Profile) bool {
	if p.IsBot {
		return true
	}
	_, ok := s.botIDs[p.UserID]
	return ok
}

func (s *ScoringService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.callTimeout)
}

// HandleComment 处理评论
func (s *ScoringService) HandleComment(ctx context.Context, ev CommentEvent) (Outcome, error) {
	out := Outcome{Kind: schema.KindComment}
	if s.IsBot(ev.Author) {
		out.Skipped = SkipBot
		return out, nil
	}
	if ev.ReplyToID == 0 {
		out.Skipped = SkipNotReply
		return out, nil
	}
	now := s.now()

	checkCtx, cancel := s.withTimeout(ctx)
	eligible, err := s.gate.IsEligible(checkCtx, ev.Author.UserID, schema.KindComment, ev.ReplyToID)
	cancel()
	if err != nil {
		slog.Error("评论去重检查失败", "user_id", ev.Author.UserID, "post_id", ev.ReplyToID, "error", err)
		out.Skipped = SkipStoreError
		return out, err
	}
	if !eligible {
		slog.Debug("重复评论不计分", "user_id", ev.Author.UserID, "post_id", ev.ReplyToID)
		out.Skipped = SkipDuplicate
		return out, nil
	}

	postCreated := s.resolvePostTime(ctx, ev.ReplyToID, ev.ReplyToDate, s.eventTime(ev.Date))
	policyCtx, cancel := s.withTimeout(ctx)
	points, err := s.Policies().Comment.CommentPoints(policyCtx, ScoreInput{
		Kind:          schema.KindComment,
		UserID:        ev.Author.UserID,
		PostID:        ev.ReplyToID,
		PostCreatedAt: postCreated,
		Now:           now,
	})
	cancel()
	if err != nil {
		slog.Error("评论计分失败", "user_id", ev.Author.UserID, "post_id", ev.ReplyToID, "error", err)
		out.Skipped = SkipStoreError
		return out, err
	}

	postID := ev.ReplyToID
	postTs := postCreated.UnixMilli()
	key := schema.CommentDedupKey(ev.Author.UserID, postID)
	row := &schema.ActivityEvent{
		UserID:        ev.Author.UserID,
		Username:      schema.StrPtr(ev.Author.Username),
		FirstName:     schema.StrPtr(ev.Author.FirstName),
		Kind:          schema.KindComment,
		Points:        points,
		Timestamp:     now.UnixMilli(),
		PostID:        &postID,
		PostTimestamp: &postTs,
		DedupKey:      &key,
	}
	return s.write(ctx, row)
}

// HandleReaction 处理表情回应；回应不去重
func (s *ScoringService) HandleReaction(ctx context.Context, ev ReactionEvent) (Outcome, error) {
	out := Outcome{Kind: schema.KindReaction}
	if ev.Reactor == nil {
		out.Skipped = SkipAnonymous
		return out, nil
	}
	if s.IsBot(*ev.Reactor) {
		out.Skipped = SkipBot
		return out, nil
	}
	if ev.Added <= 0 {
		out.Skipped = SkipNoNewReaction
		return out, nil
	}
	now := s.now()

	postCreated := s.resolvePostTime(ctx, ev.PostID, ev.PostDate, s.eventTime(ev.Date))
	points := s.Policies().Reaction.ReactionPoints(ScoreInput{
		Kind:          schema.KindReaction,
		UserID:        ev.Reactor.UserID,
		PostID:        ev.PostID,
		PostCreatedAt: postCreated,
		Now:           now,
	})

	postID := ev.PostID
	postTs := postCreated.UnixMilli()
	row := &schema.ActivityEvent{
		UserID:        ev.Reactor.UserID,
		Username:      schema.StrPtr(ev.Reactor.Username),
		FirstName:     schema.StrPtr(ev.Reactor.FirstName),
		Kind:          schema.KindReaction,
		Points:        points,
		Timestamp:     now.UnixMilli(),
		PostID:        &postID,
		PostTimestamp: &postTs,
	}
	return s.write(ctx, row)
}

// resolvePostTime 帖子时间：事件自带 > 已有流水 > 事件自身时间
func (s *ScoringService) resolvePostTime(ctx context.Context, postID int64, known time.Time, fallback time.Time) time.Time {
	if !known.IsZero() {
		return known
	}
	lookupCtx, cancel := s.withTimeout(ctx)
	defer cancel()
	ts, err := s.ledger.FindPostTimestamp(lookupCtx, postID)
	if err != nil {
		slog.Warn("查询帖子时间失败，使用事件时间", "post_id", postID, "error", err)
		return fallback
	}
	if ts == nil {
		return fallback
	}
	return time.UnixMilli(*ts)
}

// eventTime 计分时刻取本地时钟；事件时间只用于缺省的帖子时间
func (s *ScoringService) eventTime(t time.Time) time.Time {
	if t.IsZero() {
		return s.now()
	}
	return t
}

func (s *ScoringService) write(ctx context.Context, row *schema.ActivityEvent) (Outcome, error) {
	out := Outcome{Kind: row.Kind}
	writeCtx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.ledger.Insert(writeCtx, row); err != nil {
		if errors.Is(err, ErrDuplicate) {
			slog.Info("并发重复评论被唯一索引拦截", "user_id", row.UserID, "post_id", derefInt64(row.PostID))
			out.Skipped = SkipDuplicate
			return out, nil
		}
		slog.Error("写入积分流水失败", "user_id", row.UserID, "kind", row.Kind, "error", err)
		out.Skipped = SkipStoreError
		return out, storeErr("insert", err)
	}

	slog.Info("计分成功", "user_id", row.UserID, "kind", row.Kind, "points", row.Points, "post_id", derefInt64(row.PostID))
	publishAward(s.bus, *row)
	out.Scored = true
	out.Points = row.Points
	return out, nil
}

func publishAward(bus EventPublisher, row schema.ActivityEvent) {
	if bus == nil {
		return
	}
	data := map[string]any{
		"user_id":      row.UserID,
		"display_name": row.DisplayName(),
		"kind":         string(row.Kind),
		"points":       row.Points,
	}
	if row.PostID != nil {
		data["post_id"] = *row.PostID
	}
	bus.Publish(eventbus.Event{Type: EventPointsAwarded, Timestamp: row.Timestamp, Data: data})
}

func derefInt64(p *int64) int64 {
	if p == nil {
		return 0
	}
	return *p
}
