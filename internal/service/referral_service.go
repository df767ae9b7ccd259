package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/yuqie6/ActivityRank/internal/eventbus"
	"github.com/yuqie6/ActivityRank/internal/schema"
)

const (
	// ReferralTokenPrefix 邀请码前缀，后缀为邀请人 ID
	ReferralTokenPrefix = "ref_"

	EventReferralJoined = "referral.joined"

	defaultPendingTTL    = 72 * time.Hour
	defaultNotifyTimeout = 10 * time.Second
)

// State 被邀请人状态
type State int

const (
	StateNone          State = iota // 无有效邀请
	StateRejected                   // 自己邀请自己
	StatePending                    // 等待入群
	StateJoined                     // 本次完成入群并发放积分
	StateAlreadyJoined              // 此前已发放过，不再计分
)

func (s State) String() string {
	switch s {
	case StateRejected:
		return "rejected"
	case StatePending:
		return "pending"
	case StateJoined:
		return "joined"
	case StateAlreadyJoined:
		return "already_joined"
	default:
		return "none"
	}
}

// ReferralToken 生成邀请码
func ReferralToken(referrerID int64) string {
	return ReferralTokenPrefix + strconv.FormatInt(referrerID, 10)
}

// ParseToken 解析邀请码；格式不对视为没有邀请
func ParseToken(token string) (int64, bool) {
	token = strings.TrimSpace(token)
	if !strings.HasPrefix(token, ReferralTokenPrefix) {
		return 0, false
	}
	raw := strings.TrimPrefix(token, ReferralTokenPrefix)
	if raw == "" || strings.ContainsAny(raw, "+-") {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// ReferralLink 邀请链接
func ReferralLink(botUsername string, referrerID int64) string {
	return fmt.Sprintf("https://t.me/%s?start=%s", strings.TrimPrefix(botUsername, "@"), ReferralToken(referrerID))
}

// PolicySource 提供当前策略（热更新）
type PolicySource interface {
	Policies() *PolicySet
}

// ReferralOptions 邀请参数
type ReferralOptions struct {
	PendingTTL    time.Duration
	NotifyTimeout time.Duration
	CallTimeout   time.Duration
}

// ReferralService 邀请子系统：NEVER_SEEN -> PENDING -> JOINED
type ReferralService struct {
	referrals ReferralStore
	ledger    LedgerStore
	gate      *Gate
	pending   PendingStore
	members   MembershipChecker
	notifier  Notifier
	policies  PolicySource
	bus       EventPublisher
	opts      ReferralOptions
	now       func() time.Time
	notifyWG  sync.WaitGroup
}

// NewReferralService 创建邀请服务
func NewReferralService(referrals ReferralStore, ledger LedgerStore, gate *Gate, pending PendingStore,
	members MembershipChecker, notifier Notifier, policies PolicySource, bus EventPublisher, opts ReferralOptions) *ReferralService {
	if opts.PendingTTL <= 0 {
		opts.PendingTTL = defaultPendingTTL
	}
	if opts.NotifyTimeout <= 0 {
		opts.NotifyTimeout = defaultNotifyTimeout
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = defaultCallTimeout
	}
	return &ReferralService{
		referrals: referrals,
		ledger:    ledger,
		gate:      gate,
		pending:   pending,
		members:   members,
		notifier:  notifier,
		policies:  policies,
		bus:       bus,
		opts:      opts,
		now:       time.Now,
	}
}

// Start 处理 /start 携带的邀请码
func (s *ReferralService) Start(ctx context.Context, referred Profile, token string) (State, error) {
	referrerID, ok := ParseToken(token)
	if !ok {
		if strings.TrimSpace(token) != "" {
			slog.Debug("忽略无效邀请码", "user_id", referred.UserID, "token", token)
		}
		return StateNone, nil
	}
	if referrerID == referred.UserID {
		slog.Info("拒绝自我邀请", "user_id", referred.UserID)
		return StateRejected, nil
	}

	eligible, err := s.eligible(ctx, referred.UserID)
	if err != nil {
		return StateNone, err
	}
	if !eligible {
		return StateAlreadyJoined, nil
	}

	if s.isMember(ctx, referred.UserID) {
		return s.join(ctx, referrerID, referred)
	}

	p := schema.PendingReferral{ReferrerID: referrerID, ExpiresAt: s.now().Add(s.opts.PendingTTL).UnixMilli()}
	putCtx, cancel := context.WithTimeout(ctx, s.opts.CallTimeout)
	defer cancel()
	if err := s.pending.Put(putCtx, referred.UserID, p, s.opts.PendingTTL); err != nil {
		slog.Error("保存待确认邀请失败", "user_id", referred.UserID, "referrer_id", referrerID, "error", err)
		return StateNone, storeErr("pending_put", err)
	}
	slog.Info("邀请待确认", "user_id", referred.UserID, "referrer_id", referrerID)
	return StatePending, nil
}

// CheckPending 重新检查待确认用户是否已入群
func (s *ReferralService) CheckPending(ctx context.Context, referred Profile) (State, error) {
	getCtx, cancel := context.WithTimeout(ctx, s.opts.CallTimeout)
	p, err := s.pending.Get(getCtx, referred.UserID)
	cancel()
	if err != nil {
		slog.Error("读取待确认邀请失败", "user_id", referred.UserID, "error", err)
		return StateNone, storeErr("pending_get", err)
	}
	if p == nil {
		return StateNone, nil
	}
	if p.Expired(s.now()) {
		s.dropPending(ctx, referred.UserID)
		return StateNone, nil
	}

	eligible, err := s.eligible(ctx, referred.UserID)
	if err != nil {
		return StatePending, err
	}
	if !eligible {
		s.dropPending(ctx, referred.UserID)
		return StateAlreadyJoined, nil
	}
	if !s.isMember(ctx, referred.UserID) {
		return StatePending, nil
	}
	return s.join(ctx, p.ReferrerID, referred)
}

// ReferralCount 邀请人成功邀请的人数
func (s *ReferralService) ReferralCount(ctx context.Context, referrerID int64) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.CallTimeout)
	defer cancel()
	n, err := s.referrals.CountByReferrer(ctx, referrerID)
	if err != nil {
		return 0, storeErr("count_referrals", err)
	}
	return n, nil
}

// WaitNotifications 等待异步通知发送完毕（测试与退出时使用）
func (s *ReferralService) WaitNotifications() {
	s.notifyWG.Wait()
}

func (s *ReferralService) eligible(ctx context.Context, referredID int64) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.CallTimeout)
	defer cancel()
	ok, err := s.gate.IsEligible(ctx, referredID, schema.KindJoining, 0)
	if err != nil {
		slog.Error("邀请去重检查失败", "user_id", referredID, "error", err)
	}
	return ok, err
}

func (s *ReferralService) isMember(ctx context.Context, userID int64) bool {
	if s.members == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, s.opts.CallTimeout)
	defer cancel()
	return s.members.IsMember(ctx, userID)
}

func (s *ReferralService) dropPending(ctx context.Context, userID int64) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.CallTimeout)
	defer cancel()
	if err := s.pending.Delete(ctx, userID); err != nil {
		slog.Warn("删除待确认邀请失败", "user_id", userID, "error", err)
	}
}

// join 写邀请记录 -> 两条积分流水 -> 异步通知；三步之间不保证原子
func (s *ReferralService) join(ctx context.Context, referrerID int64, referred Profile) (State, error) {
	writeCtx, cancel := context.WithTimeout(ctx, s.opts.CallTimeout)
	defer cancel()

	created, err := s.referrals.Create(writeCtx, &schema.ReferralRecord{ReferrerID: referrerID, ReferredID: referred.UserID})
	if err != nil {
		slog.Error("写入邀请记录失败", "user_id", referred.UserID, "referrer_id", referrerID, "error", err)
		return StateNone, storeErr("referral_create", err)
	}
	s.dropPending(ctx, referred.UserID)
	if !created {
		return StateAlreadyJoined, nil
	}

	policy := s.referralPolicy()
	now := s.now().UnixMilli()
	rows := []schema.ActivityEvent{
		{UserID: referrerID, Kind: schema.KindReferral, Points: policy.ReferrerPoints, Timestamp: now},
		{
			UserID:    referred.UserID,
			Username:  schema.StrPtr(referred.Username),
			FirstName: schema.StrPtr(referred.FirstName),
			Kind:      schema.KindJoining,
			Points:    policy.JoiningPoints,
			Timestamp: now,
		},
	}
	for i := range rows {
		if err := s.ledger.Insert(writeCtx, &rows[i]); err != nil {
			slog.Error("写入邀请积分失败", "user_id", rows[i].UserID, "kind", rows[i].Kind, "error", err)
			return StateJoined, storeErr("insert", err)
		}
		publishAward(s.bus, rows[i])
	}

	slog.Info("邀请完成", "referrer_id", referrerID, "user_id", referred.UserID,
		"referrer_points", policy.ReferrerPoints, "joining_points", policy.JoiningPoints)
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: EventReferralJoined, Data: map[string]any{
			"referrer_id": referrerID,
			"user_id":     referred.UserID,
		}})
	}
	s.notifyReferrer(referrerID, referred, policy.ReferrerPoints)
	return StateJoined, nil
}

func (s *ReferralService) referralPolicy() ReferralPolicy {
	if s.policies != nil {
		if p := s.policies.Policies(); p != nil {
			return p.Referral
		}
	}
	return ReferralPolicy{ReferrerPoints: 5, JoiningPoints: 3}
}

// notifyReferrer 尽力通知邀请人，失败只记日志
func (s *ReferralService) notifyReferrer(referrerID int64, referred Profile, points int) {
	if s.notifier == nil {
		return
	}
	text := fmt.Sprintf("🎉 %s joined the group through your referral link. You earned %d points!", referred.DisplayName(), points)
	s.notifyWG.Add(1)
	go func() {
		defer s.notifyWG.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.opts.NotifyTimeout)
		defer cancel()
		if err := s.notifier.Notify(ctx, referrerID, text); err != nil {
			slog.Warn("通知邀请人失败", "referrer_id", referrerID, "error", err)
		}
	}()
}
