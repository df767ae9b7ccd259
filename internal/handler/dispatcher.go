package handler

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/yuqie6/ActivityRank/internal/service"
	"github.com/yuqie6/ActivityRank/internal/telegram"
	"golang.org/x/sync/errgroup"
)

const (
	defaultMaxConcurrency   = 8
	defaultLeaderboardLimit = 20
	defaultSendTimeout      = 15 * time.Second
)

// Services 分发器依赖的业务服务；Referrals/Names 可为空
type Services struct {
	Scorer    Scorer
	Ranker    Ranker
	Archiver  Archiver
	Contest   ContestRunner
	Referrals Referrals
	Names     NameBackfiller
}

// Options 分发器参数
type Options struct {
	GroupChatID      int64 // 计分的群；0 表示所有群
	BotUsername      string
	AdminIDs         []int64
	LeaderboardLimit int
	MaxConcurrency   int
	SendTimeout      time.Duration
}

// Dispatcher 把 Telegram 更新路由到命令或计分流水线
type Dispatcher struct {
	svc    Services
	sender Sender
	opts   Options
	admins map[int64]struct{}
	g      *errgroup.Group
	named  sync.Map // userID -> struct{}，每个用户只回填一次
	now    func() time.Time
}

// NewDispatcher 创建分发器
func NewDispatcher(svc Services, sender Sender, opts Options) *Dispatcher {
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = defaultMaxConcurrency
	}
	if opts.LeaderboardLimit <= 0 {
		opts.LeaderboardLimit = defaultLeaderboardLimit
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = defaultSendTimeout
	}
	admins := make(map[int64]struct{}, len(opts.AdminIDs))
	for _, id := range opts.AdminIDs {
		admins[id] = struct{}{}
	}
	g := new(errgroup.Group)
	g.SetLimit(opts.MaxConcurrency)
	return &Dispatcher{
		svc:    svc,
		sender: sender,
		opts:   opts,
		admins: admins,
		g:      g,
		now:    time.Now,
	}
}

// Dispatch 异步处理单条更新；并发已满时阻塞
// 已开始的处理不随 ctx 取消而中断，停机时由 Wait 等待完成。
func (d *Dispatcher) Dispatch(ctx context.Context, u telegram.Update) {
	ctx = context.WithoutCancel(ctx)
	d.g.Go(func() error {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("处理更新时 panic", "update_id", u.UpdateID, "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
			}
		}()
		d.handle(ctx, u)
		return nil
	})
}

// Wait 等待所有在途更新处理完成
func (d *Dispatcher) Wait() {
	_ = d.g.Wait()
}

func (d *Dispatcher) handle(ctx context.Context, u telegram.Update) {
	switch {
	case u.Message != nil:
		d.handleMessage(ctx, u.Message)
	case u.MessageReaction != nil:
		d.handleReaction(ctx, u.MessageReaction)
	}
}

func (d *Dispatcher) isAdmin(userID int64) bool {
	_, ok := d.admins[userID]
	return ok
}

func (d *Dispatcher) inGroup(chat telegram.Chat) bool {
	if chat.IsPrivate() {
		return false
	}
	return d.opts.GroupChatID == 0 || chat.ID == d.opts.GroupChatID
}

func (d *Dispatcher) handleMessage(ctx context.Context, msg *telegram.Message) {
	if msg.From == nil {
		// 频道身份或匿名管理员发言
		return
	}
	from := profileOf(msg.From)
	d.backfillName(ctx, from)

	if name, args := msg.Command(); name != "" {
		replies := d.runCommand(ctx, msg, name, args)
		if len(replies) > 0 {
			d.send(ctx, replies, msg)
		}
		return
	}
	if !d.inGroup(msg.Chat) {
		return
	}

	d.checkReferrals(ctx, msg)

	if msg.ReplyToMessage == nil || len(msg.NewChatMembers) > 0 {
		return
	}
	ev := service.CommentEvent{
		Author:      from,
		ReplyToID:   msg.ReplyToMessage.MessageID,
		ReplyToDate: msg.ReplyToMessage.Time(),
		Date:        msg.Time(),
	}
	out, err := d.svc.Scorer.HandleComment(ctx, ev)
	if err != nil {
		slog.Error("评论计分失败", "user_id", from.UserID, "post_id", ev.ReplyToID, "error", err)
		return
	}
	if out.Scored {
		slog.Debug("评论已计分", "user_id", from.UserID, "post_id", ev.ReplyToID, "points", out.Points)
	}
}

// checkReferrals 新成员入群或待确认用户在群里发言时完成邀请
func (d *Dispatcher) checkReferrals(ctx context.Context, msg *telegram.Message) {
	if d.svc.Referrals == nil {
		return
	}
	profiles := make([]service.Profile, 0, len(msg.NewChatMembers)+1)
	if len(msg.NewChatMembers) > 0 {
		for i := range msg.NewChatMembers {
			profiles = append(profiles, profileOf(&msg.NewChatMembers[i]))
		}
	} else {
		profiles = append(profiles, profileOf(msg.From))
	}
	for _, p := range profiles {
		if p.IsBot {
			continue
		}
		state, err := d.svc.Referrals.CheckPending(ctx, p)
		if err != nil {
			slog.Error("检查待确认邀请失败", "user_id", p.UserID, "error", err)
			continue
		}
		if state == service.StateJoined {
			slog.Info("邀请入群确认", "user_id", p.UserID)
		}
	}
}

func (d *Dispatcher) handleReaction(ctx context.Context, r *telegram.MessageReactionUpdated) {
	if !d.inGroup(r.Chat) {
		return
	}
	ev := service.ReactionEvent{
		PostID: r.MessageID,
		Added:  r.Added(),
		Date:   time.Unix(r.Date, 0),
	}
	if r.User != nil {
		p := profileOf(r.User)
		ev.Reactor = &p
		d.backfillName(ctx, p)
	}
	out, err := d.svc.Scorer.HandleReaction(ctx, ev)
	if err != nil {
		slog.Error("回应计分失败", "post_id", ev.PostID, "error", err)
		return
	}
	if out.Scored {
		slog.Debug("回应已计分", "user_id", ev.Reactor.UserID, "post_id", ev.PostID, "points", out.Points)
	}
}

// backfillName 首次见到用户时回填历史流水的展示名
func (d *Dispatcher) backfillName(ctx context.Context, p service.Profile) {
	if d.svc.Names == nil || p.IsBot {
		return
	}
	if _, loaded := d.named.LoadOrStore(p.UserID, struct{}{}); loaded {
		return
	}
	if _, err := d.svc.Names.BackfillDisplayName(ctx, p); err != nil {
		d.named.Delete(p.UserID)
	}
}

func profileOf(u *telegram.User) service.Profile {
	if u == nil {
		return service.Profile{}
	}
	return service.Profile{
		UserID:    u.ID,
		Username:  u.Username,
		FirstName: u.FirstName,
		IsBot:     u.IsBot,
	}
}
