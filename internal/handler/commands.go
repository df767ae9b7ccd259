package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/yuqie6/ActivityRank/internal/service"
	"github.com/yuqie6/ActivityRank/internal/telegram"
)

// 默认展示的两个统计周期
var defaultPeriods = []int{7, 14}

// Scorer 计分流水线
type Scorer interface {
	HandleComment(ctx context.Context, ev service.CommentEvent) (service.Outcome, error)
	HandleReaction(ctx context.Context, ev service.ReactionEvent) (service.Outcome, error)
	IsBot(p service.Profile) bool
	Policies() *service.PolicySet
}

// Ranker 排行榜聚合
type Ranker interface {
	Aggregate(ctx context.Context, w service.Window) (*service.Board, error)
}

type Archiver interface {
	ArchiveAndClear(ctx context.Context) (service.ArchiveResult, error)
}

type ContestRunner interface {
	ContestBoard(ctx context.Context) ([]service.Entry, error)
	PickWinner(ctx context.Context) (service.Entry, error)
	TopN() int
}

// Referrals 邀请流程
type Referrals interface {
	Start(ctx context.Context, referred service.Profile, token string) (service.State, error)
	CheckPending(ctx context.Context, referred service.Profile) (service.State, error)
	ReferralCount(ctx context.Context, referrerID int64) (int64, error)
}

type NameBackfiller interface {
	BackfillDisplayName(ctx context.Context, p service.Profile) (int64, error)
}

// Sender 发送消息
type Sender interface {
	SendMessage(ctx context.Context, req telegram.SendMessageRequest) (*telegram.Message, error)
}

// reply 命令的回复
type reply struct {
	chatID   int64
	text     string
	markdown bool
}

func plain(chatID int64, text string) reply {
	return reply{chatID: chatID, text: text}
}

func markdown(chatID int64, text string) reply {
	return reply{chatID: chatID, text: text, markdown: true}
}

// runCommand 执行命令，返回要发送的回复（可能多条）
func (d *Dispatcher) runCommand(ctx context.Context, msg *telegram.Message, name string, args []string) []reply {
	chatID := msg.Chat.ID
	from := profileOf(msg.From)

	switch name {
	case "start":
		return d.cmdStart(ctx, chatID, from, args)
	case "help":
		return []reply{markdown(chatID, HelpText())}
	case "leaderboard":
		return d.cmdLeaderboard(ctx, chatID, from.UserID, args)
	case "ref":
		return d.cmdRef(ctx, chatID, from.UserID)
	case "check":
		return d.cmdCheck(ctx, chatID, from)
	case "resettop", "contest", "pickwinner":
		if !d.isAdmin(from.UserID) {
			slog.Warn("非管理员调用管理命令", "command", name, "user_id", from.UserID)
			return []reply{plain(chatID, MsgUnauthorized)}
		}
		switch name {
		case "resettop":
			return d.cmdResetTop(ctx, chatID)
		case "contest":
			return d.cmdContest(ctx, chatID)
		default:
			return d.cmdPickWinner(ctx, chatID)
		}
	default:
		return nil
	}
}

func (d *Dispatcher) cmdStart(ctx context.Context, chatID int64, from service.Profile, args []string) []reply {
	out := []reply{markdown(chatID, WelcomeText(d.isAdmin(from.UserID), d.svc.Scorer.Policies()))}
	if len(args) == 0 || d.svc.Referrals == nil {
		return out
	}
	state, err := d.svc.Referrals.Start(ctx, from, args[0])
	if err != nil {
		slog.Error("处理邀请码失败", "user_id", from.UserID, "error", err)
		return append(out, plain(chatID, MsgGenericError))
	}
	if text := stateReply(state); text != "" {
		out = append(out, plain(chatID, text))
	}
	return out
}

func (d *Dispatcher) cmdLeaderboard(ctx context.Context, chatID, callerID int64, args []string) []reply {
	periods := defaultPeriods
	if len(args) > 0 {
		days, ok := service.ParsePeriod(args[0])
		if !ok {
			return []reply{plain(chatID, "Unknown period. Use: week, 2weeks, month or all.")}
		}
		periods = []int{days}
	}

	now := d.now()
	var sections []reply
	for _, days := range periods {
		board, err := d.svc.Ranker.Aggregate(ctx, service.Window{Days: days})
		if err != nil {
			slog.Error("生成排行榜失败", "days", days, "error", err)
			return []reply{plain(chatID, MsgGenericError)}
		}
		if text := FormatLeaderboard(board, d.opts.LeaderboardLimit, callerID, now); text != "" {
			sections = append(sections, markdown(chatID, text))
		}
	}
	if len(sections) == 0 {
		return []reply{plain(chatID, MsgNoActivity)}
	}
	return sections
}

func (d *Dispatcher) cmdRef(ctx context.Context, chatID, userID int64) []reply {
	if d.svc.Referrals == nil || d.opts.BotUsername == "" {
		return []reply{plain(chatID, "Referrals are not enabled.")}
	}
	count, err := d.svc.Referrals.ReferralCount(ctx, userID)
	if err != nil {
		slog.Error("查询邀请数失败", "user_id", userID, "error", err)
		return []reply{plain(chatID, MsgGenericError)}
	}
	p := d.svc.Scorer.Policies().Referral
	text := fmt.Sprintf("🔗 Your referral link:\n%s\n\n👥 Friends joined: %d\n🎁 You get %d points for every friend who joins, and they get %d.",
		service.ReferralLink(d.opts.BotUsername, userID), count, p.ReferrerPoints, p.JoiningPoints)
	return []reply{plain(chatID, text)}
}

func (d *Dispatcher) cmdCheck(ctx context.Context, chatID int64, from service.Profile) []reply {
	if d.svc.Referrals == nil {
		return []reply{plain(chatID, "Referrals are not enabled.")}
	}
	state, err := d.svc.Referrals.CheckPending(ctx, from)
	if err != nil {
		slog.Error("检查待确认邀请失败", "user_id", from.UserID, "error", err)
		return []reply{plain(chatID, MsgGenericError)}
	}
	if state == service.StateNone {
		return []reply{plain(chatID, "No pending referral found.")}
	}
	return []reply{plain(chatID, stateReply(state))}
}

func (d *Dispatcher) cmdResetTop(ctx context.Context, chatID int64) []reply {
	res, err := d.svc.Archiver.ArchiveAndClear(ctx)
	if err != nil {
		slog.Error("归档失败", "error", err)
		return []reply{plain(chatID, MsgGenericError)}
	}
	if res.Count == 0 {
		return []reply{plain(chatID, MsgNothingToDrop)}
	}
	return []reply{plain(chatID, fmt.Sprintf("✅ Activity log archived and reset! %d records archived.", res.Count))}
}

func (d *Dispatcher) cmdContest(ctx context.Context, chatID int64) []reply {
	entries, err := d.svc.Contest.ContestBoard(ctx)
	if err != nil {
		slog.Error("生成比赛榜单失败", "error", err)
		return []reply{plain(chatID, MsgGenericError)}
	}
	if len(entries) == 0 {
		return []reply{plain(chatID, MsgNoActivity)}
	}
	var rank *service.RankPolicy
	if rp, ok := d.svc.Scorer.Policies().Comment.(service.RankPolicy); ok {
		rank = &rp
	}
	text := FormatContest(entries, d.svc.Contest.TopN(), rank)
	return d.announce(chatID, text, "✅ Contest leaderboard posted to the group.")
}

func (d *Dispatcher) cmdPickWinner(ctx context.Context, chatID int64) []reply {
	winner, err := d.svc.Contest.PickWinner(ctx)
	if errors.Is(err, service.ErrNoCandidates) {
		return []reply{plain(chatID, MsgNoCandidates)}
	}
	if err != nil {
		slog.Error("抽奖失败", "error", err)
		return []reply{plain(chatID, MsgGenericError)}
	}
	text := FormatWinner(winner, d.svc.Contest.TopN())
	return d.announce(chatID, text, fmt.Sprintf("✅ Winner announced: %s", winner.DisplayName))
}

// announce 公告发到群里，并在原会话确认；未配置群或本身在群里时只发一次
func (d *Dispatcher) announce(chatID int64, text, ack string) []reply {
	if d.opts.GroupChatID == 0 || d.opts.GroupChatID == chatID {
		return []reply{markdown(chatID, text)}
	}
	return []reply{markdown(d.opts.GroupChatID, text), plain(chatID, ack)}
}

// send 逐条发送，失败只记录；群里的回复挂在原消息下
func (d *Dispatcher) send(ctx context.Context, replies []reply, origin *telegram.Message) {
	for _, r := range replies {
		req := telegram.SendMessageRequest{ChatID: r.chatID, Text: r.text, DisableWebPagePreview: true}
		if r.markdown {
			req.ParseMode = telegram.ParseModeMarkdownV2
		}
		if origin != nil && origin.Chat.ID == r.chatID && !origin.Chat.IsPrivate() {
			req.ReplyToMessageID = origin.MessageID
		}
		sendCtx, cancel := context.WithTimeout(ctx, d.opts.SendTimeout)
		_, err := d.sender.SendMessage(sendCtx, req)
		cancel()
		if err != nil {
			slog.Error("发送消息失败", "chat_id", r.chatID, "error", err)
		}
	}
}
