package handler

import (
	"fmt"
	"strings"
	"time"

	"github.com/yuqie6/ActivityRank/internal/service"
)

const (
	MsgUnauthorized  = "You are not authorized to use this command."
	MsgGenericError  = "Sorry, something went wrong. Please try again later."
	MsgNoActivity    = "No activity recorded yet!"
	MsgNoCandidates  = "No users to pick from!"
	MsgNothingToDrop = "No records to archive."
)

var markdownV2Replacer = func() *strings.Replacer {
	special := `\_*[]()~` + "`" + `>#+-=|{}.!`
	pairs := make([]string, 0, len(special)*2)
	for _, c := range special {
		pairs = append(pairs, string(c), `\`+string(c))
	}
	return strings.NewReplacer(pairs...)
}()

// EscapeMarkdownV2 转义 MarkdownV2 保留字符
func EscapeMarkdownV2(s string) string {
	return markdownV2Replacer.Replace(s)
}

// rankMark 前三名用奖牌
func rankMark(i int) string {
	switch i {
	case 0:
		return "🥇"
	case 1:
		return "🥈"
	case 2:
		return "🥉"
	default:
		return fmt.Sprintf("%d\\.", i+1)
	}
}

func writeEntries(sb *strings.Builder, entries []service.Entry) {
	for i, e := range entries {
		fmt.Fprintf(sb, "%s %s \\- %d pts\n", rankMark(i), EscapeMarkdownV2(e.DisplayName), e.Points)
	}
}

// FormatLeaderboard 单个周期的榜单段落；没有数据返回空串
func FormatLeaderboard(b *service.Board, limit int, callerID int64, now time.Time) string {
	if b.Len() == 0 {
		return ""
	}
	days := b.Window.Days

	var sb strings.Builder
	fmt.Fprintf(&sb, "📊 *Most active members \\(%s\\)*\n", EscapeMarkdownV2(service.PeriodLabel(days)))
	if days > 0 {
		start := now.AddDate(0, 0, -days)
		rangeText := fmt.Sprintf("%s - %s", start.Format("02 Jan"), now.Format("02 Jan"))
		fmt.Fprintf(&sb, "_%s_\n", EscapeMarkdownV2(rangeText))
	}
	sb.WriteString("\n")
	writeEntries(&sb, b.Top(limit))

	if e, ok := b.Standing(callerID); ok {
		fmt.Fprintf(&sb, "\n🎯 *Your position:* \\#%d \\- %d pts", e.Rank, e.Points)
		if !e.LastActivity.IsZero() && e.LastActivity.UnixMilli() > 0 {
			fmt.Fprintf(&sb, " \\(%s\\)", EscapeMarkdownV2(e.LastActivity.Format("02.01 15:04")))
		}
	} else {
		sb.WriteString("\n💡 _You have no activity in this period yet\\._")
	}
	return sb.String()
}

// FormatContest 比赛结果贴
func FormatContest(entries []service.Entry, topN int, rank *service.RankPolicy) string {
	var sb strings.Builder
	sb.WriteString("🎉 *CONTEST FINISHED\\!* 🎉\n\n")
	fmt.Fprintf(&sb, "🏆 *Top %d Users:*\n\n", topN)
	writeEntries(&sb, entries)
	fmt.Fprintf(&sb, "\nRandom winner will be picked from Top %d\\.", topN)
	if rank != nil {
		sb.WriteString("\n\n🎁 *Bonus Points for Comments:*\n")
		fmt.Fprintf(&sb, "• 1st comment: %d points\n", rank.First)
		fmt.Fprintf(&sb, "• 2nd comment: %d points\n", rank.Second)
		fmt.Fprintf(&sb, "• 3rd comment: %d points\n", rank.Third)
		fmt.Fprintf(&sb, "• All other comments: %d points", rank.Other)
	}
	return sb.String()
}

// FormatWinner 抽奖公告
func FormatWinner(e service.Entry, topN int) string {
	var sb strings.Builder
	sb.WriteString("🎊 *WINNER ANNOUNCEMENT\\!* 🎊\n\n")
	fmt.Fprintf(&sb, "🎉 Congratulations %s\\!\n\n", EscapeMarkdownV2(e.DisplayName))
	fmt.Fprintf(&sb, "🏆 Score: %d points\n\n", e.Points)
	fmt.Fprintf(&sb, "You've been randomly selected from our Top %d\\!", topN)
	return sb.String()
}

// WelcomeText /start 欢迎语
func WelcomeText(admin bool, p *service.PolicySet) string {
	var sb strings.Builder
	if admin {
		sb.WriteString("🎉 *Welcome, Admin\\!*\n\n")
	} else {
		sb.WriteString("👋 Hi\\! I'm the Activity Tracker Bot\\.\n\n")
	}
	sb.WriteString("I track engagement in the group and award points:\n\n")

	switch c := p.Comment.(type) {
	case service.TimeDecayPolicy:
		hours := int(c.EarlyWindow.Hours())
		fmt.Fprintf(&sb, "📝 *Comment Points:*\n  • First %dh: %d points\n  • After %dh: %d points\n\n", hours, c.CommentEarly, hours, c.CommentLate)
	case service.RankPolicy:
		fmt.Fprintf(&sb, "📝 *Comment Points:*\n  • 1st/2nd/3rd comment: %d/%d/%d points\n  • Others: %d points\n\n", c.First, c.Second, c.Third, c.Other)
	}
	if r, ok := p.Reaction.(service.TimeDecayPolicy); ok {
		hours := int(r.EarlyWindow.Hours())
		fmt.Fprintf(&sb, "❤️ *Reaction Points:*\n  • First %dh: %d points\n  • After %dh: %d points\n\n", hours, r.ReactionEarly, hours, r.ReactionLate)
	}
	fmt.Fprintf(&sb, "🤝 *Referrals:* %d points for you, %d for your friend\n\n", p.Referral.ReferrerPoints, p.Referral.JoiningPoints)

	if admin {
		sb.WriteString("🛠️ *Admin Commands:*\n")
		sb.WriteString("/leaderboard \\- View all rankings\n")
		sb.WriteString("/contest \\- Post leaderboard for contest\n")
		sb.WriteString("/pickwinner \\- Pick random winner from top list\n")
		sb.WriteString("/resettop \\- Archive and reset scores\n\n")
		sb.WriteString("✅ Bot is active and monitoring\\!")
	} else {
		sb.WriteString("Use /leaderboard to see rankings and /ref to get your invite link\\.")
	}
	return sb.String()
}

// HelpText /help
func HelpText() string {
	return "ℹ️ *Commands*\n\n" +
		"/leaderboard \\[week\\|2weeks\\|month\\|all\\] \\- rankings\n" +
		"/ref \\- your referral link\n" +
		"/check \\- confirm your referral after joining the group\n" +
		"/help \\- this message"
}

// stateReply 邀请状态对应的提示（纯文本）
func stateReply(state service.State) string {
	switch state {
	case service.StateJoined:
		return "✅ Welcome! Your referral has been confirmed and points were awarded."
	case service.StateAlreadyJoined:
		return "👋 Welcome back! Your referral was already counted."
	case service.StatePending:
		return "📨 Almost there! Join the group, then send /check to confirm your referral."
	case service.StateRejected:
		return "🙃 You can't refer yourself."
	default:
		return ""
	}
}
