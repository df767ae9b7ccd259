package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/yuqie6/ActivityRank/internal/schema"
)

const (
	PolicyTimeDecay = "time_decay"
	PolicyRank      = "rank"

	// rankFallbackPosition 计数失败时按“其他名次”计分
	rankFallbackPosition = 999
)

// ScoreInput 计分输入
type ScoreInput struct {
	Kind          schema.Kind
	UserID        int64
	PostID        int64
	PostCreatedAt time.Time
	Now           time.Time
}

// CommentPolicy 评论计分策略（可替换）
type CommentPolicy interface {
	CommentPoints(ctx context.Context, in ScoreInput) (int, error)
}

// ReactionPolicy 表情回应计分策略
type ReactionPolicy interface {
	ReactionPoints(in ScoreInput) int
}

// TimeDecayPolicy 时间衰减：帖子发布后 EarlyWindow 内为早期分值，之后为后期分值
type TimeDecayPolicy struct {
	EarlyWindow   time.Duration
	CommentEarly  int
	CommentLate   int
	ReactionEarly int
	ReactionLate  int
}

// DefaultTimeDecayPolicy 默认分值：评论 10/3，回应 3/1，窗口 48h
func DefaultTimeDecayPolicy() TimeDecayPolicy {
	return TimeDecayPolicy{
		EarlyWindow:   48 * time.Hour,
		CommentEarly:  10,
		CommentLate:   3,
		ReactionEarly: 3,
		ReactionLate:  1,
	}
}

// isEarly 恰好等于窗口时算后期
func (p TimeDecayPolicy) isEarly(in ScoreInput) bool {
	return in.Now.Sub(in.PostCreatedAt) < p.EarlyWindow
}

func (p TimeDecayPolicy) CommentPoints(_ context.Context, in ScoreInput) (int, error) {
	if p.isEarly(in) {
		return p.CommentEarly, nil
	}
	return p.CommentLate, nil
}

func (p TimeDecayPolicy) ReactionPoints(in ScoreInput) int {
	if p.isEarly(in) {
		return p.ReactionEarly
	}
	return p.ReactionLate
}

// CommentCounter 统计帖子已有评论数
type CommentCounter interface {
	CountComments(ctx context.Context, postID int64) (int64, error)
}

// RankPolicy 名次计分：第 1/2/3 条评论依次递减，之后固定
type RankPolicy struct {
	Counter CommentCounter
	First   int
	Second  int
	Third   int
	Other   int
}

func (p RankPolicy) CommentPoints(ctx context.Context, in ScoreInput) (int, error) {
	position := rankFallbackPosition
	if p.Counter != nil {
		n, err := p.Counter.CountComments(ctx, in.PostID)
		if err != nil {
			slog.Warn("统计评论名次失败，按其他名次计分", "post_id", in.PostID, "error", err)
		} else {
			position = int(n) + 1
		}
	}
	return p.PointsForPosition(position), nil
}

// PointsForPosition 名次 -> 分值
func (p RankPolicy) PointsForPosition(position int) int {
	switch position {
	case 1:
		return p.First
	case 2:
		return p.Second
	case 3:
		return p.Third
	default:
		return p.Other
	}
}

// ReferralPolicy 邀请固定分值，每个被邀请人只发放一次
type ReferralPolicy struct {
	ReferrerPoints int
	JoiningPoints  int
}

// PolicyConfig 计分参数
type PolicyConfig struct {
	CommentPolicy    string
	EarlyWindowHours int
	CommentEarly     int
	CommentLate      int
	ReactionEarly    int
	ReactionLate     int
	RankFirst        int
	RankSecond       int
	RankThird        int
	RankOther        int
	ReferrerPoints   int
	JoiningPoints    int
}

// PolicySet 当前生效的策略组合，热更新时整体替换
type PolicySet struct {
	Mode     string
	Comment  CommentPolicy
	Reaction ReactionPolicy
	Referral ReferralPolicy
}

// BuildPolicies 按配置选择评论策略；回应始终用时间衰减
func BuildPolicies(cfg PolicyConfig, counter CommentCounter) (*PolicySet, error) {
	if cfg.EarlyWindowHours <= 0 {
		return nil, fmt.Errorf("%w: early_window_hours 必须为正数", ErrValidation)
	}
	decay := TimeDecayPolicy{
		EarlyWindow:   time.Duration(cfg.EarlyWindowHours) * time.Hour,
		CommentEarly:  cfg.CommentEarly,
		CommentLate:   cfg.CommentLate,
		ReactionEarly: cfg.ReactionEarly,
		ReactionLate:  cfg.ReactionLate,
	}
	for _, v := range []int{cfg.CommentEarly, cfg.CommentLate, cfg.ReactionEarly, cfg.ReactionLate,
		cfg.RankFirst, cfg.RankSecond, cfg.RankThird, cfg.RankOther, cfg.ReferrerPoints, cfg.JoiningPoints} {
		if v < 0 {
			return nil, fmt.Errorf("%w: 分值不能为负数", ErrValidation)
		}
	}

	set := &PolicySet{
		Reaction: decay,
		Referral: ReferralPolicy{ReferrerPoints: cfg.ReferrerPoints, JoiningPoints: cfg.JoiningPoints},
	}

	mode := strings.ToLower(strings.TrimSpace(cfg.CommentPolicy))
	switch mode {
	case "", PolicyTimeDecay:
		set.Mode = PolicyTimeDecay
		set.Comment = decay
	case PolicyRank:
		set.Mode = PolicyRank
		set.Comment = RankPolicy{
			Counter: counter,
			First:   cfg.RankFirst,
			Second:  cfg.RankSecond,
			Third:   cfg.RankThird,
			Other:   cfg.RankOther,
		}
	default:
		return nil, fmt.Errorf("%w: 未知评论策略 %q", ErrValidation, cfg.CommentPolicy)
	}
	return set, nil
}
