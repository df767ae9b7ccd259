package schema

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Kind 活动类型
type Kind string

const (
	KindComment  Kind = "comment"
	KindReaction Kind = "reaction"
	KindReferral Kind = "referral"
	KindJoining  Kind = "joining"
)

// Valid 是否为已知类型
func (k Kind) Valid() bool {
	switch k {
	case KindComment, KindReaction, KindReferral, KindJoining:
		return true
	}
	return false
}

// ActivityEvent 积分流水 - 每次计分动作一行，只追加
// 列名与历史 activity_log 表保持一致，便于直接对接旧库。
type ActivityEvent struct {
	ID            int64   `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID        int64   `gorm:"not null;index" json:"user_id"`
	Username      *string `gorm:"size:64" json:"username"`
	FirstName     *string `gorm:"size:255" json:"first_name"`
	Kind          Kind    `gorm:"column:activity_type;size:16;not null;index" json:"activity_type"`
	Points        int     `gorm:"not null" json:"points"`                 // 写入时定格，之后不再重算
	Timestamp     int64   `gorm:"not null;index" json:"timestamp"`        // 计分时间 Unix ms
	PostID        *int64  `gorm:"index" json:"post_id"`                   // 被互动的帖子
	PostTimestamp *int64  `json:"post_timestamp"`                         // 帖子发布时间 Unix ms
	DedupKey      *string `gorm:"size:64;uniqueIndex" json:"-"`           // 仅评论使用，NULL 不参与唯一约束
}

// TableName 指定表名
func (ActivityEvent) TableName() string {
	return "activity_log"
}

// CommentDedupKey 评论去重键：同一用户对同一帖子只计一次
func CommentDedupKey(userID, postID int64) string {
	return "comment:" + strconv.FormatInt(userID, 10) + ":" + strconv.FormatInt(postID, 10)
}

// OccurredAt 计分时间
func (e ActivityEvent) OccurredAt() time.Time {
	return time.UnixMilli(e.Timestamp)
}

// DisplayName 展示名：@username > first_name > User #id
func (e ActivityEvent) DisplayName() string {
	return DisplayName(e.UserID, deref(e.Username), deref(e.FirstName))
}

// DisplayName 按回退顺序生成展示名
func DisplayName(userID int64, username, firstName string) string {
	if u := strings.TrimSpace(username); u != "" {
		return "@" + strings.TrimPrefix(u, "@")
	}
	if f := strings.TrimSpace(firstName); f != "" {
		return f
	}
	return fmt.Sprintf("User #%d", userID)
}

// StrPtr 空串返回 nil
func StrPtr(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
