package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/yuqie6/ActivityRank/internal/schema"
)

// 导出文件的本地时间格式（无时区，按 UTC 处理）
const exportDateLayout = "2006-01-02T15:04:05"

// ImportOptions 历史导入分值
type ImportOptions struct {
	CommentPoints  int
	ReactionPoints int
}

// ImportStats 导入统计
type ImportStats struct {
	Messages       int   `json:"messages"`
	Comments       int   `json:"comments"`
	DupComments    int   `json:"duplicate_comments"`
	Reactions      int   `json:"reactions"`
	Skipped        int   `json:"skipped"`
	Inserted       int64 `json:"inserted"`
	PostsCommented int   `json:"posts_commented"`
}

type exportFile struct {
	Messages []exportMessage `json:"messages"`
}

type exportMessage struct {
	ID               int64            `json:"id"`
	Type             string           `json:"type"`
	Date             string           `json:"date"`
	DateUnix         string           `json:"date_unixtime"`
	From             *string          `json:"from"`
	FromID           string           `json:"from_id"`
	ReplyToMessageID *int64           `json:"reply_to_message_id"`
	Reactions        []exportReaction `json:"reactions"`
}

type exportReaction struct {
	Peers []exportPeer `json:"peers"`
}

type exportPeer struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// HistoryImporter Telegram Desktop JSON 导出的一次性导入
// 仅适用于空库：重复导入会重复计算回应。
type HistoryImporter struct {
	ledger LedgerStore
	opts   ImportOptions
}

// NewHistoryImporter 创建导入器
func NewHistoryImporter(ledger LedgerStore, opts ImportOptions) *HistoryImporter {
	if opts.CommentPoints <= 0 {
		opts.CommentPoints = 5
	}
	if opts.ReactionPoints <= 0 {
		opts.ReactionPoints = 2
	}
	return &HistoryImporter{ledger: ledger, opts: opts}
}

// ImportHistory 解析导出并写入流水；坏行跳过计数
func (h *HistoryImporter) ImportHistory(ctx context.Context, r io.Reader) (ImportStats, error) {
	var stats ImportStats
	var data exportFile
	if err := json.NewDecoder(r).Decode(&data); err != nil {
		return stats, fmt.Errorf("%w: 解析导出文件失败: %v", ErrValidation, err)
	}
	if len(data.Messages) == 0 {
		return stats, fmt.Errorf("%w: 导出文件中没有消息", ErrValidation)
	}

	rows, stats := h.replay(data.Messages)
	if len(rows) == 0 {
		return stats, nil
	}

	inserted, err := h.ledger.BatchInsert(ctx, rows)
	if err != nil {
		slog.Error("写入历史流水失败", "rows", len(rows), "error", err)
		return stats, storeErr("batch_insert", err)
	}
	stats.Inserted = inserted
	slog.Info("历史导入完成",
		"messages", stats.Messages, "comments", stats.Comments, "reactions", stats.Reactions,
		"duplicate_comments", stats.DupComments, "skipped", stats.Skipped, "inserted", inserted)
	return stats, nil
}

// replay 按实时评论规则重放：每人每帖首条评论计分，回应全部计分
func (h *HistoryImporter) replay(messages []exportMessage) ([]schema.ActivityEvent, ImportStats) {
	var stats ImportStats
	rows := make([]schema.ActivityEvent, 0, len(messages))
	commented := make(map[int64]map[int64]struct{})

	for i, msg := range messages {
		if msg.Type != "message" {
			continue
		}
		stats.Messages++

		ts, err := parseExportTime(msg)
		if err != nil {
			stats.Skipped++
			slog.Warn("跳过时间无效的消息", "message_id", msg.ID, "error", err)
			continue
		}

		postID := msg.ID
		if msg.ReplyToMessageID != nil {
			postID = *msg.ReplyToMessageID
		}

		if msg.From != nil && strings.TrimSpace(*msg.From) != "" && msg.FromID != "" {
			userID, ok := parseExportUserID(msg.FromID)
			switch {
			case !ok:
				if strings.HasPrefix(msg.FromID, "user") {
					stats.Skipped++
				}
			default:
				users, seen := commented[postID]
				if !seen {
					users = make(map[int64]struct{})
					commented[postID] = users
				}
				if _, dup := users[userID]; dup {
					stats.DupComments++
				} else {
					users[userID] = struct{}{}
					pid := postID
					key := schema.CommentDedupKey(userID, postID)
					rows = append(rows, schema.ActivityEvent{
						UserID:    userID,
						FirstName: schema.StrPtr(*msg.From),
						Kind:      schema.KindComment,
						Points:    h.opts.CommentPoints,
						Timestamp: ts.UnixMilli(),
						PostID:    &pid,
						DedupKey:  &key,
					})
					stats.Comments++
				}
			}
		}

		for _, reaction := range msg.Reactions {
			for _, peer := range reaction.Peers {
				if peer.ID == "" || peer.Name == "" {
					continue
				}
				userID, ok := parseExportUserID(peer.ID)
				if !ok {
					if strings.HasPrefix(peer.ID, "user") {
						stats.Skipped++
					}
					continue
				}
				rows = append(rows, schema.ActivityEvent{
					UserID:    userID,
					FirstName: schema.StrPtr(peer.Name),
					Kind:      schema.KindReaction,
					Points:    h.opts.ReactionPoints,
					Timestamp: ts.UnixMilli(),
				})
				stats.Reactions++
			}
		}

		if (i+1)%500 == 0 {
			slog.Info("导入进度", "processed", i+1, "total", len(messages))
		}
	}
	stats.PostsCommented = len(commented)
	return rows, stats
}

// parseExportUserID 只接受 user<digits>，频道等其他来源跳过
func parseExportUserID(raw string) (int64, bool) {
	if !strings.HasPrefix(raw, "user") {
		return 0, false
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(raw, "user"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func parseExportTime(msg exportMessage) (time.Time, error) {
	if msg.DateUnix != "" {
		sec, err := strconv.ParseInt(msg.DateUnix, 10, 64)
		if err == nil {
			return time.Unix(sec, 0), nil
		}
	}
	t, err := time.ParseInLocation(exportDateLayout, msg.Date, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q", ErrValidation, msg.Date)
	}
	return t, nil
}
