package service

import (
	"context"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/yuqie6/ActivityRank/internal/repository"
	"github.com/yuqie6/ActivityRank/internal/schema"
)

// Window 统计窗口
type Window struct {
	Days  int // 0 表示全部时间
	Limit int // 0 表示不截断
}

// Entry 排行榜一行
type Entry struct {
	Rank         int       `json:"rank"`
	UserID       int64     `json:"user_id"`
	DisplayName  string    `json:"display_name"`
	Points       int       `json:"points"`
	LastActivity time.Time `json:"last_activity"`
}

// Board 聚合结果，保留完整分组便于查询个人名次
type Board struct {
	Window  Window
	entries []Entry
	index   map[int64]int
}

// Ranked 按窗口 Limit 截断后的榜单
func (b *Board) Ranked() []Entry {
	return b.Top(b.Window.Limit)
}

// Top 前 n 名；n<=0 返回全部
func (b *Board) Top(n int) []Entry {
	if b == nil {
		return nil
	}
	if n <= 0 || n > len(b.entries) {
		n = len(b.entries)
	}
	out := make([]Entry, n)
	copy(out, b.entries[:n])
	return out
}

// Standing 查询某人名次，不重新扫描
func (b *Board) Standing(userID int64) (Entry, bool) {
	if b == nil {
		return Entry{}, false
	}
	i, ok := b.index[userID]
	if !ok {
		return Entry{}, false
	}
	return b.entries[i], true
}

// Len 参与统计的人数
func (b *Board) Len() int {
	if b == nil {
		return 0
	}
	return len(b.entries)
}

// TotalPoints 全部分数之和
func (b *Board) TotalPoints() int {
	total := 0
	if b == nil {
		return total
	}
	for _, e := range b.entries {
		total += e.Points
	}
	return total
}

// LeaderboardService 排行榜聚合
type LeaderboardService struct {
	ledger      LedgerStore
	callTimeout time.Duration
	now         func() time.Time
}

// NewLeaderboardService 创建排行榜服务
func NewLeaderboardService(ledger LedgerStore, callTimeout time.Duration) *LeaderboardService {
	if callTimeout <= 0 {
		callTimeout = defaultCallTimeout
	}
	return &LeaderboardService{ledger: ledger, callTimeout: callTimeout, now: time.Now}
}

type userAgg struct {
	userID    int64
	username  string
	firstName string
	points    int
	lastTs    int64
}

// Aggregate 按用户汇总窗口内分数，降序；同分保持首次出现顺序
func (s *LeaderboardService) Aggregate(ctx context.Context, w Window) (*Board, error) {
	ctx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()

	rows, err := s.ledger.ListSince(ctx, repository.WindowStartMs(s.now(), w.Days))
	if err != nil {
		slog.Error("查询排行榜流水失败", "days", w.Days, "error", err)
		return nil, storeErr("list_since", err)
	}
	return BuildBoard(rows, w), nil
}

// BuildBoard 纯聚合逻辑；rows 需按写入顺序排列
func BuildBoard(rows []schema.ActivityEvent, w Window) *Board {
	order := make([]*userAgg, 0)
	byUser := make(map[int64]*userAgg)
	for _, r := range rows {
		a, ok := byUser[r.UserID]
		if !ok {
			a = &userAgg{userID: r.UserID}
			byUser[r.UserID] = a
			order = append(order, a)
		}
		a.points += r.Points
		if r.Timestamp > a.lastTs {
			a.lastTs = r.Timestamp
		}
		// 以最近一条非空名称为准
		if r.Username != nil && strings.TrimSpace(*r.Username) != "" {
			a.username = *r.Username
		}
		if r.FirstName != nil && strings.TrimSpace(*r.FirstName) != "" {
			a.firstName = *r.FirstName
		}
	}

	sort.SliceStable(order, func(i, j int) bool {
		return order[i].points > order[j].points
	})

	b := &Board{Window: w, entries: make([]Entry, 0, len(order)), index: make(map[int64]int, len(order))}
	for i, a := range order {
		b.index[a.userID] = i
		b.entries = append(b.entries, Entry{
			Rank:         i + 1,
			UserID:       a.userID,
			DisplayName:  schema.DisplayName(a.userID, a.username, a.firstName),
			Points:       a.points,
			LastActivity: time.UnixMilli(a.lastTs),
		})
	}
	return b
}

// 命名周期
const (
	PeriodWeek    = "week"
	PeriodTwoWeek = "2weeks"
	PeriodMonth   = "month"
	PeriodAll     = "all"
)

// ParsePeriod 周期名 -> 天数（0 表示全部）
func ParsePeriod(s string) (int, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case PeriodWeek:
		return 7, true
	case PeriodTwoWeek:
		return 14, true
	case PeriodMonth:
		return 30, true
	case PeriodAll:
		return 0, true
	default:
		return 0, false
	}
}

// PeriodLabel 天数 -> 展示文案
func PeriodLabel(days int) string {
	switch days {
	case 0:
		return "All Time"
	case 7:
		return "Last 7 Days"
	case 14:
		return "Last 14 Days"
	case 30:
		return "Last 30 Days"
	default:
		return "Last " + strconv.Itoa(days) + " Days"
	}
}
