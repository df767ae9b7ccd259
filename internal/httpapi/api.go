package httpapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/yuqie6/ActivityRank/internal/eventbus"
	"github.com/yuqie6/ActivityRank/internal/service"
)

const (
	adminTokenHeader = "X-Admin-Token"
	maxLimit         = 200
)

// Ranker 排行榜聚合
type Ranker interface {
	Aggregate(ctx context.Context, w service.Window) (*service.Board, error)
}

// Archiver 归档并清空
type Archiver interface {
	ArchiveAndClear(ctx context.Context) (service.ArchiveResult, error)
}

// Options 接口参数
type Options struct {
	AdminToken   string // 为空时禁用写接口
	Name         string
	Version      string
	DefaultLimit int
	CallTimeout  time.Duration
}

// ========== DTOs ==========

type LeaderboardDTO struct {
	PeriodDays   int             `json:"period_days"`
	Label        string          `json:"label"`
	Participants int             `json:"participants"`
	TotalPoints  int             `json:"total_points"`
	Entries      []service.Entry `json:"entries"`
}

type StandingDTO struct {
	PeriodDays int            `json:"period_days"`
	Found      bool           `json:"found"`
	Entry      *service.Entry `json:"entry,omitempty"`
}

type apiServer struct {
	board     Ranker
	archiver  Archiver
	hub       *eventbus.Hub
	opts      Options
	startTime time.Time
}

// NewHandler 组装路由
func NewHandler(board Ranker, archiver Archiver, hub *eventbus.Hub, opts Options) http.Handler {
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = 20
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 30 * time.Second
	}
	if hub == nil {
		hub = eventbus.NewHub()
	}
	a := &apiServer{
		board:     board,
		archiver:  archiver,
		hub:       hub,
		opts:      opts,
		startTime: time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", a.handleHealth)
	mux.HandleFunc("/api/events", a.handleSSE)
	mux.HandleFunc("/api/leaderboard", a.wrapGET(a.getLeaderboard))
	mux.HandleFunc("/api/leaderboard/standing", a.wrapGET(a.getStanding))
	mux.HandleFunc("/api/archive", a.wrapPOST(a.requireAdmin(a.postArchive)))
	return mux
}

func (a *apiServer) wrapGET(fn http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		fn(w, r)
	}
}

func (a *apiServer) wrapPOST(fn http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		fn(w, r)
	}
}

// requireAdmin 校验 X-Admin-Token
func (a *apiServer) requireAdmin(fn http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if a.opts.AdminToken == "" {
			writeError(w, http.StatusForbidden, "未配置 http.admin_token，写接口已禁用")
			return
		}
		got := r.Header.Get(adminTokenHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(a.opts.AdminToken)) != 1 {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		fn(w, r)
	}
}

func (a *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":          true,
		"name":        a.opts.Name,
		"version":     a.opts.Version,
		"started_at":  a.startTime.Format(time.RFC3339),
		"subscribers": a.hub.Subscribers(),
	})
}

func (a *apiServer) handleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "stream not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ctx := r.Context()
	sub := a.hub.Subscribe(ctx, 32)

	writeSSE(w, "ready", []byte("{}"))
	flusher.Flush()

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			writeSSE(w, "ping", []byte("{}"))
			flusher.Flush()
		case evt, ok := <-sub:
			if !ok {
				return
			}
			b, _ := json.Marshal(evt)
			writeSSE(w, evt.Type, b)
			flusher.Flush()
		}
	}
}

// parseWindow period=week|2weeks|month|all 或 days=N；默认一周
func (a *apiServer) parseWindow(r *http.Request) (service.Window, bool) {
	q := r.URL.Query()
	w := service.Window{Days: 7, Limit: a.opts.DefaultLimit}

	if p := strings.TrimSpace(q.Get("period")); p != "" {
		days, ok := service.ParsePeriod(p)
		if !ok {
			return w, false
		}
		w.Days = days
	} else if d := strings.TrimSpace(q.Get("days")); d != "" {
		days, err := strconv.Atoi(d)
		if err != nil || days < 0 {
			return w, false
		}
		w.Days = days
	}

	if l := strings.TrimSpace(q.Get("limit")); l != "" {
		limit, err := strconv.Atoi(l)
		if err != nil || limit <= 0 {
			return w, false
		}
		w.Limit = min(limit, maxLimit)
	}
	return w, true
}

func (a *apiServer) getLeaderboard(w http.ResponseWriter, r *http.Request) {
	win, ok := a.parseWindow(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "period/days/limit 参数无效")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), a.opts.CallTimeout)
	defer cancel()

	board, err := a.board.Aggregate(ctx, win)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	entries := board.Ranked()
	if entries == nil {
		entries = []service.Entry{}
	}
	writeJSON(w, http.StatusOK, &LeaderboardDTO{
		PeriodDays:   win.Days,
		Label:        service.PeriodLabel(win.Days),
		Participants: board.Len(),
		TotalPoints:  board.TotalPoints(),
		Entries:      entries,
	})
}

func (a *apiServer) getStanding(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(strings.TrimSpace(r.URL.Query().Get("user_id")), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "user_id 参数无效")
		return
	}
	win, ok := a.parseWindow(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "period/days 参数无效")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), a.opts.CallTimeout)
	defer cancel()

	board, err := a.board.Aggregate(ctx, service.Window{Days: win.Days})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	dto := &StandingDTO{PeriodDays: win.Days}
	if e, found := board.Standing(userID); found {
		dto.Found = true
		dto.Entry = &e
	}
	writeJSON(w, http.StatusOK, dto)
}

func (a *apiServer) postArchive(w http.ResponseWriter, r *http.Request) {
	if a.archiver == nil {
		writeError(w, http.StatusServiceUnavailable, "归档服务未初始化")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), a.opts.CallTimeout)
	defer cancel()

	res, err := a.archiver.ArchiveAndClear(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}
