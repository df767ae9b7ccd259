package httpapi

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/yuqie6/ActivityRank/internal/eventbus"
	"github.com/yuqie6/ActivityRank/internal/schema"
	"github.com/yuqie6/ActivityRank/internal/service"
)

type fakeRanker struct {
	rows []schema.ActivityEvent
	last service.Window
}

func (f *fakeRanker) Aggregate(_ context.Context, w service.Window) (*service.Board, error) {
	f.last = w
	return service.BuildBoard(f.rows, w), nil
}

type fakeArchiver struct {
	calls int
}

func (f *fakeArchiver) ArchiveAndClear(context.Context) (service.ArchiveResult, error) {
	f.calls++
	return service.ArchiveResult{Count: 2, Deleted: 2, OperationID: "op-1", ArchivedAt: "2024-06-08_12-00-00"}, nil
}

func newTestHandler(token string) (http.Handler, *fakeRanker, *fakeArchiver, *eventbus.Hub) {
	now := time.Now().UnixMilli()
	ranker := &fakeRanker{rows: []schema.ActivityEvent{
		{UserID: 1, Username: schema.StrPtr("alice"), Points: 10, Timestamp: now},
		{UserID: 2, FirstName: schema.StrPtr("Bob"), Points: 4, Timestamp: now},
		{UserID: 1, Points: 3, Timestamp: now},
	}}
	archiver := &fakeArchiver{}
	hub := eventbus.NewHub()
	h := NewHandler(ranker, archiver, hub, Options{AdminToken: token, Name: "activity-rank", Version: "test"})
	return h, ranker, archiver, hub
}

func TestHealth(t *testing.T) {
	h, _, _, _ := newTestHandler("")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["ok"] != true || body["name"] != "activity-rank" {
		t.Fatalf("health body = %v", body)
	}
}

func TestLeaderboardEndpoint(t *testing.T) {
	h, ranker, _, _ := newTestHandler("")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/leaderboard?period=month&limit=1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	if ranker.last.Days != 30 || ranker.last.Limit != 1 {
		t.Fatalf("window = %+v", ranker.last)
	}

	var dto LeaderboardDTO
	if err := json.Unmarshal(rec.Body.Bytes(), &dto); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if dto.Participants != 2 || dto.TotalPoints != 17 || len(dto.Entries) != 1 {
		t.Fatalf("dto = %+v", dto)
	}
	if e := dto.Entries[0]; e.UserID != 1 || e.Points != 13 || e.DisplayName != "@alice" {
		t.Fatalf("top entry = %+v", e)
	}
}

func TestLeaderboardBadParams(t *testing.T) {
	h, _, _, _ := newTestHandler("")
	for _, target := range []string{
		"/api/leaderboard?period=decade",
		"/api/leaderboard?days=-1",
		"/api/leaderboard?limit=0",
	} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s -> %d, want 400", target, rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/leaderboard", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST leaderboard -> %d", rec.Code)
	}
}

func TestStandingEndpoint(t *testing.T) {
	h, _, _, _ := newTestHandler("")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/leaderboard/standing?user_id=2&period=all", nil))
	var dto StandingDTO
	if err := json.Unmarshal(rec.Body.Bytes(), &dto); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !dto.Found || dto.Entry.Rank != 2 || dto.PeriodDays != 0 {
		t.Fatalf("standing = %+v", dto)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/leaderboard/standing?user_id=abc", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad user_id -> %d", rec.Code)
	}
}

func TestArchiveRequiresToken(t *testing.T) {
	h, _, archiver, _ := newTestHandler("secret")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/archive", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token -> %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/archive", nil)
	req.Header.Set(adminTokenHeader, "secret")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || archiver.calls != 1 {
		t.Fatalf("with token -> %d calls=%d", rec.Code, archiver.calls)
	}
	var res service.ArchiveResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil || res.OperationID != "op-1" {
		t.Fatalf("archive body = %s (%v)", rec.Body.String(), err)
	}

	disabled, _, archiver2, _ := newTestHandler("")
	req = httptest.NewRequest(http.MethodPost, "/api/archive", nil)
	req.Header.Set(adminTokenHeader, "")
	rec = httptest.NewRecorder()
	disabled.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden || archiver2.calls != 0 {
		t.Fatalf("disabled archive -> %d", rec.Code)
	}
}

func TestSSEStreamsEvents(t *testing.T) {
	h, _, _, hub := newTestHandler("")
	srv := httptest.NewServer(h)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)
	readEvent := func() string {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		// data + 空行
		_, _ = reader.ReadString('\n')
		_, _ = reader.ReadString('\n')
		return strings.TrimSpace(line)
	}

	if got := readEvent(); got != "event: ready" {
		t.Fatalf("first event = %q", got)
	}

	deadline := time.Now().Add(2 * time.Second)
	for hub.Subscribers() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	hub.Publish(eventbus.Event{Type: service.EventPointsAwarded, Data: map[string]any{"points": 10}})

	if got := readEvent(); got != "event: "+service.EventPointsAwarded {
		t.Fatalf("second event = %q", got)
	}
}

func TestSanitizeSSEName(t *testing.T) {
	if sanitizeSSEName("  ") != "message" {
		t.Fatalf("blank name should fall back to message")
	}
	if sanitizeSSEName("a\nb\r") != "ab" {
		t.Fatalf("newlines must be stripped")
	}
}

func TestStartServesHandler(t *testing.T) {
	h, _, _, _ := newTestHandler("")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ls, err := Start(ctx, h, "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	resp, err := http.Get(ls.BaseURL() + "/health")
	if err != nil {
		t.Fatalf("GET health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}
