package handler

import (
	"context"
	"sync"

	"github.com/yuqie6/ActivityRank/internal/schema"
	"github.com/yuqie6/ActivityRank/internal/service"
	"github.com/yuqie6/ActivityRank/internal/telegram"
)

func testPolicies() *service.PolicySet {
	return &service.PolicySet{
		Mode:     service.PolicyTimeDecay,
		Comment:  service.DefaultTimeDecayPolicy(),
		Reaction: service.DefaultTimeDecayPolicy(),
		Referral: service.ReferralPolicy{ReferrerPoints: 5, JoiningPoints: 3},
	}
}

type fakeScorer struct {
	mu        sync.Mutex
	comments  []service.CommentEvent
	reactions []service.ReactionEvent
	policies  *service.PolicySet
	panicOn   int64
}

func (f *fakeScorer) HandleComment(_ context.Context, ev service.CommentEvent) (service.Outcome, error) {
	if f.panicOn != 0 && ev.Author.UserID == f.panicOn {
		panic("boom")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.comments = append(f.comments, ev)
	return service.Outcome{Scored: true, Kind: schema.KindComment, Points: 10}, nil
}

func (f *fakeScorer) HandleReaction(_ context.Context, ev service.ReactionEvent) (service.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reactions = append(f.reactions, ev)
	return service.Outcome{Scored: ev.Reactor != nil && ev.Added > 0, Kind: schema.KindReaction, Points: 3}, nil
}

func (f *fakeScorer) IsBot(p service.Profile) bool { return p.IsBot }

func (f *fakeScorer) Policies() *service.PolicySet {
	if f.policies == nil {
		return testPolicies()
	}
	return f.policies
}

func (f *fakeScorer) commentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.comments)
}

type fakeRanker struct {
	rows []schema.ActivityEvent
	days []int
	mu   sync.Mutex
}

func (f *fakeRanker) Aggregate(_ context.Context, w service.Window) (*service.Board, error) {
	f.mu.Lock()
	f.days = append(f.days, w.Days)
	f.mu.Unlock()
	return service.BuildBoard(f.rows, w), nil
}

type fakeArchiver struct {
	count int
	calls int
}

func (f *fakeArchiver) ArchiveAndClear(context.Context) (service.ArchiveResult, error) {
	f.calls++
	return service.ArchiveResult{Count: f.count, Deleted: int64(f.count)}, nil
}

type fakeContest struct {
	entries []service.Entry
}

func (f *fakeContest) ContestBoard(context.Context) ([]service.Entry, error) {
	return f.entries, nil
}

func (f *fakeContest) PickWinner(context.Context) (service.Entry, error) {
	if len(f.entries) == 0 {
		return service.Entry{}, service.ErrNoCandidates
	}
	return f.entries[0], nil
}

func (f *fakeContest) TopN() int { return 10 }

type fakeReferrals struct {
	mu      sync.Mutex
	started []string
	checked []int64
	state   service.State
	count   int64
}

func (f *fakeReferrals) Start(_ context.Context, referred service.Profile, token string) (service.State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, token)
	return f.state, nil
}

func (f *fakeReferrals) CheckPending(_ context.Context, referred service.Profile) (service.State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checked = append(f.checked, referred.UserID)
	return f.state, nil
}

func (f *fakeReferrals) ReferralCount(context.Context, int64) (int64, error) {
	return f.count, nil
}

type fakeNames struct {
	mu    sync.Mutex
	calls []int64
}

func (f *fakeNames) BackfillDisplayName(_ context.Context, p service.Profile) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, p.UserID)
	return 0, nil
}

type fakeSender struct {
	mu   sync.Mutex
	sent []telegram.SendMessageRequest
}

func (f *fakeSender) SendMessage(_ context.Context, req telegram.SendMessageRequest) (*telegram.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, req)
	return &telegram.Message{MessageID: int64(len(f.sent))}, nil
}

func (f *fakeSender) messages() []telegram.SendMessageRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]telegram.SendMessageRequest, len(f.sent))
	copy(out, f.sent)
	return out
}
