package service

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeCounter struct {
	n   int64
	err error
}

func (f *fakeCounter) CountComments(ctx context.Context, postID int64) (int64, error) {
	return f.n, f.err
}

func TestTimeDecayPolicy_Boundary(t *testing.T) {
	p := DefaultTimeDecayPolicy()
	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name         string
		elapsed      time.Duration
		wantComment  int
		wantReaction int
	}{
		{"fresh", 0, 10, 3},
		{"just before window", 48*time.Hour - time.Second, 10, 3},
		{"exactly at window", 48 * time.Hour, 3, 1},
		{"after window", 72 * time.Hour, 3, 1},
		{"clock skew", -time.Hour, 10, 3},
	}
	for _, tc := range cases {
		in := ScoreInput{PostCreatedAt: created, Now: created.Add(tc.elapsed)}
		got, err := p.CommentPoints(context.Background(), in)
		if err != nil || got != tc.wantComment {
			t.Errorf("%s: comment=%d err=%v, want %d", tc.name, got, err, tc.wantComment)
		}
		if got := p.ReactionPoints(in); got != tc.wantReaction {
			t.Errorf("%s: reaction=%d, want %d", tc.name, got, tc.wantReaction)
		}
	}
}

func TestRankPolicy_Sequence(t *testing.T) {
	counter := &fakeCounter{}
	p := RankPolicy{Counter: counter, First: 15, Second: 14, Third: 13, Other: 10}

	want := []int{15, 14, 13, 10, 10, 10}
	for i, w := range want {
		counter.n = int64(i)
		got, err := p.CommentPoints(context.Background(), ScoreInput{PostID: 1})
		if err != nil || got != w {
			t.Fatalf("comment #%d: got %d err=%v, want %d", i+1, got, err, w)
		}
	}
}

func TestRankPolicy_CountFailureFallsBackToOther(t *testing.T) {
	p := RankPolicy{Counter: &fakeCounter{err: errors.New("timeout")}, First: 15, Second: 14, Third: 13, Other: 10}
	got, err := p.CommentPoints(context.Background(), ScoreInput{PostID: 1})
	if err != nil || got != 10 {
		t.Fatalf("got %d err=%v, want 10", got, err)
	}
}

func defaultPolicyConfig() PolicyConfig {
	return PolicyConfig{
		CommentPolicy:    PolicyTimeDecay,
		EarlyWindowHours: 48,
		CommentEarly:     10,
		CommentLate:      3,
		ReactionEarly:    3,
		ReactionLate:     1,
		RankFirst:        15,
		RankSecond:       14,
		RankThird:        13,
		RankOther:        10,
		ReferrerPoints:   5,
		JoiningPoints:    3,
	}
}

func TestBuildPolicies(t *testing.T) {
	cfg := defaultPolicyConfig()
	set, err := BuildPolicies(cfg, nil)
	if err != nil {
		t.Fatalf("BuildPolicies: %v", err)
	}
	if set.Mode != PolicyTimeDecay {
		t.Fatalf("mode=%s", set.Mode)
	}
	if _, ok := set.Comment.(TimeDecayPolicy); !ok {
		t.Fatalf("comment policy = %T", set.Comment)
	}

	cfg.CommentPolicy = "RANK"
	set, err = BuildPolicies(cfg, &fakeCounter{})
	if err != nil {
		t.Fatalf("BuildPolicies rank: %v", err)
	}
	if _, ok := set.Comment.(RankPolicy); !ok {
		t.Fatalf("comment policy = %T", set.Comment)
	}
	if _, ok := set.Reaction.(TimeDecayPolicy); !ok {
		t.Fatalf("reactions must stay on time decay, got %T", set.Reaction)
	}
	if set.Referral.ReferrerPoints != 5 || set.Referral.JoiningPoints != 3 {
		t.Fatalf("referral policy = %+v", set.Referral)
	}

	cfg.CommentPolicy = "fastest"
	if _, err := BuildPolicies(cfg, nil); !errors.Is(err, ErrValidation) {
		t.Fatalf("unknown policy err=%v", err)
	}

	cfg = defaultPolicyConfig()
	cfg.EarlyWindowHours = 0
	if _, err := BuildPolicies(cfg, nil); !errors.Is(err, ErrValidation) {
		t.Fatalf("zero window err=%v", err)
	}
}
