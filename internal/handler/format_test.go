package handler

import (
	"strings"
	"testing"
	"time"

	"github.com/yuqie6/ActivityRank/internal/schema"
	"github.com/yuqie6/ActivityRank/internal/service"
)

func TestEscapeMarkdownV2(t *testing.T) {
	got := EscapeMarkdownV2("a_b.c! (x) #1 - ok")
	want := `a\_b\.c\! \(x\) \#1 \- ok`
	if got != want {
		t.Fatalf("EscapeMarkdownV2 = %q, want %q", got, want)
	}
}

func TestFormatLeaderboard(t *testing.T) {
	now := time.Date(2024, 6, 8, 12, 0, 0, 0, time.UTC)
	rows := []schema.ActivityEvent{
		{UserID: 1, Username: schema.StrPtr("a_1"), Points: 30, Timestamp: now.UnixMilli()},
		{UserID: 2, FirstName: schema.StrPtr("Bob"), Points: 20, Timestamp: now.UnixMilli()},
		{UserID: 3, FirstName: schema.StrPtr("Cy"), Points: 10, Timestamp: now.UnixMilli()},
		{UserID: 4, Points: 5, Timestamp: now.UnixMilli()},
	}
	board := service.BuildBoard(rows, service.Window{Days: 7})

	text := FormatLeaderboard(board, 20, 4, now)
	for _, want := range []string{
		"Last 7 Days",
		"_01 Jun \\- 08 Jun_",
		"🥇 @a\\_1 \\- 30 pts",
		"🥈 Bob \\- 20 pts",
		"🥉 Cy \\- 10 pts",
		"4\\. User \\#4 \\- 5 pts",
		"*Your position:* \\#4 \\- 5 pts",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("missing %q in:\n%s", want, text)
		}
	}

	outsider := FormatLeaderboard(board, 2, 77, now)
	if !strings.Contains(outsider, "no activity in this period") {
		t.Fatalf("outsider hint missing:\n%s", outsider)
	}
	if strings.Contains(outsider, "Cy") {
		t.Fatalf("limit 2 should hide third place")
	}

	if FormatLeaderboard(service.BuildBoard(nil, service.Window{Days: 7}), 20, 1, now) != "" {
		t.Fatalf("empty board should render nothing")
	}
}

func TestFormatContestShowsRankBonus(t *testing.T) {
	entries := []service.Entry{{Rank: 1, DisplayName: "@alice", Points: 40}}
	rank := service.RankPolicy{First: 15, Second: 14, Third: 13, Other: 10}

	text := FormatContest(entries, 10, &rank)
	if !strings.Contains(text, "Top 10 Users") || !strings.Contains(text, "1st comment: 15 points") {
		t.Fatalf("contest text:\n%s", text)
	}
	if strings.Contains(FormatContest(entries, 10, nil), "Bonus Points") {
		t.Fatalf("bonus block only for rank policy")
	}
}

func TestWelcomeText(t *testing.T) {
	admin := WelcomeText(true, testPolicies())
	if !strings.Contains(admin, "Admin Commands") || !strings.Contains(admin, "First 48h: 10 points") {
		t.Fatalf("admin welcome:\n%s", admin)
	}
	user := WelcomeText(false, testPolicies())
	if strings.Contains(user, "/resettop") {
		t.Fatalf("regular welcome must not list admin commands")
	}
}
