package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Scoring.CommentPolicy != "time_decay" || cfg.Scoring.EarlyWindowHours != 48 {
		t.Fatalf("scoring defaults=%+v", cfg.Scoring)
	}
	if cfg.Scoring.RankFirst != 15 || cfg.Scoring.RankOther != 10 {
		t.Fatalf("rank defaults=%+v", cfg.Scoring)
	}
	if cfg.Referral.ReferrerPoints != 5 || cfg.Referral.JoiningPoints != 3 || cfg.Referral.PendingTTLHours != 72 {
		t.Fatalf("referral defaults=%+v", cfg.Referral)
	}
	if cfg.Contest.TopN != 10 || cfg.Leaderboard.Limit != 20 || cfg.Bot.MaxConcurrency != 16 {
		t.Fatalf("misc defaults=%+v %+v %+v", cfg.Contest, cfg.Leaderboard, cfg.Bot)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if err := cfg.ValidateBot(); err == nil {
		t.Fatalf("bot validation should require a token")
	}
}

func TestWriteFileThenLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	cfg := Default()
	cfg.Telegram.BotToken = "${RANK_TEST_TOKEN}"
	cfg.Telegram.GroupChatID = -1001
	cfg.Telegram.AdminIDs = []int64{11, 12}
	cfg.Scoring.CommentPolicy = "rank"
	cfg.Storage.DBPath = "data/test.db"
	if err := WriteFile(path, cfg); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	t.Setenv("RANK_TEST_TOKEN", "secret-token")
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Telegram.BotToken != "secret-token" {
		t.Fatalf("token placeholder not expanded: %q", got.Telegram.BotToken)
	}
	if !got.Telegram.IsAdmin(12) || got.Telegram.IsAdmin(13) {
		t.Fatalf("admin ids=%v", got.Telegram.AdminIDs)
	}
	if got.Scoring.CommentPolicy != "rank" {
		t.Fatalf("policy=%s", got.Scoring.CommentPolicy)
	}
	if got.Storage.DBPath != filepath.Join(dir, "data/test.db") {
		t.Fatalf("db path=%s", got.Storage.DBPath)
	}
	if got.Telegram.MembershipChatID() != -1001 {
		t.Fatalf("membership chat=%d", got.Telegram.MembershipChatID())
	}
}

func TestLoadEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := WriteFile(path, Default()); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	t.Setenv("RANK_SCORING_COMMENT_EARLY", "12")
	t.Setenv("RANK_TELEGRAM_CHANNEL_CHAT_ID", "-2002")

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Scoring.CommentEarly != 12 {
		t.Fatalf("comment_early=%d", got.Scoring.CommentEarly)
	}
	if got.Telegram.MembershipChatID() != -2002 {
		t.Fatalf("membership chat=%d", got.Telegram.MembershipChatID())
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("scoring:\n  comment_policy: fastest\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for unknown policy")
	}

	if err := os.WriteFile(path, []byte("storage:\n  driver: postgres\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for postgres without dsn")
	}
}

func TestWatchReloadsScoring(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := WriteFile(path, Default()); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	loader := NewLoader(path)
	if _, err := loader.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	changed := make(chan *Config, 4)
	if !loader.Watch(func(c *Config) { changed <- c }) {
		t.Fatalf("watch not started")
	}

	cfg := Default()
	cfg.Scoring.CommentEarly = 25
	if err := WriteFile(path, cfg); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case c := <-changed:
			if c.Scoring.CommentEarly == 25 {
				return
			}
		case <-deadline:
			t.Fatalf("no reload observed")
		}
	}
}

func TestSetupLoggerWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "bot.log")
	closer, err := SetupLogger(LoggerOptions{Level: "debug", Path: path, Component: "test"})
	if err != nil {
		t.Fatalf("SetupLogger: %v", err)
	}
	defer closer.Close()
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("log file missing: %v", err)
	}
	if ParseLevel("WARN").String() != "WARN" || ParseLevel("nope").String() != "INFO" {
		t.Fatalf("ParseLevel mismatch")
	}
}
