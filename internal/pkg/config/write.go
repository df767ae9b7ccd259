package config

import (
	"fmt"
	"os"
	"path/filepath"

	"go.yaml.in/yaml/v3"
)

func DefaultConfigPath() string {
	return filepath.Join("config", "config.yaml")
}

func WriteFile(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("cfg 不能为空")
	}
	if path == "" {
		return fmt.Errorf("path 不能为空")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("创建配置目录失败: %w", err)
	}

	payload := map[string]any{
		"app": map[string]any{
			"name":      cfg.App.Name,
			"version":   cfg.App.Version,
			"log_level": cfg.App.LogLevel,
			"log_path":  cfg.App.LogPath,
		},
		"telegram": map[string]any{
			"bot_token":        cfg.Telegram.BotToken,
			"bot_username":     cfg.Telegram.BotUsername,
			"group_chat_id":    cfg.Telegram.GroupChatID,
			"channel_chat_id":  cfg.Telegram.ChannelChatID,
			"admin_ids":        nonNil(cfg.Telegram.AdminIDs),
			"bot_ids":          nonNil(cfg.Telegram.BotIDs),
			"api_base_url":     cfg.Telegram.APIBaseURL,
			"poll_timeout_sec": cfg.Telegram.PollTimeoutSec,
		},
		"storage": map[string]any{
			"driver":           cfg.Storage.Driver,
			"dsn":              cfg.Storage.DSN,
			"db_path":          cfg.Storage.DBPath,
			"call_timeout_sec": cfg.Storage.CallTimeoutSec,
		},
		"redis": map[string]any{
			"addr":       cfg.Redis.Addr,
			"password":   cfg.Redis.Password,
			"db":         cfg.Redis.DB,
			"key_prefix": cfg.Redis.KeyPrefix,
		},
		"scoring": map[string]any{
			"comment_policy":     cfg.Scoring.CommentPolicy,
			"early_window_hours": cfg.Scoring.EarlyWindowHours,
			"comment_early":      cfg.Scoring.CommentEarly,
			"comment_late":       cfg.Scoring.CommentLate,
			"reaction_early":     cfg.Scoring.ReactionEarly,
			"reaction_late":      cfg.Scoring.ReactionLate,
			"rank_first":         cfg.Scoring.RankFirst,
			"rank_second":        cfg.Scoring.RankSecond,
			"rank_third":         cfg.Scoring.RankThird,
			"rank_other":         cfg.Scoring.RankOther,
		},
		"referral": map[string]any{
			"referrer_points":    cfg.Referral.ReferrerPoints,
			"joining_points":     cfg.Referral.JoiningPoints,
			"pending_ttl_hours":  cfg.Referral.PendingTTLHours,
			"notify_timeout_sec": cfg.Referral.NotifyTimeoutSec,
		},
		"contest": map[string]any{
			"top_n": cfg.Contest.TopN,
		},
		"leaderboard": map[string]any{
			"limit": cfg.Leaderboard.Limit,
		},
		"import": map[string]any{
			"comment_points":  cfg.Import.CommentPoints,
			"reaction_points": cfg.Import.ReactionPoints,
		},
		"http": map[string]any{
			"listen_addr": cfg.HTTP.ListenAddr,
			"admin_token": cfg.HTTP.AdminToken,
		},
		"bot": map[string]any{
			"max_concurrency": cfg.Bot.MaxConcurrency,
		},
	}

	b, err := yaml.Marshal(payload)
	if err != nil {
		return fmt.Errorf("序列化配置失败: %w", err)
	}

	if err := os.WriteFile(path, b, 0o600); err != nil {
		return fmt.Errorf("写入配置文件失败: %w", err)
	}
	return nil
}

func nonNil(ids []int64) []int64 {
	if ids == nil {
		return []int64{}
	}
	return ids
}
