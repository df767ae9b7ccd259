package bootstrap

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/yuqie6/ActivityRank/internal/eventbus"
	"github.com/yuqie6/ActivityRank/internal/pkg/config"
	"github.com/yuqie6/ActivityRank/internal/repository"
	"github.com/yuqie6/ActivityRank/internal/service"
	"github.com/yuqie6/ActivityRank/internal/telegram"
)

// Core 持有跨二进制共享的核心依赖
type Core struct {
	Cfg       *config.Config
	Loader    *config.Loader
	DB        *repository.Database
	LogCloser io.Closer
	Hub       *eventbus.Hub

	Repos struct {
		Activity *repository.ActivityRepository
		Archive  *repository.ArchiveRepository
		Referral *repository.ReferralRepository
	}

	Pending       service.PendingStore
	pendingCloser io.Closer

	Services struct {
		Scoring     *service.ScoringService
		Leaderboard *service.LeaderboardService
		Archive     *service.ArchiveService
		Referral    *service.ReferralService
		Contest     *service.ContestService
		Maintenance *service.MaintenanceService
		Import      *service.HistoryImporter
	}

	Clients struct {
		Telegram *telegram.Client
	}
}

// NewCore 构建核心依赖（不启动轮询）
func NewCore(cfgPath string) (*Core, error) {
	loader := config.NewLoader(cfgPath)
	cfg, err := loader.Load()
	if err != nil {
		return nil, err
	}
	logCloser, err := config.SetupLogger(config.LoggerOptions{
		Level:     cfg.App.LogLevel,
		Path:      cfg.App.LogPath,
		Component: filepath.Base(os.Args[0]),
	})
	if err != nil {
		slog.Warn("日志文件不可用，仅输出到控制台", "error", err)
	}

	db, err := repository.NewDatabase(repository.Options{
		Driver: cfg.Storage.Driver,
		DSN:    cfg.Storage.DSN,
		DBPath: cfg.Storage.DBPath,
	})
	if err != nil {
		if logCloser != nil {
			_ = logCloser.Close()
		}
		return nil, err
	}

	c := &Core{Cfg: cfg, Loader: loader, DB: db, LogCloser: logCloser, Hub: eventbus.NewHub()}

	// Repos
	c.Repos.Activity = repository.NewActivityRepository(db.DB)
	c.Repos.Archive = repository.NewArchiveRepository(db.DB)
	c.Repos.Referral = repository.NewReferralRepository(db.DB)

	if err := c.openPendingStore(); err != nil {
		_ = c.Close()
		return nil, err
	}

	// Clients
	c.Clients.Telegram = telegram.NewClient(telegram.Config{
		Token:            cfg.Telegram.BotToken,
		BaseURL:          cfg.Telegram.APIBaseURL,
		MembershipChatID: cfg.Telegram.MembershipChatID(),
	})

	policies, err := service.BuildPolicies(PolicyConfigFrom(cfg), c.Repos.Activity)
	if err != nil {
		_ = c.Close()
		return nil, err
	}

	// Services
	callTimeout := time.Duration(cfg.Storage.CallTimeoutSec) * time.Second
	gate := service.NewGate(c.Repos.Activity, c.Repos.Referral)
	c.Services.Scoring = service.NewScoringService(c.Repos.Activity, gate, policies, c.Hub, service.ScoringOptions{
		BotIDs:      cfg.Telegram.BotIDs,
		CallTimeout: callTimeout,
	})
	c.Services.Leaderboard = service.NewLeaderboardService(c.Repos.Activity, callTimeout)
	c.Services.Archive = service.NewArchiveService(c.Repos.Activity, c.Repos.Archive)
	c.Services.Referral = service.NewReferralService(
		c.Repos.Referral,
		c.Repos.Activity,
		gate,
		c.Pending,
		c.Clients.Telegram,
		c.Clients.Telegram,
		c.Services.Scoring,
		c.Hub,
		service.ReferralOptions{
			PendingTTL:    time.Duration(cfg.Referral.PendingTTLHours) * time.Hour,
			NotifyTimeout: time.Duration(cfg.Referral.NotifyTimeoutSec) * time.Second,
			CallTimeout:   callTimeout,
		},
	)
	c.Services.Contest = service.NewContestService(c.Services.Leaderboard, cfg.Contest.TopN)
	c.Services.Maintenance = service.NewMaintenanceService(c.Repos.Activity, callTimeout)
	c.Services.Import = service.NewHistoryImporter(c.Repos.Activity, service.ImportOptions{
		CommentPoints:  cfg.Import.CommentPoints,
		ReactionPoints: cfg.Import.ReactionPoints,
	})

	return c, nil
}

// openPendingStore 配置了 Redis 用 Redis，否则用进程内存
func (c *Core) openPendingStore() error {
	if c.Cfg.Redis.Addr == "" {
		c.Pending = service.NewMemoryPendingStore()
		return nil
	}
	store, err := repository.NewRedisPendingStore(repository.RedisOptions{
		Addr:      c.Cfg.Redis.Addr,
		Password:  c.Cfg.Redis.Password,
		DB:        c.Cfg.Redis.DB,
		KeyPrefix: c.Cfg.Redis.KeyPrefix,
	})
	if err != nil {
		return fmt.Errorf("连接 Redis 失败: %w", err)
	}
	c.Pending = store
	c.pendingCloser = store
	slog.Info("待确认邀请使用 Redis", "addr", c.Cfg.Redis.Addr)
	return nil
}

// PolicyConfigFrom 配置 -> 计分参数
func PolicyConfigFrom(cfg *config.Config) service.PolicyConfig {
	return service.PolicyConfig{
		CommentPolicy:    cfg.Scoring.CommentPolicy,
		EarlyWindowHours: cfg.Scoring.EarlyWindowHours,
		CommentEarly:     cfg.Scoring.CommentEarly,
		CommentLate:      cfg.Scoring.CommentLate,
		ReactionEarly:    cfg.Scoring.ReactionEarly,
		ReactionLate:     cfg.Scoring.ReactionLate,
		RankFirst:        cfg.Scoring.RankFirst,
		RankSecond:       cfg.Scoring.RankSecond,
		RankThird:        cfg.Scoring.RankThird,
		RankOther:        cfg.Scoring.RankOther,
		ReferrerPoints:   cfg.Referral.ReferrerPoints,
		JoiningPoints:    cfg.Referral.JoiningPoints,
	}
}

// ReloadPolicies 用新配置替换计分策略；失败时保留旧策略
func (c *Core) ReloadPolicies(cfg *config.Config) error {
	policies, err := service.BuildPolicies(PolicyConfigFrom(cfg), c.Repos.Activity)
	if err != nil {
		return err
	}
	c.Services.Scoring.SetPolicies(policies)
	return nil
}

// WatchConfig 配置文件变更时热更新计分策略
func (c *Core) WatchConfig() bool {
	return c.Loader.Watch(func(cfg *config.Config) {
		if err := c.ReloadPolicies(cfg); err != nil {
			slog.Warn("计分策略热更新失败，保持原策略", "error", err)
		}
	})
}

// Close 关闭核心依赖资源
func (c *Core) Close() error {
	if c == nil {
		return nil
	}
	if c.pendingCloser != nil {
		_ = c.pendingCloser.Close()
	}
	var dbErr error
	if c.DB != nil {
		dbErr = c.DB.Close()
	}
	if c.LogCloser != nil {
		_ = c.LogCloser.Close()
	}
	return dbErr
}
