package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/yuqie6/ActivityRank/internal/handler"
	"github.com/yuqie6/ActivityRank/internal/httpapi"
	"github.com/yuqie6/ActivityRank/internal/telegram"
	"golang.org/x/sync/errgroup"
)

// BotRuntime 机器人进程：长轮询 + 本地管理接口
type BotRuntime struct {
	*Core

	Dispatcher *handler.Dispatcher
	Poller     *telegram.Poller
}

// NewBotRuntime 构建机器人运行时
func NewBotRuntime(cfgPath string) (*BotRuntime, error) {
	core, err := NewCore(cfgPath)
	if err != nil {
		return nil, err
	}
	if err := core.Cfg.ValidateBot(); err != nil {
		_ = core.Close()
		return nil, err
	}
	return &BotRuntime{
		Core:   core,
		Poller: telegram.NewPoller(core.Clients.Telegram, core.Cfg.Telegram.PollTimeoutSec),
	}, nil
}

// Run 阻塞运行直到 ctx 结束；退出前等待在途更新与通知
func (rt *BotRuntime) Run(ctx context.Context) error {
	cfg := rt.Cfg

	meCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	me, err := rt.Clients.Telegram.GetMe(meCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("校验 bot token 失败: %w", err)
	}
	botUsername := cfg.Telegram.BotUsername
	if botUsername == "" {
		botUsername = me.Username
	}
	slog.Info("机器人身份", "id", me.ID, "username", me.Username)

	rt.Dispatcher = handler.NewDispatcher(handler.Services{
		Scorer:    rt.Services.Scoring,
		Ranker:    rt.Services.Leaderboard,
		Archiver:  rt.Services.Archive,
		Contest:   rt.Services.Contest,
		Referrals: rt.Services.Referral,
		Names:     rt.Services.Maintenance,
	}, rt.Clients.Telegram, handler.Options{
		GroupChatID:      cfg.Telegram.GroupChatID,
		BotUsername:      botUsername,
		AdminIDs:         cfg.Telegram.AdminIDs,
		LeaderboardLimit: cfg.Leaderboard.Limit,
		MaxConcurrency:   cfg.Bot.MaxConcurrency,
	})

	if rt.WatchConfig() {
		slog.Info("已开启配置热更新", "path", rt.Loader.ConfigFileUsed())
	}

	if cfg.HTTP.ListenAddr != "" {
		api := httpapi.NewHandler(rt.Services.Leaderboard, rt.Services.Archive, rt.Hub, httpapi.Options{
			AdminToken:   cfg.HTTP.AdminToken,
			Name:         cfg.App.Name,
			Version:      cfg.App.Version,
			DefaultLimit: cfg.Leaderboard.Limit,
		})
		if _, err := httpapi.Start(ctx, api, cfg.HTTP.ListenAddr); err != nil {
			slog.Error("启动本地管理接口失败", "error", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return rt.Poller.Run(gctx, rt.Dispatcher)
	})
	err = g.Wait()

	slog.Info("等待在途更新处理完成")
	rt.Dispatcher.Wait()
	rt.Services.Referral.WaitNotifications()
	return err
}
