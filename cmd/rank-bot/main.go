package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/yuqie6/ActivityRank/internal/bootstrap"
	"github.com/yuqie6/ActivityRank/internal/pkg/buildinfo"
	"github.com/yuqie6/ActivityRank/internal/pkg/config"
)

func main() {
	cfgPath := flag.String("config", config.DefaultConfigPath(), "配置文件路径")
	flag.Parse()

	// 首次运行生成默认配置，方便填写 token
	if _, err := os.Stat(*cfgPath); errors.Is(err, os.ErrNotExist) {
		if err := config.WriteFile(*cfgPath, config.Default()); err == nil {
			slog.Warn("已生成默认配置，请填写 telegram.bot_token 与 group_chat_id", "path", *cfgPath)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := bootstrap.NewBotRuntime(*cfgPath)
	if err != nil {
		slog.Error("启动机器人失败", "error", err)
		os.Exit(1)
	}
	defer rt.Close()

	slog.Info("ActivityRank Bot 启动中...", "name", rt.Cfg.App.Name, "build", buildinfo.String())

	if err := rt.Run(ctx); err != nil {
		slog.Error("机器人异常退出", "error", err)
		_ = rt.Close()
		os.Exit(1)
	}
	slog.Info("ActivityRank Bot 已退出")
}
