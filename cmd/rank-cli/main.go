package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/yuqie6/ActivityRank/internal/bootstrap"
	"github.com/yuqie6/ActivityRank/internal/pkg/buildinfo"
	"github.com/yuqie6/ActivityRank/internal/pkg/config"
	"github.com/yuqie6/ActivityRank/internal/service"
)

// 不需要数据库的命令
const skipCoreAnnotation = "skip_core"

var (
	cfgFile string
	core    *bootstrap.Core
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "rank",
		Short: "ActivityRank - 群活跃度积分管理工具",
		Long:  `ActivityRank 统计群内评论、表情回应与邀请，生成排行榜并支持比赛抽奖。此工具用于离线管理积分数据。`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if cmd.Annotations[skipCoreAnnotation] == "true" {
				return
			}
			var err error
			core, err = bootstrap.NewCore(cfgFile)
			if err != nil {
				slog.Error("初始化失败", "error", err)
				os.Exit(1)
			}
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if core != nil {
				_ = core.Close()
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "配置文件路径")

	rootCmd.AddCommand(leaderboardCmd())
	rootCmd.AddCommand(contestCmd())
	rootCmd.AddCommand(resetCmd())
	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(purgeBotsCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func fail(format string, args ...any) {
	fmt.Printf("❌ "+format+"\n", args...)
	if core != nil {
		_ = core.Close()
	}
	os.Exit(1)
}

// leaderboardCmd 排行榜
func leaderboardCmd() *cobra.Command {
	var period string
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "查看排行榜",
		Run: func(cmd *cobra.Command, args []string) {
			days, ok := service.ParsePeriod(period)
			if !ok {
				fail("未知周期: %s（可选 week / 2weeks / month / all）", period)
			}
			if limit <= 0 {
				limit = core.Cfg.Leaderboard.Limit
			}

			board, err := core.Services.Leaderboard.Aggregate(context.Background(), service.Window{Days: days, Limit: limit})
			if err != nil {
				fail("生成排行榜失败: %v", err)
			}
			entries := board.Ranked()

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				_ = enc.Encode(entries)
				return
			}
			if len(entries) == 0 {
				fmt.Println("📭 该周期内还没有积分记录")
				return
			}

			fmt.Printf("📊 排行榜 (%s)\n", service.PeriodLabel(days))
			fmt.Println("═══════════════════════════════════════")
			for _, e := range entries {
				fmt.Printf("  %3d. %-24s %6d 分  %s\n", e.Rank, e.DisplayName, e.Points, e.LastActivity.Format("01-02 15:04"))
			}
			fmt.Println("═══════════════════════════════════════")
			fmt.Printf("  参与人数: %d    总积分: %d\n", board.Len(), board.TotalPoints())
		},
	}

	cmd.Flags().StringVarP(&period, "period", "p", service.PeriodWeek, "统计周期 (week/2weeks/month/all)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "显示条数（默认读取 leaderboard.limit）")
	cmd.Flags().BoolVar(&asJSON, "json", false, "以 JSON 输出")

	return cmd
}

// contestCmd 比赛榜单与抽奖
func contestCmd() *cobra.Command {
	var pick bool

	cmd := &cobra.Command{
		Use:   "contest",
		Short: "查看比赛前 N 名，可随机抽取获奖者",
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()
			svc := core.Services.Contest

			entries, err := svc.ContestBoard(ctx)
			if err != nil {
				fail("生成比赛榜单失败: %v", err)
			}
			if len(entries) == 0 {
				fmt.Println("📭 还没有可参与抽奖的用户")
				return
			}

			fmt.Printf("🏆 比赛前 %d 名\n", svc.TopN())
			for _, e := range entries {
				fmt.Printf("  %3d. %-24s %6d 分\n", e.Rank, e.DisplayName, e.Points)
			}

			if !pick {
				return
			}
			winner, err := svc.PickWinner(ctx)
			if err != nil {
				fail("抽奖失败: %v", err)
			}
			fmt.Printf("\n🎉 获奖者: %s（第 %d 名，%d 分）\n", winner.DisplayName, winner.Rank, winner.Points)
		},
	}

	cmd.Flags().BoolVar(&pick, "pick", false, "从前 N 名中随机抽取一人")
	return cmd
}

// resetCmd 归档并清空
func resetCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "归档全部积分流水并清空排行榜",
		Run: func(cmd *cobra.Command, args []string) {
			if !yes {
				fmt.Println("⚠️  此操作会清空当前排行榜（数据会先写入归档表）")
				fmt.Println("   确认执行请追加 --yes；建议在机器人停机时操作")
				return
			}
			res, err := core.Services.Archive.ArchiveAndClear(context.Background())
			if err != nil {
				fail("归档失败: %v", err)
			}
			if res.Count == 0 {
				fmt.Println("📭 没有需要归档的记录")
				return
			}
			fmt.Printf("✅ 已归档 %d 条记录并清空（批次 %s，时间 %s）\n", res.Count, res.OperationID, res.ArchivedAt)
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "确认执行")
	return cmd
}

// importCmd 导入聊天记录导出文件
func importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <result.json>",
		Short: "从 Telegram Desktop 导出的 JSON 回放历史积分",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			f, err := os.Open(args[0])
			if err != nil {
				fail("打开导出文件失败: %v", err)
			}
			defer f.Close()

			start := time.Now()
			fmt.Printf("📥 正在导入 %s ...\n", args[0])
			stats, err := core.Services.Import.ImportHistory(context.Background(), f)
			if err != nil {
				fail("导入失败: %v", err)
			}

			fmt.Println("✅ 导入完成")
			fmt.Printf("  • 消息数: %d\n", stats.Messages)
			fmt.Printf("  • 评论: %d（重复 %d）\n", stats.Comments, stats.DupComments)
			fmt.Printf("  • 表情回应: %d\n", stats.Reactions)
			fmt.Printf("  • 跳过: %d\n", stats.Skipped)
			fmt.Printf("  • 写入流水: %d\n", stats.Inserted)
			fmt.Printf("  • 耗时: %s\n", time.Since(start).Round(time.Millisecond))
		},
	}
}

// purgeBotsCmd 清理机器人账号的流水
func purgeBotsCmd() *cobra.Command {
	var ids []string

	cmd := &cobra.Command{
		Use:   "purge-bots",
		Short: "删除机器人账号产生的积分流水",
		Run: func(cmd *cobra.Command, args []string) {
			targets := append([]int64(nil), core.Cfg.Telegram.BotIDs...)
			for _, raw := range ids {
				for _, part := range strings.Split(raw, ",") {
					part = strings.TrimSpace(part)
					if part == "" {
						continue
					}
					id, err := strconv.ParseInt(part, 10, 64)
					if err != nil {
						fail("无效的用户 ID: %s", part)
					}
					targets = append(targets, id)
				}
			}
			if len(targets) == 0 {
				fmt.Println("⚠️  没有需要清理的账号（配置 telegram.bot_ids 或使用 --ids）")
				return
			}

			deleted, err := core.Services.Maintenance.PurgeSubjects(context.Background(), targets)
			if err != nil {
				fail("清理失败: %v", err)
			}
			fmt.Printf("✅ 已删除 %d 条流水（账号 %v）\n", deleted, targets)
		},
	}

	cmd.Flags().StringSliceVar(&ids, "ids", nil, "额外的账号 ID，逗号分隔")
	return cmd
}

// configCmd 配置管理
func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:         "config",
		Short:       "配置文件管理",
		Annotations: map[string]string{skipCoreAnnotation: "true"},
	}

	var force bool
	initCmd := &cobra.Command{
		Use:         "init",
		Short:       "生成默认配置文件",
		Annotations: map[string]string{skipCoreAnnotation: "true"},
		Run: func(cmd *cobra.Command, args []string) {
			path := cfgFile
			if path == "" {
				path = config.DefaultConfigPath()
			}
			if _, err := os.Stat(path); err == nil && !force {
				fail("配置文件已存在: %s（使用 --force 覆盖）", path)
			} else if err != nil && !errors.Is(err, os.ErrNotExist) {
				fail("检查配置文件失败: %v", err)
			}
			if err := config.WriteFile(path, config.Default()); err != nil {
				fail("%v", err)
			}
			fmt.Printf("✅ 已生成配置文件: %s\n", path)
			fmt.Println("   请填写 telegram.bot_token 与 telegram.group_chat_id")
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "覆盖已有文件")

	cmd.AddCommand(initCmd)
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "显示版本",
		Annotations: map[string]string{skipCoreAnnotation: "true"},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("ActivityRank " + buildinfo.String())
		},
	}
}
