package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config 应用配置
type Config struct {
	App         AppConfig         `mapstructure:"app"`
	Telegram    TelegramConfig    `mapstructure:"telegram"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Scoring     ScoringConfig     `mapstructure:"scoring"`
	Referral    ReferralConfig    `mapstructure:"referral"`
	Contest     ContestConfig     `mapstructure:"contest"`
	Leaderboard LeaderboardConfig `mapstructure:"leaderboard"`
	Import      ImportConfig      `mapstructure:"import"`
	HTTP        HTTPConfig        `mapstructure:"http"`
	Bot         BotConfig         `mapstructure:"bot"`
}

// AppConfig 应用配置
type AppConfig struct {
	Name     string `mapstructure:"name"`
	Version  string `mapstructure:"version"`
	LogLevel string `mapstructure:"log_level"`
	LogPath  string `mapstructure:"log_path"`
}

// TelegramConfig Bot API 配置
type TelegramConfig struct {
	BotToken       string  `mapstructure:"bot_token"`
	BotUsername    string  `mapstructure:"bot_username"`
	GroupChatID    int64   `mapstructure:"group_chat_id"`
	ChannelChatID  int64   `mapstructure:"channel_chat_id"` // 成员检查用，未配置时用群
	AdminIDs       []int64 `mapstructure:"admin_ids"`
	BotIDs         []int64 `mapstructure:"bot_ids"`
	APIBaseURL     string  `mapstructure:"api_base_url"`
	PollTimeoutSec int     `mapstructure:"poll_timeout_sec"`
}

// MembershipChatID 成员检查使用的 chat
func (t TelegramConfig) MembershipChatID() int64 {
	if t.ChannelChatID != 0 {
		return t.ChannelChatID
	}
	return t.GroupChatID
}

// IsAdmin 是否管理员
func (t TelegramConfig) IsAdmin(userID int64) bool {
	for _, id := range t.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// StorageConfig 存储配置
type StorageConfig struct {
	Driver         string `mapstructure:"driver"` // sqlite / postgres / mysql
	DSN            string `mapstructure:"dsn"`
	DBPath         string `mapstructure:"db_path"`
	CallTimeoutSec int    `mapstructure:"call_timeout_sec"`
}

// RedisConfig 待确认邀请表；Addr 为空时使用内存
type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// ScoringConfig 计分配置（支持热更新）
type ScoringConfig struct {
	CommentPolicy    string `mapstructure:"comment_policy"` // time_decay / rank
	EarlyWindowHours int    `mapstructure:"early_window_hours"`
	CommentEarly     int    `mapstructure:"comment_early"`
	CommentLate      int    `mapstructure:"comment_late"`
	ReactionEarly    int    `mapstructure:"reaction_early"`
	ReactionLate     int    `mapstructure:"reaction_late"`
	RankFirst        int    `mapstructure:"rank_first"`
	RankSecond       int    `mapstructure:"rank_second"`
	RankThird        int    `mapstructure:"rank_third"`
	RankOther        int    `mapstructure:"rank_other"`
}

// ReferralConfig 邀请配置
type ReferralConfig struct {
	ReferrerPoints   int `mapstructure:"referrer_points"`
	JoiningPoints    int `mapstructure:"joining_points"`
	PendingTTLHours  int `mapstructure:"pending_ttl_hours"`
	NotifyTimeoutSec int `mapstructure:"notify_timeout_sec"`
}

type ContestConfig struct {
	TopN int `mapstructure:"top_n"`
}

type LeaderboardConfig struct {
	Limit int `mapstructure:"limit"`
}

// ImportConfig 历史导入分值
type ImportConfig struct {
	CommentPoints  int `mapstructure:"comment_points"`
	ReactionPoints int `mapstructure:"reaction_points"`
}

// HTTPConfig 本地管理接口
type HTTPConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
	AdminToken string `mapstructure:"admin_token"`
}

type BotConfig struct {
	MaxConcurrency int `mapstructure:"max_concurrency"`
}

// Loader 持有 viper 实例，用于热更新
type Loader struct {
	v    *viper.Viper
	path string
}

// NewLoader 创建加载器；configPath 为空时按默认路径查找
func NewLoader(configPath string) *Loader {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	// 支持环境变量，如 RANK_TELEGRAM_BOT_TOKEN
	v.SetEnvPrefix("RANK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return &Loader{v: v, path: configPath}
}

// Load 加载配置文件
func Load(configPath string) (*Config, error) {
	return NewLoader(configPath).Load()
}

// Load 读取并解析配置
func (l *Loader) Load() (*Config, error) {
	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			slog.Warn("配置文件未找到，使用默认配置")
		} else {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	} else {
		slog.Info("加载配置文件", "path", l.v.ConfigFileUsed())
	}
	return l.decode()
}

func (l *Loader) decode() (*Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	// 处理环境变量占位符
	cfg.Telegram.BotToken = expandEnv(cfg.Telegram.BotToken)
	cfg.Storage.DSN = expandEnv(cfg.Storage.DSN)
	cfg.Redis.Password = expandEnv(cfg.Redis.Password)
	cfg.HTTP.AdminToken = expandEnv(cfg.HTTP.AdminToken)

	// 相对路径按配置文件所在目录解析
	baseDir := ""
	if used := l.v.ConfigFileUsed(); used != "" {
		baseDir = filepath.Dir(used)
	}
	cfg.Storage.DBPath = resolvePath(baseDir, cfg.Storage.DBPath)
	cfg.App.LogPath = resolvePath(baseDir, cfg.App.LogPath)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Watch 监听配置文件变更，解析成功后回调；只对已找到的配置文件生效
func (l *Loader) Watch(onChange func(*Config)) bool {
	if l.v.ConfigFileUsed() == "" {
		return false
	}
	l.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := l.decode()
		if err != nil {
			slog.Warn("配置热更新失败，保持原配置", "path", e.Name, "error", err)
			return
		}
		slog.Info("配置文件已变更", "path", e.Name)
		onChange(cfg)
	})
	l.v.WatchConfig()
	return true
}

// ConfigFileUsed 实际使用的配置文件
func (l *Loader) ConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// Validate 基础校验；bot token 只在运行机器人时检查
func (c *Config) Validate() error {
	switch strings.ToLower(c.Storage.Driver) {
	case "", "sqlite":
	case "postgres", "postgresql", "mysql":
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn 不能为空（driver=%s）", c.Storage.Driver)
		}
	default:
		return fmt.Errorf("不支持的 storage.driver: %s", c.Storage.Driver)
	}
	switch strings.ToLower(c.Scoring.CommentPolicy) {
	case "time_decay", "rank":
	default:
		return fmt.Errorf("未知 scoring.comment_policy: %s", c.Scoring.CommentPolicy)
	}
	if c.Scoring.EarlyWindowHours <= 0 {
		return fmt.Errorf("scoring.early_window_hours 必须为正数")
	}
	return nil
}

// ValidateBot 运行机器人所需的配置
func (c *Config) ValidateBot() error {
	if c.Telegram.BotToken == "" {
		return fmt.Errorf("缺少 telegram.bot_token（或环境变量 RANK_TELEGRAM_BOT_TOKEN）")
	}
	if c.Telegram.GroupChatID == 0 {
		return fmt.Errorf("缺少 telegram.group_chat_id")
	}
	return nil
}

// setDefaults 设置默认值
func setDefaults(v *viper.Viper) {
	// App
	v.SetDefault("app.name", "activity-rank")
	v.SetDefault("app.version", "0.1.0")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.log_path", "")

	// Telegram
	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.bot_username", "")
	v.SetDefault("telegram.group_chat_id", 0)
	v.SetDefault("telegram.channel_chat_id", 0)
	v.SetDefault("telegram.admin_ids", []int64{})
	v.SetDefault("telegram.bot_ids", []int64{})
	v.SetDefault("telegram.api_base_url", "https://api.telegram.org")
	v.SetDefault("telegram.poll_timeout_sec", 30)

	// Storage
	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.dsn", "")
	v.SetDefault("storage.db_path", "./data/activity.db")
	v.SetDefault("storage.call_timeout_sec", 10)

	// Redis
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", "activityrank")

	// Scoring
	v.SetDefault("scoring.comment_policy", "time_decay")
	v.SetDefault("scoring.early_window_hours", 48)
	v.SetDefault("scoring.comment_early", 10)
	v.SetDefault("scoring.comment_late", 3)
	v.SetDefault("scoring.reaction_early", 3)
	v.SetDefault("scoring.reaction_late", 1)
	v.SetDefault("scoring.rank_first", 15)
	v.SetDefault("scoring.rank_second", 14)
	v.SetDefault("scoring.rank_third", 13)
	v.SetDefault("scoring.rank_other", 10)

	// Referral
	v.SetDefault("referral.referrer_points", 5)
	v.SetDefault("referral.joining_points", 3)
	v.SetDefault("referral.pending_ttl_hours", 72)
	v.SetDefault("referral.notify_timeout_sec", 10)

	v.SetDefault("contest.top_n", 10)
	v.SetDefault("leaderboard.limit", 20)

	// Import
	v.SetDefault("import.comment_points", 5)
	v.SetDefault("import.reaction_points", 2)

	// HTTP
	v.SetDefault("http.listen_addr", "127.0.0.1:8090")
	v.SetDefault("http.admin_token", "")

	v.SetDefault("bot.max_concurrency", 16)
}

// Default 默认配置
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// expandEnv 展开环境变量占位符 ${VAR}
func expandEnv(s string) string {
	if strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") {
		envVar := s[2 : len(s)-1]
		return os.Getenv(envVar)
	}
	return s
}

// resolvePath 解析相对路径
func resolvePath(baseDir, path string) string {
	if path == "" || path == ":memory:" || filepath.IsAbs(path) || baseDir == "" {
		return path
	}
	return filepath.Join(baseDir, path)
}
