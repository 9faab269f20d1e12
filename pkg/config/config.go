package config

import (
	"fmt"
	"path/filepath"
	"runtime"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Log      LogConfig      `mapstructure:"log"`
	Database DatabaseConfig `mapstructure:"database"`
	QQ       QQConfig       `mapstructure:"qq"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Media    MediaConfig    `mapstructure:"media"`
	Bridge   BridgeConfig   `mapstructure:"bridge"`
	HTTP     HTTPConfig     `mapstructure:"http"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Production bool   `mapstructure:"production"`
}

type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

// OneBot v11 正向 WebSocket 连接配置
type QQConfig struct {
	WSURL          string `mapstructure:"ws_url"`
	AccessToken    string `mapstructure:"access_token"`
	APITimeoutSecs int    `mapstructure:"api_timeout_seconds"`
	// 目标进程能否读取本进程写出的文件 能读则媒体直接走本地路径
	SharesFilesystem bool `mapstructure:"shares_filesystem"`
}

type TelegramConfig struct {
	BotToken        string `mapstructure:"bot_token"`
	APIBase         string `mapstructure:"api_base"`
	PollTimeoutSecs int    `mapstructure:"poll_timeout_seconds"`
}

type MediaConfig struct {
	ScratchDir   string `mapstructure:"scratch_dir"`
	InternalBase string `mapstructure:"internal_base"`
	PublicBase   string `mapstructure:"public_base"`
	FallbackBase string `mapstructure:"fallback_base"`

	FFmpegPath    string `mapstructure:"ffmpeg_path"`
	SilkPath      string `mapstructure:"silk_path"`
	LottiePath    string `mapstructure:"lottie_path"`
	ToolTimeoutMs int    `mapstructure:"tool_timeout_ms"`

	GroupDebounceMs int `mapstructure:"group_debounce_ms"`
}

type BridgeConfig struct {
	NameCacheSize     int    `mapstructure:"name_cache_size"`
	NameCacheTTLSecs  int    `mapstructure:"name_cache_ttl_seconds"`
	RecallQueueSize   int    `mapstructure:"recall_queue_size"`
	RecallBatchSize   int    `mapstructure:"recall_batch_size"`
	RecallIntervalMs  int    `mapstructure:"recall_interval_ms"`
	RichHeaderSecret  string `mapstructure:"rich_header_secret"`
	RichHeaderExpires int    `mapstructure:"rich_header_expire_seconds"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

var GlobalConfig Config

func setDefaults() {
	viper.SetDefault("log.level", "info")
	viper.SetDefault("qq.api_timeout_seconds", 15)
	viper.SetDefault("telegram.api_base", "https://api.telegram.org")
	viper.SetDefault("telegram.poll_timeout_seconds", 30)
	viper.SetDefault("media.scratch_dir", "media")
	viper.SetDefault("media.fallback_base", "https://media.qtbridge.example")
	viper.SetDefault("media.ffmpeg_path", "ffmpeg")
	viper.SetDefault("media.tool_timeout_ms", 30000)
	viper.SetDefault("media.group_debounce_ms", 1000)
	viper.SetDefault("bridge.name_cache_size", 500)
	viper.SetDefault("bridge.name_cache_ttl_seconds", 600)
	viper.SetDefault("bridge.recall_queue_size", 256)
	viper.SetDefault("bridge.recall_batch_size", 16)
	viper.SetDefault("bridge.recall_interval_ms", 200)
	viper.SetDefault("bridge.rich_header_expire_seconds", 86400)
	viper.SetDefault("http.addr", ":8080")
}

func Init() error {
	// 项目根目录
	_, b, _, _ := runtime.Caller(0)
	basepath := filepath.Dir(filepath.Dir(filepath.Dir(b)))

	setDefaults()
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(filepath.Join(basepath, "config"))
	viper.AddConfigPath(".")

	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := viper.Unmarshal(&GlobalConfig); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return nil
}

// 测试用配置 不依赖配置文件 全部取默认值
func InitTest() error {
	viper.Reset()
	setDefaults()
	viper.SetDefault("bridge.rich_header_secret", "test-secret")

	if err := viper.Unmarshal(&GlobalConfig); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return nil
}

func (m MediaConfig) ToolTimeout() time.Duration {
	if m.ToolTimeoutMs <= 0 {
		return 30 * time.Second
	}
	return time.Duration(m.ToolTimeoutMs) * time.Millisecond
}

func (m MediaConfig) GroupDebounce() time.Duration {
	if m.GroupDebounceMs <= 0 {
		return time.Second
	}
	return time.Duration(m.GroupDebounceMs) * time.Millisecond
}
