package logger

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// 全局日志记录器 所有组件通过 logger.L 写日志
var L *zap.Logger

// level 可以是 debug/info/warn/error
// isProduction 决定 JSON 格式(生产)还是控制台格式(开发)
func InitLogger(level string, isProduction bool) error {
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		zapLevel = zapcore.InfoLevel
		fmt.Fprintf(os.Stderr, "Warning: invalid log level '%s', using 'info'. Error: %v\n", level, err)
	}

	var err error
	if isProduction {
		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapLevel)
		L, err = cfg.Build(zap.AddCallerSkip(1))
	} else {
		cfg := zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cfg.Level = zap.NewAtomicLevelAt(zapLevel)
		L, err = cfg.Build(zap.AddCallerSkip(1))
	}
	if err != nil {
		return fmt.Errorf("failed to initialize zap logger: %w", err)
	}

	L.Info("logger initialized", zap.String("level", zapLevel.String()), zap.Bool("productionMode", isProduction))
	return nil
}

// 测试中未初始化日志时使用空实现
func InitForTest() {
	if L == nil {
		L = zap.NewNop()
	}
}

// 退出前调用 刷新缓冲的日志
func Sync() {
	if L != nil {
		_ = L.Sync()
	}
}
