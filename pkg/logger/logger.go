package logger

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	global *zap.Logger
	once   sync.Once
)

// Init 根据运行模式初始化全局 zap 日志（debug 模式输出彩色控制台日志）
func Init(mode string) {
	once.Do(func() {
		var cfg zap.Config
		if mode == "debug" {
			cfg = zap.NewDevelopmentConfig()
			cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		} else {
			cfg = zap.NewProductionConfig()
			cfg.EncoderConfig.TimeKey = "ts"
			cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		}
		l, err := cfg.Build(zap.AddCallerSkip(1))
		if err != nil {
			os.Stderr.WriteString("logger init failed: " + err.Error() + "\n")
			l = zap.NewNop()
		}
		global = l
	})
}

// L 返回全局 logger（未初始化时退化为 Nop，便于测试）
func L() *zap.Logger {
	if global == nil {
		return zap.NewNop()
	}
	return global
}

func Debug(msg string, fields ...zap.Field) { L().Debug(msg, fields...) }
func Info(msg string, fields ...zap.Field)  { L().Info(msg, fields...) }
func Warn(msg string, fields ...zap.Field)  { L().Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { L().Error(msg, fields...) }

// Sync 刷新缓冲日志，进程退出前调用
func Sync() {
	if global != nil {
		_ = global.Sync()
	}
}
