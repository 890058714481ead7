package logger

import (
	"depth-studio-backend/internal/config"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the process-wide structured logger. It is a no-op until InitLogger runs.
// Use the package helpers rather than Logger directly so caller info stays accurate.
var Logger = zap.NewNop().Sugar()

// InitLogger initializes structured logging based on configuration
func InitLogger(cfg *config.Config) *zap.SugaredLogger {
	var zcfg zap.Config
	if cfg.GinMode == "debug" {
		zcfg = zap.NewDevelopmentConfig()
		zcfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		zcfg = zap.NewProductionConfig()
		zcfg.EncoderConfig.TimeKey = "timestamp"
		zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	base, err := zcfg.Build(zap.AddCallerSkip(1), zap.AddStacktrace(zapcore.ErrorLevel))
	if err != nil {
		base, _ = zap.NewProduction()
	}

	Logger = base.Sugar()
	Debug("Structured logging initialized", "level", zcfg.Level.String())
	return Logger
}

// Sync flushes buffered entries; call before exit.
func Sync() {
	_ = Logger.Sync()
}

func Info(msg string, args ...any) {
	Logger.Infow(msg, args...)
}

func Error(msg string, args ...any) {
	Logger.Errorw(msg, args...)
}

func Debug(msg string, args ...any) {
	Logger.Debugw(msg, args...)
}

func Warn(msg string, args ...any) {
	Logger.Warnw(msg, args...)
}
