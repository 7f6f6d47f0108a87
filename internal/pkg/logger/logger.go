package logger

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	slogzap "github.com/samber/slog-zap/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	globalLogger *slog.Logger
	zapBackend   *zap.Logger
)

// ParseLevel maps a config level string onto slog and zap levels.
func ParseLevel(levelStr string) (slog.Level, zapcore.Level) {
	switch strings.ToUpper(strings.TrimSpace(levelStr)) {
	case "DEBUG":
		return slog.LevelDebug, zapcore.DebugLevel
	case "WARN", "WARNING":
		return slog.LevelWarn, zapcore.WarnLevel
	case "ERROR":
		return slog.LevelError, zapcore.ErrorLevel
	default:
		return slog.LevelInfo, zapcore.InfoLevel
	}
}

// Init builds the zap backend, installs a slog handler over it as the global logger and
// returns the zap logger for components that log through zap directly.
func Init(levelStr string) (*zap.Logger, error) {
	slogLevel, zapLevel := ParseLevel(levelStr)

	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(zapLevel)
	zapCfg.Encoding = "json"
	zapCfg.OutputPaths = []string{"stderr"}
	zl, err := zapCfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build zap logger: %w", err)
	}

	handler := slogzap.Option{
		Level:  slogLevel,
		Logger: zl,
	}.NewZapHandler()

	zapBackend = zl
	globalLogger = slog.New(handler)
	slog.SetDefault(globalLogger)
	return zl, nil
}

// Zap returns the zap backend, initializing at INFO if needed.
func Zap() *zap.Logger {
	ensureInitialized()
	return zapBackend
}

// Sync flushes the zap backend.
func Sync() {
	if zapBackend != nil {
		_ = zapBackend.Sync()
	}
}

func ensureInitialized() {
	if globalLogger == nil {
		if _, err := Init("INFO"); err != nil {
			fmt.Fprintf(os.Stderr, "CRITICAL: failed to initialize logger: %v\n", err)
			os.Exit(1)
		}
	}
}

// Debug logs a message at DebugLevel.
func Debug(msg string, args ...any) {
	ensureInitialized()
	globalLogger.Debug(msg, args...)
}

// Info logs a message at InfoLevel.
func Info(msg string, args ...any) {
	ensureInitialized()
	globalLogger.Info(msg, args...)
}

// Warn logs a message at WarnLevel.
func Warn(msg string, args ...any) {
	ensureInitialized()
	globalLogger.Warn(msg, args...)
}

// Error logs a message at ErrorLevel.
func Error(msg string, args ...any) {
	ensureInitialized()
	globalLogger.Error(msg, args...)
}

// Fatal logs a message at ErrorLevel then exits.
func Fatal(msg string, args ...any) {
	ensureInitialized()
	globalLogger.Log(context.Background(), slog.LevelError, msg, args...)
	Sync()
	os.Exit(1)
}
