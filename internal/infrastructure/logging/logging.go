package logging

import (
	"log/slog"
	"os"
	"strings"
)

// Setup 初始化全局 JSON 结构化日志
func Setup(level string) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		AddSource: true,
		Level:     ParseLevel(level),
	}))
	slog.SetDefault(logger)
	return logger
}

// ParseLevel 未知级别按 info 处理
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
