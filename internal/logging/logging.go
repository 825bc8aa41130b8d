package logging

import (
	"log/slog"
	"os"
)

func Init() {
	level := slog.LevelInfo

	if l, ok := os.LookupEnv("LOG_LEVEL"); ok {
		switch l {
		case "dev", "development", "debug":
			level = slog.LevelDebug
		case "info":
			level = slog.LevelInfo
		case "warn", "warning":
			level = slog.LevelWarn
		case "error", "production", "prod":
			level = slog.LevelError
		}
	}

	logger := slog.New(
		slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		}),
	)
	slog.SetDefault(logger)
}

// InitQuiet is Init for interactive CLI sessions: only errors reach the
// terminal unless LOG_LEVEL says otherwise, so log lines do not fight the UI.
func InitQuiet() {
	if _, ok := os.LookupEnv("LOG_LEVEL"); !ok {
		os.Setenv("LOG_LEVEL", "error")
		defer os.Unsetenv("LOG_LEVEL")
	}
	Init()
}
