package util

import (
	"log/slog"
	"os"
)

// InitSlog configures the default logger from LOG_LEVEL (debug, info, warn or
// error). The default logger is kept when LOG_LEVEL is unset.
func InitSlog() {
	logLevel, ok := os.LookupEnv("LOG_LEVEL")
	if !ok {
		return
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: ParseLogLevel(logLevel)})
	slog.SetDefault(slog.New(handler))
}

// ParseLogLevel returns the level named `name`, or info for unknown names.
func ParseLogLevel(name string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo
	}
	return level
}
