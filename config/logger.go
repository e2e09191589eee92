package config

import (
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// NewLogger builds the Application's ambient *slog.Logger from
// LoggingConfig. When File is set, writes go through a rotating
// lumberjack.Logger sink instead of stdout.
func (c LoggingConfig) NewLogger() *slog.Logger {
	var w io.Writer = os.Stdout
	if c.File != "" {
		w = &lumberjack.Logger{
			Filename:   c.File,
			MaxSize:    c.MaxSizeMB,
			MaxBackups: c.MaxBackups,
			MaxAge:     c.MaxAgeDays,
			Compress:   c.Compress,
		}
	}

	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: c.level()}))
}

func (c LoggingConfig) level() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.Level)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
