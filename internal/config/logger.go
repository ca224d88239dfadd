package config

import (
	"io"
	"log/slog"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger returns a text logger at the configured level writing to console, and to the rotated
// LogFile when one is configured.
func (c Config) Logger(console io.Writer) (*slog.Logger, error) {
	lvl, err := c.Level()
	if err != nil {
		return nil, err
	}

	w := console
	if c.LogFile != "" {
		rotator := &lumberjack.Logger{
			Filename:   c.LogFile,
			MaxSize:    10, // Megabytes
			MaxBackups: 5,
			MaxAge:     30, // Days
			Compress:   true,
		}
		w = io.MultiWriter(console, rotator)
	}

	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})), nil
}
