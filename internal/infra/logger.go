package infra

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/lumberjack.v3"
)

// ParseLevel maps a config level name to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// NewLogger builds the process logger from the logging section. With a log
// file configured, records go to stdout and to the rotated file, whose
// backups are gzipped. The caller closes the returned io.Closer on shutdown.
func NewLogger(cfg *Config) (*slog.Logger, io.Closer, error) {
	f := cfg.Logging.File
	if f.Path == "" {
		return newLogger(os.Stdout, cfg.Logging.Level, cfg.Logging.Format), nopCloser{}, nil
	}

	roller, err := lumberjack.New(
		lumberjack.WithFileName(f.Path),
		lumberjack.WithMaxBytes(int64(f.MaxSizeMB)*1024*1024),
		lumberjack.WithMaxBackups(f.MaxBackups),
		lumberjack.WithMaxDays(f.MaxAgeDays),
		lumberjack.WithCompress(),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create log file %s: %w", f.Path, err)
	}

	w := io.MultiWriter(os.Stdout, roller)
	return newLogger(w, cfg.Logging.Level, cfg.Logging.Format), roller, nil
}

func newLogger(w io.Writer, level, format string) *slog.Logger {
	lvl, _ := ParseLevel(level)
	opts := &slog.HandlerOptions{Level: lvl}

	var h slog.Handler
	if format == "json" {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h).With(slog.String("app", AppName))
}
