// Package logger configures log/slog for the subscriber service from its
// LoggingConfig. JSON and text formats are supported, written to stdout,
// stderr or a size-rotated file.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"subscriber/internal/models"
	"subscriber/internal/version"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Setup creates a structured logger based on the provided LoggingConfig.
// It returns the logger with global version fields, an io.Closer for the
// rotating file writer (nil for stdout/stderr), and any setup error.
//
// The caller is responsible for closing the returned Closer when done (if non-nil).
func Setup(cfg models.LoggingConfig, ver version.Info) (*slog.Logger, io.Closer, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid log level: %w", err)
	}

	writer, closer, err := openWriter(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log output: %w", err)
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(writer, opts)
	} else {
		handler = slog.NewTextHandler(writer, opts)
	}

	// Add global version fields to all log messages
	logger := slog.New(handler).With(
		slog.String("version", ver.Version),
		slog.String("git_commit", ver.GitCommit),
		slog.String("build_date", ver.BuildDate),
	)

	return logger, closer, nil
}

// parseLevel converts a level string to an slog.Level.
// Supported values: debug, info, warn, error (case-insensitive).
func parseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unsupported log level: %s", level)
	}
}

// openWriter returns the writer for cfg.Output. File output goes through
// lumberjack, which rotates by MaxSize megabytes and keeps MaxBackups files
// for at most MaxAge days.
func openWriter(cfg models.LoggingConfig) (io.Writer, io.Closer, error) {
	switch strings.ToLower(cfg.Output) {
	case "stderr":
		return os.Stderr, nil, nil
	case "file":
		if cfg.FilePath == "" {
			return nil, nil, fmt.Errorf("file path is required when output is file")
		}
		// lumberjack opens lazily, so surface a bad directory here
		dir := filepath.Dir(cfg.FilePath)
		if info, err := os.Stat(dir); err != nil {
			return nil, nil, fmt.Errorf("failed to open log file %s: %w", cfg.FilePath, err)
		} else if !info.IsDir() {
			return nil, nil, fmt.Errorf("failed to open log file %s: %s is not a directory", cfg.FilePath, dir)
		}
		w := &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		}
		return w, w, nil
	default:
		return os.Stdout, nil, nil
	}
}
