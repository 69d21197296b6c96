package main

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/starla/dqnstop/config"
)

// LoggerResult contains the results of setting up logging.
type LoggerResult struct {
	Logger  *slog.Logger
	LogFile io.WriteCloser
}

// Close closes the log file if it was opened.
func (r *LoggerResult) Close() error {
	if r.LogFile != nil {
		return r.LogFile.Close()
	}
	return nil
}

// SetupLogger creates a logger that writes text to stderr. If logPath
// is not empty, JSON logs are written to a rotating file at logPath
// instead, using lumberjack for automatic rotation.
func SetupLogger(logPath string, level slog.Leveler,
	rotationCfg config.LogRotationConfig) (*LoggerResult, error) {
	if logPath == "" {
		handler := slog.NewTextHandler(os.Stderr,
			&slog.HandlerOptions{Level: level})
		return &LoggerResult{Logger: slog.New(handler)}, nil
	}

	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return nil, err
	}

	logWriter := &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    rotationCfg.MaxSizeMB,
		MaxBackups: rotationCfg.MaxBackups,
		MaxAge:     rotationCfg.MaxAgeDays,
		Compress:   rotationCfg.Compress,
	}

	logger := slog.New(slog.NewJSONHandler(logWriter,
		&slog.HandlerOptions{Level: level}))

	return &LoggerResult{Logger: logger, LogFile: logWriter}, nil
}
