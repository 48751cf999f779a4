package slogutil

import (
	"io"
	"log/slog"

	"bslanalyzer/internal/config"
	"bslanalyzer/internal/paths"
)

// LoggerFactory builds the process logger from configuration.
// Precedence for the level: CLI flag > config > info.
type LoggerFactory struct {
	config   *config.Config
	cliLevel *slog.Level
	closers  []io.Closer
}

// NewLoggerFactory creates a new logger factory.
// cliLevel is nil when no CLI override was given.
func NewLoggerFactory(cfg *config.Config, cliLevel *slog.Level) *LoggerFactory {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return &LoggerFactory{
		config:   cfg,
		cliLevel: cliLevel,
	}
}

// Logger returns a logger writing to console in the configured format and,
// when logging.file is enabled, also to <home>/logs/index.log with rotation.
// A file that cannot be opened degrades to console-only logging.
func (f *LoggerFactory) Logger(console io.Writer) *slog.Logger {
	level := f.effectiveLevel()
	consoleLogger := NewFormatLogger(console, f.config.Logging.Format, level)
	if !f.config.Logging.File {
		return consoleLogger
	}

	logPath, err := paths.GetLogPath()
	if err != nil {
		consoleLogger.Warn("Cannot resolve log path, file logging disabled", "error", err.Error())
		return consoleLogger
	}

	fileLogger, closer, err := NewRotatingFileLogger(logPath, level, f.config.Logging.MaxSize, f.config.Logging.MaxBackups)
	if err != nil {
		consoleLogger.Warn("Cannot open log file, file logging disabled", "path", logPath, "error", err.Error())
		return consoleLogger
	}
	f.closers = append(f.closers, closer)

	return slog.New(NewTeeHandler(consoleLogger.Handler(), fileLogger.Handler()))
}

func (f *LoggerFactory) effectiveLevel() slog.Level {
	if f.cliLevel != nil {
		return *f.cliLevel
	}
	if f.config.Logging.Level != "" {
		return LevelFromString(f.config.Logging.Level)
	}
	return slog.LevelInfo
}

// Close closes all open log files.
func (f *LoggerFactory) Close() error {
	var firstErr error
	for _, c := range f.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	f.closers = nil
	return firstErr
}
