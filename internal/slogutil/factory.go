package slogutil

import (
	"io"
	"log/slog"

	"codekb/internal/config"
	"codekb/internal/paths"
)

// LoggerFactory creates the loggers for one workspace session.
// Precedence for the level: CLI flags > config > default (info).
type LoggerFactory struct {
	repoRoot string
	config   *config.Config
	cliLevel slog.Level // 0 means not set
	cliSet   bool
	closers  []io.Closer
}

// NewLoggerFactory creates a new logger factory.
// Pass cliSet=false when no level flag was given on the command line.
func NewLoggerFactory(repoRoot string, cfg *config.Config, cliLevel slog.Level, cliSet bool) *LoggerFactory {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return &LoggerFactory{
		repoRoot: repoRoot,
		config:   cfg,
		cliLevel: cliLevel,
		cliSet:   cliSet,
	}
}

// FileLogger creates a logger writing to <repoRoot>/.codekb/logs/codekb.log.
// Falls back to a discard logger when the file cannot be opened.
func (f *LoggerFactory) FileLogger() *slog.Logger {
	if f.repoRoot == "" || !f.config.Logging.File {
		return NewDiscardLogger()
	}

	logger, file, err := NewFileLogger(paths.LogPath(f.repoRoot), f.effectiveLevel())
	if err != nil {
		return NewDiscardLogger()
	}
	f.closers = append(f.closers, file)
	return logger
}

// CLILogger creates a logger that writes to console and, when enabled, to the log file.
// The file always receives records at the configured level even if the console is quiet.
func (f *LoggerFactory) CLILogger(console io.Writer) *slog.Logger {
	consoleHandler := NewHandler(console, &slog.HandlerOptions{Level: f.consoleLevel()})
	if f.repoRoot == "" || !f.config.Logging.File {
		return slog.New(consoleHandler)
	}

	fileLogger := f.FileLogger()
	return slog.New(NewTeeHandler(consoleHandler, fileLogger.Handler()))
}

func (f *LoggerFactory) consoleLevel() slog.Level {
	if f.cliSet {
		return f.cliLevel
	}
	return slog.LevelWarn
}

// effectiveLevel returns the level for file output.
func (f *LoggerFactory) effectiveLevel() slog.Level {
	if f.cliSet && f.cliLevel < slog.LevelInfo {
		return f.cliLevel
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

// Component returns a logger tagged with the given subsystem name.
func Component(logger *slog.Logger, name string) *slog.Logger {
	return logger.With(ComponentKey, name)
}
