package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config configures the structured logger backing a ruby-fast-lsp
// process.
type Config struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string
	// FilePath is the log file; empty disables file logging.
	FilePath string
	// MaxSizeMB is the rotation threshold (default 10).
	MaxSizeMB int
	// MaxFiles is how many rotated files to keep (default 5).
	MaxFiles int
	// WriteToStderr mirrors records to stderr. Must stay false in stdio
	// mode, where stdout/stderr belong to the LSP transport.
	WriteToStderr bool
	// Source stamps every record with the emitting command (serve or
	// index), so the log viewer can label and filter merged streams.
	Source LogSource
}

// DefaultConfig returns the file-logging defaults for the serve daemon.
func DefaultConfig() Config {
	return Config{
		Level:         "info",
		FilePath:      DefaultLogPath(),
		MaxSizeMB:     10,
		MaxFiles:      5,
		WriteToStderr: true,
		Source:        LogSourceServe,
	}
}

// DebugConfig returns DefaultConfig at debug level.
func DebugConfig() Config {
	cfg := DefaultConfig()
	cfg.Level = "debug"
	return cfg
}

// IndexConfig returns the one-shot index command's logging defaults:
// its own file, so a CLI run never disturbs the daemon's rotation.
func IndexConfig() Config {
	cfg := DefaultConfig()
	cfg.FilePath = IndexLogPath()
	cfg.Source = LogSourceIndex
	return cfg
}

// Setup initializes rotating-file JSON logging per cfg and returns the
// logger plus a cleanup function that flushes and closes the file.
func Setup(cfg Config) (*slog.Logger, func(), error) {
	if err := EnsureLogDir(); err != nil {
		return nil, nil, err
	}

	writer, err := NewRotatingWriter(cfg.FilePath, cfg.MaxSizeMB, cfg.MaxFiles)
	if err != nil {
		return nil, nil, err
	}

	var output io.Writer = writer
	if cfg.WriteToStderr {
		output = io.MultiWriter(writer, os.Stderr)
	}

	handler := slog.NewJSONHandler(output, &slog.HandlerOptions{
		Level: parseLevel(cfg.Level),
	})

	logger := slog.New(handler)
	if cfg.Source != "" {
		logger = logger.With(slog.String("source", string(cfg.Source)))
	}

	cleanup := func() {
		_ = writer.Sync()
		_ = writer.Close()
	}
	return logger, cleanup, nil
}

// SetupDefault configures debug-level logging and installs it as the
// default logger, returning the cleanup function.
func SetupDefault() (func(), error) {
	logger, cleanup, err := Setup(DebugConfig())
	if err != nil {
		return nil, err
	}

	slog.SetDefault(logger)
	return cleanup, nil
}

// parseLevel converts a level string to slog.Level, defaulting to info.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LevelFromString exposes parseLevel for the log viewer's filtering.
func LevelFromString(level string) slog.Level {
	return parseLevel(level)
}
