package logging

import (
	"log/slog"
)

// SetupStdioMode initializes logging for the `serve` command's stdio LSP
// transport. This is critical for protocol compliance:
// - Logs ONLY to file (never stdout/stderr)
// - Uses JSON format for structured logs
// - Always enables debug level for complete diagnostics
//
// LSP over stdio requires stdout to be used EXCLUSIVELY for JSON-RPC
// framing. Any writes to stdout/stderr before or during the server's
// lifetime corrupt the protocol stream and surface as a dead editor
// connection with no obvious cause.
func SetupStdioMode() (func(), error) {
	cfg := Config{
		Level:         "debug", // Always debug in stdio mode for full diagnostics
		FilePath:      DefaultLogPath(),
		MaxSizeMB:     10,
		MaxFiles:      5,
		WriteToStderr: false, // CRITICAL: never write to stderr over stdio
		Source:        LogSourceServe,
	}

	logger, cleanup, err := Setup(cfg)
	if err != nil {
		return nil, err
	}

	slog.SetDefault(logger)

	slog.Info("stdio mode logging initialized",
		slog.String("log_file", cfg.FilePath),
		slog.String("level", cfg.Level),
		slog.Bool("stderr_disabled", true))

	return cleanup, nil
}

// SetupStdioModeWithLevel initializes stdio-safe logging with a specific level.
func SetupStdioModeWithLevel(level string) (func(), error) {
	cfg := Config{
		Level:         level,
		FilePath:      DefaultLogPath(),
		MaxSizeMB:     10,
		MaxFiles:      5,
		WriteToStderr: false, // CRITICAL: never write to stderr over stdio
		Source:        LogSourceServe,
	}

	logger, cleanup, err := Setup(cfg)
	if err != nil {
		return nil, err
	}

	slog.SetDefault(logger)
	return cleanup, nil
}
