package logging

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultLogDir returns the default log directory (~/.ruby-fast-lsp/logs/).
// Falls back to temp directory if home directory is unavailable.
func DefaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".ruby-fast-lsp", "logs")
	}
	return filepath.Join(home, ".ruby-fast-lsp", "logs")
}

// DefaultLogPath returns the default server log path.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "server.log")
}

// IndexLogPath returns the one-shot `index` command's log path, kept
// separate from the `serve` daemon's log so a long-running server's
// rotation isn't disturbed by a concurrent CLI index run.
func IndexLogPath() string {
	return filepath.Join(DefaultLogDir(), "index.log")
}

// LogSource represents the source of logs to view.
type LogSource string

const (
	// LogSourceServe is the `serve` LSP daemon's logs (default).
	LogSourceServe LogSource = "serve"
	// LogSourceIndex is the one-shot `index` command's logs.
	LogSourceIndex LogSource = "index"
	// LogSourceAll combines all log sources.
	LogSourceAll LogSource = "all"
)

// FindLogFile attempts to find the log file for viewing.
// Priority:
// 1. Explicit path (if provided)
// 2. ~/.ruby-fast-lsp/logs/server.log (global)
//
// Returns an error if no log file is found.
func FindLogFile(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit, nil
		}
		return "", fmt.Errorf("log file not found: %s", explicit)
	}

	globalPath := DefaultLogPath()
	if _, err := os.Stat(globalPath); err == nil {
		return globalPath, nil
	}

	return "", fmt.Errorf("no log file found. Server may not have run with --debug yet.\nExpected at: %s", globalPath)
}

// FindLogFileBySource finds log files based on the source type.
// Returns a list of log file paths that exist.
func FindLogFileBySource(source LogSource, explicit string) ([]string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return []string{explicit}, nil
		}
		return nil, fmt.Errorf("log file not found: %s", explicit)
	}

	var paths []string
	var checked []string

	switch source {
	case LogSourceServe:
		p := DefaultLogPath()
		checked = append(checked, p)
		if _, err := os.Stat(p); err == nil {
			paths = append(paths, p)
		}

	case LogSourceIndex:
		p := IndexLogPath()
		checked = append(checked, p)
		if _, err := os.Stat(p); err == nil {
			paths = append(paths, p)
		}

	case LogSourceAll:
		servePath := DefaultLogPath()
		indexPath := IndexLogPath()
		checked = append(checked, servePath, indexPath)

		if _, err := os.Stat(servePath); err == nil {
			paths = append(paths, servePath)
		}
		if _, err := os.Stat(indexPath); err == nil {
			paths = append(paths, indexPath)
		}

	default:
		return nil, fmt.Errorf("unknown log source: %s (use: serve, index, all)", source)
	}

	if len(paths) == 0 {
		hint := getLogHint(source)
		return nil, fmt.Errorf("no log files found for source '%s'.\nChecked: %v\n\n%s", source, checked, hint)
	}

	return paths, nil
}

// ParseLogSource parses a string into a LogSource.
func ParseLogSource(s string) LogSource {
	switch s {
	case "index":
		return LogSourceIndex
	case "all":
		return LogSourceAll
	default:
		return LogSourceServe
	}
}

// EnsureLogDir creates the log directory if it doesn't exist.
func EnsureLogDir() error {
	dir := DefaultLogDir()
	return os.MkdirAll(dir, 0o755)
}

// getLogHint returns a helpful message on how to generate logs for the given source.
func getLogHint(source LogSource) string {
	switch source {
	case LogSourceServe:
		return "To generate server logs:\n  ruby-fast-lsp --debug serve"
	case LogSourceIndex:
		return "To generate index logs:\n  ruby-fast-lsp --debug index"
	case LogSourceAll:
		return "To generate logs:\n  ruby-fast-lsp --debug serve\n  ruby-fast-lsp --debug index"
	default:
		return ""
	}
}
