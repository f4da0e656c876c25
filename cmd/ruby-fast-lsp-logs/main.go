// Package main provides the ruby-fast-lsp-logs command, a viewer for
// the server's rotated log files.
//
// Usage:
//
//	ruby-fast-lsp-logs [flags]
//
// Flags:
//
//	-f, --follow         Follow log output (like tail -f)
//	-n, --lines int      Number of lines to show (default 50)
//	    --level string   Filter by level (debug|info|warn|error)
//	    --filter string  Filter by pattern (regex)
//	    --no-color       Disable colored output
//	    --file string    Custom log file path
//	    --source string  Log source: serve, index, or all (default: serve)
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"regexp"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/logging"
	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/pkg/version"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		follow  bool
		lines   int
		level   string
		filter  string
		noColor bool
		logFile string
		source  string
	)

	cmd := &cobra.Command{
		Use:     "ruby-fast-lsp-logs",
		Short:   "View ruby-fast-lsp logs",
		Version: version.Version,
		RunE: func(cmd *cobra.Command, args []string) error {
			src := logging.ParseLogSource(source)
			paths, err := logging.FindLogFileBySource(src, logFile)
			if err != nil {
				return err
			}

			var pattern *regexp.Regexp
			if filter != "" {
				pattern, err = regexp.Compile(filter)
				if err != nil {
					return fmt.Errorf("invalid filter pattern: %w", err)
				}
			}

			viewer := logging.NewViewer(logging.ViewerConfig{
				Level:      level,
				Pattern:    pattern,
				NoColor:    noColor,
				ShowSource: src == logging.LogSourceAll,
			}, os.Stdout)

			entries, err := viewer.TailMultiple(paths, lines)
			if err != nil {
				return err
			}
			viewer.Print(entries)

			if !follow {
				return nil
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				<-sigCh
				cancel()
			}()

			entryCh := make(chan logging.LogEntry, 64)
			go func() {
				defer close(entryCh)
				_ = viewer.FollowMultiple(ctx, paths, entryCh)
			}()
			for entry := range entryCh {
				fmt.Fprintln(os.Stdout, viewer.FormatEntry(entry))
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Follow log output")
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of lines to show")
	cmd.Flags().StringVar(&level, "level", "", "Filter by level (debug|info|warn|error)")
	cmd.Flags().StringVar(&filter, "filter", "", "Filter by pattern (regex)")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	cmd.Flags().StringVar(&logFile, "file", "", "Custom log file path")
	cmd.Flags().StringVar(&source, "source", "serve", "Log source: serve, index, or all")
	return cmd
}
