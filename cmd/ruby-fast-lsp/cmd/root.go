// Package cmd provides the CLI commands for ruby-fast-lsp.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/logging"
	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/pkg/version"
)

var (
	debugMode      bool
	loggingCleanup func()
)

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ruby-fast-lsp",
		Short: "A fast Ruby language server",
		Long: `ruby-fast-lsp answers editor queries (definitions, references,
hover, completion, inlay hints, diagnostics) over Ruby workspaces
including third-party gems and the standard library.

Run 'ruby-fast-lsp serve' from your editor's LSP client configuration,
or 'ruby-fast-lsp index' for a one-shot workspace build.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetVersionTemplate("ruby-fast-lsp version {{.Version}}\n")

	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.ruby-fast-lsp/logs/")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newVersionCmd())
	return cmd
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	defer func() {
		if loggingCleanup != nil {
			loggingCleanup()
		}
	}()

	root := NewRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return exitCode
}

// exitCode lets serve propagate the LSP exit-code contract through
// cobra's error-less return path.
var exitCode int

// setupCLILogging configures logging for non-stdio commands, which log
// to the index command's own file with records stamped source=index.
func setupCLILogging() error {
	cfg := logging.IndexConfig()
	if debugMode {
		cfg.Level = "debug"
	}
	logger, cleanup, err := logging.Setup(cfg)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	loggingCleanup = cleanup
	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "ruby-fast-lsp version %s\n", version.Version)
		},
	}
}
