package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/cobra"

	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/config"
	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/coordinator"
	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/diagnostics"
	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/fileproc"
	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/output"
	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/rubyindex"
	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/scanner"
	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/ui"
)

func newIndexCmd() *cobra.Command {
	var sarifPath string
	var noTUI bool
	var statsOnly bool

	cmd := &cobra.Command{
		Use:   "index [path]",
		Short: "Build the workspace index once and report",
		Long: `Runs the three-phase workspace build (definitions, references,
diagnostics) over the given path (default: current directory), shows
progress, and prints summary statistics. Unresolved-reference warnings
can additionally be exported as SARIF for CI consumption.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := "."
			if len(args) == 1 {
				root = args[0]
			}
			return runIndex(cmd.Context(), root, sarifPath, noTUI, statsOnly)
		},
	}

	cmd.Flags().StringVar(&sarifPath, "sarif", "", "Write diagnostics as SARIF to this path")
	cmd.Flags().BoolVar(&noTUI, "no-tui", false, "Plain text output (no interactive progress)")
	cmd.Flags().BoolVar(&statsOnly, "stats", false, "Suppress per-file output; print final stats only")
	return cmd
}

// sarifCollector accumulates published diagnostics for export.
type sarifCollector struct {
	mu    sync.Mutex
	byURI map[string][]diagnostics.Diagnostic
}

func (c *sarifCollector) PublishDiagnostics(uri string, diags []diagnostics.Diagnostic) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(diags) == 0 {
		delete(c.byURI, uri)
		return
	}
	c.byURI[uri] = diags
}

func runIndex(ctx context.Context, root, sarifPath string, noTUI, statsOnly bool) error {
	if err := setupCLILogging(); err != nil {
		return err
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return err
	}

	cfg, err := config.Load(absRoot)
	if err != nil {
		return err
	}

	idx := rubyindex.NewIndex()
	proc := fileproc.New(idx)
	defer proc.Close()

	sc, err := scanner.New()
	if err != nil {
		return err
	}

	renderer := ui.NewRenderer(ui.Config{
		Output:     os.Stdout,
		ForcePlain: noTUI || statsOnly,
		NoColor:    ui.DetectNoColor(),
		ProjectDir: absRoot,
	})
	if err := renderer.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = renderer.Stop() }()

	collector := &sarifCollector{byURI: make(map[string][]diagnostics.Diagnostic)}

	runner, err := coordinator.NewInitialBuildRunner(coordinator.Deps{
		WorkspaceRoot: absRoot,
		Index:         idx,
		Processor:     proc,
		Scanner:       sc,
		Config:        cfg,
		Renderer:      renderer,
		Publisher:     collector,
	})
	if err != nil {
		return err
	}

	if _, err := runner.Run(ctx); err != nil {
		return err
	}

	out := output.New(os.Stdout)

	if sarifPath == "" {
		sarifPath = cfg.Diagnostics.SarifPath
	}
	if sarifPath != "" {
		if err := writeSarif(sarifPath, collector); err != nil {
			return err
		}
		out.Successf("SARIF report written to %s", sarifPath)
	}

	if !statsOnly {
		out.Hint("run `ruby-fast-lsp serve` from your editor's LSP client to query this workspace")
	}
	return nil
}

func writeSarif(path string, collector *sarifCollector) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create sarif output: %w", err)
	}
	defer f.Close()

	collector.mu.Lock()
	byURI := collector.byURI
	collector.mu.Unlock()

	return diagnostics.NewSARIFExporter(f).Export(byURI)
}
