// Package coordinator drives the workspace build: a three-phase cold
// start (definitions, references, diagnostics) with bounded parallel
// batches, and an incremental per-event handler fed by the filesystem
// watcher. No reference resolution happens before the mixin resolver
// has run, so included methods never appear unresolved.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/config"
	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/diagnostics"
	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/fileproc"
	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/mixin"
	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/rubyenv"
	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/rubyindex"
	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/scanner"
	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/ui"
)

// ProgressReporter receives $/progress-style notifications. The LSP
// server implements it; the CLI wires it to nothing and relies on the
// ui.Renderer instead.
type ProgressReporter interface {
	Begin(token, title string)
	Report(token, message string, percentage int)
	End(token, message string)
}

// Deps wires the runner's collaborators. Index and Processor are
// required; everything else degrades gracefully when absent.
type Deps struct {
	WorkspaceRoot string
	Index         *rubyindex.RubyIndex
	Processor     *fileproc.Processor
	Scanner       *scanner.Scanner
	Config        *config.Config

	// RubyEnv supplies stdlib stub files; nil skips stdlib indexing.
	RubyEnv *rubyenv.Environment

	// Renderer shows progress; nil means silent.
	Renderer ui.Renderer

	// Publisher receives Phase 3 diagnostics; nil skips publication.
	Publisher diagnostics.Publisher

	// Progress receives LSP progress notifications; nil skips them.
	Progress ProgressReporter

	// ProgressToken identifies this build in $/progress notifications.
	ProgressToken string
}

// BuildResult summarises a finished initial build.
type BuildResult struct {
	Files       int
	Definitions int
	References  int
	Unresolved  int
	Duration    time.Duration
	Errors      int
	Warnings    int
	Stages      ui.StageTimings
}

// InitialBuildRunner executes the three-phase cold build.
type InitialBuildRunner struct {
	deps Deps

	mu       sync.Mutex
	complete bool
}

// NewInitialBuildRunner validates deps and builds a runner.
func NewInitialBuildRunner(deps Deps) (*InitialBuildRunner, error) {
	if deps.Index == nil {
		return nil, fmt.Errorf("index is required")
	}
	if deps.Processor == nil {
		return nil, fmt.Errorf("processor is required")
	}
	if deps.Scanner == nil {
		return nil, fmt.Errorf("scanner is required")
	}
	if deps.Config == nil {
		deps.Config = config.NewConfig()
	}
	return &InitialBuildRunner{deps: deps}, nil
}

// IndexingComplete reports whether Phase 2 has finished; queries that
// want accurate references gate on it (Phase 3 may still be running).
func (r *InitialBuildRunner) IndexingComplete() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.complete
}

// Run executes the build. Cancellation aborts between batches; the
// in-flight batch completes.
func (r *InitialBuildRunner) Run(ctx context.Context) (*BuildResult, error) {
	start := time.Now()
	result := &BuildResult{}

	r.progressBegin("Indexing Ruby workspace")
	defer r.progressEnd("indexing complete")

	// Scan.
	scanStart := time.Now()
	r.report(ui.ProgressEvent{Stage: ui.StageScanning, Message: "discovering files"}, 0)
	scanRes, err := r.deps.Scanner.Scan(ctx, r.deps.WorkspaceRoot, scanner.Options{
		ExtraExcludes: r.deps.Config.Paths.Exclude,
	})
	if err != nil {
		return nil, err
	}
	result.Files = len(scanRes.Files)
	result.Stages.Scan = time.Since(scanStart)

	stubFiles := r.selectStubFiles(scanRes)

	// Phase 1: definitions, project files then the selected stdlib
	// subset, then one global mixin resolution.
	defStart := time.Now()
	defOpts := fileproc.Options{IndexDefinitions: true}
	if err := r.processBatches(ctx, ui.StageDefinitions, scanRes.Files, defOpts, result); err != nil {
		return nil, err
	}
	r.processStubs(ctx, stubFiles, result)
	mixin.Resolve(r.deps.Index)
	result.Stages.Definitions = time.Since(defStart)

	// Phase 2: references. Definitions from Phase 1 make resolution
	// accurate.
	refStart := time.Now()
	refOpts := fileproc.Options{IndexReferences: true}
	if err := r.processBatches(ctx, ui.StageReferences, scanRes.Files, refOpts, result); err != nil {
		return nil, err
	}
	result.Stages.References = time.Since(refStart)

	// Queries may proceed while Phase 3 publishes.
	r.mu.Lock()
	r.complete = true
	r.mu.Unlock()

	// Phase 3: diagnostics.
	diagStart := time.Now()
	r.publishAllDiagnostics(ctx, result)
	result.Stages.Diagnostics = time.Since(diagStart)

	stats := r.deps.Index.CollectStats()
	result.Definitions = stats.Definitions
	result.References = stats.References
	result.Unresolved = stats.Unresolved
	result.Duration = time.Since(start)

	if r.deps.Renderer != nil {
		r.deps.Renderer.Complete(ui.CompletionStats{
			Files:       result.Files,
			Definitions: result.Definitions,
			References:  result.References,
			Unresolved:  result.Unresolved,
			Duration:    result.Duration,
			Errors:      result.Errors,
			Warnings:    result.Warnings,
			Stages:      result.Stages,
			RubyVersion: r.rubyVersion(),
			RubySource:  r.rubySource(),
		})
	}
	return result, nil
}

// processBatches fans project files out over worker batches. Worker
// count is the configured parallelism; batch size defaults to 10 files.
func (r *InitialBuildRunner) processBatches(ctx context.Context, stage ui.Stage, files []scanner.FileInfo, opts fileproc.Options, result *BuildResult) error {
	workers := r.deps.Config.Indexing.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	batchSize := r.deps.Config.Indexing.BatchSize
	if batchSize <= 0 {
		batchSize = 10
	}

	var processed int64
	var countMu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for start := 0; start < len(files); start += batchSize {
		if err := gctx.Err(); err != nil {
			break
		}
		end := start + batchSize
		if end > len(files) {
			end = len(files)
		}
		batch := files[start:end]

		g.Go(func() error {
			for _, f := range batch {
				content, err := os.ReadFile(f.Path)
				if err != nil {
					r.addError(ui.ErrorEvent{File: f.RelPath, Err: err, IsWarn: true}, result)
					continue
				}
				uri := uriFor(f.Path)
				if _, err := r.deps.Processor.Process(gctx, uri, string(content), opts); err != nil {
					r.addError(ui.ErrorEvent{File: f.RelPath, Err: err, IsWarn: true}, result)
				}
			}
			countMu.Lock()
			processed += int64(len(batch))
			current := int(processed)
			countMu.Unlock()

			r.report(ui.ProgressEvent{
				Stage:   stage,
				Current: current,
				Total:   len(files),
			}, percent(current, len(files)))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// selectStubFiles bounds stdlib indexing to the modules the project
// requires, plus the core stubs when enabled.
func (r *InitialBuildRunner) selectStubFiles(scanRes *scanner.Result) []string {
	if r.deps.RubyEnv == nil {
		return nil
	}

	required := make(map[string]bool, len(scanRes.Requires))
	for _, req := range scanRes.Requires {
		// "net/http" selects the net stub family by its first segment.
		first := req
		if i := strings.IndexByte(req, '/'); i >= 0 {
			first = req[:i]
		}
		required[first] = true
	}

	var out []string
	for _, stub := range r.deps.RubyEnv.StubFiles() {
		name := strings.TrimSuffix(filepath.Base(stub), ".rb")
		if (r.deps.Config.EnableCoreStubs && isCoreStub(name)) || required[name] {
			out = append(out, stub)
		}
	}
	return out
}

// coreStubNames are always loaded when enableCoreStubs is set: the built-in
// classes every Ruby program touches.
var coreStubNames = map[string]bool{
	"object": true, "basic_object": true, "kernel": true, "module": true,
	"class": true, "string": true, "integer": true, "float": true,
	"numeric": true, "array": true, "hash": true, "symbol": true,
	"nil_class": true, "true_class": true, "false_class": true,
	"range": true, "regexp": true, "proc": true, "enumerable": true,
	"comparable": true, "exception": true, "struct": true, "time": true,
	"io": true, "file": true,
}

func isCoreStub(name string) bool {
	return coreStubNames[strings.ToLower(name)]
}

// processStubs indexes the selected stdlib stubs, definitions only;
// references inside stub bodies aren't user-visible.
func (r *InitialBuildRunner) processStubs(ctx context.Context, stubs []string, result *BuildResult) {
	for i, stub := range stubs {
		if ctx.Err() != nil {
			return
		}
		content, err := os.ReadFile(stub)
		if err != nil {
			r.addError(ui.ErrorEvent{File: stub, Err: err, IsWarn: true}, result)
			continue
		}
		uri := uriFor(stub)
		if _, err := r.deps.Processor.Process(ctx, uri, string(content), fileproc.Options{IndexDefinitions: true}); err != nil {
			r.addError(ui.ErrorEvent{File: stub, Err: err, IsWarn: true}, result)
		}
		r.report(ui.ProgressEvent{
			Stage:       ui.StageDefinitions,
			Current:     i + 1,
			Total:       len(stubs),
			CurrentFile: filepath.Base(stub),
			Message:     "stdlib stubs",
		}, percent(i+1, len(stubs)))
	}
}

// publishAllDiagnostics sends one publishDiagnostics per URI holding
// unresolved references.
func (r *InitialBuildRunner) publishAllDiagnostics(ctx context.Context, result *BuildResult) {
	if r.deps.Publisher == nil {
		return
	}
	uris := r.deps.Index.UnresolvedURIs()
	for i, uri := range uris {
		if ctx.Err() != nil {
			return
		}
		diags := diagnostics.ForURI(r.deps.Index, uri)
		result.Warnings += len(diags)
		r.deps.Publisher.PublishDiagnostics(uri, diags)
		r.report(ui.ProgressEvent{
			Stage:   ui.StageDiagnostics,
			Current: i + 1,
			Total:   len(uris),
		}, percent(i+1, len(uris)))
	}
}

func (r *InitialBuildRunner) rubyVersion() string {
	if r.deps.RubyEnv == nil {
		return ""
	}
	return r.deps.RubyEnv.Version
}

func (r *InitialBuildRunner) rubySource() string {
	if r.deps.RubyEnv == nil {
		return ""
	}
	return r.deps.RubyEnv.Source
}

func (r *InitialBuildRunner) report(event ui.ProgressEvent, percentage int) {
	if r.deps.Renderer != nil {
		r.deps.Renderer.UpdateProgress(event)
	}
	if r.deps.Progress != nil && r.deps.ProgressToken != "" {
		msg := event.Stage.String()
		if event.Total > 0 {
			msg = fmt.Sprintf("%s %d/%d", msg, event.Current, event.Total)
		}
		r.deps.Progress.Report(r.deps.ProgressToken, msg, percentage)
	}
}

func (r *InitialBuildRunner) progressBegin(title string) {
	if r.deps.Progress != nil && r.deps.ProgressToken != "" {
		r.deps.Progress.Begin(r.deps.ProgressToken, title)
	}
}

func (r *InitialBuildRunner) progressEnd(message string) {
	if r.deps.Progress != nil && r.deps.ProgressToken != "" {
		r.deps.Progress.End(r.deps.ProgressToken, message)
	}
}

func (r *InitialBuildRunner) addError(event ui.ErrorEvent, result *BuildResult) {
	if event.IsWarn {
		result.Warnings++
	} else {
		result.Errors++
	}
	if r.deps.Renderer != nil {
		r.deps.Renderer.AddError(event)
	}
	slog.Debug("index error",
		slog.String("file", event.File),
		slog.Bool("warn", event.IsWarn),
		slog.String("error", event.Err.Error()))
}

func percent(current, total int) int {
	if total <= 0 {
		return 0
	}
	return current * 100 / total
}

// uriFor converts an absolute path to a file URI.
func uriFor(path string) string {
	return "file://" + filepath.ToSlash(path)
}
