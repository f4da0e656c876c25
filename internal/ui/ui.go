// Package ui renders indexing progress for the `index` CLI command: a
// bubbletea TUI on interactive terminals, a progress bar on pipes, and
// plain line output in CI.
package ui

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
)

// Stage is one phase of the workspace build.
type Stage int

const (
	// StageScanning is workspace file discovery.
	StageScanning Stage = iota
	// StageDefinitions is Phase 1: definition extraction.
	StageDefinitions
	// StageReferences is Phase 2: reference extraction.
	StageReferences
	// StageDiagnostics is Phase 3: diagnostics publication.
	StageDiagnostics
	// StageComplete indicates the build finished.
	StageComplete
)

func (s Stage) String() string {
	switch s {
	case StageScanning:
		return "Scanning"
	case StageDefinitions:
		return "Definitions"
	case StageReferences:
		return "References"
	case StageDiagnostics:
		return "Diagnostics"
	case StageComplete:
		return "Complete"
	default:
		return "Unknown"
	}
}

// Icon returns the short stage tag for plain output.
func (s Stage) Icon() string {
	switch s {
	case StageScanning:
		return "SCAN"
	case StageDefinitions:
		return "DEFS"
	case StageReferences:
		return "REFS"
	case StageDiagnostics:
		return "DIAG"
	case StageComplete:
		return "DONE"
	default:
		return "???"
	}
}

// ProgressEvent is one progress update.
type ProgressEvent struct {
	Stage       Stage
	Current     int
	Total       int
	CurrentFile string
	Message     string
}

// ErrorEvent is one error surfaced during the build.
type ErrorEvent struct {
	File   string
	Err    error
	IsWarn bool
}

// StageTimings tracks per-phase durations.
type StageTimings struct {
	Scan        time.Duration
	Definitions time.Duration
	References  time.Duration
	Diagnostics time.Duration
}

// CompletionStats summarises a finished build.
type CompletionStats struct {
	Files       int
	Definitions int
	References  int
	Unresolved  int
	Duration    time.Duration
	Errors      int
	Warnings    int
	Stages      StageTimings
	RubyVersion string
	RubySource  string
}

// Renderer is the progress display contract.
type Renderer interface {
	// Start initialises the renderer.
	Start(ctx context.Context) error

	// UpdateProgress shows a progress update.
	UpdateProgress(event ProgressEvent)

	// AddError records an error for display.
	AddError(event ErrorEvent)

	// Complete shows the final summary.
	Complete(stats CompletionStats)

	// Stop tears the renderer down.
	Stop() error
}

// Config selects and configures a renderer.
type Config struct {
	Output     io.Writer
	ForcePlain bool
	NoColor    bool
	ProjectDir string
}

// NewRenderer picks the renderer fitting the environment: TUI on
// interactive terminals, a progress bar on pipes, plain lines in CI or
// when forced.
func NewRenderer(cfg Config) Renderer {
	if cfg.ForcePlain || DetectCI() {
		return NewPlainRenderer(cfg)
	}
	if !IsTTY(cfg.Output) {
		return NewBarRenderer(cfg)
	}
	tui, err := NewTUIRenderer(cfg)
	if err != nil {
		return NewPlainRenderer(cfg)
	}
	return tui
}

// IsTTY reports whether w is an interactive terminal.
func IsTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// DetectCI reports whether we appear to be running under CI.
func DetectCI() bool {
	for _, v := range []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "TRAVIS"} {
		if _, ok := os.LookupEnv(v); ok {
			return true
		}
	}
	return false
}

// DetectNoColor reports whether NO_COLOR is set.
func DetectNoColor() bool {
	_, ok := os.LookupEnv("NO_COLOR")
	return ok
}
