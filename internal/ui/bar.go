package ui

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
)

// BarRenderer draws a single in-place progress bar, the middle ground
// between the full TUI and plain lines: used when output is a pipe that
// still understands carriage returns (e.g. a terminal multiplexer's
// capture) rather than a CI log.
type BarRenderer struct {
	mu    sync.Mutex
	out   io.Writer
	bar   *progressbar.ProgressBar
	stage Stage
	total int
	errs  []ErrorEvent
}

// NewBarRenderer creates a progressbar-backed renderer.
func NewBarRenderer(cfg Config) *BarRenderer {
	return &BarRenderer{out: cfg.Output}
}

// Start implements Renderer.
func (r *BarRenderer) Start(ctx context.Context) error {
	return nil
}

// UpdateProgress implements Renderer.
func (r *BarRenderer) UpdateProgress(event ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// A stage change or total change replaces the bar.
	if r.bar == nil || event.Stage != r.stage || event.Total != r.total {
		if r.bar != nil {
			_ = r.bar.Finish()
			_, _ = fmt.Fprintln(r.out)
		}
		r.stage = event.Stage
		r.total = event.Total
		r.bar = r.newBar(event)
	}
	if event.Total > 0 {
		_ = r.bar.Set(event.Current)
	}
}

func (r *BarRenderer) newBar(event ProgressEvent) *progressbar.ProgressBar {
	total := event.Total
	if total <= 0 {
		total = -1 // spinner mode
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(event.Stage.String()),
		progressbar.OptionSetWriter(r.out),
		progressbar.OptionSetWidth(40),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionShowCount(),
	)
}

// AddError implements Renderer.
func (r *BarRenderer) AddError(event ErrorEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, event)
}

// Complete implements Renderer.
func (r *BarRenderer) Complete(stats CompletionStats) {
	r.mu.Lock()
	if r.bar != nil {
		_ = r.bar.Finish()
		_, _ = fmt.Fprintln(r.out)
		r.bar = nil
	}
	errs := r.errs
	r.mu.Unlock()

	for _, e := range errs {
		prefix := "ERROR"
		if e.IsWarn {
			prefix = "WARN"
		}
		_, _ = fmt.Fprintf(r.out, "%s: %s: %v\n", prefix, e.File, e.Err)
	}

	plain := &PlainRenderer{out: r.out}
	plain.Complete(stats)
}

// Stop implements Renderer.
func (r *BarRenderer) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.bar != nil {
		_ = r.bar.Finish()
		r.bar = nil
	}
	return nil
}
