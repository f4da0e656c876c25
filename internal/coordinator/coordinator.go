package coordinator

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/diagnostics"
	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/fileproc"
	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/rubyindex"
	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/watcher"
)

// Coordinator applies incremental index updates from watcher events:
// files changed outside the editor. Editor-driven changes (didOpen,
// didChange, didSave) go through the LSP server's own lifecycle, not
// here.
type Coordinator struct {
	root      string
	idx       *rubyindex.RubyIndex
	proc      *fileproc.Processor
	publisher diagnostics.Publisher
}

// NewCoordinator builds an incremental coordinator.
func NewCoordinator(root string, idx *rubyindex.RubyIndex, proc *fileproc.Processor, publisher diagnostics.Publisher) *Coordinator {
	return &Coordinator{root: root, idx: idx, proc: proc, publisher: publisher}
}

// HandleEvents processes one debounced batch. Failures on individual
// events are logged and skipped; the batch continues.
func (c *Coordinator) HandleEvents(ctx context.Context, events []watcher.FileEvent) {
	for _, event := range events {
		if ctx.Err() != nil {
			return
		}
		if event.IsDir {
			continue
		}
		if err := c.handleEvent(ctx, event); err != nil {
			slog.Warn("watch event failed",
				slog.String("path", event.Path),
				slog.String("operation", event.Operation.String()),
				slog.String("error", err.Error()))
		}
	}
}

func (c *Coordinator) handleEvent(ctx context.Context, event watcher.FileEvent) error {
	switch event.Operation {
	case watcher.OpCreate, watcher.OpModify:
		return c.reindexFile(ctx, event.Path)
	case watcher.OpDelete, watcher.OpRename:
		c.removeFile(ctx, event.Path)
		return nil
	case watcher.OpGitignoreChange:
		// Scope changes are picked up on the next full build; a changed
		// ignore file alone doesn't invalidate existing entries.
		return nil
	default:
		return nil
	}
}

// reindexFile re-processes one on-disk file with full options and
// republishes its own and affected diagnostics.
func (c *Coordinator) reindexFile(ctx context.Context, relPath string) error {
	absPath := filepath.Join(c.root, relPath)

	info, err := os.Lstat(absPath)
	if err != nil {
		return err
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return nil
	}

	content, err := os.ReadFile(absPath)
	if err != nil {
		return err
	}

	uri := uriFor(absPath)
	res, err := c.proc.Process(ctx, uri, string(content), fileproc.Options{
		IndexDefinitions: true,
		IndexReferences:  true,
		ResolveMixins:    true,
	})
	if err != nil {
		return err
	}

	c.publish(uri, res.Diagnostics)
	c.reprocessAffected(ctx, res.AffectedURIs)
	return nil
}

// removeFile purges a deleted file's records, then re-processes the
// files that referred to what it defined so their references
// re-evaluate: a reference that resolved against the deleted file
// becomes unresolved and surfaces as a warning.
func (c *Coordinator) removeFile(ctx context.Context, relPath string) {
	uri := uriFor(filepath.Join(c.root, relPath))

	affected := c.idx.UrisReferringToAny(c.idx.RemoveEntriesForURI(uri))
	c.idx.RemoveReferencesForURI(uri)

	if c.publisher != nil {
		// The file is gone; clear its own diagnostics.
		c.publisher.PublishDiagnostics(uri, nil)
	}
	c.reprocessAffected(ctx, affected)
}

func (c *Coordinator) publish(uri string, diags []diagnostics.Diagnostic) {
	if c.publisher != nil {
		c.publisher.PublishDiagnostics(uri, diags)
	}
}

// reprocessAffected re-runs the references pass for each affected URI
// and publishes its fresh diagnostics. Publication is idempotent, so
// cross-URI ordering doesn't matter.
func (c *Coordinator) reprocessAffected(ctx context.Context, uris []string) {
	for _, uri := range uris {
		if ctx.Err() != nil {
			return
		}
		path := strings.TrimPrefix(uri, "file://")
		content, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		res, err := c.proc.Process(ctx, uri, string(content), fileproc.Options{IndexReferences: true})
		if err != nil {
			continue
		}
		c.publish(uri, res.Diagnostics)
	}
}
