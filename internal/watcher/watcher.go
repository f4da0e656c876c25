// Package watcher reacts to filesystem changes outside the editor,
// `bundle install` rewriting Gemfile.lock, a git checkout swapping whole
// trees, and feeds them, debounced and coalesced, into the same
// re-index pipeline didChange events use.
package watcher

import (
	"context"
	"time"
)

// Operation is the kind of filesystem change observed.
type Operation int

const (
	// OpCreate indicates a new file appeared.
	OpCreate Operation = iota
	// OpModify indicates an existing file changed.
	OpModify
	// OpDelete indicates a file is gone.
	OpDelete
	// OpRename indicates a file moved; the watcher reports it for the
	// old path (the create of the new path arrives as its own event) and
	// the coordinator handles it like a delete.
	OpRename
	// OpGitignoreChange indicates a .gitignore changed, which may flip
	// files in or out of indexing scope.
	OpGitignoreChange
)

func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	case OpRename:
		return "RENAME"
	case OpGitignoreChange:
		return "GITIGNORE_CHANGE"
	default:
		return "UNKNOWN"
	}
}

// FileEvent is one observed filesystem change.
type FileEvent struct {
	// Path is relative to the watched root.
	Path string

	// Operation is the change kind.
	Operation Operation

	// IsDir is set for directory events.
	IsDir bool

	// Timestamp is when the event was observed.
	Timestamp time.Time
}

// Watcher is the filesystem watching contract.
type Watcher interface {
	// Start begins watching root recursively until Stop or context
	// cancellation.
	Start(ctx context.Context, root string) error

	// Stop releases resources. Safe to call more than once.
	Stop() error

	// Events returns the debounced event batches.
	Events() <-chan []FileEvent

	// Errors returns non-fatal watcher errors; the watcher keeps
	// running after sending one.
	Errors() <-chan error
}

// Options configures watching behavior.
type Options struct {
	// DebounceWindow is how long to coalesce before emitting a batch.
	// Default 200ms.
	DebounceWindow time.Duration

	// EventBufferSize is not read by FSWatcher; the fsnotify event
	// channel keeps the library's own depth. Default 1000.
	EventBufferSize int
}

// WithDefaults fills zero values.
func (o Options) WithDefaults() Options {
	if o.DebounceWindow == 0 {
		o.DebounceWindow = 200 * time.Millisecond
	}
	if o.EventBufferSize == 0 {
		o.EventBufferSize = 1000
	}
	return o
}
