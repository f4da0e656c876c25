// Package docstate owns in-memory file contents and local-variable tables
// for every currently open document, plus the per-method type snapshots
// produced by the type tracker. Document-local state never lives in the
// symbol index: a local variable's relevance is strictly intra-file and
// its FQN space is unbounded, so indexing it globally would be wasted
// work and an unbounded memory growth for long editor sessions.
package docstate

import (
	"sync"

	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/rubyindex"
	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/rubyparse"
	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/rubytype"
)

// ScopeID identifies one lexical scope (method body, block) within a
// document for the purposes of local-variable bookkeeping.
type ScopeID int

// TypeSnapshot is a byte-range-indexed record of every variable's
// narrowed type across that range, produced by internal/typetrack. Kept
// here rather than in typetrack itself so that a document's snapshots can
// be queried without importing the tracker.
type TypeSnapshot struct {
	StartOffset uint32
	EndOffset   uint32
	Vars        map[string]rubytype.Type
}

// LocalVariableEntry records one local variable's assignments within a
// single document scope.
type LocalVariableEntry struct {
	Name        string
	Scope       ScopeID
	Assignments []rubyindex.Assignment
}

// Document is the mutable state of one open file: content, version, a
// cache of the last parse, local
// variable tables keyed by lexical scope, and the method-level type
// snapshots produced on each (re-)index.
type Document struct {
	mu sync.RWMutex

	uri        string
	content    string
	version    int64
	languageID string

	tree *rubyparse.Tree

	lvars map[ScopeID][]LocalVariableEntry

	// snapshots holds one entry per method body currently visible in the
	// document, keyed by the method FQN string so the type tracker can
	// recompute just the methods touched by an edit.
	snapshots map[string][]TypeSnapshot
}

// New constructs a Document for uri with its initial content and version.
func New(uri, content string, version int64, languageID string) *Document {
	return &Document{
		uri:        uri,
		content:    content,
		version:    version,
		languageID: languageID,
		lvars:      make(map[ScopeID][]LocalVariableEntry),
		snapshots:  make(map[string][]TypeSnapshot),
	}
}

// URI returns the document's URI.
func (d *Document) URI() string {
	return d.uri
}

// Content returns the current full text, and the version it was read at.
func (d *Document) Content() (string, int64) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.content, d.version
}

// Bytes returns the current content as a byte slice, for parser input.
func (d *Document) Bytes() []byte {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return []byte(d.content)
}

// Replace installs new content and version, invalidating the cached AST
// and every type snapshot; this server uses full-document sync, so a
// didChange always replaces the whole body rather than patching a range.
func (d *Document) Replace(content string, version int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.content = content
	d.version = version
	d.tree = nil
	d.snapshots = make(map[string][]TypeSnapshot)
	d.lvars = make(map[ScopeID][]LocalVariableEntry)
}

// CachedTree returns the last parse of this document's content, if any
// parse has been cached since the last Replace.
func (d *Document) CachedTree() (*rubyparse.Tree, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.tree == nil {
		return nil, false
	}
	return d.tree, true
}

// SetCachedTree stores tree as the cached parse for the document's
// current content/version. Callers must have parsed the content that was
// current when they started parsing; a concurrent Replace invalidates it
// again on the next CachedTree miss since Replace clears d.tree.
func (d *Document) SetCachedTree(tree *rubyparse.Tree) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tree = tree
}

// SetLocalVariables replaces the local-variable table for scope.
func (d *Document) SetLocalVariables(scope ScopeID, entries []LocalVariableEntry) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lvars[scope] = entries
}

// LocalVariables returns the local-variable table for scope.
func (d *Document) LocalVariables(scope ScopeID) []LocalVariableEntry {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]LocalVariableEntry(nil), d.lvars[scope]...)
}

// AllLocalVariables returns every scope's local variables, for queries
// that locate a variable by position rather than by scope id.
func (d *Document) AllLocalVariables() []LocalVariableEntry {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []LocalVariableEntry
	for _, entries := range d.lvars {
		out = append(out, entries...)
	}
	return out
}

// AllSnapshots returns the cached snapshot lists keyed by method FQN
// string.
func (d *Document) AllSnapshots() map[string][]TypeSnapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[string][]TypeSnapshot, len(d.snapshots))
	for k, v := range d.snapshots {
		out[k] = v
	}
	return out
}

// SetSnapshots installs the type-tracker snapshots for the method
// identified by fqnString, replacing any prior snapshots for it.
func (d *Document) SetSnapshots(fqnString string, snapshots []TypeSnapshot) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.snapshots[fqnString] = snapshots
}

// Snapshots returns the cached type snapshots for the method identified
// by fqnString, and whether any were found.
func (d *Document) Snapshots(fqnString string) ([]TypeSnapshot, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s, ok := d.snapshots[fqnString]
	return s, ok
}

// Store is the mutex-protected map from URI to Document. Each document
// has its own reader-writer lock (above); Store's own lock only guards
// insertion/removal from the map, matching the concurrency model's
// distinction between "the map from URI to document is itself
// mutex-protected" and "each document has its own lock".
type Store struct {
	mu   sync.RWMutex
	docs map[string]*Document
}

// NewStore constructs an empty document store.
func NewStore() *Store {
	return &Store{docs: make(map[string]*Document)}
}

// Open creates or refreshes the Document for uri (didOpen semantics: a
// reopen replaces prior content wholesale).
func (s *Store) Open(uri, content string, version int64, languageID string) *Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := New(uri, content, version, languageID)
	s.docs[uri] = doc
	return doc
}

// Get returns the Document for uri, if open.
func (s *Store) Get(uri string) (*Document, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.docs[uri]
	return d, ok
}

// Close drops the Document for uri. Index entries for the file are not
// touched here; they persist across close so cross-file diagnostics
// stay valid, per the per-file lifecycle state machine.
func (s *Store) Close(uri string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, uri)
}

// Len reports how many documents are currently open.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}
