// Package fileproc implements per-file index processing: parse one Ruby
// file, walk its AST with a namespace/visibility-aware visitor, and emit
// definition entries, reference entries, local-variable records, and
// YARD annotations into the symbol index.
package fileproc

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/diagnostics"
	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/docstate"
	lsperrors "github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/errors"
	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/mixin"
	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/position"
	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/rubyfqn"
	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/rubyindex"
	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/rubyparse"
)

// Input size limits. Files beyond either are rejected before parse with
// a typed OversizedInput error.
const (
	MaxFileBytes  = 500 * 1024
	MaxLineLength = 10000
)

// Options toggles each phase of processing independently, so that a fast
// didChange pass can skip mixin resolution while a didOpen/didSave pass
// runs everything.
type Options struct {
	IndexDefinitions bool
	IndexReferences  bool
	ResolveMixins    bool
	IncludeLocalVars bool
}

// Result reports the outcome of processing one file.
type Result struct {
	// AffectedURIs is the set of other files whose diagnostics may have
	// changed because this file's definitions changed.
	AffectedURIs []string

	// Diagnostics holds this file's own diagnostics: syntax errors from
	// the parse, plus unresolved-reference warnings when references were
	// indexed.
	Diagnostics []diagnostics.Diagnostic

	// LocalVars holds the local-variable tables discovered per method
	// scope, for the caller to attach to the open document. Local
	// variables never enter the index.
	LocalVars []docstate.LocalVariableEntry

	// Tree is the parse produced during processing, for the caller to
	// cache on the document.
	Tree *rubyparse.Tree
}

// Processor turns one file's content into index mutations.
type Processor struct {
	parser *rubyparse.Parser
	idx    *rubyindex.RubyIndex
}

// New builds a Processor writing into idx.
func New(idx *rubyindex.RubyIndex) *Processor {
	return &Processor{
		parser: rubyparse.NewParser(),
		idx:    idx,
	}
}

// Close releases the underlying parser.
func (p *Processor) Close() {
	p.parser.Close()
}

// Process parses content and applies the enabled phases to the index.
// On a syntax error the file's prior index state is preserved (partial
// results are worse than stale ones) and the syntax diagnostics are
// returned. A panic anywhere in the walk is recovered and reported as an
// internal error, again preserving prior state.
func (p *Processor) Process(ctx context.Context, uri, content string, opts Options) (res *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = nil
			err = lsperrors.InternalError(fmt.Sprintf("panic processing %s: %v", uri, r), nil)
		}
	}()

	if err := checkSize(uri, content); err != nil {
		return nil, err
	}

	source := []byte(content)
	tree, err := p.parser.Parse(ctx, source)
	if err != nil {
		return nil, lsperrors.ParseError(fmt.Sprintf("parse %s", uri), err)
	}

	mapper := position.NewMapper(content)

	if tree.Root.HasError {
		return &Result{
			Diagnostics: syntaxDiagnostics(tree, mapper),
			Tree:        tree,
		}, nil
	}

	result := &Result{Tree: tree}

	w := &walker{
		proc:   p,
		uri:    uri,
		source: source,
		mapper: mapper,
		opts:   opts,
		mixins: make(map[string][]rubyindex.MixinRef),
	}

	var affected []string
	if opts.IndexDefinitions {
		lost := p.idx.RemoveEntriesForURI(uri)
		affected = p.idx.UrisReferringToAny(lost)
	}
	if opts.IndexReferences {
		p.idx.RemoveReferencesForURI(uri)
		p.idx.ClearUnresolved(uri)
	}

	w.walkBody(bodyStatements(tree.Root), nil)

	if opts.IndexDefinitions {
		// Files holding unresolved references to names this pass just
		// defined are affected too: their warnings can now clear.
		var added []rubyfqn.FQN
		for _, entry := range p.idx.EntriesForURI(uri) {
			added = append(added, entry.FQN)
		}
		affected = mergeURIs(affected, p.idx.UrisReferringToAny(added), uri)
	}

	if opts.IndexDefinitions {
		for _, owner := range w.mixinOwnerOrder {
			p.idx.SetMixinRefs(w.ownerFQNs[owner], w.mixins[owner])
		}
	}

	if opts.ResolveMixins {
		mixin.Resolve(p.idx)
	}

	result.LocalVars = w.localVars
	result.AffectedURIs = affected
	if opts.IndexReferences {
		// Forward references within this file resolved against nothing
		// during the walk; re-try them now that every definition landed.
		p.idx.ReevaluateUnresolved(uri)
		result.Diagnostics = append(result.Diagnostics, diagnostics.ForURI(p.idx, uri)...)
	}
	return result, nil
}

// mergeURIs unions two URI lists, dropping self.
func mergeURIs(a, b []string, self string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	var out []string
	for _, list := range [][]string{a, b} {
		for _, uri := range list {
			if uri == self {
				continue
			}
			if _, dup := seen[uri]; dup {
				continue
			}
			seen[uri] = struct{}{}
			out = append(out, uri)
		}
	}
	sort.Strings(out)
	return out
}

// checkSize rejects oversized inputs before parse.
func checkSize(uri, content string) error {
	if len(content) > MaxFileBytes {
		return lsperrors.OversizedInputError(
			fmt.Sprintf("%s is %d bytes, limit is %d", uri, len(content), MaxFileBytes))
	}
	start := 0
	for i := 0; i <= len(content); i++ {
		if i == len(content) || content[i] == '\n' {
			if i-start > MaxLineLength {
				return lsperrors.OversizedInputError(
					fmt.Sprintf("%s has a line of %d chars, limit is %d", uri, i-start, MaxLineLength))
			}
			start = i + 1
		}
	}
	return nil
}

// syntaxDiagnostics collects one diagnostic per ERROR node in the tree.
func syntaxDiagnostics(tree *rubyparse.Tree, mapper *position.Mapper) []diagnostics.Diagnostic {
	var out []diagnostics.Diagnostic
	for _, errNode := range tree.Root.FindAllByType("ERROR") {
		r := mapper.RangeFromOffsets(int(errNode.StartByte), int(errNode.EndByte))
		out = append(out, diagnostics.SyntaxError(r, strings.TrimSpace(firstLine(errNode.Content(tree.Source)))))
	}
	if len(out) == 0 {
		// HasError without an ERROR node means a missing token somewhere;
		// report at the root so the user still sees something.
		r := mapper.RangeFromOffsets(int(tree.Root.StartByte), int(tree.Root.StartByte))
		out = append(out, diagnostics.SyntaxError(r, "incomplete expression"))
	}
	return out
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// bodyStatements returns the statement list of a program, class, module,
// or method node: the children of its body_statement child, or for
// "program" its direct children.
func bodyStatements(n *rubyparse.Node) []*rubyparse.Node {
	if n == nil {
		return nil
	}
	if n.Type == "program" {
		return n.Children
	}
	if body := n.FindChildByType("body_statement"); body != nil {
		return body.Children
	}
	return nil
}
