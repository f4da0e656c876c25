// Package query is the single front door for every editor capability:
// hover, definition, references, completion, document symbols, and inlay
// hints all route through Engine, which orchestrates index lookups, open
// document state, and the type tracker.
package query

import (
	"context"
	"fmt"
	"strings"

	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/docstate"
	lsperrors "github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/errors"
	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/position"
	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/query/fuzzysearch"
	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/rettype"
	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/rubyfqn"
	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/rubyindex"
	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/rubyparse"
	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/rubytype"
	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/typetrack"
)

// Engine answers editor queries. One instance serves the whole session.
type Engine struct {
	idx      *rubyindex.RubyIndex
	docs     *docstate.Store
	parser   *rubyparse.Parser
	inferrer *rettype.Inferrer
	fuzzy    *fuzzysearch.Engine
}

// Option configures optional Engine collaborators.
type Option func(*Engine)

// WithFuzzyFallback wires the bleve symbol engine used when prefix
// completion comes up sparse.
func WithFuzzyFallback(f *fuzzysearch.Engine) Option {
	return func(e *Engine) { e.fuzzy = f }
}

// New builds an Engine over the shared index and document store.
func New(idx *rubyindex.RubyIndex, docs *docstate.Store, inferrer *rettype.Inferrer, opts ...Option) *Engine {
	e := &Engine{
		idx:      idx,
		docs:     docs,
		parser:   rubyparse.NewParser(),
		inferrer: inferrer,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Close releases the engine's parser.
func (e *Engine) Close() {
	e.parser.Close()
}

// docContext is everything a positional query needs about one document:
// its content, a parse, a position mapper, and the node path from root
// to the deepest node containing the query offset.
type docContext struct {
	doc    *docstate.Document
	source []byte
	mapper *position.Mapper
	tree   *rubyparse.Tree
	offset int
	path   []*rubyparse.Node
}

// contextAt builds the docContext for a query position, parsing (and
// caching) the document when no parse is cached.
func (e *Engine) contextAt(ctx context.Context, uri string, pos rubyindex.Position) (*docContext, error) {
	doc, ok := e.docs.Get(uri)
	if !ok {
		return nil, lsperrors.IoError(fmt.Sprintf("document not open: %s", uri), nil)
	}

	content, _ := doc.Content()
	mapper := position.NewMapper(content)
	offset := mapper.PositionToOffset(pos)

	tree, cached := doc.CachedTree()
	if !cached {
		parsed, err := e.parser.Parse(ctx, []byte(content))
		if err != nil {
			return nil, lsperrors.ParseError(uri, err)
		}
		doc.SetCachedTree(parsed)
		tree = parsed
	}

	return &docContext{
		doc:    doc,
		source: tree.Source,
		mapper: mapper,
		tree:   tree,
		offset: offset,
		path:   nodePathAt(tree.Root, uint32(offset)),
	}, nil
}

// nodePathAt descends from root collecting the ancestor chain of the
// deepest node whose span contains offset.
func nodePathAt(root *rubyparse.Node, offset uint32) []*rubyparse.Node {
	var path []*rubyparse.Node
	node := root
	for node != nil {
		path = append(path, node)
		var next *rubyparse.Node
		for _, c := range node.Children {
			if c.StartByte <= offset && offset < c.EndByte {
				next = c
				break
			}
		}
		node = next
	}
	return path
}

// target returns the deepest node of the path, or nil.
func (dc *docContext) target() *rubyparse.Node {
	if len(dc.path) == 0 {
		return nil
	}
	return dc.path[len(dc.path)-1]
}

// ancestor returns the n-th node up from the target (1 = parent).
func (dc *docContext) ancestor(n int) *rubyparse.Node {
	i := len(dc.path) - 1 - n
	if i < 0 {
		return nil
	}
	return dc.path[i]
}

// enclosingNamespace reconstructs the namespace stack at the query
// position from the class/module nodes on the path.
func (dc *docContext) enclosingNamespace() []rubyfqn.RubyConstant {
	var parts []rubyfqn.RubyConstant
	for _, n := range dc.path {
		if n.Type != "class" && n.Type != "module" {
			continue
		}
		for _, c := range n.Children {
			if c.Type == "constant" || c.Type == "scope_resolution" {
				parts = append(parts, splitConstPath(c.Content(dc.source))...)
				break
			}
		}
	}
	return parts
}

// enclosingScopes converts the namespace stack into the innermost-first
// scope list index.Resolve expects.
func (dc *docContext) enclosingScopes() []rubyfqn.FQN {
	parts := dc.enclosingNamespace()
	var scopes []rubyfqn.FQN
	for i := len(parts); i > 0; i-- {
		scopes = append(scopes, rubyfqn.Namespace(parts[:i]...))
	}
	return scopes
}

// enclosingMethod returns the innermost method/singleton_method node on
// the path, or nil outside any method.
func (dc *docContext) enclosingMethod() *rubyparse.Node {
	for i := len(dc.path) - 1; i >= 0; i-- {
		if dc.path[i].Type == "method" || dc.path[i].Type == "singleton_method" {
			return dc.path[i]
		}
	}
	return nil
}

// methodFQNOf names the enclosing method for snapshot cache keys.
func (dc *docContext) methodFQNOf(method *rubyparse.Node) rubyfqn.FQN {
	name := ""
	for _, c := range method.Children {
		if c.Type == "identifier" || c.Type == "operator" || c.Type == "setter" {
			name = c.Content(dc.source)
			break
		}
	}
	owner := dc.enclosingNamespace()
	if method.Type == "singleton_method" {
		return rubyfqn.ModuleMethod(owner, rubyfqn.MethodName(name))
	}
	return rubyfqn.InstanceMethod(owner, rubyfqn.MethodName(name))
}

// snapshotsFor returns (computing and caching on first use) the type
// snapshots for the method containing the query position.
func (e *Engine) snapshotsFor(dc *docContext, method *rubyparse.Node) []docstate.TypeSnapshot {
	fqn := dc.methodFQNOf(method)
	key := fqn.String()
	if snaps, ok := dc.doc.Snapshots(key); ok {
		return snaps
	}

	body := method.FindChildByType("body_statement")
	if body == nil {
		return nil
	}

	params := yardParamsFor(e.idx, fqn)
	tracker := typetrack.New(e.inferrer)
	snaps := tracker.Track(dc.source, body, params)
	dc.doc.SetSnapshots(key, snaps)
	return snaps
}

// yardParamsFor seeds the tracker's entry environment from YARD-declared
// parameter types, best-effort.
func yardParamsFor(idx *rubyindex.RubyIndex, fqn rubyfqn.FQN) map[string]rubytype.Type {
	defs := idx.FindDefinitions(fqn)
	if len(defs) == 0 || defs[0].YardDoc == nil {
		return nil
	}
	out := make(map[string]rubytype.Type)
	for _, p := range defs[0].Parameters {
		if t, ok := defs[0].YardDoc.ParamType(p.Name); ok {
			out[p.Name] = t
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// splitConstPath splits "A::B" into parts, tolerating a leading "::".
func splitConstPath(text string) []rubyfqn.RubyConstant {
	text = strings.TrimPrefix(strings.TrimSpace(text), "::")
	if text == "" {
		return nil
	}
	raw := strings.Split(text, "::")
	parts := make([]rubyfqn.RubyConstant, 0, len(raw))
	for _, r := range raw {
		if r != "" {
			parts = append(parts, rubyfqn.RubyConstant(r))
		}
	}
	return parts
}
