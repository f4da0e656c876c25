package query

import (
	"sort"

	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/rubyindex"
)

// Symbol is one document-symbol tree node.
type Symbol struct {
	Name     string
	Detail   string
	Kind     rubyindex.EntryKind
	Range    rubyindex.Range
	Children []Symbol
}

// DocumentSymbols returns the symbol tree for uri from the index's
// entries for that file. Virtual mixin entries are excluded; they
// belong to the file that defines them, not the file that includes
// them.
func (e *Engine) DocumentSymbols(uri string) []Symbol {
	entries := e.idx.EntriesForURI(uri)

	type node struct {
		sym      Symbol
		fqn      string
		children []*node
	}

	byFQN := make(map[string]*node)
	var roots []*node

	// Namespaces first so methods/constants can attach beneath them.
	sort.SliceStable(entries, func(i, j int) bool {
		return len(entries[i].FQN.Parts) < len(entries[j].FQN.Parts)
	})

	for _, entry := range entries {
		if entry.IsVirtual() {
			continue
		}
		n := &node{
			sym: Symbol{
				Name:   entry.FQN.Name(),
				Detail: entry.FQN.String(),
				Kind:   entry.Kind,
				Range:  entry.Location.Range,
			},
			fqn: entry.FQN.String(),
		}

		parentKey := ""
		switch entry.Kind {
		case rubyindex.KindMethod:
			parentKey = entry.Owner.String()
		default:
			if parent, ok := entry.FQN.Parent(); ok && len(parent.Parts) > 0 {
				parentKey = parent.String()
			}
		}

		if parent, ok := byFQN[parentKey]; ok && parentKey != "" {
			parent.children = append(parent.children, n)
		} else {
			roots = append(roots, n)
		}

		if entry.Kind == rubyindex.KindClass || entry.Kind == rubyindex.KindModule {
			// First definition wins as the attachment point; re-opened
			// classes still show both root symbols.
			if _, exists := byFQN[n.fqn]; !exists {
				byFQN[n.fqn] = n
			}
		}
	}

	var build func(ns []*node) []Symbol
	build = func(ns []*node) []Symbol {
		out := make([]Symbol, 0, len(ns))
		for _, n := range ns {
			n.sym.Children = build(n.children)
			out = append(out, n.sym)
		}
		sort.SliceStable(out, func(i, j int) bool {
			a, b := out[i].Range.Start, out[j].Range.Start
			if a.Line != b.Line {
				return a.Line < b.Line
			}
			return a.Column < b.Column
		})
		return out
	}
	return build(roots)
}

// WorkspaceSymbols answers workspace-wide symbol search via the fuzzy
// engine, falling back to prefix enumeration when no fuzzy engine is
// wired.
func (e *Engine) WorkspaceSymbols(queryText string, limit int) []Symbol {
	if limit <= 0 || limit > maxCompletionResults {
		limit = maxCompletionResults
	}

	if e.fuzzy != nil {
		hits, err := e.fuzzy.Search(queryText, limit)
		if err == nil {
			var out []Symbol
			for _, hit := range hits {
				for _, entry := range e.idx.EntriesWithNamePrefix("") {
					if entry.FQN.String() == hit.FQN {
						out = append(out, Symbol{
							Name:   entry.FQN.Name(),
							Detail: entry.FQN.String(),
							Kind:   entry.Kind,
							Range:  entry.Location.Range,
						})
						break
					}
				}
			}
			if len(out) > 0 {
				return out
			}
		}
	}

	var out []Symbol
	for _, entry := range e.idx.EntriesWithNamePrefix(queryText) {
		if entry.IsVirtual() {
			continue
		}
		out = append(out, Symbol{
			Name:   entry.FQN.Name(),
			Detail: entry.FQN.String(),
			Kind:   entry.Kind,
			Range:  entry.Location.Range,
		})
		if len(out) == limit {
			break
		}
	}
	return out
}
