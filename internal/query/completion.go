package query

import (
	"context"
	"sort"
	"strings"

	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/rubyfqn"
	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/rubyindex"
)

// maxCompletionResults caps every completion response.
const maxCompletionResults = 50

// fuzzyFallbackThreshold: when prefix matching yields fewer results than
// this, the bleve fallback pass tops the list up.
const fuzzyFallbackThreshold = 5

// CompletionItem is one completion candidate.
type CompletionItem struct {
	Label  string
	Detail string
	Kind   rubyindex.EntryKind
	FQN    rubyfqn.FQN

	// score orders results; not exposed on the wire.
	score float64
}

// Complete computes completion candidates at (uri, pos). The partial
// text is derived from the line content before the cursor.
func (e *Engine) Complete(ctx context.Context, uri string, pos rubyindex.Position) ([]CompletionItem, error) {
	dc, err := e.contextAt(ctx, uri, pos)
	if err != nil {
		return nil, err
	}

	line := dc.mapper.Line(pos.Line)
	prefix := typedPrefix(line, pos.Column)

	if base, partial, qualified := splitQualified(prefix); qualified {
		return e.completeQualified(dc, base, partial), nil
	}
	return e.completeUnqualified(dc, prefix), nil
}

// typedPrefix extracts the identifier-ish text immediately before the
// cursor column.
func typedPrefix(line string, col int) string {
	if col > len(line) {
		col = len(line)
	}
	start := col
	for start > 0 {
		c := line[start-1]
		if isIdentChar(c) || c == ':' {
			start--
			continue
		}
		break
	}
	return line[start:col]
}

func isIdentChar(c byte) bool {
	return c == '_' || c == '@' || c == '$' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// splitQualified detects "Foo::" / "Foo::B" prefixes, returning the
// base path and the partial final component.
func splitQualified(prefix string) (base, partial string, qualified bool) {
	i := strings.LastIndex(prefix, "::")
	if i < 0 {
		return "", "", false
	}
	base = strings.TrimPrefix(prefix[:i], "::")
	partial = prefix[i+2:]
	return base, partial, base != ""
}

// completeQualified enumerates the direct children of base, FQNs
// exactly one component longer, matching partial against the final
// component only.
func (e *Engine) completeQualified(dc *docContext, base, partial string) []CompletionItem {
	defs := e.idx.Resolve(base, dc.enclosingScopes())
	if len(defs) == 0 {
		return nil
	}
	parent := defs[0].FQN

	var items []CompletionItem
	for _, child := range e.idx.NamespaceChildren(parent) {
		name := child.Name()
		if partial != "" && !strings.HasPrefix(name, partial) {
			continue
		}
		kind := rubyindex.KindModule
		if childDefs := e.idx.FindDefinitions(child); len(childDefs) > 0 {
			kind = childDefs[0].Kind
		}
		items = append(items, CompletionItem{
			Label:  name,
			Detail: child.String(),
			Kind:   kind,
			FQN:    child,
			score:  prefixScore(name, partial),
		})
	}

	return finishItems(items)
}

// completeUnqualified enumerates constants and in-scope methods whose
// name has the typed prefix, ranked by prefix quality, entry-kind
// weight, and a same-namespace boost.
func (e *Engine) completeUnqualified(dc *docContext, partial string) []CompletionItem {
	entries := e.idx.EntriesWithNamePrefix(partial)
	here := rubyfqn.Namespace(dc.enclosingNamespace()...)

	var items []CompletionItem
	for _, entry := range entries {
		switch entry.Kind {
		case rubyindex.KindClass, rubyindex.KindModule, rubyindex.KindConstant, rubyindex.KindMethod:
		default:
			continue
		}
		if entry.Kind == rubyindex.KindMethod && !methodInScope(entry, here) {
			continue
		}

		score := prefixScore(entry.FQN.Name(), partial) + kindWeight(entry.Kind)
		if sameNamespace(entry.FQN, here) {
			score += 2
		}
		items = append(items, CompletionItem{
			Label:  entry.FQN.Name(),
			Detail: entry.FQN.String(),
			Kind:   entry.Kind,
			FQN:    entry.FQN,
			score:  score,
		})
	}

	items = finishItems(items)

	if len(items) < fuzzyFallbackThreshold && e.fuzzy != nil && partial != "" {
		items = e.fuzzyTopUp(items, partial)
	}
	return items
}

// fuzzyTopUp appends bleve hits not already present.
func (e *Engine) fuzzyTopUp(items []CompletionItem, partial string) []CompletionItem {
	hits, err := e.fuzzy.Search(partial, maxCompletionResults-len(items))
	if err != nil {
		return items
	}

	present := make(map[string]struct{}, len(items))
	for _, it := range items {
		present[it.FQN.String()] = struct{}{}
	}

	for _, hit := range hits {
		if _, dup := present[hit.FQN]; dup {
			continue
		}
		fqn, ok := rubyfqn.Parse(hit.FQN)
		if !ok {
			continue
		}
		kind := rubyindex.KindModule
		if defs := e.idx.FindDefinitions(fqn); len(defs) > 0 {
			kind = defs[0].Kind
		}
		items = append(items, CompletionItem{
			Label:  fqn.Name(),
			Detail: hit.FQN,
			Kind:   kind,
			FQN:    fqn,
			score:  hit.Score,
		})
	}
	if len(items) > maxCompletionResults {
		items = items[:maxCompletionResults]
	}
	return items
}

// finishItems dedupes by namespace parts, orders by score then label,
// and applies the result cap.
func finishItems(items []CompletionItem) []CompletionItem {
	seen := make(map[string]int)
	var out []CompletionItem
	for _, it := range items {
		key := it.FQN.String()
		if i, dup := seen[key]; dup {
			if it.score > out[i].score {
				out[i] = it
			}
			continue
		}
		seen[key] = len(out)
		out = append(out, it)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score > out[j].score
		}
		return out[i].Label < out[j].Label
	})

	if len(out) > maxCompletionResults {
		out = out[:maxCompletionResults]
	}
	return out
}

// prefixScore rewards exact and long prefix matches.
func prefixScore(name, partial string) float64 {
	if partial == "" {
		return 1
	}
	if name == partial {
		return 10
	}
	if strings.HasPrefix(name, partial) {
		return 5 + float64(len(partial))/float64(len(name))
	}
	return 0
}

// kindWeight orders entry kinds: types above constants above methods.
func kindWeight(kind rubyindex.EntryKind) float64 {
	switch kind {
	case rubyindex.KindClass, rubyindex.KindModule:
		return 3
	case rubyindex.KindConstant:
		return 2
	case rubyindex.KindMethod:
		return 1
	default:
		return 0
	}
}

// methodInScope keeps method completion to methods on the enclosing
// namespace chain; completing every method in the workspace on a bare
// prefix would bury the relevant ones.
func methodInScope(entry rubyindex.Entry, here rubyfqn.FQN) bool {
	owner := entry.Owner
	if len(owner.Parts) == 0 {
		return true
	}
	if len(owner.Parts) > len(here.Parts) {
		return false
	}
	for i := range owner.Parts {
		if owner.Parts[i] != here.Parts[i] {
			return false
		}
	}
	return true
}

// sameNamespace reports whether fqn's parent namespace equals here.
func sameNamespace(fqn rubyfqn.FQN, here rubyfqn.FQN) bool {
	parent, ok := fqn.Parent()
	if !ok {
		return len(here.Parts) == 0
	}
	return parent.Equal(here)
}
