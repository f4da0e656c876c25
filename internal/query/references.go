package query

import (
	"context"
	"strings"

	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/rubyfqn"
	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/rubyindex"
)

// References finds every recorded reference to the identifier at (uri,
// pos), optionally including its definition locations.
func (e *Engine) References(ctx context.Context, uri string, pos rubyindex.Position, includeDecl bool) ([]rubyindex.Location, error) {
	dc, err := e.contextAt(ctx, uri, pos)
	if err != nil {
		return nil, err
	}

	fqn, ok := e.fqnAtCursor(dc)
	if !ok {
		return nil, nil
	}

	locs := e.idx.References(fqn)
	if includeDecl {
		locs = append(locs, entryLocations(e.idx.FindDefinitions(fqn))...)
	}
	return dedupeLocations(locs), nil
}

// fqnAtCursor computes the FQN the cursor identifies: the resolved
// constant, or the method definition/call under the cursor.
func (e *Engine) fqnAtCursor(dc *docContext) (rubyfqn.FQN, bool) {
	target := dc.target()
	if target == nil {
		return rubyfqn.FQN{}, false
	}

	switch target.Type {
	case "constant", "scope_resolution":
		node := target
		if parent := dc.ancestor(1); parent != nil && parent.Type == "scope_resolution" {
			node = parent
		}
		name := strings.TrimSpace(node.Content(dc.source))
		defs := e.idx.Resolve(name, dc.enclosingScopes())
		if len(defs) == 0 {
			return rubyfqn.FQN{}, false
		}
		return defs[0].FQN, true

	case "identifier":
		name := rubyfqn.MethodName(target.Content(dc.source))

		// On a definition's name: the defined method itself.
		if parent := dc.ancestor(1); parent != nil {
			switch parent.Type {
			case "method":
				return rubyfqn.InstanceMethod(dc.enclosingNamespace(), name), true
			case "singleton_method":
				return rubyfqn.ModuleMethod(dc.enclosingNamespace(), name), true
			}
		}

		// On a call: resolve to the definition the call binds to, so
		// find-references from a call site and from the def agree.
		if locs := e.methodDefinition(dc, dc.callAncestorWithMethod(target), string(name)); len(locs) > 0 {
			if fqn, ok := e.fqnOfDefinitionAt(locs[0]); ok {
				return fqn, true
			}
		}
		return rubyfqn.FQN{}, false

	default:
		return rubyfqn.FQN{}, false
	}
}

// fqnOfDefinitionAt reverse-maps a definition location to its entry FQN.
func (e *Engine) fqnOfDefinitionAt(loc rubyindex.Location) (rubyfqn.FQN, bool) {
	for _, entry := range e.idx.EntriesWithNamePrefix("") {
		if entry.Location == loc {
			return entry.FQN, true
		}
	}
	return rubyfqn.FQN{}, false
}
