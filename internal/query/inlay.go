package query

import (
	"context"
	"strings"

	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/docstate"
	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/rubyfqn"
	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/rubyindex"
	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/rubyparse"
	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/typetrack"
)

// InlayKind mirrors the LSP inlay hint kinds.
type InlayKind int

const (
	InlayType InlayKind = iota + 1
	InlayParameter
)

// InlayHint is one rendered hint.
type InlayHint struct {
	Position rubyindex.Position
	Label    string
	Kind     InlayKind

	// PaddingLeft requests a space before the label.
	PaddingLeft bool
}

// inlayNodeKind discriminates collected inlay sites.
type inlayNodeKind int

const (
	inlayBlockEnd inlayNodeKind = iota
	inlayMethodDef
	inlayVariableWrite
	inlayChainedCall
	inlayImplicitReturn
)

// inlayNode is one site the collector found; the generator turns it
// into a hint.
type inlayNode struct {
	kind    inlayNodeKind
	name    string
	node    *rubyparse.Node
	defNode *rubyparse.Node // for method defs: the whole def
	endByte uint32
}

// InlayHints collects and renders hints for the given range of uri.
func (e *Engine) InlayHints(ctx context.Context, uri string, rng rubyindex.Range) ([]InlayHint, error) {
	dc, err := e.contextAt(ctx, uri, rng.Start)
	if err != nil {
		return nil, err
	}

	startOffset := uint32(dc.mapper.PositionToOffset(rng.Start))
	endOffset := uint32(dc.mapper.PositionToOffset(rng.End))

	nodes := collectInlayNodes(dc.tree.Root, dc.source, startOffset, endOffset)

	var hints []InlayHint
	for _, n := range nodes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if hint, ok := e.generateHint(dc, n); ok {
			hints = append(hints, hint)
		}
	}
	return hints, nil
}

// collectInlayNodes walks the tree gathering hint sites inside the
// offset window.
func collectInlayNodes(root *rubyparse.Node, source []byte, start, end uint32) []inlayNode {
	var nodes []inlayNode

	root.Walk(func(n *rubyparse.Node) bool {
		if n.EndByte < start || n.StartByte > end {
			return false
		}

		switch n.Type {
		case "class", "module", "method", "singleton_method":
			nodes = append(nodes, collectBlockEnd(n, source)...)
			if n.Type == "method" || n.Type == "singleton_method" {
				nodes = append(nodes, inlayNode{
					kind:    inlayMethodDef,
					name:    defName(n, source),
					node:    n,
					defNode: n,
				})
				if body := n.FindChildByType("body_statement"); body != nil && len(body.Children) > 0 {
					last := body.Children[len(body.Children)-1]
					if isExpressionish(last) {
						nodes = append(nodes, inlayNode{kind: inlayImplicitReturn, node: last})
					}
				}
			}

		case "assignment":
			if len(n.Children) > 0 {
				lhs := n.Children[0]
				switch lhs.Type {
				case "identifier", "instance_variable", "class_variable":
					nodes = append(nodes, inlayNode{
						kind: inlayVariableWrite,
						name: lhs.Content(source),
						node: lhs,
					})
				}
			}

		case "call":
			// A call whose receiver is itself a call, split across
			// lines, gets an intermediate-type hint.
			if recv, _ := callNameParts(n); recv != nil && recv.Type == "call" &&
				recv.EndPoint.Row < n.EndPoint.Row {
				nodes = append(nodes, inlayNode{kind: inlayChainedCall, node: recv})
			}
		}
		return true
	})

	return nodes
}

// collectBlockEnd produces the `end` annotation site for a multi-line
// class/module/def block.
func collectBlockEnd(n *rubyparse.Node, source []byte) []inlayNode {
	if n.EndPoint.Row-n.StartPoint.Row < 8 {
		// Short blocks don't need their `end` labelled.
		return nil
	}
	endKw := lastChildOfType(n, "end")
	if endKw == nil {
		return nil
	}
	return []inlayNode{{
		kind:    inlayBlockEnd,
		name:    n.Type + " " + defName(n, source),
		node:    endKw,
		endByte: n.EndByte,
	}}
}

// generateHint renders one collected site, consulting the type tracker
// and the index for type strings.
func (e *Engine) generateHint(dc *docContext, n inlayNode) (InlayHint, bool) {
	switch n.kind {
	case inlayBlockEnd:
		return InlayHint{
			Position:    dc.mapper.OffsetToPosition(int(n.node.EndByte)),
			Label:       "# " + n.name,
			Kind:        InlayType,
			PaddingLeft: true,
		}, true

	case inlayMethodDef:
		entry, ok := e.methodEntryFor(dc, n.defNode)
		if !ok {
			return InlayHint{}, false
		}
		rt, ok := e.inferrer.ReturnTypeOf(entry)
		if !ok {
			return InlayHint{}, false
		}
		pos := methodSignatureEnd(n.defNode, dc)
		return InlayHint{
			Position:    pos,
			Label:       "→ " + rt.String(),
			Kind:        InlayType,
			PaddingLeft: true,
		}, true

	case inlayVariableWrite:
		method := enclosingMethodOf(dc.tree.Root, n.node)
		if method == nil {
			return InlayHint{}, false
		}
		snaps := e.snapshotsForNode(dc, method)
		t, ok := typetrack.GetTypeAtOffset(snaps, n.node.EndByte, n.name)
		if !ok {
			return InlayHint{}, false
		}
		return InlayHint{
			Position:    dc.mapper.OffsetToPosition(int(n.node.EndByte)),
			Label:       ": " + t.String(),
			Kind:        InlayType,
			PaddingLeft: true,
		}, true

	case inlayChainedCall:
		method := enclosingMethodOf(dc.tree.Root, n.node)
		if method == nil {
			return InlayHint{}, false
		}
		e.snapshotsForNode(dc, method)
		tracker := typetrack.New(e.inferrer)
		env := e.envAtOffset(dc, method, n.node.StartByte)
		t := tracker.EvalExpr(dc.source, n.node, env)
		if t.String() == "Unknown" {
			return InlayHint{}, false
		}
		return InlayHint{
			Position:    dc.mapper.OffsetToPosition(int(n.node.EndByte)),
			Label:       ": " + t.String(),
			Kind:        InlayType,
			PaddingLeft: true,
		}, true

	case inlayImplicitReturn:
		return InlayHint{
			Position: dc.mapper.OffsetToPosition(int(n.node.StartByte)),
			Label:    "return",
			Kind:     InlayParameter,
		}, true
	}
	return InlayHint{}, false
}

// methodEntryFor finds the index entry for a def node in this document.
func (e *Engine) methodEntryFor(dc *docContext, def *rubyparse.Node) (rubyindex.Entry, bool) {
	name := defName(def, dc.source)
	owner := namespaceOf(dc.tree.Root, def, dc.source)

	var fqn rubyfqn.FQN
	if def.Type == "singleton_method" {
		fqn = rubyfqn.ModuleMethod(owner, rubyfqn.MethodName(name))
	} else {
		fqn = rubyfqn.InstanceMethod(owner, rubyfqn.MethodName(name))
	}

	for _, entry := range e.idx.FindDefinitions(fqn) {
		if entry.Location.URI == dc.doc.URI() {
			return entry, true
		}
	}
	return rubyindex.Entry{}, false
}

// snapshotsForNode computes snapshots for an arbitrary method node
// (the hint range may span methods the query position isn't inside).
func (e *Engine) snapshotsForNode(dc *docContext, method *rubyparse.Node) []docstate.TypeSnapshot {
	owner := namespaceOf(dc.tree.Root, method, dc.source)
	name := defName(method, dc.source)

	var fqn rubyfqn.FQN
	if method.Type == "singleton_method" {
		fqn = rubyfqn.ModuleMethod(owner, rubyfqn.MethodName(name))
	} else {
		fqn = rubyfqn.InstanceMethod(owner, rubyfqn.MethodName(name))
	}
	key := fqn.String()
	if snaps, ok := dc.doc.Snapshots(key); ok {
		return snaps
	}

	body := method.FindChildByType("body_statement")
	if body == nil {
		return nil
	}
	tracker := typetrack.New(e.inferrer)
	snaps := tracker.Track(dc.source, body, yardParamsFor(e.idx, fqn))
	dc.doc.SetSnapshots(key, snaps)
	return snaps
}

// envAtOffset rebuilds the variable environment visible at offset in
// method.
func (e *Engine) envAtOffset(dc *docContext, method *rubyparse.Node, offset uint32) typetrack.Env {
	env := typetrack.Env{}
	for _, snap := range e.snapshotsForNode(dc, method) {
		if snap.StartOffset <= offset {
			for name, t := range snap.Vars {
				env[name] = t
			}
		}
	}
	return env
}

// methodSignatureEnd finds the position after a def's signature line:
// end of the parameter list, or of the name when there are no params.
func methodSignatureEnd(def *rubyparse.Node, dc *docContext) rubyindex.Position {
	if params := def.FindChildByType("method_parameters"); params != nil {
		return dc.mapper.OffsetToPosition(int(params.EndByte))
	}
	for _, c := range def.Children {
		if c.Type == "identifier" || c.Type == "operator" || c.Type == "setter" {
			return dc.mapper.OffsetToPosition(int(c.EndByte))
		}
	}
	return dc.mapper.OffsetToPosition(int(def.StartByte))
}

// defName extracts a definition node's name text.
func defName(n *rubyparse.Node, source []byte) string {
	for _, c := range n.Children {
		switch c.Type {
		case "constant", "scope_resolution", "identifier", "operator", "setter":
			return c.Content(source)
		}
	}
	return ""
}

// namespaceOf reconstructs the namespace parts enclosing target by
// walking from root.
func namespaceOf(root, target *rubyparse.Node, source []byte) []rubyfqn.RubyConstant {
	var parts []rubyfqn.RubyConstant
	var walk func(n *rubyparse.Node, stack []rubyfqn.RubyConstant) bool
	walk = func(n *rubyparse.Node, stack []rubyfqn.RubyConstant) bool {
		if n == target {
			parts = append([]rubyfqn.RubyConstant(nil), stack...)
			return true
		}
		next := stack
		if n.Type == "class" || n.Type == "module" {
			for _, c := range n.Children {
				if c.Type == "constant" || c.Type == "scope_resolution" {
					next = append(append([]rubyfqn.RubyConstant(nil), stack...), splitConstPath(c.Content(source))...)
					break
				}
			}
		}
		for _, c := range n.Children {
			if c.StartByte <= target.StartByte && target.EndByte <= c.EndByte {
				if walk(c, next) {
					return true
				}
			}
		}
		return false
	}
	walk(root, nil)
	return parts
}

// enclosingMethodOf finds the innermost method node containing target.
func enclosingMethodOf(root, target *rubyparse.Node) *rubyparse.Node {
	var found *rubyparse.Node
	root.Walk(func(n *rubyparse.Node) bool {
		if n.StartByte > target.StartByte || n.EndByte < target.EndByte {
			return false
		}
		if n.Type == "method" || n.Type == "singleton_method" {
			found = n
		}
		return true
	})
	return found
}

// lastChildOfType returns the last direct child of the given type.
func lastChildOfType(n *rubyparse.Node, t string) *rubyparse.Node {
	for i := len(n.Children) - 1; i >= 0; i-- {
		if n.Children[i].Type == t {
			return n.Children[i]
		}
	}
	return nil
}

// isExpressionish filters statements that produce a value worth an
// implicit-return hint.
func isExpressionish(n *rubyparse.Node) bool {
	switch n.Type {
	case "comment", "return", "end":
		return false
	}
	return !strings.HasPrefix(n.Type, "(")
}
