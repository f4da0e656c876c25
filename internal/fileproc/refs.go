package fileproc

import (
	"strings"

	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/docstate"
	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/rubyfqn"
	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/rubyindex"
	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/rubyparse"
	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/rubytype"
)

// collectRefs walks an expression subtree emitting reference entries for
// constant reads and method calls, and, when scope is a real scope id,
// local-variable assignment records for the enclosing method.
func (w *walker) collectRefs(n *rubyparse.Node, scope docstate.ScopeID) {
	if n == nil {
		return
	}

	switch n.Type {
	case "comment":
		return

	case "constant":
		w.referenceConstant(n)
		return

	case "scope_resolution":
		w.referenceConstant(n)
		return

	case "assignment":
		lhs, rhs := assignmentSides(n)
		if lhs != nil {
			switch lhs.Type {
			case "identifier":
				if scope >= 0 && w.opts.IncludeLocalVars {
					w.recordLocalVar(lhs, scope)
				}
			case "instance_variable", "class_variable", "global_variable":
				if w.opts.IndexDefinitions {
					w.emitVariableEntry(lhs)
				}
			case "constant":
				// A constant assigned inside a method body is still a
				// namespace-level constant in Ruby.
				w.handleNamespaceAssignment(n)
				return
			}
		}
		if rhs != nil {
			w.collectRefs(rhs, scope)
		}
		return

	case "call":
		w.referenceCall(n, scope)
		return

	case "method", "singleton_method", "class", "module":
		// Nested definitions inside expressions are handled by the
		// namespace walk, not the reference walk.
		return
	}

	for _, c := range n.Children {
		w.collectRefs(c, scope)
	}
}

// referenceConstant resolves a constant or scope_resolution node against
// the index and records either a reference or an unresolved entry.
func (w *walker) referenceConstant(n *rubyparse.Node) {
	if !w.opts.IndexReferences {
		return
	}
	name := strings.TrimSpace(n.Content(w.source))
	if name == "" {
		return
	}

	loc := w.loc(n)
	defs := w.proc.idx.Resolve(name, w.enclosingScopes())
	if len(defs) == 0 {
		w.proc.idx.AddUnresolved(w.uri, rubyindex.UnresolvedRef{Name: name, Location: loc})
		return
	}
	w.proc.idx.AddReference(defs[0].FQN, loc)
}

// referenceCall records a reference for a method call when the call
// resolves against the index. Calls that do not resolve are not recorded
// as unresolved: before the stdlib stubs finish loading, flagging every
// receiverless Kernel call would flood diagnostics, so unresolved
// tracking is reserved for constants.
func (w *walker) referenceCall(n *rubyparse.Node, scope docstate.ScopeID) {
	receiver, methodNode := callParts(n)

	if receiver != nil {
		w.collectRefs(receiver, scope)
	}
	if args := n.FindChildByType("argument_list"); args != nil {
		for _, a := range args.Children {
			w.collectRefs(a, scope)
		}
	}
	if block := n.FindChildByType("block"); block != nil {
		w.collectRefs(block, scope)
	}
	if block := n.FindChildByType("do_block"); block != nil {
		for _, c := range block.Children {
			w.collectRefs(c, scope)
		}
	}

	if !w.opts.IndexReferences || methodNode == nil {
		return
	}
	method := rubyfqn.MethodName(methodNode.Content(w.source))
	loc := w.loc(methodNode)

	// Explicit constant receiver: a module/class-level call.
	if receiver != nil && (receiver.Type == "constant" || receiver.Type == "scope_resolution") {
		name := strings.TrimSpace(receiver.Content(w.source))
		defs := w.proc.idx.Resolve(name, w.enclosingScopes())
		if len(defs) > 0 {
			fqn := rubyfqn.ModuleMethod(defs[0].FQN.Parts, method)
			if len(w.proc.idx.FindDefinitions(fqn)) > 0 {
				w.proc.idx.AddReference(fqn, loc)
			}
		}
		return
	}
	if receiver != nil {
		return
	}

	// Receiverless call: look for an instance method walking the lexical
	// scopes outward.
	for _, enclosing := range append(w.enclosingScopes(), rubyfqn.Namespace()) {
		fqn := rubyfqn.InstanceMethod(enclosing.Parts, method)
		if len(w.proc.idx.FindDefinitions(fqn)) > 0 {
			w.proc.idx.AddReference(fqn, loc)
			return
		}
	}
}

// recordLocalVar appends an assignment record for an identifier write in
// the given method scope.
func (w *walker) recordLocalVar(lhs *rubyparse.Node, scope docstate.ScopeID) {
	name := lhs.Content(w.source)
	assignment := rubyindex.Assignment{
		Range: w.loc(lhs).Range,
		Type:  rubytype.New(rubytype.Unknown),
	}
	for i := range w.localVars {
		lv := &w.localVars[i]
		if lv.Scope == scope && lv.Name == name {
			lv.Assignments = append(lv.Assignments, assignment)
			return
		}
	}
	w.localVars = append(w.localVars, docstate.LocalVariableEntry{
		Name:        name,
		Scope:       scope,
		Assignments: []rubyindex.Assignment{assignment},
	})
}

// enclosingScopes returns the lexical namespace stack innermost-first,
// the order the index's Resolve expects.
func (w *walker) enclosingScopes() []rubyfqn.FQN {
	var scopes []rubyfqn.FQN
	for i := len(w.nsStack); i > 0; i-- {
		scopes = append(scopes, rubyfqn.Namespace(w.nsStack[:i]...))
	}
	return scopes
}

// namespaceNameNode returns a class/module node's name child.
func namespaceNameNode(n *rubyparse.Node) *rubyparse.Node {
	for _, c := range n.Children {
		if c.Type == "constant" || c.Type == "scope_resolution" {
			return c
		}
	}
	return nil
}

// firstConstantish returns the first constant or scope_resolution child.
func firstConstantish(n *rubyparse.Node) *rubyparse.Node {
	for _, c := range n.Children {
		if c.Type == "constant" || c.Type == "scope_resolution" {
			return c
		}
	}
	return nil
}

// constantPathParts splits a constant or scope_resolution node into its
// path segments, e.g. Foo::Bar into ["Foo", "Bar"].
func constantPathParts(n *rubyparse.Node, source []byte) []rubyfqn.RubyConstant {
	text := strings.TrimSpace(n.Content(source))
	text = strings.TrimPrefix(text, "::")
	if text == "" {
		return nil
	}
	raw := strings.Split(text, "::")
	parts := make([]rubyfqn.RubyConstant, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r != "" {
			parts = append(parts, rubyfqn.RubyConstant(r))
		}
	}
	return parts
}

func toRubyConstants(parts []rubyfqn.RubyConstant) []rubyfqn.RubyConstant {
	return append([]rubyfqn.RubyConstant(nil), parts...)
}

// methodNameNode returns a def node's name child: the first identifier,
// constant, operator, or setter after the def keyword (skipping the
// `self.` prefix of a singleton_method).
func methodNameNode(n *rubyparse.Node) *rubyparse.Node {
	sawDef := false
	for _, c := range n.Children {
		switch c.Type {
		case "def":
			sawDef = true
		case "self", ".":
			continue
		case "identifier", "constant", "operator", "setter":
			if sawDef {
				return c
			}
		}
	}
	return nil
}

// methodParams extracts a def node's formal parameter list.
func methodParams(n *rubyparse.Node, source []byte) []rubyindex.Param {
	list := n.FindChildByType("method_parameters")
	if list == nil {
		list = n.FindChildByType("bare_parameters")
	}
	if list == nil {
		return nil
	}

	var params []rubyindex.Param
	for _, c := range list.Children {
		switch c.Type {
		case "identifier":
			params = append(params, rubyindex.Param{Name: c.Content(source), Kind: rubyindex.ParamRequired})
		case "optional_parameter":
			p := rubyindex.Param{Kind: rubyindex.ParamOptional}
			if name := c.FindChildByType("identifier"); name != nil {
				p.Name = name.Content(source)
			}
			if eq := strings.SplitN(c.Content(source), "=", 2); len(eq) == 2 {
				p.Default = strings.TrimSpace(eq[1])
			}
			params = append(params, p)
		case "splat_parameter":
			p := rubyindex.Param{Kind: rubyindex.ParamRest}
			if name := c.FindChildByType("identifier"); name != nil {
				p.Name = name.Content(source)
			}
			params = append(params, p)
		case "keyword_parameter":
			p := rubyindex.Param{Kind: rubyindex.ParamKeyword}
			if name := c.FindChildByType("identifier"); name != nil {
				p.Name = name.Content(source)
			}
			if strings.Contains(c.Content(source), ":") && len(c.Children) > 2 {
				p.Kind = rubyindex.ParamKeywordOptional
			}
			params = append(params, p)
		case "hash_splat_parameter":
			p := rubyindex.Param{Kind: rubyindex.ParamKeywordRest}
			if name := c.FindChildByType("identifier"); name != nil {
				p.Name = name.Content(source)
			}
			params = append(params, p)
		case "block_parameter":
			p := rubyindex.Param{Kind: rubyindex.ParamBlock}
			if name := c.FindChildByType("identifier"); name != nil {
				p.Name = name.Content(source)
			}
			params = append(params, p)
		}
	}
	return params
}

// assignmentSides splits an assignment node around its "=" child.
func assignmentSides(n *rubyparse.Node) (lhs, rhs *rubyparse.Node) {
	for i, c := range n.Children {
		if c.Type == "=" {
			if i > 0 {
				lhs = n.Children[i-1]
			}
			if i+1 < len(n.Children) {
				rhs = n.Children[i+1]
			}
			return lhs, rhs
		}
	}
	if len(n.Children) >= 2 {
		return n.Children[0], n.Children[len(n.Children)-1]
	}
	return nil, nil
}

// callParts splits a call node into its receiver (nil for receiverless
// calls) and method-name node.
func callParts(n *rubyparse.Node) (receiver, method *rubyparse.Node) {
	dot := -1
	for i, c := range n.Children {
		if c.Type == "." || c.Type == "&." {
			dot = i
			break
		}
	}
	if dot > 0 {
		receiver = n.Children[dot-1]
		for _, c := range n.Children[dot+1:] {
			if c.Type == "identifier" || c.Type == "constant" {
				return receiver, c
			}
		}
		return receiver, nil
	}
	if len(n.Children) > 0 && n.Children[0].Type == "identifier" {
		return nil, n.Children[0]
	}
	return nil, nil
}
