package query

import (
	"context"
	"strings"

	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/rubyfqn"
	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/rubyindex"
	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/rubyparse"
	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/rubytype"
	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/typetrack"
)

// superclassChaseLimit bounds superclass walking so a cyclic inheritance
// declaration can't loop a query.
const superclassChaseLimit = 10

// Definition resolves go-to-definition at (uri, pos).
func (e *Engine) Definition(ctx context.Context, uri string, pos rubyindex.Position) ([]rubyindex.Location, error) {
	dc, err := e.contextAt(ctx, uri, pos)
	if err != nil {
		return nil, err
	}

	target := dc.target()
	if target == nil {
		return nil, nil
	}

	switch target.Type {
	case "constant", "scope_resolution":
		return e.constantDefinition(dc, target), nil
	case "identifier":
		return e.identifierDefinition(dc, target), nil
	case "instance_variable", "class_variable", "global_variable":
		return e.variableEntryDefinition(dc, target), nil
	default:
		return nil, nil
	}
}

// constantDefinition resolves a constant read through the lexical scope
// walk. When the cursor sits on a segment of a scope_resolution chain,
// the whole chain up to and including that segment resolves.
func (e *Engine) constantDefinition(dc *docContext, target *rubyparse.Node) []rubyindex.Location {
	node := target
	if parent := dc.ancestor(1); parent != nil && parent.Type == "scope_resolution" {
		node = parent
	}

	name := strings.TrimSpace(node.Content(dc.source))
	defs := e.idx.Resolve(name, dc.enclosingScopes())
	return entryLocations(defs)
}

// identifierDefinition distinguishes method calls from local-variable
// reads: a call's method-name identifier resolves through the receiver's
// type; anything else is looked up in the document's local variables.
func (e *Engine) identifierDefinition(dc *docContext, target *rubyparse.Node) []rubyindex.Location {
	name := target.Content(dc.source)

	if call := dc.callAncestorWithMethod(target); call != nil {
		return e.methodDefinition(dc, call, name)
	}

	if locs := e.localVariableDefinition(dc, name); len(locs) > 0 {
		return locs
	}

	// A bare identifier may still be a receiverless call to a method in
	// the enclosing class.
	return e.methodDefinition(dc, nil, name)
}

// callAncestorWithMethod returns the call node whose method-name child
// is target, or nil when target is not in method-name position.
func (dc *docContext) callAncestorWithMethod(target *rubyparse.Node) *rubyparse.Node {
	parent := dc.ancestor(1)
	if parent == nil || parent.Type != "call" {
		return nil
	}
	_, method := callNameParts(parent)
	if method == target {
		return parent
	}
	return nil
}

// methodDefinition resolves a method call to definitions, using the
// receiver's narrowed type when a receiver exists.
func (e *Engine) methodDefinition(dc *docContext, call *rubyparse.Node, name string) []rubyindex.Location {
	methodName := rubyfqn.MethodName(name)

	var receiver *rubyparse.Node
	if call != nil {
		receiver, _ = callNameParts(call)
	}

	if receiver == nil {
		// Receiverless: implicit self: walk the enclosing namespaces.
		owner := dc.enclosingNamespace()
		for i := len(owner); i >= 0; i-- {
			if locs := e.methodOnClass(rubyfqn.Namespace(owner[:i]...), methodName, false); len(locs) > 0 {
				return locs
			}
		}
		return nil
	}

	switch receiver.Type {
	case "constant", "scope_resolution":
		// Explicit class receiver: singleton method, then instance
		// method on the class object's class.
		refName := strings.TrimSpace(receiver.Content(dc.source))
		defs := e.idx.Resolve(refName, dc.enclosingScopes())
		if len(defs) == 0 {
			return nil
		}
		return e.methodOnClass(defs[0].FQN, methodName, true)

	case "identifier", "instance_variable":
		recvType, ok := e.receiverType(dc, receiver)
		if !ok {
			return nil
		}
		return e.methodOnType(recvType, methodName)

	case "self":
		owner := dc.enclosingNamespace()
		return e.methodOnClass(rubyfqn.Namespace(owner...), methodName, false)

	case "call":
		// Chained call: type the inner call's result via the tracker's
		// expression rules, then resolve on that type.
		if method := dc.enclosingMethod(); method != nil {
			e.snapshotsFor(dc, method) // warm the cache; EvalExpr shares rules
		}
		tracker := typetrack.New(e.inferrer)
		env := e.envAt(dc)
		t := tracker.EvalExpr(dc.source, receiver, env)
		return e.methodOnType(t, methodName)

	default:
		return nil
	}
}

// receiverType narrows an identifier receiver via the enclosing method's
// type snapshots.
func (e *Engine) receiverType(dc *docContext, receiver *rubyparse.Node) (rubytype.Type, bool) {
	method := dc.enclosingMethod()
	if method == nil {
		return rubytype.Type{}, false
	}
	snaps := e.snapshotsFor(dc, method)
	return typetrack.GetTypeAtOffset(snaps, receiver.StartByte, receiver.Content(dc.source))
}

// envAt reconstructs the variable environment visible at the query
// offset from the enclosing method's snapshots.
func (e *Engine) envAt(dc *docContext) typetrack.Env {
	env := typetrack.Env{}
	method := dc.enclosingMethod()
	if method == nil {
		return env
	}
	for _, snap := range e.snapshotsFor(dc, method) {
		if snap.StartOffset <= uint32(dc.offset) {
			for name, t := range snap.Vars {
				env[name] = t
			}
		}
	}
	return env
}

// methodOnType resolves a method on a narrowed receiver type.
func (e *Engine) methodOnType(t rubytype.Type, name rubyfqn.MethodName) []rubyindex.Location {
	switch t.Kind {
	case rubytype.Class:
		return e.methodOnClass(t.FQN, name, false)
	case rubytype.ClassReference:
		return e.methodOnClass(t.FQN, name, true)
	case rubytype.Union_:
		var out []rubyindex.Location
		for _, m := range t.Members {
			out = append(out, e.methodOnType(m, name)...)
		}
		return dedupeLocations(out)
	default:
		return nil
	}
}

// methodOnClass finds a method on a class, walking up the superclass
// chain. Mixin-provided methods are already materialised as virtual
// entries on the host, so one exact lookup per ancestor suffices;
// asSingleton selects the singleton method namespace (Foo.bar).
func (e *Engine) methodOnClass(owner rubyfqn.FQN, name rubyfqn.MethodName, asSingleton bool) []rubyindex.Location {
	current := owner
	for depth := 0; depth < superclassChaseLimit; depth++ {
		var fqn rubyfqn.FQN
		if asSingleton {
			fqn = rubyfqn.ModuleMethod(current.Parts, name)
		} else {
			fqn = rubyfqn.InstanceMethod(current.Parts, name)
		}
		if defs := e.idx.FindDefinitions(fqn); len(defs) > 0 {
			return entryLocations(defs)
		}

		next, ok := e.superclassOf(current)
		if !ok {
			return nil
		}
		current = next
	}
	return nil
}

// superclassOf resolves a class's declared superclass FQN.
func (e *Engine) superclassOf(owner rubyfqn.FQN) (rubyfqn.FQN, bool) {
	for _, def := range e.idx.FindDefinitions(owner) {
		if def.Kind != rubyindex.KindClass || def.Superclass == nil {
			continue
		}
		path := def.Superclass.Path
		if len(path) == 0 {
			continue
		}
		name := joinConstPath(path)
		scopes := enclosingScopesOf(owner)
		if defs := e.idx.Resolve(name, scopes); len(defs) > 0 {
			return defs[0].FQN, true
		}
	}
	return rubyfqn.FQN{}, false
}

// localVariableDefinition returns the last assignment at or before the
// cursor for a local variable, falling back to the first assignment.
func (e *Engine) localVariableDefinition(dc *docContext, name string) []rubyindex.Location {
	var best *rubyindex.Assignment
	var first *rubyindex.Assignment
	for _, lv := range dc.doc.AllLocalVariables() {
		if lv.Name != name {
			continue
		}
		for i := range lv.Assignments {
			a := lv.Assignments[i]
			if first == nil {
				first = &a
			}
			pos := dc.mapper.PositionToOffset(a.Range.Start)
			if pos <= dc.offset && (best == nil || pos > dc.mapper.PositionToOffset(best.Range.Start)) {
				b := a
				best = &b
			}
		}
	}
	if best == nil {
		best = first
	}
	if best == nil {
		return nil
	}
	return []rubyindex.Location{{URI: dc.doc.URI(), Range: best.Range}}
}

// variableEntryDefinition resolves @ivar/@@cvar/$gvar reads against the
// index entries the file processor recorded for them.
func (e *Engine) variableEntryDefinition(dc *docContext, target *rubyparse.Node) []rubyindex.Location {
	name := target.Content(dc.source)
	owner := dc.enclosingNamespace()

	var parts []rubyfqn.RubyConstant
	if target.Type == "global_variable" {
		parts = []rubyfqn.RubyConstant{rubyfqn.RubyConstant(name)}
	} else {
		parts = append(append([]rubyfqn.RubyConstant(nil), owner...), rubyfqn.RubyConstant(name))
	}
	defs := e.idx.FindDefinitions(rubyfqn.Constant(parts...))
	return entryLocations(defs)
}

// callNameParts splits a call node into (receiver, methodNameNode).
func callNameParts(call *rubyparse.Node) (receiver, method *rubyparse.Node) {
	dot := -1
	for i, c := range call.Children {
		if c.Type == "." || c.Type == "&." {
			dot = i
			break
		}
	}
	if dot > 0 {
		receiver = call.Children[dot-1]
		for _, c := range call.Children[dot+1:] {
			if c.Type == "identifier" || c.Type == "constant" {
				return receiver, c
			}
		}
		return receiver, nil
	}
	if len(call.Children) > 0 && call.Children[0].Type == "identifier" {
		return nil, call.Children[0]
	}
	return nil, nil
}

func entryLocations(defs []rubyindex.Entry) []rubyindex.Location {
	out := make([]rubyindex.Location, 0, len(defs))
	for _, d := range defs {
		out = append(out, d.Location)
	}
	return out
}

func dedupeLocations(locs []rubyindex.Location) []rubyindex.Location {
	seen := make(map[rubyindex.Location]struct{}, len(locs))
	out := locs[:0]
	for _, l := range locs {
		if _, ok := seen[l]; ok {
			continue
		}
		seen[l] = struct{}{}
		out = append(out, l)
	}
	return out
}

func joinConstPath(parts []rubyfqn.RubyConstant) string {
	strs := make([]string, len(parts))
	for i, p := range parts {
		strs[i] = string(p)
	}
	return strings.Join(strs, "::")
}

// enclosingScopesOf builds the innermost-first scope list for an FQN's
// own position in the namespace tree.
func enclosingScopesOf(fqn rubyfqn.FQN) []rubyfqn.FQN {
	var scopes []rubyfqn.FQN
	for i := len(fqn.Parts); i > 0; i-- {
		scopes = append(scopes, rubyfqn.Namespace(fqn.Parts[:i]...))
	}
	return scopes
}
