// Package mixin implements resolve_all_mixins: the pass that turns
// include/extend/prepend declarations into virtual Method entries on
// their host class or module, so the query engine can find an included
// method the same way it finds a directly-defined one.
package mixin

import (
	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/rubyfqn"
	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/rubyindex"
)

// Resolve runs resolve_all_mixins over every owner with a pending mixin
// graph entry in idx. It is idempotent: each run first clears previously
// synthesised virtual entries for every owner it processes, then
// resolves current declarations fresh, so unresolved mixins from a
// previous run that are now resolvable are picked up without restarting
// the server.
//
// Method-lookup order follows Ruby's MRO through the index's list
// order: a prepend module's virtual entries are inserted ahead of the
// owner's own method entries (the index front-inserts prepend-origin
// methods), include virtual entries land after them, and extend targets
// affect the owner's singleton (module) methods rather than instance
// methods.
func Resolve(idx *rubyindex.RubyIndex) {
	for _, owner := range idx.MixinOwners() {
		resolveOwner(idx, owner)
	}
}

func resolveOwner(idx *rubyindex.RubyIndex, owner rubyfqn.FQN) {
	idx.RemoveVirtualEntriesForOwner(owner)

	refs := idx.MixinRefsFor(owner)
	scope := enclosingScopes(owner)

	prepends := filterKind(refs, rubyindex.MixinPrepend)
	includes := filterKind(refs, rubyindex.MixinInclude)
	extends := filterKind(refs, rubyindex.MixinExtend)

	for i := range prepends {
		resolveOne(idx, owner, scope, &prepends[i], rubyindex.OriginPrepended, false)
	}
	for i := range includes {
		resolveOne(idx, owner, scope, &includes[i], rubyindex.OriginIncluded, false)
	}
	for i := range extends {
		resolveOne(idx, owner, scope, &extends[i], rubyindex.OriginExtended, true)
	}

	updated := make([]rubyindex.MixinRef, 0, len(refs))
	updated = append(updated, prepends...)
	updated = append(updated, includes...)
	updated = append(updated, extends...)
	idx.SetMixinRefs(owner, updated)
}

func filterKind(refs []rubyindex.MixinRef, kind rubyindex.MixinKind) []rubyindex.MixinRef {
	var out []rubyindex.MixinRef
	for _, r := range refs {
		if r.Kind == kind {
			out = append(out, r)
		}
	}
	return out
}

// resolveOne attempts to resolve a single mixin ref's path against the
// scope rules of the enclosing class, then, on success, synthesises a
// virtual Method entry for every method the target module exports.
// asSingleton is true for `extend`, where the target's instance methods
// become the host's singleton methods instead of its instance methods.
func resolveOne(idx *rubyindex.RubyIndex, owner rubyfqn.FQN, scope []rubyfqn.FQN, ref *rubyindex.MixinRef, origin rubyindex.Origin, asSingleton bool) {
	name := joinPath(ref.Path)
	defs := idx.Resolve(name, scope)
	if len(defs) == 0 {
		ref.Resolved = false
		return
	}

	target := defs[0].FQN
	ref.Resolved = true
	ref.Target = target

	for _, method := range idx.FindDefinitionsUnderOwner(target) {
		if method.Kind != rubyindex.KindMethod {
			continue
		}
		virtual := method
		virtual.Owner = owner
		virtual.FQN = retargetMethodFQN(method.FQN, owner, asSingleton)
		virtual.Origin = origin
		virtual.MethodKind = resolveMethodKind(method.MethodKind, asSingleton)
		idx.AddEntry(virtual)
	}
}

func resolveMethodKind(original rubyindex.MethodKind, asSingleton bool) rubyindex.MethodKind {
	if asSingleton {
		return rubyindex.MethodSingleton
	}
	if original == rubyindex.MethodSingleton {
		return rubyindex.MethodSingleton
	}
	return rubyindex.MethodInstance
}

// retargetMethodFQN rebuilds a method FQN under the new owner, preserving
// the original method name and choosing InstanceMethod or ModuleMethod
// notation per asSingleton.
func retargetMethodFQN(original rubyfqn.FQN, owner rubyfqn.FQN, asSingleton bool) rubyfqn.FQN {
	name := original.Method
	if name == "" {
		name = rubyfqn.MethodName(original.Name())
	}
	if asSingleton {
		return rubyfqn.ModuleMethod(owner.Parts, name)
	}
	return rubyfqn.InstanceMethod(owner.Parts, name)
}

func joinPath(parts []rubyfqn.RubyConstant) string {
	if len(parts) == 0 {
		return ""
	}
	s := string(parts[0])
	for _, p := range parts[1:] {
		s += "::" + string(p)
	}
	return s
}

// enclosingScopes returns owner's own namespace followed by each
// enclosing namespace outward to the root, the scope list Resolve
// expects for its scope-walk.
func enclosingScopes(owner rubyfqn.FQN) []rubyfqn.FQN {
	scopes := []rubyfqn.FQN{owner}
	cur := owner
	for {
		parent, ok := cur.Parent()
		if !ok {
			break
		}
		scopes = append(scopes, parent)
		cur = parent
	}
	return scopes
}
