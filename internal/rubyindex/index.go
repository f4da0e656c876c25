// Package rubyindex implements the process-wide symbol index: interned
// FQNs, per-FQN definition and reference lists, the URI inverse map used
// for re-indexing, unresolved-reference tracking that drives diagnostics,
// and the namespace tree used for completion and browsing.
package rubyindex

import (
	"sort"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/rubyfqn"
	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/rubytype"
)

// UnresolvedRef is a reference recorded against a URI whose target FQN had
// zero definitions at the time it was resolved. It is re-evaluated any
// time the index changes in a way that could affect it.
type UnresolvedRef struct {
	Name     string
	Location Location
}

// RubyIndex is the process-wide symbol table. All exported methods take
// the single mutex for the duration of their critical section only;
// callers must not hold onto the slices returned without copying if they
// intend to use them past the next mutating call, since slices are
// returned by reference for read efficiency but entries themselves are
// immutable after insertion (other than ReturnType updates).
type RubyIndex struct {
	mu sync.Mutex

	interner *interner

	definitions   map[FqnID][]Entry
	references    map[FqnID][]Location
	uriToEntries  map[string][]EntryID
	unresolved    map[string][]UnresolvedRef
	namespaceTree map[FqnID][]FqnID
	mixinGraph    map[FqnID][]MixinRef

	entryByID   map[EntryID]Entry
	nextEntryID EntryID

	// namespaceTreeCache memoises the flattened child-listing used by
	// completion/browsing; invalidated whenever namespaceTree changes.
	namespaceTreeCache *lru.Cache[FqnID, []rubyfqn.FQN]
}

// NewIndex builds an empty index.
func NewIndex() *RubyIndex {
	cache, _ := lru.New[FqnID, []rubyfqn.FQN](2048)
	return &RubyIndex{
		interner:           newInterner(),
		definitions:        make(map[FqnID][]Entry),
		references:         make(map[FqnID][]Location),
		uriToEntries:       make(map[string][]EntryID),
		unresolved:         make(map[string][]UnresolvedRef),
		namespaceTree:      make(map[FqnID][]FqnID),
		mixinGraph:         make(map[FqnID][]MixinRef),
		entryByID:          make(map[EntryID]Entry),
		namespaceTreeCache: cache,
	}
}

// InternFQN returns the stable id for fqn, assigning one on first sight.
func (idx *RubyIndex) InternFQN(fqn rubyfqn.FQN) FqnID {
	return idx.interner.intern(fqn)
}

// LookupFQN reverses InternFQN.
func (idx *RubyIndex) LookupFQN(id FqnID) rubyfqn.FQN {
	return idx.interner.lookup(id)
}

// WithIndex runs fn with the index's mutex held, giving fn direct access
// to a *RubyIndex snapshot view for compound operations that must be
// atomic (e.g. read-then-write sequences in the mixin resolver). fn must
// not call back into any RubyIndex method that re-acquires the lock, and
// must not perform I/O or parsing; the lock is write-biased and critical
// sections must stay short.
func WithIndex[T any](idx *RubyIndex, fn func(*RubyIndex) T) T {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return fn(idx)
}

// AddEntry interns entry.FQN, assigns it an EntryID, and appends it to the
// definitions, uri_to_entries, and namespace_tree records. Multiple
// definitions for the same FQN are legal (re-opened classes); they are
// never deduplicated or overwritten.
func (idx *RubyIndex) AddEntry(entry Entry) EntryID {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.addEntryLocked(entry)
}

func (idx *RubyIndex) addEntryLocked(entry Entry) EntryID {
	fqnID := idx.interner.intern(entry.FQN)
	entry.FqnID = fqnID

	id := idx.nextEntryID
	idx.nextEntryID++
	entry.ID = id

	// Ruby's MRO is preserved by list order: a prepended module's method
	// shadows the owner's own definition, so its virtual entry goes to
	// the front of the FQN's list; everything else (direct definitions,
	// include/extend virtuals) appends in insertion order.
	if entry.Kind == KindMethod && entry.Origin == OriginPrepended {
		idx.definitions[fqnID] = append([]Entry{entry}, idx.definitions[fqnID]...)
	} else {
		idx.definitions[fqnID] = append(idx.definitions[fqnID], entry)
	}
	idx.entryByID[id] = entry
	idx.uriToEntries[entry.Location.URI] = append(idx.uriToEntries[entry.Location.URI], id)

	if entry.Kind == KindClass || entry.Kind == KindModule {
		idx.linkNamespaceChildLocked(entry.FQN)
	}

	idx.namespaceTreeCache.Purge()
	return id
}

// linkNamespaceChildLocked registers fqn as a child of its parent in the
// namespace tree, if it has one.
func (idx *RubyIndex) linkNamespaceChildLocked(fqn rubyfqn.FQN) {
	parent, ok := fqn.Parent()
	if !ok {
		return
	}
	parentID := idx.interner.intern(parent)
	childID := idx.interner.intern(fqn)
	for _, existing := range idx.namespaceTree[parentID] {
		if existing == childID {
			return
		}
	}
	idx.namespaceTree[parentID] = append(idx.namespaceTree[parentID], childID)
}

// RemoveEntriesForURI purges every forward and inverse record for uri in
// a single locked section, and returns the FQNs whose definition list
// became empty as a result; these are "newly unresolved" and drive
// cross-file diagnostic re-publication.
func (idx *RubyIndex) RemoveEntriesForURI(uri string) []rubyfqn.FQN {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	ids, ok := idx.uriToEntries[uri]
	if !ok {
		return nil
	}
	delete(idx.uriToEntries, uri)

	touched := make(map[FqnID]struct{})
	for _, id := range ids {
		entry, ok := idx.entryByID[id]
		if !ok {
			continue
		}
		delete(idx.entryByID, id)
		touched[entry.FqnID] = struct{}{}

		defs := idx.definitions[entry.FqnID]
		for i, d := range defs {
			if d.ID == id {
				defs = append(defs[:i], defs[i+1:]...)
				break
			}
		}
		if len(defs) == 0 {
			delete(idx.definitions, entry.FqnID)
		} else {
			idx.definitions[entry.FqnID] = defs
		}
	}

	delete(idx.unresolved, uri)
	idx.namespaceTreeCache.Purge()

	var newlyUnresolved []rubyfqn.FQN
	for fqnID := range touched {
		if _, stillDefined := idx.definitions[fqnID]; !stillDefined {
			newlyUnresolved = append(newlyUnresolved, idx.interner.lookup(fqnID))
		}
	}
	return newlyUnresolved
}

// AddReference records that fqn is referenced at loc.
func (idx *RubyIndex) AddReference(fqn rubyfqn.FQN, loc Location) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	fqnID := idx.interner.intern(fqn)
	idx.references[fqnID] = append(idx.references[fqnID], loc)
}

// RemoveReferencesForURI drops every reference whose Location.URI is uri.
// It does not touch uri_to_entries; that tracks definitions, not
// references; references are not separately inverse-indexed by URI since
// there is no requirement to remove a single reference by id, only to
// recompute a file's reference set wholesale before re-walking it.
func (idx *RubyIndex) RemoveReferencesForURI(uri string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for fqnID, locs := range idx.references {
		filtered := locs[:0]
		for _, l := range locs {
			if l.URI != uri {
				filtered = append(filtered, l)
			}
		}
		if len(filtered) == 0 {
			delete(idx.references, fqnID)
		} else {
			idx.references[fqnID] = filtered
		}
	}
}

// FindDefinitions returns the entries defining fqn, in insertion order
// except that method entries from prepended modules come first, an exact
// match with no scope-walking fallback.
func (idx *RubyIndex) FindDefinitions(fqn rubyfqn.FQN) []Entry {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	fqnID := idx.interner.intern(fqn)
	return append([]Entry(nil), idx.definitions[fqnID]...)
}

// Resolve looks up name from within the lexical scopes named in scope,
// walking from the innermost enclosing namespace outward to the root and
// returning the first non-empty definition list. A name beginning with
// "::" is an absolute reference and skips the scope walk entirely,
// resolving directly against the root namespace.
func (idx *RubyIndex) Resolve(name string, scope []rubyfqn.FQN) []Entry {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if absolute, ok := stripAbsolute(name); ok {
		fqn, _ := rubyfqn.Parse(absolute)
		return append([]Entry(nil), idx.definitions[idx.interner.intern(fqn)]...)
	}

	for _, enclosing := range scope {
		candidate := appendName(enclosing, name)
		fqnID := idx.interner.intern(candidate)
		if defs, ok := idx.definitions[fqnID]; ok && len(defs) > 0 {
			return append([]Entry(nil), defs...)
		}
	}

	root := rubyfqn.Namespace(rubyfqn.RubyConstant(name))
	rootID := idx.interner.intern(root)
	return append([]Entry(nil), idx.definitions[rootID]...)
}

func stripAbsolute(name string) (string, bool) {
	if len(name) > 2 && name[0] == ':' && name[1] == ':' {
		return name[2:], true
	}
	return "", false
}

// appendName builds the namespace FQN formed by appending name as the
// last path segment of enclosing.
func appendName(enclosing rubyfqn.FQN, name string) rubyfqn.FQN {
	parts := append(append([]rubyfqn.RubyConstant(nil), enclosing.Parts...), rubyfqn.RubyConstant(name))
	return rubyfqn.Namespace(parts...)
}

// Unresolved returns uri's unresolved references, in the order recorded.
func (idx *RubyIndex) Unresolved(uri string) []UnresolvedRef {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return append([]UnresolvedRef(nil), idx.unresolved[uri]...)
}

// ReevaluateUnresolved re-tries uri's unresolved references against the
// current definitions at root scope, converting the ones that now
// resolve into ordinary references. A single-pass walk records a
// forward reference (use before definition, same file) as unresolved;
// this fix-up runs after the walk completes so those don't surface as
// warnings.
func (idx *RubyIndex) ReevaluateUnresolved(uri string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	refs := idx.unresolved[uri]
	var kept []UnresolvedRef
	for _, r := range refs {
		name := strings.TrimPrefix(r.Name, "::")
		if fqn, ok := rubyfqn.Parse(name); ok {
			id := idx.interner.intern(fqn)
			if defs := idx.definitions[id]; len(defs) > 0 {
				idx.references[id] = append(idx.references[id], r.Location)
				continue
			}
		}
		kept = append(kept, r)
	}
	if len(kept) == 0 {
		delete(idx.unresolved, uri)
	} else {
		idx.unresolved[uri] = kept
	}
}

// UnresolvedURIs lists every URI currently holding unresolved
// references, sorted, the worklist for diagnostics publication.
func (idx *RubyIndex) UnresolvedURIs() []string {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	out := make([]string, 0, len(idx.unresolved))
	for uri, refs := range idx.unresolved {
		if len(refs) > 0 {
			out = append(out, uri)
		}
	}
	sort.Strings(out)
	return out
}

// ClearUnresolved drops uri's unresolved-reference records, used by a
// references-only re-process that is about to re-evaluate them without
// removing the file's definitions.
func (idx *RubyIndex) ClearUnresolved(uri string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	delete(idx.unresolved, uri)
}

// AddUnresolved records ref as unresolved in uri.
func (idx *RubyIndex) AddUnresolved(uri string, ref UnresolvedRef) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.unresolved[uri] = append(idx.unresolved[uri], ref)
}

// UrisReferringToAny returns, for a set of FQNs that just became
// unresolved, every URI holding an unresolved reference or a direct
// reference to one of them, the set the caller should re-publish
// diagnostics for.
func (idx *RubyIndex) UrisReferringToAny(fqns []rubyfqn.FQN) []string {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	names := make(map[string]struct{}, len(fqns))
	for _, f := range fqns {
		names[f.Name()] = struct{}{}
	}

	seen := make(map[string]struct{})
	for uri, refs := range idx.unresolved {
		for _, r := range refs {
			if _, ok := names[r.Name]; ok {
				seen[uri] = struct{}{}
				break
			}
		}
	}
	for _, f := range fqns {
		fqnID := idx.interner.intern(f)
		for _, loc := range idx.references[fqnID] {
			seen[loc.URI] = struct{}{}
		}
	}

	out := make([]string, 0, len(seen))
	for uri := range seen {
		out = append(out, uri)
	}
	sort.Strings(out)
	return out
}

// EntriesForURI returns every entry defined in uri, in insertion order.
func (idx *RubyIndex) EntriesForURI(uri string) []Entry {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	ids := idx.uriToEntries[uri]
	out := make([]Entry, 0, len(ids))
	for _, id := range ids {
		if e, ok := idx.entryByID[id]; ok {
			out = append(out, e)
		}
	}
	return out
}

// References returns every recorded reference location for fqn, in the
// order recorded.
func (idx *RubyIndex) References(fqn rubyfqn.FQN) []Location {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	fqnID := idx.interner.intern(fqn)
	return append([]Location(nil), idx.references[fqnID]...)
}

// EntriesWithNamePrefix returns every entry whose final name component
// starts with prefix, for completion enumeration. A "" prefix returns
// everything.
func (idx *RubyIndex) EntriesWithNamePrefix(prefix string) []Entry {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	var out []Entry
	for _, defs := range idx.definitions {
		for _, d := range defs {
			if strings.HasPrefix(d.FQN.Name(), prefix) {
				out = append(out, d)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FQN.String() < out[j].FQN.String() })
	return out
}

// Stats reports aggregate sizes for the debug surface.
type Stats struct {
	Definitions int
	References  int
	Unresolved  int
	Namespaces  int
}

// CollectStats counts the index's current contents.
func (idx *RubyIndex) CollectStats() Stats {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	s := Stats{Namespaces: len(idx.namespaceTree)}
	for _, defs := range idx.definitions {
		s.Definitions += len(defs)
	}
	for _, refs := range idx.references {
		s.References += len(refs)
	}
	for _, refs := range idx.unresolved {
		s.Unresolved += len(refs)
	}
	return s
}

// NamespaceChildren returns the direct children of fqn in the namespace
// tree, sorted by name, using the memoised cache.
func (idx *RubyIndex) NamespaceChildren(fqn rubyfqn.FQN) []rubyfqn.FQN {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	parentID := idx.interner.intern(fqn)
	if cached, ok := idx.namespaceTreeCache.Get(parentID); ok {
		return cached
	}

	childIDs := idx.namespaceTree[parentID]
	children := make([]rubyfqn.FQN, len(childIDs))
	for i, id := range childIDs {
		children[i] = idx.interner.lookup(id)
	}
	sort.Slice(children, func(i, j int) bool { return children[i].String() < children[j].String() })

	idx.namespaceTreeCache.Add(parentID, children)
	return children
}

// FindDefinitionsUnderOwner returns every Method entry whose Owner equals
// owner (i.e. methods defined directly within that class/module body,
// the set a mixin resolver exports to a host when owner is mixed in.
func (idx *RubyIndex) FindDefinitionsUnderOwner(owner rubyfqn.FQN) []Entry {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	var out []Entry
	for _, defs := range idx.definitions {
		for _, d := range defs {
			if d.Kind == KindMethod && d.Owner.Equal(owner) && d.Origin == OriginDirect {
				out = append(out, d)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FQN.String() < out[j].FQN.String() })
	return out
}

// SetMixinRefs replaces owner's unresolved mixin graph entry with refs,
// used by the mixin resolver when (re)registering a class/module's
// include/extend/prepend declarations before resolution runs.
func (idx *RubyIndex) SetMixinRefs(owner rubyfqn.FQN, refs []MixinRef) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	ownerID := idx.interner.intern(owner)
	idx.mixinGraph[ownerID] = refs
}

// MixinOwners returns every owner FQN with a non-empty mixin graph entry,
// the worklist for resolve_all_mixins.
func (idx *RubyIndex) MixinOwners() []rubyfqn.FQN {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	owners := make([]rubyfqn.FQN, 0, len(idx.mixinGraph))
	for id, refs := range idx.mixinGraph {
		if len(refs) > 0 {
			owners = append(owners, idx.interner.lookup(id))
		}
	}
	sort.Slice(owners, func(i, j int) bool { return owners[i].String() < owners[j].String() })
	return owners
}

// MixinRefsFor returns the recorded mixin refs for owner.
func (idx *RubyIndex) MixinRefsFor(owner rubyfqn.FQN) []MixinRef {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	ownerID := idx.interner.intern(owner)
	return append([]MixinRef(nil), idx.mixinGraph[ownerID]...)
}

// RemoveVirtualEntriesForOwner drops every entry on owner whose Origin is
// not OriginDirect, so the mixin resolver can re-run idempotently.
func (idx *RubyIndex) RemoveVirtualEntriesForOwner(owner rubyfqn.FQN) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	for fqnID, defs := range idx.definitions {
		kept := defs[:0]
		changed := false
		for _, d := range defs {
			if d.Kind == KindMethod && d.Owner.Equal(owner) && d.IsVirtual() {
				changed = true
				delete(idx.entryByID, d.ID)
				continue
			}
			kept = append(kept, d)
		}
		if changed {
			if len(kept) == 0 {
				delete(idx.definitions, fqnID)
			} else {
				idx.definitions[fqnID] = kept
			}
		}
	}
}

// UpdateReturnType sets entry id's inferred ReturnType in place, the one
// field an Entry may mutate after insertion.
func (idx *RubyIndex) UpdateReturnType(id EntryID, fqn rubyfqn.FQN, rt rubytype.Type) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	fqnID := idx.interner.intern(fqn)
	defs := idx.definitions[fqnID]
	for i := range defs {
		if defs[i].ID == id {
			defs[i].ReturnType = &rt
		}
	}
	idx.definitions[fqnID] = defs
	if e, ok := idx.entryByID[id]; ok {
		e.ReturnType = &rt
		idx.entryByID[id] = e
	}
}
