// Package rettype implements lazy method return-type inference: a
// method's return type is the union of its terminal expressions' types
// (final statement plus every return). Split out from internal/typetrack
// because it is invoked independently of the forward dataflow pass (on
// first hover/completion/inlay-hint query for a method, or while
// generating inlay hints for visible methods) and caches its result on
// the method's index entry.
package rettype

import (
	"sync"

	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/docstate"
	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/rubyfqn"
	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/rubyindex"
	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/rubyparse"
	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/rubytype"
	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/typetrack"
)

// BodyProvider resolves a method Entry to its body's statement list and
// the source bytes it was parsed from. Entries don't retain their AST
// (only a Location), so callers back this with whatever currently holds
// the parse: an open internal/docstate.Document, or a re-parse of the
// file's on-disk content for closed files.
type BodyProvider interface {
	MethodBody(entry rubyindex.Entry) (body *rubyparse.Node, source []byte, ok bool)
}

// Inferrer lazily computes and caches method return types, implementing
// typetrack.MethodResolver so the type tracker can resolve a "method
// call on receiver" assignment by recursing into this same inferrer.
type Inferrer struct {
	idx    *rubyindex.RubyIndex
	bodies BodyProvider

	mu       sync.Mutex
	inFlight map[rubyindex.EntryID]bool
}

// New constructs an Inferrer backed by idx for symbol lookups and bodies
// for retrieving a method's AST on demand.
func New(idx *rubyindex.RubyIndex, bodies BodyProvider) *Inferrer {
	return &Inferrer{
		idx:      idx,
		bodies:   bodies,
		inFlight: make(map[rubyindex.EntryID]bool),
	}
}

// ResolveMethodReturnType implements typetrack.MethodResolver: given a
// receiver type and a bare method name, finds the method on the
// receiver's class and returns its inferred return type.
func (inf *Inferrer) ResolveMethodReturnType(receiver rubytype.Type, methodName string) (rubytype.Type, bool) {
	var owner rubyfqn.FQN
	switch receiver.Kind {
	case rubytype.Class, rubytype.ClassReference:
		owner = receiver.FQN
	default:
		return rubytype.Type{}, false
	}

	fqn := rubyfqn.InstanceMethod(owner.Parts, rubyfqn.MethodName(methodName))
	entries := inf.idx.FindDefinitions(fqn)
	if len(entries) == 0 {
		return rubytype.Type{}, false
	}
	return inf.ReturnTypeOf(entries[0])
}

// ReturnTypeOf returns entry's return type, computing and caching it on
// the index if this is the first request. entry must be KindMethod;
// other kinds return (Unknown, false).
func (inf *Inferrer) ReturnTypeOf(entry rubyindex.Entry) (rubytype.Type, bool) {
	if entry.Kind != rubyindex.KindMethod {
		return rubytype.Type{}, false
	}
	if entry.ReturnType != nil {
		return *entry.ReturnType, true
	}

	if entry.YardDoc != nil {
		if rt, ok := entry.YardDoc.ReturnType(); ok {
			inf.idx.UpdateReturnType(entry.ID, entry.FQN, rt)
			return rt, true
		}
	}

	// Guard against mutually recursive methods (A calls B, B calls A):
	// bail to Unknown rather than looping forever.
	inf.mu.Lock()
	if inf.inFlight[entry.ID] {
		inf.mu.Unlock()
		return rubytype.Type{}, false
	}
	inf.inFlight[entry.ID] = true
	inf.mu.Unlock()
	defer func() {
		inf.mu.Lock()
		delete(inf.inFlight, entry.ID)
		inf.mu.Unlock()
	}()

	if inf.bodies == nil {
		return rubytype.Type{}, false
	}
	body, source, ok := inf.bodies.MethodBody(entry)
	if !ok || body == nil {
		return rubytype.Type{}, false
	}

	params := seedParams(entry)
	tracker := typetrack.New(inf)
	snaps := tracker.Track(source, body, params)

	terms := typetrack.TerminalExpressions(body)
	if len(terms) == 0 {
		rt := rubytype.New(rubytype.NilClass)
		inf.idx.UpdateReturnType(entry.ID, entry.FQN, rt)
		return rt, true
	}

	// Each terminal evaluates against the dataflow state the forward
	// pass computed at that terminal's position; a bare `x` after an
	// if/else join must see the joined union, not the entry state.
	var parts []rubytype.Type
	for _, term := range terms {
		env := envAtOffset(snaps, term.StartByte, params)
		parts = append(parts, tracker.EvalExpr(source, term, env))
	}
	rt := rubytype.Union(parts...)

	inf.idx.UpdateReturnType(entry.ID, entry.FQN, rt)
	return rt, true
}

// envAtOffset rebuilds the variable environment visible at offset from
// the tracker's snapshots, overlaying later snapshots over earlier ones
// so each name carries its most recently narrowed type. YARD-seeded
// parameter types fill names no snapshot has touched.
func envAtOffset(snaps []docstate.TypeSnapshot, offset uint32, params map[string]rubytype.Type) typetrack.Env {
	env := typetrack.Env{}
	for name, typ := range params {
		env[name] = typ
	}
	for _, snap := range snaps {
		if snap.StartOffset > offset {
			continue
		}
		for name, t := range snap.Vars {
			env[name] = t
		}
	}
	return env
}

// seedParams builds the initial type environment for a method from its
// YARD-declared parameter types, best-effort: a parameter stays unset
// when its doc comment doesn't resolve to a single constant path.
func seedParams(entry rubyindex.Entry) map[string]rubytype.Type {
	if entry.YardDoc == nil {
		return nil
	}
	params := make(map[string]rubytype.Type)
	for _, p := range entry.Parameters {
		if rt, ok := entry.YardDoc.ParamType(p.Name); ok {
			params[p.Name] = rt
		}
	}
	if len(params) == 0 {
		return nil
	}
	return params
}
