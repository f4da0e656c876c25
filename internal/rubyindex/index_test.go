package rubyindex

import (
	"testing"

	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/rubyfqn"
)

func TestAddEntryAndFindDefinitions(t *testing.T) {
	idx := NewIndex()
	fooFQN := rubyfqn.Namespace("Foo")

	id := idx.AddEntry(Entry{
		FQN:      fooFQN,
		Kind:     KindClass,
		Location: Location{URI: "file:///foo.rb"},
	})
	if id != 0 {
		t.Errorf("expected first entry id 0, got %d", id)
	}

	defs := idx.FindDefinitions(fooFQN)
	if len(defs) != 1 {
		t.Fatalf("expected 1 definition, got %d", len(defs))
	}
	if defs[0].Location.URI != "file:///foo.rb" {
		t.Errorf("unexpected location: %+v", defs[0].Location)
	}
}

func TestReopenedClassKeepsBothEntries(t *testing.T) {
	idx := NewIndex()
	fooFQN := rubyfqn.Namespace("Foo")

	idx.AddEntry(Entry{FQN: fooFQN, Kind: KindClass, Location: Location{URI: "file:///a.rb"}})
	idx.AddEntry(Entry{FQN: fooFQN, Kind: KindClass, Location: Location{URI: "file:///b.rb"}})

	defs := idx.FindDefinitions(fooFQN)
	if len(defs) != 2 {
		t.Fatalf("expected 2 definitions for a reopened class, got %d", len(defs))
	}
	if defs[0].Location.URI != "file:///a.rb" || defs[1].Location.URI != "file:///b.rb" {
		t.Errorf("expected insertion order preserved, got %+v", defs)
	}
}

func TestRemoveEntriesForURIReturnsNewlyUnresolved(t *testing.T) {
	idx := NewIndex()
	fooFQN := rubyfqn.Namespace("Foo")

	idx.AddEntry(Entry{FQN: fooFQN, Kind: KindClass, Location: Location{URI: "file:///a.rb"}})

	newlyUnresolved := idx.RemoveEntriesForURI("file:///a.rb")
	if len(newlyUnresolved) != 1 || !newlyUnresolved[0].Equal(fooFQN) {
		t.Fatalf("expected Foo to become newly unresolved, got %+v", newlyUnresolved)
	}

	if defs := idx.FindDefinitions(fooFQN); len(defs) != 0 {
		t.Errorf("expected no definitions remaining, got %d", len(defs))
	}
}

func TestRemoveEntriesForURIKeepsOtherDefinitions(t *testing.T) {
	idx := NewIndex()
	fooFQN := rubyfqn.Namespace("Foo")

	idx.AddEntry(Entry{FQN: fooFQN, Kind: KindClass, Location: Location{URI: "file:///a.rb"}})
	idx.AddEntry(Entry{FQN: fooFQN, Kind: KindClass, Location: Location{URI: "file:///b.rb"}})

	newlyUnresolved := idx.RemoveEntriesForURI("file:///a.rb")
	if len(newlyUnresolved) != 0 {
		t.Fatalf("expected Foo to remain defined via b.rb, got newly unresolved: %+v", newlyUnresolved)
	}
	if defs := idx.FindDefinitions(fooFQN); len(defs) != 1 {
		t.Errorf("expected 1 remaining definition, got %d", len(defs))
	}
}

func TestResolveWalksScopeOutward(t *testing.T) {
	idx := NewIndex()
	inner := rubyfqn.Namespace("Foo", "Bar")
	idx.AddEntry(Entry{FQN: inner, Kind: KindClass, Location: Location{URI: "file:///a.rb"}})

	scope := []rubyfqn.FQN{rubyfqn.Namespace("Foo"), rubyfqn.Namespace()}
	defs := idx.Resolve("Bar", scope)
	if len(defs) != 1 {
		t.Fatalf("expected scope walk to find Foo::Bar, got %d defs", len(defs))
	}
}

func TestResolveAbsoluteSkipsScopeWalk(t *testing.T) {
	idx := NewIndex()
	top := rubyfqn.Namespace("Bar")
	idx.AddEntry(Entry{FQN: top, Kind: KindClass, Location: Location{URI: "file:///a.rb"}})

	// Even though the scope contains Foo::Bar's namespace, the absolute
	// reference must resolve directly against the root.
	defs := idx.Resolve("::Bar", []rubyfqn.FQN{rubyfqn.Namespace("Foo")})
	if len(defs) != 1 {
		t.Fatalf("expected absolute resolution to find ::Bar, got %d defs", len(defs))
	}
}

func TestNamespaceChildren(t *testing.T) {
	idx := NewIndex()
	idx.AddEntry(Entry{FQN: rubyfqn.Namespace("Foo", "Alpha"), Kind: KindClass, Location: Location{URI: "file:///a.rb"}})
	idx.AddEntry(Entry{FQN: rubyfqn.Namespace("Foo", "Beta"), Kind: KindModule, Location: Location{URI: "file:///b.rb"}})

	children := idx.NamespaceChildren(rubyfqn.Namespace("Foo"))
	if len(children) != 2 {
		t.Fatalf("expected 2 children, got %d", len(children))
	}
	if children[0].Name() != "Alpha" || children[1].Name() != "Beta" {
		t.Errorf("expected alphabetical order, got %+v", children)
	}
}

func TestInternFQNStable(t *testing.T) {
	idx := NewIndex()
	foo := rubyfqn.Namespace("Foo")
	id1 := idx.InternFQN(foo)
	id2 := idx.InternFQN(foo)
	if id1 != id2 {
		t.Errorf("expected stable id for repeated interning, got %d and %d", id1, id2)
	}
}

func TestInternDistinguishesConstantFromNamespace(t *testing.T) {
	idx := NewIndex()
	ns := idx.InternFQN(rubyfqn.Namespace("Foo"))
	cst := idx.InternFQN(rubyfqn.Constant("Foo"))
	if ns == cst {
		t.Error("expected Namespace and Constant variants of the same path to intern distinctly")
	}
}
