package mixin

import (
	"testing"

	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/rubyfqn"
	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/rubyindex"
)

func TestResolveIncludeSynthesisesVirtualMethod(t *testing.T) {
	idx := rubyindex.NewIndex()

	greetable := rubyfqn.Namespace("Greetable")
	idx.AddEntry(rubyindex.Entry{FQN: greetable, Kind: rubyindex.KindModule, Location: rubyindex.Location{URI: "file:///greetable.rb"}})
	idx.AddEntry(rubyindex.Entry{
		FQN:        rubyfqn.InstanceMethod([]rubyfqn.RubyConstant{"Greetable"}, "greet"),
		Kind:       rubyindex.KindMethod,
		Owner:      greetable,
		MethodKind: rubyindex.MethodInstance,
		Origin:     rubyindex.OriginDirect,
		Location:   rubyindex.Location{URI: "file:///greetable.rb"},
	})

	person := rubyfqn.Namespace("Person")
	idx.AddEntry(rubyindex.Entry{FQN: person, Kind: rubyindex.KindClass, Location: rubyindex.Location{URI: "file:///person.rb"}})
	idx.SetMixinRefs(person, []rubyindex.MixinRef{
		{Kind: rubyindex.MixinInclude, Path: []rubyfqn.RubyConstant{"Greetable"}},
	})

	Resolve(idx)

	greetFQN := rubyfqn.InstanceMethod([]rubyfqn.RubyConstant{"Person"}, "greet")
	defs := idx.FindDefinitions(greetFQN)
	if len(defs) != 1 {
		t.Fatalf("expected Person#greet to be synthesised, got %d defs", len(defs))
	}
	if defs[0].Origin != rubyindex.OriginIncluded {
		t.Errorf("expected OriginIncluded, got %s", defs[0].Origin)
	}
	if defs[0].Owner.String() != "Person" {
		t.Errorf("expected owner Person, got %s", defs[0].Owner)
	}
}

func TestResolveExtendCreatesSingletonMethod(t *testing.T) {
	idx := rubyindex.NewIndex()

	classMethods := rubyfqn.Namespace("ClassMethods")
	idx.AddEntry(rubyindex.Entry{FQN: classMethods, Kind: rubyindex.KindModule, Location: rubyindex.Location{URI: "file:///cm.rb"}})
	idx.AddEntry(rubyindex.Entry{
		FQN:        rubyfqn.InstanceMethod([]rubyfqn.RubyConstant{"ClassMethods"}, "create"),
		Kind:       rubyindex.KindMethod,
		Owner:      classMethods,
		MethodKind: rubyindex.MethodInstance,
		Origin:     rubyindex.OriginDirect,
		Location:   rubyindex.Location{URI: "file:///cm.rb"},
	})

	widget := rubyfqn.Namespace("Widget")
	idx.AddEntry(rubyindex.Entry{FQN: widget, Kind: rubyindex.KindClass, Location: rubyindex.Location{URI: "file:///widget.rb"}})
	idx.SetMixinRefs(widget, []rubyindex.MixinRef{
		{Kind: rubyindex.MixinExtend, Path: []rubyfqn.RubyConstant{"ClassMethods"}},
	})

	Resolve(idx)

	createFQN := rubyfqn.ModuleMethod([]rubyfqn.RubyConstant{"Widget"}, "create")
	defs := idx.FindDefinitions(createFQN)
	if len(defs) != 1 {
		t.Fatalf("expected Widget.create to be synthesised, got %d defs", len(defs))
	}
	if defs[0].Origin != rubyindex.OriginExtended {
		t.Errorf("expected OriginExtended, got %s", defs[0].Origin)
	}
}

func TestResolvePrependShadowsOwnMethod(t *testing.T) {
	idx := rubyindex.NewIndex()

	audited := rubyfqn.Namespace("Audited")
	idx.AddEntry(rubyindex.Entry{FQN: audited, Kind: rubyindex.KindModule, Location: rubyindex.Location{URI: "file:///audited.rb"}})
	idx.AddEntry(rubyindex.Entry{
		FQN:        rubyfqn.InstanceMethod([]rubyfqn.RubyConstant{"Audited"}, "save"),
		Kind:       rubyindex.KindMethod,
		Owner:      audited,
		MethodKind: rubyindex.MethodInstance,
		Origin:     rubyindex.OriginDirect,
		Location:   rubyindex.Location{URI: "file:///audited.rb"},
	})

	// Record defines its own save AND prepends Audited, whose save must
	// win method lookup per Ruby's MRO.
	record := rubyfqn.Namespace("Record")
	idx.AddEntry(rubyindex.Entry{FQN: record, Kind: rubyindex.KindClass, Location: rubyindex.Location{URI: "file:///record.rb"}})
	idx.AddEntry(rubyindex.Entry{
		FQN:        rubyfqn.InstanceMethod([]rubyfqn.RubyConstant{"Record"}, "save"),
		Kind:       rubyindex.KindMethod,
		Owner:      record,
		MethodKind: rubyindex.MethodInstance,
		Origin:     rubyindex.OriginDirect,
		Location:   rubyindex.Location{URI: "file:///record.rb"},
	})
	idx.SetMixinRefs(record, []rubyindex.MixinRef{
		{Kind: rubyindex.MixinPrepend, Path: []rubyfqn.RubyConstant{"Audited"}},
	})

	Resolve(idx)

	saveFQN := rubyfqn.InstanceMethod([]rubyfqn.RubyConstant{"Record"}, "save")
	defs := idx.FindDefinitions(saveFQN)
	if len(defs) != 2 {
		t.Fatalf("expected own save plus prepended virtual, got %d defs", len(defs))
	}
	if defs[0].Origin != rubyindex.OriginPrepended {
		t.Fatalf("expected the prepended entry first, got origin %s", defs[0].Origin)
	}
	if defs[0].Location.URI != "file:///audited.rb" {
		t.Errorf("expected the prepended entry to point at Audited#save, got %s", defs[0].Location.URI)
	}
	if defs[1].Origin != rubyindex.OriginDirect {
		t.Errorf("expected the owner's own save second, got origin %s", defs[1].Origin)
	}

	// Re-running the resolver keeps the ordering stable.
	Resolve(idx)
	defs = idx.FindDefinitions(saveFQN)
	if len(defs) != 2 || defs[0].Origin != rubyindex.OriginPrepended {
		t.Fatalf("expected stable prepend-first ordering after re-resolution, got %+v", defs)
	}
}

func TestResolveUnresolvableMixinLeavesRefUnresolved(t *testing.T) {
	idx := rubyindex.NewIndex()
	widget := rubyfqn.Namespace("Widget")
	idx.AddEntry(rubyindex.Entry{FQN: widget, Kind: rubyindex.KindClass, Location: rubyindex.Location{URI: "file:///widget.rb"}})
	idx.SetMixinRefs(widget, []rubyindex.MixinRef{
		{Kind: rubyindex.MixinInclude, Path: []rubyfqn.RubyConstant{"Nonexistent"}},
	})

	Resolve(idx)

	refs := idx.MixinRefsFor(widget)
	if len(refs) != 1 || refs[0].Resolved {
		t.Fatalf("expected mixin ref to remain unresolved, got %+v", refs)
	}
}

func TestResolveIsIdempotent(t *testing.T) {
	idx := rubyindex.NewIndex()
	greetable := rubyfqn.Namespace("Greetable")
	idx.AddEntry(rubyindex.Entry{FQN: greetable, Kind: rubyindex.KindModule, Location: rubyindex.Location{URI: "file:///g.rb"}})
	idx.AddEntry(rubyindex.Entry{
		FQN:      rubyfqn.InstanceMethod([]rubyfqn.RubyConstant{"Greetable"}, "greet"),
		Kind:     rubyindex.KindMethod,
		Owner:    greetable,
		Origin:   rubyindex.OriginDirect,
		Location: rubyindex.Location{URI: "file:///g.rb"},
	})
	person := rubyfqn.Namespace("Person")
	idx.AddEntry(rubyindex.Entry{FQN: person, Kind: rubyindex.KindClass, Location: rubyindex.Location{URI: "file:///p.rb"}})
	idx.SetMixinRefs(person, []rubyindex.MixinRef{{Kind: rubyindex.MixinInclude, Path: []rubyfqn.RubyConstant{"Greetable"}}})

	Resolve(idx)
	Resolve(idx)

	greetFQN := rubyfqn.InstanceMethod([]rubyfqn.RubyConstant{"Person"}, "greet")
	defs := idx.FindDefinitions(greetFQN)
	if len(defs) != 1 {
		t.Fatalf("expected re-running the resolver to not duplicate virtual entries, got %d", len(defs))
	}
}
