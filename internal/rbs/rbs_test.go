package rbs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/rubyfqn"
	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/rubyindex"
	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/rubytype"
)

func seedMethod(idx *rubyindex.RubyIndex, owner []rubyfqn.RubyConstant, name string) rubyindex.EntryID {
	return idx.AddEntry(rubyindex.Entry{
		FQN:      rubyfqn.InstanceMethod(owner, rubyfqn.MethodName(name)),
		Kind:     rubyindex.KindMethod,
		Owner:    rubyfqn.Namespace(owner...),
		Location: rubyindex.Location{URI: "file:///a.rb"},
	})
}

func TestApplySetsReturnType(t *testing.T) {
	idx := rubyindex.NewIndex()
	seedMethod(idx, []rubyfqn.RubyConstant{"Foo"}, "size")

	err := Apply(idx, Signature{Owner: "Foo", Method: "size", ReturnType: "Integer"})
	require.NoError(t, err)

	defs := idx.FindDefinitions(rubyfqn.InstanceMethod([]rubyfqn.RubyConstant{"Foo"}, "size"))
	require.Len(t, defs, 1)
	require.NotNil(t, defs[0].ReturnType)
	assert.Equal(t, rubytype.Integer, defs[0].ReturnType.Kind)
}

func TestApplyKeepsInferredType(t *testing.T) {
	idx := rubyindex.NewIndex()
	id := seedMethod(idx, []rubyfqn.RubyConstant{"Foo"}, "name")
	fqn := rubyfqn.InstanceMethod([]rubyfqn.RubyConstant{"Foo"}, "name")
	idx.UpdateReturnType(id, fqn, rubytype.New(rubytype.String))

	require.NoError(t, Apply(idx, Signature{Owner: "Foo", Method: "name", ReturnType: "Integer"}))

	defs := idx.FindDefinitions(fqn)
	require.Len(t, defs, 1)
	assert.Equal(t, rubytype.String, defs[0].ReturnType.Kind)
}

func TestApplyMissingDefinition(t *testing.T) {
	idx := rubyindex.NewIndex()
	err := Apply(idx, Signature{Owner: "Nope", Method: "gone", ReturnType: "String"})
	assert.Error(t, err)
}

func TestNarrowType(t *testing.T) {
	tests := []struct {
		raw  string
		ok   bool
		kind rubytype.Kind
	}{
		{"Integer", true, rubytype.Integer},
		{"String", true, rubytype.String},
		{"nil", true, rubytype.NilClass},
		{"bool", true, rubytype.Union_},
		{"untyped", false, 0},
		{"String | nil", false, 0},
		{"Array[Integer]", false, 0},
		{"Foo::Bar", true, rubytype.Class},
		{"lowercase", false, 0},
	}
	for _, tc := range tests {
		got, ok := narrowType(tc.raw)
		assert.Equal(t, tc.ok, ok, tc.raw)
		if ok {
			assert.Equal(t, tc.kind, got.Kind, tc.raw)
		}
	}
}
